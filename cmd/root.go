package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/twoears/scenetcn/train"
	"github.com/twoears/scenetcn/train/dataset"
	_ "github.com/twoears/scenetcn/train/model" // registers the model and optimizers
)

var (
	// CLI flags of the train command, bound onto the defaults
	flagParams = train.DefaultRunParams()

	logLevel       string // Log verbosity level
	labelStatsPath string // LevelDB directory of cached label counts; empty keeps them in memory
	force          bool   // Rerun even if results for the run name exist
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "scenetcn",
	Short: "Train temporal convolutional networks on scene instance recordings",
}

// trainCmd runs one training run using parameters from CLI flags or a hyperparameter file
var trainCmd = &cobra.Command{
	Use:          "train",
	Short:        "Train a model on the scene instances of the training folds",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		fs := afero.NewOsFs()
		params, err := resolveHyper(fs, flagParams)
		if err != nil {
			return err
		}
		opts := runOptions{Level: level, LabelStats: labelStatsPath, Force: force}
		return runTraining(cmd.Context(), fs, params, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// Execute runs the CLI root command. An interrupt cancels the running epoch.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	p := &flagParams
	f := trainCmd.Flags()

	// general
	f.StringVar(&p.Path, "path", p.Path, "Folder where to store the files (log, model, hyperparams, results incl. duration)")
	f.StringVar(&p.Hyper, "hyper", p.Hyper, "manual: via command line; random_coarse or random_fine: hyperparameter samples; a filename: load the params from there (overrides command line values except path and validfold)")

	// architecture
	f.IntVar(&p.FeatureMaps, "featuremaps", p.FeatureMaps, "Number of feature maps per layer")
	f.Float64Var(&p.DropoutRate, "dropoutrate", p.DropoutRate, "Rate of the spatial dropout layers within each residual block")
	f.IntVar(&p.KernelSize, "kernelsize", p.KernelSize, "Size of the temporal kernels")
	f.IntVar(&p.HistoryLength, "historylength", p.HistoryLength, "Effective receptive field of the model; increased to (kernelsize-1)*(2^resblocks-1)+1, which determines the number of residual blocks")

	// optimization
	f.BoolVar(&p.NoWeightNorm, "noweightnorm", p.NoWeightNorm, "Disable the weight norm version of the Adam optimizer")
	f.Float64Var(&p.LearningRate, "learningrate", p.LearningRate, "Initial learning rate of the Adam optimizer")
	f.IntVar(&p.BatchSize, "batchsize", p.BatchSize, "Number of time series per batch")
	f.IntVar(&p.BatchLength, "batchlength", p.BatchLength, "Length of the time series per batch (should be well above historylength)")
	f.IntVar(&p.MaxEpochs, "maxepochs", p.MaxEpochs, "Maximal number of epochs")
	f.IntVar(&p.EarlyStop, "earlystop", p.EarlyStop, "Early stop patience in non-improving epochs; -1 disables early stopping")
	f.IntVar(&p.ValidFold, "validfold", p.ValidFold, "Validation fold (1..6); -1 uses all 6 folds for training")
	f.Float64Var(&p.GradientClip, "gradientclip", p.GradientClip, "Gradient norm clipping threshold; 0 disables clipping")

	// data
	f.BoolVar(&p.FirstSceneOnly, "firstsceneonly", p.FirstSceneOnly, "Use only the first scene for training/validation, otherwise all 80")
	f.BoolVar(&p.InstantLabels, "instantlabels", p.InstantLabels, "Use instant labels; otherwise block-interpreted labels")
	f.IntVar(&p.SceneInstanceBufSize, "sceneinstancebufsize", p.SceneInstanceBufSize, "Number of buffered scene instances from which to draw the time series of a batch")
	f.BoolVar(&p.BatchBufMultiProc, "batchbufmultiproc", p.BatchBufMultiProc, "Assemble batches in background producers")
	f.IntVar(&p.BatchBufSize, "batchbufsize", p.BatchBufSize, "Number of buffered batches (multi-process mode only)")

	// runner
	f.StringVar(&p.Manifest, "manifest", dataset.ManifestName, "CSV file listing the scene instance files (path,fold,scene)")
	f.Int64Var(&p.Seed, "seed", p.Seed, "Seed for batch row selection and weight initialization")
	f.StringVar(&p.Selection, "selection", p.Selection, "Batch row selection policy (random, round-robin)")
	f.IntVar(&p.Workers, "workers", p.Workers, "Batch producers in multi-process mode")
	f.DurationVar(&p.BatchTimeout, "batch-timeout", p.BatchTimeout, "Maximal wait for a batch in multi-process mode; 0 waits indefinitely")
	f.IntVar(&p.SceneCache, "scene-cache", p.SceneCache, "Number of decoded scene instances kept across epochs; 0 disables the cache")
	f.StringVar(&labelStatsPath, "labelstats", "", "LevelDB directory caching per-file label counts; empty keeps them in memory")
	f.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	f.BoolVar(&force, "force", false, "Run even if results for this run name already exist")

	rootCmd.AddCommand(trainCmd)
}
