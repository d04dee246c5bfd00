package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/twoears/scenetcn/train"
	"github.com/twoears/scenetcn/train/dataset"
)

var sceneExtensions = map[string]bool{".gob": true, ".sz": true, ".pb": true}

// --- scenetcn manifest ---

var manifestOut string

var manifestCmd = &cobra.Command{
	Use:          "manifest <dir>",
	Short:        "Write a manifest listing the scene instance files below a directory",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := manifestOut
		if out == "" {
			out = filepath.Join(args[0], dataset.ManifestName)
		}
		files, err := buildManifest(afero.NewOsFs(), args[0], out)
		if err != nil {
			return err
		}
		logrus.Infof("wrote %s with %d scene files", out, len(files))
		return nil
	},
}

// buildManifest reads the fold and scene of every scene file below dir and
// writes them as a manifest at out, with paths relative to out's directory.
func buildManifest(fs afero.Fs, dir, out string) ([]train.SceneFile, error) {
	base := filepath.Dir(out)
	var files []train.SceneFile
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !sceneExtensions[filepath.Ext(path)] {
			return nil
		}
		s, err := dataset.ReadScene(fs, path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = path
		}
		files = append(files, train.SceneFile{Path: rel, Fold: s.Fold, Scene: s.Scene})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scene files below %s: %w", dir, train.ErrNoInputFiles)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	if err := dataset.WriteManifest(fs, out, files); err != nil {
		return nil, err
	}
	return files, nil
}

// --- scenetcn convert ---

var convertCmd = &cobra.Command{
	Use:          "convert <in> <out>",
	Short:        "Re-encode a scene instance file; the format follows the extension (.gob, .sz, .pb)",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := convertScene(afero.NewOsFs(), args[0], args[1])
		if err != nil {
			return err
		}
		logrus.Infof("wrote %s (%s)", args[1], humanize.Bytes(uint64(n)))
		return nil
	},
}

// convertScene reads in and writes it to out. It returns the size of out.
func convertScene(fs afero.Fs, in, out string) (int64, error) {
	s, err := dataset.ReadScene(fs, in)
	if err != nil {
		return 0, err
	}
	if err := dataset.WriteScene(fs, out, s); err != nil {
		return 0, err
	}
	info, err := fs.Stat(out)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", out, err)
	}
	return info.Size(), nil
}

// --- scenetcn results ---

var resultsCmd = &cobra.Command{
	Use:          "results <name>_results.json",
	Short:        "Print the per-epoch results of a run",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResults(afero.NewOsFs(), args[0], cmd.OutOrStdout())
	},
}

// printResults writes a table of the epochs in the results file at path to w.
func printResults(fs afero.Fs, path string, w io.Writer) error {
	name := strings.TrimSuffix(filepath.Base(path), "_results.json")
	if name == filepath.Base(path) {
		return fmt.Errorf("%s is not a results file: %w", path, train.ErrConfiguration)
	}
	store := &train.ArtifactStore{FS: fs, Dir: filepath.Dir(path), Name: name}
	r, err := store.LoadResults()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s (validation fold %d)\n", r.Name, r.ValidFold)
	fmt.Fprintf(w, "%-6s %-9s %-9s %-9s %-9s %s\n", "epoch", "loss", "train", "valid", "minutes", "batches")
	for _, e := range r.Epochs {
		valid := "-"
		if e.ValidBAC != nil {
			valid = fmt.Sprintf("%.4f", *e.ValidBAC)
		}
		marker := ""
		if e.Epoch == r.BestEpoch {
			marker = " *"
		}
		fmt.Fprintf(w, "%-6d %-9.4f %-9.4f %-9s %-9.2f %s%s\n",
			e.Epoch, e.TrainLoss, e.TrainBAC, valid, e.DurationMinutes, humanize.Comma(int64(e.Batches)), marker)
	}
	fmt.Fprintf(w, "duration: total %.2f, mean %.2f, median %.2f, max %.2f minutes\n",
		r.Summary.Total, r.Summary.Mean, r.Summary.Median, r.Summary.Max)
	if r.State != "" {
		fmt.Fprintf(w, "state: %s\n", r.State)
	}
	return nil
}

func init() {
	manifestCmd.Flags().StringVar(&manifestOut, "out", "", "Manifest path (default <dir>/"+dataset.ManifestName+")")
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(resultsCmd)
}
