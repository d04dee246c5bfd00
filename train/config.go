package train

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Hyperparameter selection modes. Only HyperManual and file-based loading
// are implemented; the random modes are recognized but NotConfigured.
const (
	HyperManual       = "manual"
	HyperRandomCoarse = "random_coarse"
	HyperRandomFine   = "random_fine"
)

// Selection policy names for LoaderConfig.Selection.
const (
	SelectionRandom     = "random"
	SelectionRoundRobin = "round-robin"
)

// ValidSelectionPolicies is the set of recognized selection policy names.
var ValidSelectionPolicies = map[string]bool{"": true, SelectionRandom: true, SelectionRoundRobin: true}

// RunParams is the frozen configuration of one training run. It is built once,
// validated and refined before the model is constructed, and never mutated afterwards.
type RunParams struct {
	Path  string `yaml:"path"`
	Hyper string `yaml:"hyper"`

	// architecture
	FeatureMaps    int     `yaml:"featuremaps"`
	DropoutRate    float64 `yaml:"dropoutrate"`
	KernelSize     int     `yaml:"kernelsize"`
	HistoryLength  int     `yaml:"historylength"`  // refined to the receptive field by Refine
	ResidualLayers int     `yaml:"residuallayers"` // derived by Refine

	// optimization
	NoWeightNorm bool    `yaml:"noweightnorm"`
	LearningRate float64 `yaml:"learningrate"`
	BatchSize    int     `yaml:"batchsize"`
	BatchLength  int     `yaml:"batchlength"`
	MaxEpochs    int     `yaml:"maxepochs"`
	EarlyStop    int     `yaml:"earlystop"` // patience in epochs; -1 disables early stopping
	ValidFold    int     `yaml:"validfold"` // 1..6, or NoValidFold
	GradientClip float64 `yaml:"gradientclip"`

	// data
	FirstSceneOnly       bool `yaml:"firstsceneonly"`
	InstantLabels        bool `yaml:"instantlabels"`
	SceneInstanceBufSize int  `yaml:"sceneinstancebufsize"`
	BatchBufMultiProc    bool `yaml:"batchbufmultiproc"`
	BatchBufSize         int  `yaml:"batchbufsize"`

	DimFeatures int `yaml:"dim_features"`
	DimLabels   int `yaml:"dim_labels"`

	// runner
	Manifest     string        `yaml:"manifest"`
	Seed         int64         `yaml:"seed"`
	Selection    string        `yaml:"selection"`
	Workers      int           `yaml:"workers"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	SceneCache   int           `yaml:"scene_cache"`
}

// DefaultRunParams returns the defaults of the command line.
func DefaultRunParams() RunParams {
	return RunParams{
		Path:                 "playground",
		Hyper:                HyperManual,
		FeatureMaps:          50,
		DropoutRate:          0.0,
		KernelSize:           3,
		HistoryLength:        500,
		LearningRate:         0.001,
		BatchSize:            32,
		BatchLength:          3000,
		MaxEpochs:            2,
		EarlyStop:            5,
		ValidFold:            NoValidFold,
		GradientClip:         1.0,
		SceneInstanceBufSize: 2000,
		BatchBufSize:         10,
		DimFeatures:          DimFeatures,
		DimLabels:            DimLabels,
		Seed:                 42,
		Selection:            SelectionRandom,
		Workers:              1,
		SceneCache:           0,
	}
}

// LabelMode returns the label interpretation selected by InstantLabels.
func (p RunParams) LabelMode() LabelMode {
	if p.InstantLabels {
		return LabelModeInstant
	}
	return LabelModeBlockBased
}

// Validate checks every field range. It does not require Refine to have run.
func (p RunParams) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(ErrConfiguration, format, args...)
	}
	if p.FeatureMaps <= 0 {
		return invalid("featuremaps must be positive, got %d", p.FeatureMaps)
	}
	if p.DropoutRate < 0 || p.DropoutRate >= 1 {
		return invalid("dropoutrate must be in [0, 1), got %g", p.DropoutRate)
	}
	if p.KernelSize < 2 {
		return invalid("kernelsize must be at least 2, got %d", p.KernelSize)
	}
	if p.HistoryLength < 1 {
		return invalid("historylength must be positive, got %d", p.HistoryLength)
	}
	if p.LearningRate <= 0 {
		return invalid("learningrate must be positive, got %g", p.LearningRate)
	}
	if p.BatchSize <= 0 {
		return invalid("batchsize must be positive, got %d", p.BatchSize)
	}
	if p.BatchLength <= 0 {
		return invalid("batchlength must be positive, got %d", p.BatchLength)
	}
	if p.BatchLength < p.HistoryLength {
		return invalid("batchlength %d is shorter than the receptive field %d", p.BatchLength, p.HistoryLength)
	}
	if p.MaxEpochs <= 0 {
		return invalid("maxepochs must be positive, got %d", p.MaxEpochs)
	}
	if p.EarlyStop < -1 || p.EarlyStop == 0 {
		return invalid("earlystop must be a positive patience or -1, got %d", p.EarlyStop)
	}
	if p.ValidFold != NoValidFold && (p.ValidFold < 1 || p.ValidFold > NumberFolds) {
		return errors.Wrapf(ErrInvalidFold, "validfold must be one of 1..%d or %d, got %d", NumberFolds, NoValidFold, p.ValidFold)
	}
	if p.GradientClip < 0 {
		return invalid("gradientclip must be non-negative, got %g", p.GradientClip)
	}
	if p.SceneInstanceBufSize <= 0 {
		return invalid("sceneinstancebufsize must be positive, got %d", p.SceneInstanceBufSize)
	}
	if p.BatchBufMultiProc && p.BatchBufSize <= 0 {
		return invalid("batchbufsize must be positive in multi-process mode, got %d", p.BatchBufSize)
	}
	if p.DimFeatures <= 0 || p.DimLabels <= 0 {
		return invalid("feature and label dimensions must be positive, got %d and %d", p.DimFeatures, p.DimLabels)
	}
	if !ValidSelectionPolicies[p.Selection] {
		return invalid("unknown selection policy %q", p.Selection)
	}
	if p.Workers < 0 {
		return invalid("workers must be non-negative, got %d", p.Workers)
	}
	if p.BatchTimeout < 0 {
		return invalid("batch timeout must be non-negative, got %v", p.BatchTimeout)
	}
	return nil
}

// Refine sets ResidualLayers and raises HistoryLength to the receptive field
// of that many residual blocks. It returns a human-readable report.
func (p *RunParams) Refine() string {
	layers, refined := ResidualLayers(p.HistoryLength, p.KernelSize)
	report := describeRefinement(p.HistoryLength, refined, layers, p.KernelSize)
	p.ResidualLayers = layers
	p.HistoryLength = refined
	return report
}

// LoadRunParams reads RunParams from a YAML file on fs.
// Uses strict parsing: unrecognized keys (typos) are rejected.
// Fields missing from the file keep their DefaultRunParams value.
func LoadRunParams(fs afero.Fs, path string) (RunParams, error) {
	params := DefaultRunParams()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return params, errors.Wrapf(err, "reading run params %s", path)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&params); err != nil {
		return params, errors.Wrapf(ErrConfiguration, "parsing run params %s: %v", path, err)
	}
	return params, nil
}
