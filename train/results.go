package train

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EpochResult is the record of one completed epoch.
type EpochResult struct {
	Epoch           int       `json:"epoch"` // 1-based
	DurationMinutes float64   `json:"duration_minutes"`
	Batches         int       `json:"batches"`
	TrainLoss       float64   `json:"train_loss"`
	TrainBAC        float64   `json:"train_bac"`
	TrainSens       []float64 `json:"train_sens"`
	TrainSpec       []float64 `json:"train_spec"`
	ValidBAC        *float64  `json:"valid_bac,omitempty"` // nil without a validation fold
	ValidSens       []float64 `json:"valid_sens,omitempty"`
	ValidSpec       []float64 `json:"valid_spec,omitempty"`
}

// ResultsRecord is the run-scoped results file content. It is rewritten after
// every epoch with all completed epochs.
type ResultsRecord struct {
	Name      string          `json:"name"`
	ValidFold int             `json:"validfold"`
	Epochs    []EpochResult   `json:"epochs"`
	Duration  []float64       `json:"duration"` // minutes per epoch
	Summary   DurationSummary `json:"duration_summary"`
	BestEpoch int             `json:"best_epoch,omitempty"`
	State     string          `json:"state,omitempty"`
}

// Append adds an epoch and its duration.
func (r *ResultsRecord) Append(e EpochResult) {
	r.Epochs = append(r.Epochs, e)
	r.Duration = append(r.Duration, e.DurationMinutes)
	r.Summary = SummarizeDurations(r.Duration)
}

// ArtifactStore persists the run artifacts under Dir, keyed by Name:
// <name>_params.yaml, <name>_results.json, <name>_model.gob and the
// <name>_output / <name>_errors logs.
type ArtifactStore struct {
	FS   afero.Fs
	Dir  string
	Name string
}

// NewArtifactStore creates the store and its directory.
func NewArtifactStore(fs afero.Fs, dir, name string) (*ArtifactStore, error) {
	if name == "" {
		return nil, errors.Wrap(ErrConfiguration, "run name must not be empty")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating run directory %s", dir)
	}
	return &ArtifactStore{FS: fs, Dir: dir, Name: name}, nil
}

func (s *ArtifactStore) path(suffix string) string {
	return filepath.Join(s.Dir, s.Name+suffix)
}

// ParamsPath returns the params file path.
func (s *ArtifactStore) ParamsPath() string { return s.path("_params.yaml") }

// ResultsPath returns the results file path.
func (s *ArtifactStore) ResultsPath() string { return s.path("_results.json") }

// ModelPath returns the best-model checkpoint path.
func (s *ArtifactStore) ModelPath() string { return s.path("_model.gob") }

// OutputLogPath returns the path of the standard output log.
func (s *ArtifactStore) OutputLogPath() string { return s.path("_output") }

// ErrorLogPath returns the path of the error log.
func (s *ArtifactStore) ErrorLogPath() string { return s.path("_errors") }

// SaveParams writes the run parameters as YAML.
func (s *ArtifactStore) SaveParams(p RunParams) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshaling run params")
	}
	return s.writeAtomic(s.ParamsPath(), data)
}

// SaveResults overwrites the results file with r.
func (s *ArtifactStore) SaveResults(r *ResultsRecord) error {
	data, err := json.MarshalIndent(sanitize(r), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling results")
	}
	return s.writeAtomic(s.ResultsPath(), data)
}

// LoadResults reads the results file.
func (s *ArtifactStore) LoadResults() (*ResultsRecord, error) {
	data, err := afero.ReadFile(s.FS, s.ResultsPath())
	if err != nil {
		return nil, errors.Wrapf(err, "reading results %s", s.ResultsPath())
	}
	var r ResultsRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "parsing results %s", s.ResultsPath())
	}
	return &r, nil
}

// ResultsExist reports whether a results file is present.
func (s *ArtifactStore) ResultsExist() bool {
	ok, err := afero.Exists(s.FS, s.ResultsPath())
	return err == nil && ok
}

// SaveModel writes a model checkpoint.
func (s *ArtifactStore) SaveModel(m Model) error {
	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		return errors.Wrap(err, "serializing model")
	}
	return s.writeAtomic(s.ModelPath(), buf.Bytes())
}

// OpenLog opens a log file for appending, creating it if needed.
func (s *ArtifactStore) OpenLog(path string) (io.WriteCloser, error) {
	f, err := s.FS.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log %s", path)
	}
	return f, nil
}

// writeAtomic writes to a temporary file and renames it over path, so a
// killed run never leaves a truncated artifact behind.
func (s *ArtifactStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.FS, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := s.FS.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming %s", tmp)
	}
	return nil
}

// sanitize replaces NaN metrics (undefined sensitivity/specificity) by -1 so
// the record stays valid JSON.
func sanitize(r *ResultsRecord) *ResultsRecord {
	out := *r
	out.Epochs = make([]EpochResult, len(r.Epochs))
	for i, e := range r.Epochs {
		e.TrainLoss = finite(e.TrainLoss)
		e.TrainBAC = finite(e.TrainBAC)
		e.TrainSens = finiteAll(e.TrainSens)
		e.TrainSpec = finiteAll(e.TrainSpec)
		if e.ValidBAC != nil {
			v := finite(*e.ValidBAC)
			e.ValidBAC = &v
		}
		e.ValidSens = finiteAll(e.ValidSens)
		e.ValidSpec = finiteAll(e.ValidSpec)
		out.Epochs[i] = e
	}
	return &out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	return v
}

func finiteAll(vs []float64) []float64 {
	if vs == nil {
		return nil
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = finite(v)
	}
	return out
}
