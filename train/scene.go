package train

import "github.com/pkg/errors"

// SceneFile identifies one stored scene instance recording.
type SceneFile struct {
	Path  string `csv:"path"`
	Fold  int    `csv:"fold"`
	Scene int    `csv:"scene"`
}

// SceneReader loads scene instance files.
type SceneReader interface {
	ReadScene(f SceneFile) (*SceneInstance, error)
}

// SceneInstance is one loaded scene instance recording. Features and labels are
// row-major over the shared time axis: frame t occupies
// Features[t*FeatureDim:(t+1)*FeatureDim] and Labels[t*LabelDim:(t+1)*LabelDim].
type SceneInstance struct {
	File       string
	Scene      int
	Fold       int
	FeatureDim int
	LabelDim   int
	Features   []float32
	Labels     []int32 // values in 0..LabelClasses-1, or MaskValue
}

// Length returns the number of frames on the feature time axis.
func (s *SceneInstance) Length() int {
	if s.FeatureDim == 0 {
		return 0
	}
	return len(s.Features) / s.FeatureDim
}

// LabelLength returns the number of frames on the label time axis.
func (s *SceneInstance) LabelLength() int {
	if s.LabelDim == 0 {
		return 0
	}
	return len(s.Labels) / s.LabelDim
}

// Validate checks the tensor shapes. Mismatched time axes yield ErrMalformedScene.
func (s *SceneInstance) Validate() error {
	if s.FeatureDim <= 0 || s.LabelDim <= 0 {
		return errors.Wrapf(ErrMalformedScene, "%s: non-positive dimensions (features %d, labels %d)", s.File, s.FeatureDim, s.LabelDim)
	}
	if len(s.Features)%s.FeatureDim != 0 {
		return errors.Wrapf(ErrMalformedScene, "%s: %d feature values are not a multiple of dimension %d", s.File, len(s.Features), s.FeatureDim)
	}
	if len(s.Labels)%s.LabelDim != 0 {
		return errors.Wrapf(ErrMalformedScene, "%s: %d label values are not a multiple of dimension %d", s.File, len(s.Labels), s.LabelDim)
	}
	if s.Length() != s.LabelLength() {
		return errors.Wrapf(ErrMalformedScene, "%s: feature time axis %d != label time axis %d", s.File, s.Length(), s.LabelLength())
	}
	for i, l := range s.Labels {
		if l != MaskValue && (l < 0 || int(l) >= LabelClasses) {
			return errors.Wrapf(ErrMalformedScene, "%s: label %d at index %d outside the label alphabet", s.File, l, i)
		}
	}
	return nil
}

// SizeBytes is the in-memory size of the tensors.
func (s *SceneInstance) SizeBytes() uint64 {
	return uint64(len(s.Features))*4 + uint64(len(s.Labels))*4
}
