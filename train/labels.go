package train

import "github.com/pkg/errors"

// LabelMode selects how frame labels are interpreted.
type LabelMode string

const (
	// LabelModeInstant labels every frame independently.
	LabelModeInstant LabelMode = "instant"
	// LabelModeBlockBased interprets labels per block of BlockFrames frames.
	LabelModeBlockBased LabelMode = "blockbased"
)

// ParseLabelMode validates a label mode name.
func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(s) {
	case LabelModeInstant, LabelModeBlockBased:
		return LabelMode(s), nil
	}
	return "", errors.Wrapf(ErrConfiguration, "unknown label mode %q", s)
}

// InterpretLabels returns the labels as seen under mode. Instant labels are
// returned as a copy. In block-based mode every block of BlockFrames frames
// (the trailing block may be shorter) takes, per label dimension, 1 if any
// unmasked frame is active, 0 if all unmasked frames are inactive, and
// MaskValue if every frame of the block is masked.
func InterpretLabels(labels []int32, labelDim int, mode LabelMode) []int32 {
	out := make([]int32, len(labels))
	copy(out, labels)
	if mode != LabelModeBlockBased || labelDim <= 0 {
		return out
	}
	frames := len(labels) / labelDim
	for start := 0; start < frames; start += BlockFrames {
		end := start + BlockFrames
		if end > frames {
			end = frames
		}
		for d := 0; d < labelDim; d++ {
			block := MaskValue
			for t := start; t < end; t++ {
				v := labels[t*labelDim+d]
				if v == MaskValue {
					continue
				}
				if v > block {
					block = v
				}
			}
			for t := start; t < end; t++ {
				out[t*labelDim+d] = block
			}
		}
	}
	return out
}
