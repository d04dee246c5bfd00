package train

const (
	// DimFeatures is the feature dimension of every frame.
	DimFeatures = 160
	// DimLabels is the number of label dimensions (one per sound source class).
	DimLabels = 13
	// LabelClasses is the size of the label alphabet per dimension (inactive/active).
	LabelClasses = 2
	// MaskValue marks a label position that must not be scored.
	MaskValue int32 = -1

	// NumberFolds is the number of cross-validation folds.
	NumberFolds = 6
	// NoValidFold selects all folds for training.
	NoValidFold = -1
	// NumberScenesTrainValid is the number of scenes available for training and validation.
	NumberScenesTrainValid = 80
	// FirstScene is the scene used in first-scene-only debugging runs
	// (two sources, master at 112.5 degrees, weaker distractor at -112.5 degrees).
	FirstScene = 1

	// BlockFrames is the number of frames per block in block-based label mode.
	BlockFrames = 50
)
