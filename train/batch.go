// batch.go
//
// Defines the BatchWindow, the fixed-shape unit of data handed to the model.

package train

// WindowSource records where one batch row was drawn from.
type WindowSource struct {
	File   string
	Offset int // first frame of the window within the scene instance
}

// BatchWindow holds Size rows of Length consecutive frames. Every row comes from
// exactly one scene instance. Features are laid out [row][frame][FeatureDim],
// labels [row][frame][LabelDim]. Padding rows have scene id 0, zero features
// and MaskValue labels.
type BatchWindow struct {
	Size       int
	Length     int
	FeatureDim int
	LabelDim   int
	Features   []float32
	Labels     []int32
	SceneIDs   []int
	Sources    []WindowSource
}

// NewBatchWindow allocates a window with every row set to padding.
func NewBatchWindow(size, length, featureDim, labelDim int) *BatchWindow {
	b := &BatchWindow{
		Size:       size,
		Length:     length,
		FeatureDim: featureDim,
		LabelDim:   labelDim,
		Features:   make([]float32, size*length*featureDim),
		Labels:     make([]int32, size*length*labelDim),
		SceneIDs:   make([]int, size),
		Sources:    make([]WindowSource, size),
	}
	for i := range b.Labels {
		b.Labels[i] = MaskValue
	}
	return b
}

// RowFeatures returns the feature slice of one row.
func (b *BatchWindow) RowFeatures(row int) []float32 {
	n := b.Length * b.FeatureDim
	return b.Features[row*n : (row+1)*n]
}

// RowLabels returns the label slice of one row.
func (b *BatchWindow) RowLabels(row int) []int32 {
	n := b.Length * b.LabelDim
	return b.Labels[row*n : (row+1)*n]
}

// IsPadding reports whether row carries no data.
func (b *BatchWindow) IsPadding(row int) bool {
	return b.SceneIDs[row] == 0
}

// Rows returns the number of non-padding rows.
func (b *BatchWindow) Rows() int {
	n := 0
	for row := 0; row < b.Size; row++ {
		if !b.IsPadding(row) {
			n++
		}
	}
	return n
}

// Positions returns the number of label positions (rows × frames × label dims).
func (b *BatchWindow) Positions() int {
	return b.Size * b.Length * b.LabelDim
}

// PositionScene returns the scene id of the row that owns label position pos.
func (b *BatchWindow) PositionScene(pos int) int {
	return b.SceneIDs[pos/(b.Length*b.LabelDim)]
}
