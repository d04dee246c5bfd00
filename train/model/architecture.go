package model

import (
	"fmt"
	"strings"

	"github.com/twoears/scenetcn/train"
)

// Architecture describes the temporal convolutional network of a run: a stack
// of residual blocks with exponentially growing dilation.
type Architecture struct {
	FeatureMaps    int
	KernelSize     int
	DropoutRate    float64
	ResidualLayers int
	Dilations      []int
	ReceptiveField int
	DimFeatures    int
	DimLabels      int
}

// NewArchitecture derives the architecture from refined run parameters.
func NewArchitecture(p train.RunParams) Architecture {
	layers := p.ResidualLayers
	if layers == 0 {
		layers, _ = train.ResidualLayers(p.HistoryLength, p.KernelSize)
	}
	return Architecture{
		FeatureMaps:    p.FeatureMaps,
		KernelSize:     p.KernelSize,
		DropoutRate:    p.DropoutRate,
		ResidualLayers: layers,
		Dilations:      train.Dilations(layers),
		ReceptiveField: train.ReceptiveField(layers, p.KernelSize),
		DimFeatures:    p.DimFeatures,
		DimLabels:      p.DimLabels,
	}
}

// Summary renders one line per residual block.
func (a Architecture) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "temporal convolutional network: %d residual blocks, %d feature maps, kernel size %d, dropout %.2f\n",
		a.ResidualLayers, a.FeatureMaps, a.KernelSize, a.DropoutRate)
	fmt.Fprintf(&sb, "  input  (time, %d)\n", a.DimFeatures)
	for i, d := range a.Dilations {
		fmt.Fprintf(&sb, "  block %-3d dilation %-5d receptive field %d\n", i+1, d, train.ReceptiveField(i+1, a.KernelSize))
	}
	fmt.Fprintf(&sb, "  output (time, %d, %d)\n", a.DimLabels, train.LabelClasses)
	fmt.Fprintf(&sb, "receptive field: %d frames", a.ReceptiveField)
	return sb.String()
}
