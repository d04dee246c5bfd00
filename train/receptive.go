package train

import "fmt"

// ReceptiveField returns the number of input frames that influence one output
// frame of a stack of residual blocks with dilations 1, 2, 4, ..., 2^(layers-1).
func ReceptiveField(layers, kernelSize int) int {
	if layers <= 0 || kernelSize < 2 {
		return 1
	}
	return (kernelSize-1)*((1<<uint(layers))-1) + 1
}

// ResidualLayers returns the smallest number of residual blocks whose receptive
// field covers historyLength, and that receptive field (the refined history length).
func ResidualLayers(historyLength, kernelSize int) (layers, refined int) {
	if kernelSize < 2 || historyLength <= 1 {
		return 1, ReceptiveField(1, kernelSize)
	}
	layers = 1
	for ReceptiveField(layers, kernelSize) < historyLength {
		layers++
	}
	return layers, ReceptiveField(layers, kernelSize)
}

// Dilations lists the dilation rate of each residual block.
func Dilations(layers int) []int {
	d := make([]int, layers)
	for i := range d {
		d[i] = 1 << uint(i)
	}
	return d
}

func describeRefinement(requested, refined, layers, kernelSize int) string {
	if requested == refined {
		return fmt.Sprintf("history length %d matches %d residual layers (kernel size %d)", refined, layers, kernelSize)
	}
	return fmt.Sprintf("history length increased from %d to %d: %d residual layers (kernel size %d)",
		requested, refined, layers, kernelSize)
}
