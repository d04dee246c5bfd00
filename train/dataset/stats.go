package dataset

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/twoears/scenetcn/train"
)

// FeatureStats holds per-dimension feature means and standard deviations
// over a set of scene instances.
type FeatureStats struct {
	Mean   []float32
	Std    []float32
	Frames int64
}

// ComputeFeatureStats accumulates the statistics of every file in files.
// Malformed files are skipped; ErrEmptyScope is returned when no frame remains.
func ComputeFeatureStats(reader train.SceneReader, files []train.SceneFile) (FeatureStats, error) {
	var (
		sum, sumSq []float64
		frames     int64
		dim        int
	)
	frame := []float64(nil)
	for _, f := range files {
		scene, err := reader.ReadScene(f)
		if err == nil {
			err = scene.Validate()
		}
		if errors.Is(err, train.ErrMalformedScene) {
			continue
		}
		if err != nil {
			return FeatureStats{}, errors.Wrapf(err, "feature statistics of %s", f.Path)
		}
		if dim == 0 {
			dim = scene.FeatureDim
			sum = make([]float64, dim)
			sumSq = make([]float64, dim)
			frame = make([]float64, dim)
		}
		if scene.FeatureDim != dim {
			continue
		}
		for t := 0; t < scene.Length(); t++ {
			for d, v := range scene.Features[t*dim : (t+1)*dim] {
				frame[d] = float64(v)
			}
			floats.Add(sum, frame)
			floats.Mul(frame, frame)
			floats.Add(sumSq, frame)
			frames++
		}
	}
	if frames == 0 {
		return FeatureStats{}, errors.Wrapf(train.ErrEmptyScope, "no feature frame in %d files", len(files))
	}

	n := float64(frames)
	stats := FeatureStats{Mean: make([]float32, dim), Std: make([]float32, dim), Frames: frames}
	for d := 0; d < dim; d++ {
		mean := sum[d] / n
		variance := math.Max(sumSq[d]/n-mean*mean, 0)
		stats.Mean[d] = float32(mean)
		stats.Std[d] = float32(math.Sqrt(variance))
	}
	return stats, nil
}
