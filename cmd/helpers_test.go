package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/twoears/scenetcn/train"
	"github.com/twoears/scenetcn/train/dataset"
)

const (
	testFeatureDim = 4
	testLabelDim   = 2
)

// testScene builds a scene whose first label dimension is active on every
// other block of period frames and whose first feature tracks that label.
func testScene(scene, fold, frames, period int) *train.SceneInstance {
	s := &train.SceneInstance{
		Scene:      scene,
		Fold:       fold,
		FeatureDim: testFeatureDim,
		LabelDim:   testLabelDim,
		Features:   make([]float32, frames*testFeatureDim),
		Labels:     make([]int32, frames*testLabelDim),
	}
	for t := 0; t < frames; t++ {
		active := (t/period)%2 == 1
		for d := 0; d < testFeatureDim; d++ {
			s.Features[t*testFeatureDim+d] = float32((t+d)%7) / 7
		}
		if active {
			s.Features[t*testFeatureDim] = 2
			s.Labels[t*testLabelDim] = 1
		}
		s.Labels[t*testLabelDim+1] = int32(t % 2)
	}
	return s
}

// writeDataset writes one scene 1 instance per fold below dir, in rotating
// formats, together with a manifest. It returns the manifest path.
func writeDataset(t *testing.T, fs afero.Fs, dir string) string {
	t.Helper()
	exts := []string{".gob", ".sz", ".pb"}
	var files []train.SceneFile
	for fold := 1; fold <= train.NumberFolds; fold++ {
		name := fmt.Sprintf("fold%d/scene1_%d%s", fold, fold, exts[fold%len(exts)])
		require.NoError(t, dataset.WriteScene(fs, filepath.Join(dir, name), testScene(1, fold, 60, 5)))
		files = append(files, train.SceneFile{Path: name, Fold: fold, Scene: 1})
	}
	manifest := filepath.Join(dir, dataset.ManifestName)
	require.NoError(t, dataset.WriteManifest(fs, manifest, files))
	return manifest
}

// testParams returns small, valid run parameters over the dataset at manifest.
func testParams(manifest string) train.RunParams {
	p := train.DefaultRunParams()
	p.Path = "/runs"
	p.Manifest = manifest
	p.FeatureMaps = 4
	p.KernelSize = 2
	p.HistoryLength = 2
	p.BatchSize = 2
	p.BatchLength = 10
	p.MaxEpochs = 2
	p.EarlyStop = 3
	p.ValidFold = 6
	p.FirstSceneOnly = true
	p.InstantLabels = true
	p.SceneInstanceBufSize = 3
	p.DimFeatures = testFeatureDim
	p.DimLabels = testLabelDim
	p.BatchTimeout = 5 * time.Second
	return p
}

func testOptions() runOptions {
	return runOptions{Level: logrus.InfoLevel}
}

func buffers() (*bytes.Buffer, *bytes.Buffer) {
	return &bytes.Buffer{}, &bytes.Buffer{}
}
