package train

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunParams_AreValid(t *testing.T) {
	p := DefaultRunParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, LabelModeBlockBased, p.LabelMode())
	p.InstantLabels = true
	assert.Equal(t, LabelModeInstant, p.LabelMode())
}

func TestRunParams_Refine(t *testing.T) {
	// GIVEN the default history length of 500 frames with kernel size 3
	p := DefaultRunParams()

	// WHEN refined
	report := p.Refine()

	// THEN 8 residual layers are needed and history grows to their receptive field
	assert.Equal(t, 8, p.ResidualLayers)
	assert.Equal(t, 511, p.HistoryLength)
	assert.Contains(t, report, "increased from 500 to 511")

	// refining again is a no-op
	assert.Contains(t, p.Refine(), "matches")
	assert.Equal(t, 511, p.HistoryLength)
}

func TestRunParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunParams)
		fold   bool
	}{
		{"featuremaps", func(p *RunParams) { p.FeatureMaps = 0 }, false},
		{"dropout", func(p *RunParams) { p.DropoutRate = 1 }, false},
		{"kernel", func(p *RunParams) { p.KernelSize = 1 }, false},
		{"learning rate", func(p *RunParams) { p.LearningRate = 0 }, false},
		{"batch shorter than history", func(p *RunParams) { p.BatchLength = 100 }, false},
		{"earlystop zero", func(p *RunParams) { p.EarlyStop = 0 }, false},
		{"maxepochs", func(p *RunParams) { p.MaxEpochs = 0 }, false},
		{"validfold", func(p *RunParams) { p.ValidFold = 7 }, true},
		{"selection", func(p *RunParams) { p.Selection = "weighted" }, false},
		{"multiproc queue", func(p *RunParams) { p.BatchBufMultiProc = true; p.BatchBufSize = 0 }, false},
		{"timeout", func(p *RunParams) { p.BatchTimeout = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRunParams()
			tt.mutate(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, ErrConfiguration)
			if tt.fold {
				assert.ErrorIs(t, err, ErrInvalidFold)
			}
		})
	}
}

func TestLoadRunParams_OverlaysDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/hyper.yaml", []byte("featuremaps: 25\nvalidfold: 3\nbatch_timeout: 2s\n"), 0o644))

	p, err := LoadRunParams(fs, "/hyper.yaml")

	require.NoError(t, err)
	assert.Equal(t, 25, p.FeatureMaps)
	assert.Equal(t, 3, p.ValidFold)
	assert.Equal(t, 2*time.Second, p.BatchTimeout)
	assert.Equal(t, 3000, p.BatchLength)
}

func TestLoadRunParams_RejectsUnknownKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/hyper.yaml", []byte("featuremap: 25\n"), 0o644))

	_, err := LoadRunParams(fs, "/hyper.yaml")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = LoadRunParams(fs, "/missing.yaml")
	assert.Error(t, err)
}
