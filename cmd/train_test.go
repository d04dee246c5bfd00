package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twoears/scenetcn/train"
)

func TestRunTraining_EndToEnd(t *testing.T) {
	// GIVEN a six-fold dataset and a run validating on fold 6
	fs := afero.NewMemMapFs()
	p := testParams(writeDataset(t, fs, "/data"))
	stdout, stderr := buffers()

	// WHEN the run is trained
	err := runTraining(context.Background(), fs, p, testOptions(), stdout, stderr)

	// THEN both epochs are recorded next to the params, logs and best model
	require.NoError(t, err)
	refined := p
	refined.Refine()
	store := &train.ArtifactStore{FS: fs, Dir: "/runs", Name: RunName(refined)}
	r, err := store.LoadResults()
	require.NoError(t, err)
	require.Len(t, r.Epochs, 2)
	assert.Equal(t, 6, r.ValidFold)
	assert.NotNil(t, r.Epochs[0].ValidBAC)
	assert.Equal(t, train.RunMaxEpochsReached.String(), r.State)

	for _, path := range []string{store.ParamsPath(), store.OutputLogPath(), store.ErrorLogPath(), store.ModelPath()} {
		ok, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.True(t, ok, path)
	}
	loaded, err := train.LoadRunParams(fs, store.ParamsPath())
	require.NoError(t, err)
	assert.Equal(t, refined.HistoryLength, loaded.HistoryLength)
	assert.Contains(t, stdout.String(), "STARTING")
	assert.Contains(t, stdout.String(), "training finished")
}

func TestRunTraining_ExistingResultsAreSkippedUnlessForced(t *testing.T) {
	// GIVEN a completed run
	fs := afero.NewMemMapFs()
	p := testParams(writeDataset(t, fs, "/data"))
	p.MaxEpochs = 1
	p.ValidFold = train.NoValidFold
	stdout, stderr := buffers()
	require.NoError(t, runTraining(context.Background(), fs, p, testOptions(), stdout, stderr))

	// WHEN the same run is started again
	stdout, stderr = buffers()
	err := runTraining(context.Background(), fs, p, testOptions(), stdout, stderr)

	// THEN it is skipped with a warning
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "already exist")
	assert.Empty(t, stdout.String())

	// WHEN it is forced
	opts := testOptions()
	opts.Force = true
	stdout, stderr = buffers()
	require.NoError(t, runTraining(context.Background(), fs, p, opts, stdout, stderr))

	// THEN it trains again
	assert.Contains(t, stdout.String(), "training finished")
}

func TestRunTraining_CanceledRunMakesNoProgress(t *testing.T) {
	// GIVEN a context canceled before the first epoch
	fs := afero.NewMemMapFs()
	p := testParams(writeDataset(t, fs, "/data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stdout, stderr := buffers()

	// WHEN the run is trained
	err := runTraining(ctx, fs, p, testOptions(), stdout, stderr)

	// THEN it fails without writing results and logs the failure to stderr
	assert.True(t, errors.Is(err, train.ErrNoProgress))
	refined := p
	refined.Refine()
	store := &train.ArtifactStore{FS: fs, Dir: "/runs", Name: RunName(refined)}
	assert.False(t, store.ResultsExist())
	assert.Contains(t, stderr.String(), "could not finish a single epoch")
}

func TestRunTraining_InvalidParamsFailBeforeAnyArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testParams("/data/manifest.csv")
	p.ValidFold = 9
	stdout, stderr := buffers()

	err := runTraining(context.Background(), fs, p, testOptions(), stdout, stderr)

	assert.True(t, errors.Is(err, train.ErrInvalidFold))
	ok, _ := afero.DirExists(fs, "/runs")
	assert.False(t, ok)
}

func TestRunTraining_NoTrainingFilesInScope(t *testing.T) {
	// GIVEN a dataset without scene 1 while only scene 1 is selected
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/manifest.csv", []byte("path,fold,scene\na.gob,1,2\n"), 0o644))
	p := testParams("/data/manifest.csv")
	stdout, stderr := buffers()

	err := runTraining(context.Background(), fs, p, testOptions(), stdout, stderr)

	assert.True(t, errors.Is(err, train.ErrNoInputFiles))
}

func TestRunTraining_MultiProcLoader(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testParams(writeDataset(t, fs, "/data"))
	p.MaxEpochs = 1
	p.BatchBufMultiProc = true
	p.BatchBufSize = 2
	p.Workers = 2
	p.SceneCache = 8
	stdout, stderr := buffers()

	require.NoError(t, runTraining(context.Background(), fs, p, testOptions(), stdout, stderr))
	assert.Contains(t, stdout.String(), "training finished")
}
