package train

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twoears/scenetcn/train/trace"
)

func manyScenes(n, frames int) []*SceneInstance {
	scenes := make([]*SceneInstance, n)
	for i := range scenes {
		scenes[i] = makeScene(fmt.Sprintf("scene%02d", i), i%3+1, i%NumberFolds+1, frames, 2, 1, 10)
	}
	return scenes
}

func multiCfg(workers, queue int) LoaderConfig {
	return LoaderConfig{
		BatchSize: 2, BlockLength: 10, LabelMode: LabelModeInstant, SceneInstancesMax: 4,
		MultiProc: true, BatchBufSize: queue, Workers: workers,
	}
}

func TestMultiProcLoader_DeliversEveryWindowOnce(t *testing.T) {
	// GIVEN 12 scenes of 50 frames over three producers
	scenes := manyScenes(12, 50)
	lt := trace.NewLoaderTrace()
	cfg := multiCfg(3, 2)
	cfg.Trace = lt
	l, err := NewLoader(cfg, filesOf(scenes...), newMemReader(scenes...), NewPartitionedRNG(42), 1)
	require.NoError(t, err)
	defer l.Close()

	// WHEN drained
	batches := drain(t, l)

	// THEN all 60 windows arrive without overlap
	rows := 0
	for _, b := range batches {
		rows += b.Rows()
	}
	assert.Equal(t, 60, rows)
	summary := trace.Summarize(lt)
	assert.Equal(t, 60, summary.TotalWindows)
	assert.Equal(t, 12, summary.UniqueFiles)
	assert.Zero(t, summary.Overlaps)

	// and the stream stays exhausted
	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrLoaderExhausted)
}

func TestMultiProcLoader_BlocksProducerWhileQueueFull(t *testing.T) {
	// GIVEN a fast producer and a consumer that has not started
	scenes := manyScenes(8, 100)
	reader := newMemReader(scenes...)
	l, err := NewMultiProcLoader(multiCfg(1, 2), filesOf(scenes...), reader, NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	defer l.Close()

	// WHEN the queue fills up
	require.Eventually(t, func() bool { return l.Queued() == l.Capacity() }, time.Second, time.Millisecond)
	readsAtFull := reader.readCount()
	time.Sleep(20 * time.Millisecond)

	// THEN the producer stays blocked: the queue holds exactly its capacity and
	// no further files are read
	assert.Equal(t, 2, l.Queued())
	assert.Equal(t, readsAtFull, reader.readCount())

	// and consuming one batch lets the producer refill the queue
	_, err = l.Next(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return l.Queued() == 2 }, time.Second, time.Millisecond)
}

func TestMultiProcLoader_SurfacesProducerFailure(t *testing.T) {
	// GIVEN a producer whose second file cannot be read
	scenes := manyScenes(3, 10)
	reader := newMemReader(scenes...)
	ioErr := errors.New("read failed")
	reader.fail[scenes[1].File] = ioErr
	cfg := multiCfg(1, 4)
	cfg.BatchSize = 1
	cfg.SceneInstancesMax = 1
	l, err := NewMultiProcLoader(cfg, filesOf(scenes...), reader, NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	defer l.Close()

	// WHEN the consumer drains
	var got error
	for i := 0; i < 10 && got == nil; i++ {
		_, got = l.Next(context.Background())
	}

	// THEN the failure arrives instead of a silent end of stream, and sticks
	assert.ErrorIs(t, got, ioErr)
	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ioErr)
}

func TestMultiProcLoader_StuckReaderHonorsContextDeadline(t *testing.T) {
	// GIVEN a reader that never returns
	scenes := manyScenes(2, 10)
	reader := newMemReader(scenes...)
	reader.gate = make(chan struct{})
	l, err := NewMultiProcLoader(multiCfg(1, 1), filesOf(scenes...), reader, NewPartitionedRNG(1), 1)
	require.NoError(t, err)

	// WHEN the consumer waits with a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = l.Next(ctx)

	// THEN Next returns at the deadline
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(reader.gate)
	assert.NoError(t, l.Close())
}

func TestMultiProcLoader_BatchTimeout(t *testing.T) {
	scenes := manyScenes(2, 10)
	reader := newMemReader(scenes...)
	reader.gate = make(chan struct{})
	cfg := multiCfg(1, 1)
	cfg.BatchTimeout = 20 * time.Millisecond
	l, err := NewMultiProcLoader(cfg, filesOf(scenes...), reader, NewPartitionedRNG(1), 1)
	require.NoError(t, err)

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrWorkerTimeout)

	close(reader.gate)
	assert.NoError(t, l.Close())
}

func TestMultiProcLoader_CloseDoesNotWaitForStuckReader(t *testing.T) {
	// GIVEN a producer blocked in a scene load that never returns
	scenes := manyScenes(2, 10)
	reader := newMemReader(scenes...)
	reader.gate = make(chan struct{})
	t.Cleanup(func() { close(reader.gate) })
	l, err := NewMultiProcLoader(multiCfg(1, 1), filesOf(scenes...), reader, NewPartitionedRNG(1), 1)
	require.NoError(t, err)

	// WHEN closed
	done := make(chan struct{})
	go func() {
		_ = l.Close()
		close(done)
	}()

	// THEN Close returns after its grace period
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close waited for a producer stuck in a scene load")
	}
}

func TestMultiProcLoader_SkipsShardOfMalformedFiles(t *testing.T) {
	// GIVEN four scenes where the first shard of two holds only malformed files
	scenes := manyScenes(4, 20)
	scenes[0].Labels = scenes[0].Labels[:10]
	scenes[2].Labels = scenes[2].Labels[:10]
	l, err := NewMultiProcLoader(multiCfg(2, 2), filesOf(scenes...), newMemReader(scenes...), NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	defer l.Close()

	// WHEN drained
	rows := 0
	for _, b := range drain(t, l) {
		rows += b.Rows()
	}

	// THEN the other shard serves its windows and the stream ends normally
	assert.Equal(t, 4, rows)
	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrLoaderExhausted)
}

func TestMultiProcLoader_EveryShardMalformedFails(t *testing.T) {
	scenes := manyScenes(2, 20)
	for _, s := range scenes {
		s.Labels = s.Labels[:10]
	}
	l, err := NewMultiProcLoader(multiCfg(2, 2), filesOf(scenes...), newMemReader(scenes...), NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrMalformedScene)
	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrMalformedScene)
}

func TestMultiProcLoader_CloseStopsBlockedProducers(t *testing.T) {
	scenes := manyScenes(6, 100)
	l, err := NewMultiProcLoader(multiCfg(2, 1), filesOf(scenes...), newMemReader(scenes...), NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.Queued() == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = l.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while producers were blocked on a full queue")
	}
}

func TestMultiProcLoader_MoreWorkersThanFiles(t *testing.T) {
	scenes := manyScenes(2, 20)
	l, err := NewMultiProcLoader(multiCfg(8, 2), filesOf(scenes...), newMemReader(scenes...), NewPartitionedRNG(1), 1)
	require.NoError(t, err)
	defer l.Close()

	rows := 0
	for _, b := range drain(t, l) {
		rows += b.Rows()
	}
	assert.Equal(t, 4, rows)
}

func TestNewMultiProcLoader_NoInputFiles(t *testing.T) {
	_, err := NewMultiProcLoader(multiCfg(1, 1), nil, newMemReader(), NewPartitionedRNG(1), 1)
	assert.ErrorIs(t, err, ErrNoInputFiles)
}
