package train

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// batchItem is one queue element: a finished batch, or the error that
// stopped its producer.
type batchItem struct {
	batch *BatchWindow
	err   error
}

// MultiProcLoader assembles batches in producer goroutines and hands them to
// a single consumer through a queue of capacity BatchBufSize. Producers block
// while the queue is full and the consumer blocks while it is empty; batches
// are delivered in the order they were queued. Each producer owns a
// SingleProcLoader over a disjoint shard of the files, so no pool is shared.
// A producer error is queued after the producer's last batch and returned by
// Next. A shard whose files are all malformed ends like an exhausted one; the
// loader fails with ErrMalformedScene only when every shard did.
type MultiProcLoader struct {
	cfg     LoaderConfig
	queue   chan batchItem
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{} // closed once every producer has returned
	closeMu sync.Once

	files           int
	workers         int
	malformedShards atomic.Int32

	failed  error
	drained bool
}

// closeGrace bounds how long Close waits for producers to return. A producer
// still blocked in a scene file load after that is left to finish on its own.
const closeGrace = 100 * time.Millisecond

// NewMultiProcLoader shards files round-robin over cfg.Workers producers
// (capped at the number of files) and starts them. Each shard's pool holds
// SceneInstancesMax/Workers entries (at least one).
func NewMultiProcLoader(cfg LoaderConfig, files []SceneFile, reader SceneReader, rng *PartitionedRNG, epoch int) (*MultiProcLoader, error) {
	if len(files) == 0 {
		return nil, errors.WithStack(ErrNoInputFiles)
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectionRandom
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	shardCfg := cfg
	shardCfg.SceneInstancesMax = max(1, cfg.SceneInstancesMax/workers)
	producers := make([]*SingleProcLoader, workers)
	for w := 0; w < workers; w++ {
		shard := make([]SceneFile, 0, len(files)/workers+1)
		for i := w; i < len(files); i += workers {
			shard = append(shard, files[i])
		}
		p, err := NewSingleProcLoader(shardCfg, shard, reader, rng.ForSubsystem(SubsystemWorker(epoch, w)))
		if err != nil {
			return nil, err
		}
		producers[w] = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &MultiProcLoader{
		cfg:     cfg,
		queue:   make(chan batchItem, cfg.BatchBufSize),
		cancel:  cancel,
		done:    make(chan struct{}),
		files:   len(files),
		workers: workers,
	}
	for _, p := range producers {
		m.wg.Add(1)
		go m.produce(ctx, p)
	}
	go func() {
		m.wg.Wait()
		close(m.queue)
		close(m.done)
	}()
	return m, nil
}

// produce pushes batches until its loader is exhausted, fails, or ctx ends.
func (m *MultiProcLoader) produce(ctx context.Context, l *SingleProcLoader) {
	defer m.wg.Done()
	defer func() { _ = l.Close() }()
	for {
		b, err := l.Next(ctx)
		if errors.Is(err, ErrLoaderExhausted) {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, ErrMalformedScene) && l.loaded == 0 {
			l.log.Warnf("batch producer: %v", err)
			m.malformedShards.Add(1)
			return
		}
		select {
		case m.queue <- batchItem{batch: b, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Next returns the oldest queued batch, blocking while the queue is empty.
// It returns ErrLoaderExhausted once every producer has finished, a producer's
// error once it reaches the head of the queue, ctx.Err() when ctx ends, and
// ErrWorkerTimeout when BatchTimeout elapses without a batch.
func (m *MultiProcLoader) Next(ctx context.Context) (*BatchWindow, error) {
	if m.failed != nil {
		return nil, m.failed
	}
	if m.drained {
		return nil, errors.WithStack(ErrLoaderExhausted)
	}

	var timeout <-chan time.Time
	if m.cfg.BatchTimeout > 0 {
		timer := time.NewTimer(m.cfg.BatchTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case item, ok := <-m.queue:
		if !ok {
			m.drained = true
			if int(m.malformedShards.Load()) == m.workers {
				m.failed = errors.Wrapf(ErrMalformedScene, "no usable scene instance among %d files", m.files)
				return nil, m.failed
			}
			return nil, errors.WithStack(ErrLoaderExhausted)
		}
		if item.err != nil {
			m.failed = errors.Wrap(item.err, "batch producer failed")
			m.cancel()
			return nil, m.failed
		}
		return item.batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, errors.Wrapf(ErrWorkerTimeout, "no batch within %v", m.cfg.BatchTimeout)
	}
}

// Queued returns the number of batches waiting in the queue.
func (m *MultiProcLoader) Queued() int {
	return len(m.queue)
}

// Capacity returns the queue capacity.
func (m *MultiProcLoader) Capacity() int {
	return cap(m.queue)
}

// Close stops the producers and waits up to closeGrace for them to return.
// It never blocks on a producer stuck inside a scene file load; that producer
// drops its work once the load returns.
func (m *MultiProcLoader) Close() error {
	m.closeMu.Do(func() {
		m.cancel()
		timer := time.NewTimer(closeGrace)
		defer timer.Stop()
		select {
		case <-m.done:
		case <-timer.C:
			m.cfg.logger().Warnf("closing batch loader with producers still blocked in a scene file load")
		}
	})
	return nil
}
