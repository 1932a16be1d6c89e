package usecase

import (
	"context"
	"sync"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/pkg/logger"
)

// TrialBatcher buffers records and writes them through the processor in
// batches, flushing on size or after timeout. A batch the backend rejects
// falls back to per-record writes, which park on the retry queue.
type TrialBatcher struct {
	proc    *TrialProcessor
	size    int
	timeout time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	buf     []*models.TrialRecord
	flushCh chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewTrialBatcher(proc *TrialProcessor, size int, timeout time.Duration, log *logger.Logger) *TrialBatcher {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TrialBatcher{
		proc:    proc,
		size:    size,
		timeout: timeout,
		log:     log,
		flushCh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the flush loop until Stop or ctx is cancelled.
func (b *TrialBatcher) Start(ctx context.Context) {
	go b.loop(ctx)
}

// Process buffers r. It never blocks on the backend.
func (b *TrialBatcher) Process(_ context.Context, r *models.TrialRecord) error {
	b.mu.Lock()
	b.buf = append(b.buf, r)
	full := len(b.buf) >= b.size
	b.mu.Unlock()
	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending is the number of buffered records.
func (b *TrialBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Flush writes everything buffered so far.
func (b *TrialBatcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.buf
	b.buf = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := b.proc.ProcessBatch(ctx, batch); err != nil {
		b.log.Warn("trial batch rejected, writing records one by one",
			logger.Int("records", len(batch)), logger.Error(err))
		for _, r := range batch {
			if err := b.proc.Process(ctx, r); err != nil {
				b.log.Error("trial record lost", logger.String("trial", r.ID), logger.Error(err))
			}
		}
	}
}

// Stop flushes the buffer and waits for the loop to exit.
func (b *TrialBatcher) Stop(ctx context.Context) {
	b.once.Do(func() { close(b.stop) })
	select {
	case <-b.done:
	case <-ctx.Done():
	}
}

func (b *TrialBatcher) loop(ctx context.Context) {
	defer close(b.done)
	t := time.NewTicker(b.timeout)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.Flush(ctx)
		case <-b.flushCh:
			b.Flush(ctx)
		case <-b.stop:
			b.Flush(context.Background())
			return
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		}
	}
}

var _ TrialSink = (*TrialBatcher)(nil)
