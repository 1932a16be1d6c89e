package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"EffortLab/internal/domain/models"
	domrepo "EffortLab/internal/domain/repository"
	"EffortLab/pkg/logger"
)

// MarkerPipeline sits between the effort loop and a MarkerSink. Send never
// blocks: markers go into a bounded buffer drained by one goroutine, and a
// full buffer drops the marker. Failed deliveries are not retried.
type MarkerPipeline struct {
	sink    domrepo.MarkerSink
	metrics domrepo.Metrics
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	buf     chan models.MarkerEvent
	dropped atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

type PipelineOption func(*MarkerPipeline)

func WithBufferSize(n int) PipelineOption {
	return func(p *MarkerPipeline) {
		if n > 0 {
			p.buf = make(chan models.MarkerEvent, n)
		}
	}
}

// WithDeliveryTimeout bounds one Deliver call.
func WithDeliveryTimeout(d time.Duration) PipelineOption {
	return func(p *MarkerPipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *MarkerPipeline) { p.log = l }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *MarkerPipeline) { p.now = now }
}

func NewMarkerPipeline(sink domrepo.MarkerSink, metrics domrepo.Metrics, opts ...PipelineOption) *MarkerPipeline {
	p := &MarkerPipeline{
		sink:    sink,
		metrics: metrics,
		log:     logger.Nop(),
		timeout: 500 * time.Millisecond,
		now:     time.Now,
		buf:     make(chan models.MarkerEvent, 256),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the delivery goroutine. It returns when ctx is cancelled
// or Stop is called, after draining what is already buffered.
func (p *MarkerPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	go func() {
		defer close(p.done)
		for {
			select {
			case e, ok := <-p.buf:
				if !ok {
					return
				}
				p.deliver(e)
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
}

// Stop closes the buffer and waits for the delivery goroutine. Sends after
// Stop are dropped.
func (p *MarkerPipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.buf)
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

// Trigger returns the EventTrigger one session's trials send markers to.
func (p *MarkerPipeline) Trigger(sessionID string) domrepo.EventTrigger {
	return sessionTrigger{p: p, session: sessionID}
}

// Dropped counts markers lost to a full or stopped buffer.
func (p *MarkerPipeline) Dropped() int64 { return p.dropped.Load() }

// Failed counts markers the sink rejected.
func (p *MarkerPipeline) Failed() int64 { return p.failed.Load() }

func (p *MarkerPipeline) enqueue(e models.MarkerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.drop(e)
		return
	}
	select {
	case p.buf <- e:
	default:
		p.drop(e)
	}
}

func (p *MarkerPipeline) drop(e models.MarkerEvent) {
	p.dropped.Add(1)
	p.metrics.RecordMarker(e.Marker, false)
	p.metrics.RecordError("marker_dropped")
	p.log.Warn("marker dropped",
		logger.String("marker", e.Marker.String()),
		logger.String("session", e.SessionID))
}

func (p *MarkerPipeline) deliver(e models.MarkerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.sink.Deliver(ctx, e); err != nil {
		p.failed.Add(1)
		p.metrics.RecordMarker(e.Marker, false)
		p.metrics.RecordError("marker_delivery")
		p.log.Warn("marker delivery failed",
			logger.String("marker", e.Marker.String()),
			logger.String("session", e.SessionID),
			logger.Error(err))
		return
	}
	p.metrics.RecordMarker(e.Marker, true)
	p.metrics.RecordLatency("marker_delivery", time.Since(start).Seconds())
	p.log.Debug("marker sent",
		logger.String("marker", e.Marker.String()),
		logger.Int("code", int(e.Marker.Code())),
		logger.String("session", e.SessionID))
}

func (p *MarkerPipeline) drain() {
	for {
		select {
		case e, ok := <-p.buf:
			if !ok {
				return
			}
			p.deliver(e)
		default:
			return
		}
	}
}

type sessionTrigger struct {
	p       *MarkerPipeline
	session string
}

func (t sessionTrigger) Send(m models.Marker) {
	t.p.enqueue(models.MarkerEvent{Marker: m, SessionID: t.session, At: t.p.now()})
}
