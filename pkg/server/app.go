package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mid "EffortLab/internal/middleware"
	"EffortLab/internal/service/device"
	"EffortLab/internal/usecase"
	"EffortLab/pkg/config"
	xhttp "EffortLab/pkg/http"
	pkgkafka "EffortLab/pkg/kafka"
	"EffortLab/pkg/logger"
	"EffortLab/pkg/queue"

	"golang.org/x/sync/errgroup"
)

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *logger.Logger

	httpServer *xhttp.Server
	proc       *usecase.TrialProcessor
	batcher    *usecase.TrialBatcher
	pipeline   *mid.MarkerPipeline
	device     *device.WebsocketSource
	retry      *queue.RedisQueue
	consumer   *pkgkafka.Consumer
	closers    []closer
}

type Option func(*App)

func WithHTTPServer(s *xhttp.Server) Option { return func(a *App) { a.httpServer = s } }

func WithProcessor(p *usecase.TrialProcessor) Option { return func(a *App) { a.proc = p } }

func WithBatcher(b *usecase.TrialBatcher) Option { return func(a *App) { a.batcher = b } }

func WithMarkerPipeline(p *mid.MarkerPipeline) Option { return func(a *App) { a.pipeline = p } }

func WithDevice(d *device.WebsocketSource) Option { return func(a *App) { a.device = d } }

func WithRetryQueue(q *queue.RedisQueue) Option { return func(a *App) { a.retry = q } }

func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

// WithCloser registers a client closed last, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, c: c}) }
}

func New(cfg *config.Config, log *logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until ctx is cancelled, a signal
// arrives or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.httpServer == nil {
		return errors.New("app: no http server")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Sinks outlive the signal and are stopped by shutdown once nothing
	// feeds them anymore.
	bg := context.WithoutCancel(ctx)
	if a.pipeline != nil {
		a.pipeline.Start(bg)
	}
	if a.batcher != nil {
		a.batcher.Start(bg)
	}
	if a.retry != nil {
		if err := a.retry.Start(bg); err != nil {
			a.shutdown()
			return fmt.Errorf("retry queue: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started",
			logger.String("topic", a.cfg.Kafka.TrialsTopic),
			logger.Strings("brokers", a.cfg.Kafka.Brokers))
	}
	if a.device != nil {
		g.Go(func() error {
			if err := a.device.Run(gctx); err != nil {
				return fmt.Errorf("device: %w", err)
			}
			return nil
		})
		a.log.Info("device source started", logger.String("url", a.cfg.Device.URL))
	}

	g.Go(a.httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")
		a.shutdown()
		return nil
	})

	a.log.Info("app started",
		logger.String("env", a.cfg.Environment),
		logger.String("backend", a.cfg.Backend.Type),
		logger.String("trigger", a.cfg.Trigger.Type),
	)
	return g.Wait()
}

// shutdown stops producers of work before the sinks they feed.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.batcher != nil {
		a.batcher.Stop(ctx)
	}
	if a.retry != nil {
		if err := a.retry.Stop(ctx); err != nil {
			a.log.Warn("retry queue stop error", logger.Error(err))
		}
	}
	if a.proc != nil {
		a.proc.Close()
	}
	a.log.RemoveCollector()
	for _, c := range a.closers {
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", logger.String("client", c.name), logger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
