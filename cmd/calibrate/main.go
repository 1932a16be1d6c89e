package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EffortLab/internal/repository"
	"EffortLab/internal/service/device"
	"EffortLab/internal/services/calibration"
	"EffortLab/internal/services/effort"
	"EffortLab/internal/usecase"
	"EffortLab/pkg/config"
	"EffortLab/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	participant := flag.String("participant", "", "participant id")
	samples := flag.Int("baseline-samples", 50, "readings averaged for the resting baseline")
	interval := flag.Duration("baseline-interval", 20*time.Millisecond, "time between baseline readings")
	flag.Parse()

	if *participant == "" {
		log.Fatal("-participant is required")
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	l, err := logger.New(&logger.Config{Level: cfg.Logger.Level, Format: "console", Output: "stdout"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l, *participant, *samples, *interval); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("calibration failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger, participant string, samples int, interval time.Duration) error {
	src := device.NewWebsocketSource(cfg.Device.URL,
		device.WithReconnectDelay(cfg.Device.ReconnectDelay),
		device.WithStaleAfter(cfg.Device.ReadTimeout),
		device.WithPingInterval(cfg.Device.PingInterval),
		device.WithSourceLogger(l),
	)

	// The device loop only ends on cancellation, so the recording goroutine
	// cancels it when finished.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(gctx) })

	g.Go(func() error {
		defer cancel()
		waitCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
		defer cancel()
		if err := src.WaitReady(waitCtx); err != nil {
			return fmt.Errorf("device not ready: %w", err)
		}

		live, err := device.Corrected(cfg.Device.Mode, src, cfg.Device.Baseline, cfg.Device.MouseScale)
		if err != nil {
			return err
		}
		l.Info("measuring resting baseline, keep the device still")
		zero, err := device.MeasureBaseline(gctx, live, samples, interval)
		if err != nil {
			return err
		}
		l.Info("baseline measured", logger.Float64("zero_baseline", zero))

		rec := calibration.NewRecorder(
			calibration.WithRecordingDuration(cfg.Calibration.RecordingDuration),
			calibration.WithStartThreshold(cfg.Effort.StartThreshold),
			calibration.WithLogger(l),
		)
		svc := usecase.NewCalibrationService(repository.NewFileCalibrationStore(cfg.Calibration.Dir),
			usecase.WithRecorder(rec),
			usecase.WithCalibrationLogger(l),
		)
		c, err := svc.Record(gctx, participant, device.BaselinedSource{Src: live, Baseline: zero}, zero,
			cfg.Calibration.Trials, cfg.Calibration.Rest, effort.Pace(cfg.Effort.PollInterval))
		if err != nil {
			return err
		}
		fmt.Printf("participant=%s max_strength=%.3f zero_baseline=%.3f\n", c.Participant, c.MaxStrength, c.ZeroBaseline)
		return nil
	})

	return g.Wait()
}
