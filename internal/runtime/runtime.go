package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/diascribe/diascribe/internal/asr"
	"github.com/diascribe/diascribe/internal/bus"
	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/diarization"
	"github.com/diascribe/diascribe/internal/pipeline"
	"github.com/diascribe/diascribe/internal/server"
	"github.com/diascribe/diascribe/internal/store"
)

// Runtime wires config, telemetry, the archive, collaborators, the
// pipeline, and the HTTP boundary into one process lifecycle.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	archive, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer archive.Close()

	var publisher *bus.Publisher
	if r.cfg.Bus.Enabled {
		publisher, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer publisher.Close()
	}

	transcriber, err := buildTranscriber(r.cfg.ASR)
	if err != nil {
		return fmt.Errorf("failed to build transcriber: %w", err)
	}
	diarizer, err := buildDiarizer(r.cfg.Diarization)
	if err != nil {
		return fmt.Errorf("failed to build diarizer: %w", err)
	}

	pipe, err := pipeline.New(transcriber, diarizer, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	srv := server.New(r.cfg.Pipeline, pipe, archive, publisher, metricHandler, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	srv.SetReady(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("asr_mode", r.cfg.ASR.Mode),
		slog.String("diarization_mode", r.cfg.Diarization.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	srv.SetReady(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildTranscriber(cfg config.ASRConfig) (asr.Transcriber, error) {
	switch cfg.Mode {
	case "exec":
		return asr.NewExecTranscriber(cfg)
	case "mock":
		return asr.NewMockTranscriber(), nil
	default:
		return nil, fmt.Errorf("unknown asr mode %q", cfg.Mode)
	}
}

func buildDiarizer(cfg config.DiarizationConfig) (diarization.Diarizer, error) {
	switch cfg.Mode {
	case "exec":
		return diarization.NewExecDiarizer(cfg)
	case "mock":
		return diarization.NewMockDiarizer(), nil
	default:
		return nil, fmt.Errorf("unknown diarization mode %q", cfg.Mode)
	}
}
