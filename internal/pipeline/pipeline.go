package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/diascribe/diascribe/internal/asr"
	"github.com/diascribe/diascribe/internal/diarization"
	"github.com/diascribe/diascribe/internal/transcript"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline drives the two collaborators and the alignment engine for one
// audio file per Process call.
type Pipeline struct {
	transcriber asr.Transcriber
	diarizer    diarization.Diarizer
	logger      *slog.Logger
	tracer      trace.Tracer
	requests    metric.Int64Counter
	latency     metric.Float64Histogram
}

func New(transcriber asr.Transcriber, diarizer diarization.Diarizer, logger *slog.Logger) (*Pipeline, error) {
	meter := otel.Meter("diascribe/pipeline")
	requests, err := meter.Int64Counter("pipeline.requests",
		metric.WithDescription("Processed pipeline requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	latency, err := meter.Float64Histogram("pipeline.duration_seconds",
		metric.WithDescription("End-to-end pipeline latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}
	return &Pipeline{
		transcriber: transcriber,
		diarizer:    diarizer,
		logger:      logger.With(slog.String("component", "pipeline")),
		tracer:      otel.Tracer("diascribe/pipeline"),
		requests:    requests,
		latency:     latency,
	}, nil
}

// Process transcribes and diarizes audioPath concurrently, then aligns the
// two results into speaker-attributed utterances. On the first collaborator
// failure the sibling call is cancelled; Process always waits for both
// goroutines before returning, so no work outlives the call.
func (p *Pipeline) Process(ctx context.Context, audioPath string) ([]transcript.Utterance, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()

	started := time.Now()
	utterances, err := p.run(ctx, audioPath)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	p.latency.Record(ctx, time.Since(started).Seconds())
	return utterances, err
}

func (p *Pipeline) run(ctx context.Context, audioPath string) ([]transcript.Utterance, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		words []transcript.Word
		turns []transcript.SpeakerTurn
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() {
			first = err
			cancel()
		})
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		tctx, tspan := p.tracer.Start(ctx, "pipeline.transcribe")
		defer tspan.End()
		result, err := p.transcriber.Transcribe(tctx, audioPath)
		if err != nil {
			tspan.RecordError(err)
			tspan.SetStatus(codes.Error, err.Error())
			fail(&TranscriptionError{Err: err})
			return
		}
		tspan.SetAttributes(attribute.Int("words", len(result)))
		words = result
	}()
	go func() {
		defer wg.Done()
		dctx, dspan := p.tracer.Start(ctx, "pipeline.diarize")
		defer dspan.End()
		result, err := p.diarizer.Diarize(dctx, audioPath)
		if err != nil {
			dspan.RecordError(err)
			dspan.SetStatus(codes.Error, err.Error())
			fail(&DiarizationError{Err: err})
			return
		}
		dspan.SetAttributes(attribute.Int("turns", len(result)))
		turns = result
	}()
	wg.Wait()

	if first != nil {
		return nil, first
	}

	// Deterministic tie-break for overlapping turns: earliest start wins.
	transcript.SortTurns(turns)

	_, aspan := p.tracer.Start(ctx, "pipeline.align")
	utterances := transcript.Align(words, turns)
	aspan.SetAttributes(attribute.Int("utterances", len(utterances)))
	aspan.End()

	p.logger.Info("pipeline complete",
		slog.Int("words", len(words)),
		slog.Int("turns", len(turns)),
		slog.Int("utterances", len(utterances)))
	return utterances, nil
}
