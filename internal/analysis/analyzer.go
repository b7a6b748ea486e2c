// Package analysis runs the full pipeline for one video: decode, pose
// extraction, rule evaluation and feedback synthesis.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Pinaire1/jujitsu-app/internal/coach"
	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/internal/pose"
	"github.com/Pinaire1/jujitsu-app/internal/rules"
	"github.com/Pinaire1/jujitsu-app/internal/services"
	"github.com/Pinaire1/jujitsu-app/internal/video"
)

const instrumentationName = "github.com/Pinaire1/jujitsu-app/internal/analysis"

type Options struct {
	SampleEvery int
	// MaxConcurrent bounds analyses in flight; 0 means unbounded.
	MaxConcurrent int
	// Timeout applies to each analysis; 0 means none.
	Timeout time.Duration
	Metrics *services.Metrics
	Logger  *zap.Logger
}

// Analyzer holds no per-video state; concurrent calls share only the
// injected collaborators.
type Analyzer struct {
	opener    video.Opener
	extractor *pose.Extractor
	engine    *rules.Engine
	synth     *coach.Synthesizer
	sem       *semaphore.Weighted
	timeout   time.Duration
	metrics   *services.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func New(opener video.Opener, model pose.Model, engine *rules.Engine, synth *coach.Synthesizer, opts Options) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	a := &Analyzer{
		opener:    opener,
		extractor: pose.NewExtractor(model, pose.Options{SampleEvery: opts.SampleEvery, Logger: opts.Logger}),
		engine:    engine,
		synth:     synth,
		timeout:   opts.Timeout,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(zap.String("component", "analyzer")),
		tracer:    otel.Tracer(instrumentationName),
	}
	if opts.MaxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return a
}

type Request struct {
	// ID names the analysis; a new one is generated when empty.
	ID        string
	VideoPath string
	// FrameRateHint is used when the container reports no frame rate.
	FrameRateHint float64
	// Focus is the student's own question; it only shapes generated tips.
	Focus string
	// OnEvent sees rule events as they fire. It runs on the analysis
	// goroutine and must not block.
	OnEvent func(models.CoachingEvent)
}

type Report struct {
	ID             string                `json:"id"`
	Feedback       models.FeedbackList   `json:"feedback"`
	Source         models.FeedbackSource `json:"source"`
	FallbackReason models.FallbackReason `json:"fallback_reason,omitempty"`
	FrameRate      float64               `json:"frame_rate"`
	Stats          pose.Stats            `json:"stats"`
	// Partial is set when decoding failed midway and the feedback covers
	// only the frames decoded before the failure.
	Partial  bool          `json:"partial"`
	Duration time.Duration `json:"duration"`
}

// Analyze runs the pipeline over one local video. It returns either a
// non-empty feedback list or a typed *models.Error.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.String("video.path", req.VideoPath)))
	defer span.End()

	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "waiting for slot")
			return nil, fmt.Errorf("wait for analysis slot: %w", err)
		}
		defer a.sem.Release(1)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	if a.metrics != nil {
		a.metrics.AnalysisStarted()
	}

	report, err := a.run(ctx, req)

	elapsed := time.Since(start)
	if a.metrics != nil {
		a.metrics.AnalysisFinished(outcome(err), elapsed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		a.logger.Warn("analysis failed",
			zap.String("video", req.VideoPath),
			zap.String("kind", outcome(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	report.Duration = elapsed
	span.SetAttributes(
		attribute.String("feedback.source", string(report.Source)),
		attribute.Int("feedback.items", len(report.Feedback)),
		attribute.Bool("analysis.partial", report.Partial),
	)
	a.logger.Info("analysis complete",
		zap.String("analysis_id", report.ID),
		zap.String("video", req.VideoPath),
		zap.String("source", string(report.Source)),
		zap.Int("items", len(report.Feedback)),
		zap.Int("frames_decoded", report.Stats.Decoded),
		zap.Int("frames_detected", report.Stats.Detected),
		zap.Bool("partial", report.Partial),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, req Request) (*Report, error) {
	dec, err := a.opener.Open(ctx, req.VideoPath)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	fps := dec.FrameRate()
	if fps <= 0 {
		fps = req.FrameRateHint
	}
	if fps <= 0 {
		return nil, models.NewError(models.KindDecode, "analysis.FrameRate",
			errors.New("video reports no frame rate and no hint was given"))
	}

	evalCtx, span := a.tracer.Start(ctx, "analysis.Evaluate",
		trace.WithAttributes(attribute.Float64("video.frame_rate", fps)))
	stream := a.extractor.Stream(dec)
	events, err := a.engine.Run(evalCtx, stream, fps, req.OnEvent)
	stats := stream.Stats()
	span.SetAttributes(
		attribute.Int("frames.decoded", stats.Decoded),
		attribute.Int("frames.evaluated", stats.Evaluated),
		attribute.Int("frames.detected", stats.Detected),
		attribute.Int("events", len(events)),
	)
	span.End()

	if a.metrics != nil {
		a.metrics.RecordFrames(stats.Decoded, stats.Evaluated, stats.Skipped, stats.Detected, stats.Faults)
	}

	partial := false
	if err != nil {
		if !stream.Truncated() {
			return nil, err
		}
		partial = true
		a.logger.Warn("video decoding stopped early, using decoded frames",
			zap.String("video", req.VideoPath),
			zap.Int("frames_decoded", stats.Decoded),
			zap.Error(err),
		)
	}

	summary := coach.Summary{Reason: models.FallbackNoFindings, Lines: summaryLines(stats, partial)}
	if stats.NoDetection() {
		summary.Reason = models.FallbackNoDetection
	}

	_, synthSpan := a.tracer.Start(ctx, "analysis.Synthesize")
	res, err := a.synth.Synthesize(ctx, events, summary, req.Focus)
	synthSpan.End()
	if err != nil {
		return nil, err
	}

	if a.metrics != nil {
		for _, ev := range events {
			a.metrics.IncrementEvents(ev.Rule)
		}
		if res.Source == models.SourceGenerated {
			a.metrics.IncrementFallbacks(string(res.Reason))
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Report{
		ID:             id,
		Feedback:       res.Feedback,
		Source:         res.Source,
		FallbackReason: res.Reason,
		FrameRate:      fps,
		Stats:          stats,
		Partial:        partial,
	}, nil
}

func summaryLines(s pose.Stats, partial bool) []string {
	lines := []string{
		fmt.Sprintf("Analysed %d of %d decoded frames; a body was visible in %d of them.", s.Evaluated, s.Decoded, s.Detected),
	}
	if partial {
		lines = append(lines, "The recording could only be read partway through.")
	}
	return lines
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case models.KindOf(err) != "":
		return string(models.KindOf(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
