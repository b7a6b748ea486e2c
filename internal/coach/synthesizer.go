// Package coach produces the final feedback list, falling back to generated
// tips when no rule fired.
package coach

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Generator completes a prompt with free text.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var errNoGenerator = errors.New("no text generator configured")

type Synthesizer struct {
	gen    Generator
	logger *zap.Logger
}

// NewSynthesizer accepts a nil generator; the fallback then always fails.
func NewSynthesizer(gen Generator, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{gen: gen, logger: logger.With(zap.String("component", "synthesizer"))}
}

func (s *Synthesizer) HasGenerator() bool { return s.gen != nil }

// Result is the synthesized feedback and where it came from.
type Result struct {
	Feedback models.FeedbackList
	Source   models.FeedbackSource
	Reason   models.FallbackReason
}

// Synthesize returns events unchanged when there are any. Otherwise it asks
// the generator and wraps each non-empty line with an N/A timestamp. A
// failed or empty generation is a FeedbackGenerationError, never an empty
// success.
func (s *Synthesizer) Synthesize(ctx context.Context, events models.FeedbackList, summary Summary, focus string) (Result, error) {
	if len(events) > 0 {
		return Result{Feedback: events, Source: models.SourceRules}, nil
	}
	if summary.Reason == models.FallbackNone {
		summary.Reason = models.FallbackNoFindings
	}

	fail := func(err error) (Result, error) {
		s.logger.Error("feedback generation failed",
			zap.String("reason", string(summary.Reason)),
			zap.Error(err),
		)
		return Result{}, models.NewError(models.KindFeedbackGeneration, "coach.Synthesize", err)
	}

	if s.gen == nil {
		return fail(errNoGenerator)
	}

	text, err := s.gen.Complete(ctx, BuildPrompt(summary, focus))
	if err != nil {
		return fail(err)
	}
	tips := SplitTips(text)
	if len(tips) == 0 {
		return fail(errors.New("generator returned no tips"))
	}

	s.logger.Info("used generated feedback",
		zap.String("reason", string(summary.Reason)),
		zap.Int("tips", len(tips)),
	)
	return Result{Feedback: tips, Source: models.SourceGenerated, Reason: summary.Reason}, nil
}

// FocusFeedback answers a student's focus question with a single N/A tip
// holding the whole generated answer. It runs alongside rule findings, so it
// never replaces them.
func (s *Synthesizer) FocusFeedback(ctx context.Context, focus, video string) (models.CoachingEvent, error) {
	fail := func(err error) (models.CoachingEvent, error) {
		s.logger.Error("focus feedback failed", zap.Error(err))
		return models.CoachingEvent{}, models.NewError(models.KindFeedbackGeneration, "coach.FocusFeedback", err)
	}
	if s.gen == nil {
		return fail(errNoGenerator)
	}
	text, err := s.gen.Complete(ctx, BuildFocusPrompt(focus, video))
	if err != nil {
		return fail(err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return fail(errors.New("generator returned no text"))
	}
	return models.CoachingEvent{Timestamp: models.NotApplicable, Tip: text}, nil
}
