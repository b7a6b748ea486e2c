package rules

import (
	"context"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Source is a single-pass sample sequence; *pose.Stream satisfies it.
type Source interface {
	Next(ctx context.Context) bool
	Sample() models.Sample
	Err() error
}

// Engine applies an ordered rule list to each sample independently.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

func NewEngine(rules []Rule, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{rules: rules, logger: logger.With(zap.String("component", "rules"))}
}

func (e *Engine) Rules() []Rule { return e.rules }

// EvaluateFrame returns one event per rule that fires on s, in rule order.
// Samples without an observation never produce events.
func (e *Engine) EvaluateFrame(s models.Sample, frameRate float64) []models.CoachingEvent {
	if !s.Detected() {
		return nil
	}
	var events []models.CoachingEvent
	for _, r := range e.rules {
		tip, fired := r.Evaluate(s.Observation)
		if !fired {
			continue
		}
		events = append(events, models.CoachingEvent{
			Timestamp: models.FrameTimestamp(s.FrameIndex, frameRate),
			Tip:       tip,
			Rule:      r.Name(),
		})
	}
	return events
}

// Run drains src and returns the events in frame order. emit, when set, sees
// each event as soon as it is produced. The returned error is src's error;
// events gathered before it are still returned.
func (e *Engine) Run(ctx context.Context, src Source, frameRate float64, emit func(models.CoachingEvent)) (models.FeedbackList, error) {
	var out models.FeedbackList
	for src.Next(ctx) {
		s := src.Sample()
		for _, ev := range e.EvaluateFrame(s, frameRate) {
			e.logger.Debug("rule fired",
				zap.String("rule", ev.Rule),
				zap.Int("frame", s.FrameIndex),
				zap.Stringer("timestamp", ev.Timestamp),
			)
			if emit != nil {
				emit(ev)
			}
			out = append(out, ev)
		}
	}
	return out, src.Err()
}
