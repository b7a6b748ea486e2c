package coach

import (
	"strings"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

const (
	NoDetectionSummary = "No body was detected in any analysed frame."
	NoFindingsSummary  = "No specific pose issues detected."
)

const persona = "You're a Brazilian Jiu-Jitsu coach analyzing a student's roll."

// Summary is the coarse observation context handed to the generator.
type Summary struct {
	Reason models.FallbackReason
	// Lines are extra observations, one per line.
	Lines []string
}

func (s Summary) headline() string {
	if s.Reason == models.FallbackNoDetection {
		return NoDetectionSummary
	}
	return NoFindingsSummary
}

// BuildPrompt renders the fallback prompt. focus is the student's own
// question about the roll and may be empty.
func BuildPrompt(s Summary, focus string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\nHere's what was observed:\n")
	b.WriteString(s.headline())
	for _, line := range s.Lines {
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	if focus = strings.TrimSpace(focus); focus != "" {
		b.WriteString("\n\nThe student asked you to focus on: ")
		b.WriteString(focus)
	}
	b.WriteString("\n\nProvide 3 tips or areas to improve, one per line.")
	return b.String()
}

// BuildFocusPrompt asks for feedback on the student's own question. video
// identifies the roll for the coach and may be empty.
func BuildFocusPrompt(focus, video string) string {
	var b strings.Builder
	b.WriteString("You're a Brazilian Jiu-Jitsu coach analyzing a student's technique. The student has requested specific feedback on:\n\n")
	b.WriteString(strings.TrimSpace(focus))
	b.WriteString("\n\nGive feedback focused on the requested aspects:\n")
	b.WriteString("- Be specific about timing, control, positioning and transitions\n")
	b.WriteString("- Give positive encouragement and actionable coaching points\n")
	b.WriteString("- If you notice any safety concerns, highlight them")
	if video != "" {
		b.WriteString("\n\nVideo: ")
		b.WriteString(video)
	}
	return b.String()
}

// SplitTips turns generated text into one event per non-empty line.
func SplitTips(text string) models.FeedbackList {
	var out models.FeedbackList
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		out = append(out, models.CoachingEvent{Timestamp: models.NotApplicable, Tip: line})
	}
	return out
}
