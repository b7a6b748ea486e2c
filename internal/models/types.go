package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type TimestampKind uint8

const (
	TimestampSeconds TimestampKind = iota
	TimestampClock
	TimestampNotApplicable
)

// Timestamp is the position of a coaching tip in the video. It encodes to
// JSON as a number of seconds, an "MM:SS" string, or "N/A".
type Timestamp struct {
	kind    TimestampKind
	seconds float64
}

// NotApplicable marks tips that have no frame-level timing.
var NotApplicable = Timestamp{kind: TimestampNotApplicable}

// Seconds returns a timestamp rounded to two decimal places, halves to even.
func Seconds(s float64) Timestamp {
	return Timestamp{kind: TimestampSeconds, seconds: math.RoundToEven(s*100) / 100}
}

// FrameTimestamp converts a frame index to seconds at a constant frame rate.
func FrameTimestamp(frameIndex int, frameRate float64) Timestamp {
	return Seconds(float64(frameIndex) / frameRate)
}

func Clock(s float64) Timestamp {
	return Timestamp{kind: TimestampClock, seconds: s}
}

func (t Timestamp) Kind() TimestampKind { return t.kind }

func (t Timestamp) Seconds() (float64, bool) {
	if t.kind == TimestampNotApplicable {
		return 0, false
	}
	return t.seconds, true
}

// Timestamp output formats accepted from clients.
const (
	FormatSeconds = "seconds"
	FormatClock   = "clock"
)

// AsClock renders a seconds timestamp as MM:SS. N/A stays N/A.
func (t Timestamp) AsClock() Timestamp {
	if t.kind == TimestampSeconds {
		return Clock(t.seconds)
	}
	return t
}

func (t Timestamp) String() string {
	switch t.kind {
	case TimestampNotApplicable:
		return "N/A"
	case TimestampClock:
		total := int(t.seconds)
		return fmt.Sprintf("%02d:%02d", total/60, total%60)
	default:
		return strconv.FormatFloat(t.seconds, 'f', -1, 64)
	}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.kind == TimestampSeconds {
		return []byte(strconv.FormatFloat(t.seconds, 'f', -1, 64)), nil
	}
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*t = NotApplicable
		return nil
	}
	if data[0] != '"' {
		s, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = Seconds(s)
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp accepts "N/A", "MM:SS" or a decimal number of seconds.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "N/A") {
		return NotApplicable, nil
	}
	if mins, secs, ok := strings.Cut(raw, ":"); ok {
		m, err1 := strconv.Atoi(mins)
		s, err2 := strconv.Atoi(secs)
		if err1 != nil || err2 != nil || m < 0 || s < 0 || s > 59 {
			return Timestamp{}, fmt.Errorf("timestamp: invalid clock value %q", raw)
		}
		return Clock(float64(m*60 + s)), nil
	}
	s, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp: invalid value %q", raw)
	}
	return Seconds(s), nil
}

type AnalyzeRequest struct {
	VideoURL       string  `json:"video_url"`
	UserID         string  `json:"user_id"`
	VideoID        string  `json:"video_id"`
	AnalysisPrompt string  `json:"analysis_prompt,omitempty"`
	FrameRate      float64 `json:"frame_rate,omitempty"`

	// TimestampFormat is "seconds" (default) or "clock" for MM:SS.
	TimestampFormat string `json:"timestamp_format,omitempty"`
}

type AnalyzeResponse struct {
	VideoID        string         `json:"video_id,omitempty"`
	AnalysisID     string         `json:"analysis_id"`
	Source         FeedbackSource `json:"source"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	Partial        bool           `json:"partial,omitempty"`
	FrameRate      float64        `json:"frame_rate,omitempty"`
	Insights       FeedbackList   `json:"insights"`
}

type UploadResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	AnalysisID string `json:"analysis_id"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status        string        `json:"status"`
	PoseService   bool          `json:"pose_service"`
	Database      bool          `json:"database"`
	Generator     bool          `json:"generator"`
	ActiveClients int           `json:"active_clients"`
	Uptime        time.Duration `json:"uptime"`
	Version       string        `json:"version,omitempty"`
}
