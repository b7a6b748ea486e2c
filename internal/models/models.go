package models

import "time"

// Joint names follow the pose model's landmark naming.
type Joint string

const (
	Nose          Joint = "NOSE"
	LeftShoulder  Joint = "LEFT_SHOULDER"
	RightShoulder Joint = "RIGHT_SHOULDER"
	LeftElbow     Joint = "LEFT_ELBOW"
	RightElbow    Joint = "RIGHT_ELBOW"
	LeftWrist     Joint = "LEFT_WRIST"
	RightWrist    Joint = "RIGHT_WRIST"
	LeftHip       Joint = "LEFT_HIP"
	RightHip      Joint = "RIGHT_HIP"
	LeftKnee      Joint = "LEFT_KNEE"
	RightKnee     Joint = "RIGHT_KNEE"
	LeftAnkle     Joint = "LEFT_ANKLE"
	RightAnkle    Joint = "RIGHT_ANKLE"
)

var knownJoints = map[Joint]struct{}{
	Nose: {}, LeftShoulder: {}, RightShoulder: {}, LeftElbow: {}, RightElbow: {},
	LeftWrist: {}, RightWrist: {}, LeftHip: {}, RightHip: {}, LeftKnee: {},
	RightKnee: {}, LeftAnkle: {}, RightAnkle: {},
}

func (j Joint) Valid() bool {
	_, ok := knownJoints[j]
	return ok
}

// Landmark holds normalized image coordinates; smaller Y is higher in the frame.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Observation is the set of joints detected on one frame. It must not be
// modified once produced.
type Observation struct {
	FrameIndex int                `json:"frame_index"`
	Landmarks  map[Joint]Landmark `json:"landmarks"`
}

func (o *Observation) Joint(j Joint) (Landmark, bool) {
	if o == nil {
		return Landmark{}, false
	}
	lm, ok := o.Landmarks[j]
	return lm, ok
}

type PixelFormat string

const (
	PixelFormatRGB24 PixelFormat = "rgb24"
	PixelFormatJPEG  PixelFormat = "jpeg"
)

// Frame is a decoded video frame. Index is the zero-based position in the
// source stream.
type Frame struct {
	Index  int
	Width  int
	Height int
	Format PixelFormat
	Data   []byte
}

// Sample pairs a frame index with its observation. A nil Observation means
// the model found no body on that frame.
type Sample struct {
	FrameIndex  int
	Observation *Observation
}

func (s Sample) Detected() bool {
	return s.Observation != nil
}

type CoachingEvent struct {
	Timestamp Timestamp `json:"timestamp"`
	Tip       string    `json:"tip"`
	Rule      string    `json:"-"`
}

type FeedbackList []CoachingEvent

// AsClock returns a copy with every seconds timestamp rendered as MM:SS.
func (l FeedbackList) AsClock() FeedbackList {
	if l == nil {
		return nil
	}
	out := make(FeedbackList, len(l))
	for i, ev := range l {
		ev.Timestamp = ev.Timestamp.AsClock()
		out[i] = ev
	}
	return out
}

type FeedbackSource string

const (
	SourceRules     FeedbackSource = "rules"
	SourceGenerated FeedbackSource = "generated"
)

type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackNoFindings  FallbackReason = "no_findings"
	FallbackNoDetection FallbackReason = "no_detection"
)

type AnalysisRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	VideoID        string         `json:"video_id"`
	VideoPath      string         `json:"video_path"`
	VideoDigest    string         `json:"video_digest,omitempty"`
	Source         FeedbackSource `json:"source"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	Partial        bool           `json:"partial"`
	Insights       FeedbackList   `json:"insights"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
}
