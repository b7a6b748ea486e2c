package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		frame int
		fps   float64
		want  float64
	}{
		{"whole second", 90, 30, 3.0},
		{"rounded to centiseconds", 1, 29.97, 0.03},
		{"ntsc drift", 1000, 29.97, 33.37},
		{"first frame", 0, 25, 0},
		{"half rounds to even at 24fps", 3, 24, 0.12},
		{"half rounds to even, second frame", 15, 24, 0.62},
		{"half rounds to even at 8fps", 1, 8, 0.12},
		{"half rounds up to even", 9, 24, 0.38},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := FrameTimestamp(tt.frame, tt.fps)
			got, ok := ts.Seconds()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, TimestampSeconds, ts.Kind())
		})
	}
}

func TestTimestampJSONForms(t *testing.T) {
	items := FeedbackList{
		{Timestamp: Seconds(3), Tip: "a"},
		{Timestamp: Seconds(12.346), Tip: "b"},
		{Timestamp: Clock(75), Tip: "c"},
		{Timestamp: NotApplicable, Tip: "d"},
	}

	data, err := json.Marshal(items)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"timestamp":3,"tip":"a"},
		{"timestamp":12.35,"tip":"b"},
		{"timestamp":"01:15","tip":"c"},
		{"timestamp":"N/A","tip":"d"}
	]`, string(data))
}

func TestTimestampUnmarshalAcceptsAllForms(t *testing.T) {
	var items []CoachingEvent
	err := json.Unmarshal([]byte(`[
		{"timestamp":3.0,"tip":"seconds"},
		{"timestamp":"00:42","tip":"clock"},
		{"timestamp":"N/A","tip":"generated"},
		{"timestamp":"4.5","tip":"quoted seconds"}
	]`), &items)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, Seconds(3), items[0].Timestamp)
	assert.Equal(t, "00:42", items[1].Timestamp.String())
	assert.Equal(t, NotApplicable, items[2].Timestamp)
	assert.Equal(t, Seconds(4.5), items[3].Timestamp)
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"soon", "1:75", "-1:00", "a:b"} {
		_, err := ParseTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestAsClock(t *testing.T) {
	assert.Equal(t, "02:05", Seconds(125.9).AsClock().String())
	assert.Equal(t, NotApplicable, NotApplicable.AsClock())

	list := FeedbackList{{Timestamp: Seconds(75.4), Tip: "a"}, {Timestamp: NotApplicable, Tip: "b"}}
	clock := list.AsClock()
	data, err := json.Marshal(clock)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"timestamp":"01:15","tip":"a"},{"timestamp":"N/A","tip":"b"}]`, string(data))
	assert.Equal(t, TimestampSeconds, list[0].Timestamp.Kind())
	assert.Nil(t, FeedbackList(nil).AsClock())
}

func TestObservationJointOnNil(t *testing.T) {
	var obs *Observation
	_, ok := obs.Joint(LeftWrist)
	assert.False(t, ok)
	assert.False(t, Sample{FrameIndex: 4}.Detected())
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("moov atom not found")
	err := fmt.Errorf("analyze: %w", NewError(KindDecode, "open", cause))

	assert.True(t, errors.Is(err, ErrDecode))
	assert.False(t, errors.Is(err, ErrFeedbackGeneration))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, "open: decode_error: moov atom not found", NewError(KindDecode, "open", cause).Error())
}

func TestJointValid(t *testing.T) {
	assert.True(t, LeftHip.Valid())
	assert.False(t, Joint("LEFT_TAIL").Valid())
}
