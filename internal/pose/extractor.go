// Package pose runs a pose model over decoded frames and yields one sample
// per evaluated frame.
package pose

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Model finds a body on a single frame. A nil observation with a nil error
// means nothing was detected; an error is a fault on that frame only.
type Model interface {
	Detect(ctx context.Context, frame models.Frame) (*models.Observation, error)
}

// FrameSource is the part of a video decoder the extractor needs.
type FrameSource interface {
	Next() (models.Frame, error)
}

type Options struct {
	// SampleEvery evaluates frames whose index is a multiple of it. Values
	// below 1 mean every frame.
	SampleEvery int
	Logger      *zap.Logger
}

type Extractor struct {
	model       Model
	sampleEvery int
	logger      *zap.Logger
}

func NewExtractor(model Model, opts Options) *Extractor {
	if opts.SampleEvery < 1 {
		opts.SampleEvery = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Extractor{
		model:       model,
		sampleEvery: opts.SampleEvery,
		logger:      opts.Logger.With(zap.String("component", "extractor")),
	}
}

// Stats counts what a stream did. Skipped frames were decoded but not
// evaluated because of sampling; they never count as missed detections.
type Stats struct {
	Decoded   int `json:"decoded"`
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Detected  int `json:"detected"`
	Faults    int `json:"faults"`
}

// NoDetection reports whether no evaluated frame had a body. A stream with
// nothing evaluated counts as no detection.
func (s Stats) NoDetection() bool {
	return s.Detected == 0
}

// Stream starts a single-pass walk over src.
func (e *Extractor) Stream(src FrameSource) *Stream {
	return &Stream{e: e, src: src}
}

// Stream is a lazy, single-pass sequence of samples in frame order.
//
//	for s.Next(ctx) {
//		sample := s.Sample()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	e      *Extractor
	src    FrameSource
	cur    models.Sample
	stats  Stats
	err    error
	closed bool
}

// Next advances to the next evaluated frame. It returns false at the end of
// input, on a decode failure and when ctx is done; Err tells them apart.
func (s *Stream) Next(ctx context.Context) bool {
	if s.closed {
		return false
	}
	for {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}

		frame, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			s.closed = true
			return false
		}
		if err != nil {
			if models.KindOf(err) == "" {
				err = models.NewError(models.KindDecode, "pose.Stream", err)
			}
			return s.fail(err)
		}
		s.stats.Decoded++

		if frame.Index%s.e.sampleEvery != 0 {
			s.stats.Skipped++
			continue
		}
		s.stats.Evaluated++

		obs, err := s.e.model.Detect(ctx, frame)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.fail(ctxErr)
			}
			s.stats.Faults++
			s.e.logger.Debug("pose model fault, treating frame as empty",
				zap.Int("frame", frame.Index),
				zap.Error(models.NewError(models.KindModelFault, "pose.Detect", err)),
			)
			obs = nil
		}
		if obs != nil {
			s.stats.Detected++
			if obs.FrameIndex != frame.Index {
				fixed := *obs
				fixed.FrameIndex = frame.Index
				obs = &fixed
			}
		}

		s.cur = models.Sample{FrameIndex: frame.Index, Observation: obs}
		return true
	}
}

func (s *Stream) fail(err error) bool {
	s.err = err
	s.closed = true
	return false
}

// Sample returns the sample produced by the last successful Next.
func (s *Stream) Sample() models.Sample { return s.cur }

func (s *Stream) Stats() Stats { return s.stats }

func (s *Stream) Err() error { return s.err }

// Truncated reports whether the stream ended on a decode error after
// producing at least one sample.
func (s *Stream) Truncated() bool {
	return errors.Is(s.err, models.ErrDecode) && s.stats.Decoded > 0
}

// Collect drains a stream. It is mostly useful in tests and tools.
func Collect(ctx context.Context, s *Stream) ([]models.Sample, error) {
	var out []models.Sample
	for s.Next(ctx) {
		out = append(out, s.Sample())
	}
	if err := s.Err(); err != nil {
		return out, fmt.Errorf("collect samples: %w", err)
	}
	return out, nil
}
