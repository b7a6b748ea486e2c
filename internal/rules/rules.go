// Package rules holds single-frame pose predicates and the engine that
// turns a sample stream into timestamped coaching events.
package rules

import (
	"errors"
	"fmt"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Rule is a pure predicate over one frame's observation. Evaluate must not
// keep state between calls.
type Rule interface {
	Name() string
	Evaluate(obs *models.Observation) (tip string, fired bool)
}

const (
	HandTooLow  = "hand-too-low"
	HipsTooHigh = "hips-too-high"

	HandTooLowTip  = "Keep your hands higher to defend better."
	HipsTooHighTip = "Your hips appear too high in this frame. Lower them for better balance."
)

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		&Threshold{
			RuleName: HandTooLow,
			Joint:    models.LeftWrist,
			Axis:     AxisY,
			Op:       OpGreater,
			Value:    0.6,
			Tip:      HandTooLowTip,
		},
		&Offset{
			RuleName:  HipsTooHigh,
			Joint:     models.LeftHip,
			Reference: models.LeftShoulder,
			Axis:      AxisY,
			MinGap:    0.1,
			Tip:       HipsTooHighTip,
		},
	}
}

type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

func (a Axis) of(lm models.Landmark) float64 {
	if a == AxisX {
		return lm.X
	}
	return lm.Y
}

func (a Axis) valid() bool { return a == AxisX || a == AxisY }

type Op string

const (
	OpGreater Op = "gt"
	OpLess    Op = "lt"
)

// Threshold fires when a joint's coordinate on Axis is beyond Value.
type Threshold struct {
	RuleName string
	Joint    models.Joint
	Axis     Axis
	Op       Op
	Value    float64
	Tip      string
}

func (r *Threshold) Name() string { return r.RuleName }

func (r *Threshold) Evaluate(obs *models.Observation) (string, bool) {
	lm, ok := obs.Joint(r.Joint)
	if !ok {
		return "", false
	}
	v := r.Axis.of(lm)
	switch r.Op {
	case OpGreater:
		return r.Tip, v > r.Value
	case OpLess:
		return r.Tip, v < r.Value
	}
	return "", false
}

func (r *Threshold) validate() error {
	var errs []error
	if !r.Joint.Valid() {
		errs = append(errs, fmt.Errorf("unknown joint %q", r.Joint))
	}
	if !r.Axis.valid() {
		errs = append(errs, fmt.Errorf("unknown axis %q", r.Axis))
	}
	if r.Op != OpGreater && r.Op != OpLess {
		errs = append(errs, fmt.Errorf("unknown op %q", r.Op))
	}
	return errors.Join(errs...)
}

// gapEpsilon absorbs float noise so a gap of exactly MinGap fires.
const gapEpsilon = 1e-9

// Offset fires when Reference minus Joint on Axis is at least MinGap. With
// image coordinates, a hip whose y is 0.1 below the shoulder's y sits 0.1
// above it in the frame.
type Offset struct {
	RuleName  string
	Joint     models.Joint
	Reference models.Joint
	Axis      Axis
	MinGap    float64
	Tip       string
}

func (r *Offset) Name() string { return r.RuleName }

func (r *Offset) Evaluate(obs *models.Observation) (string, bool) {
	lm, ok := obs.Joint(r.Joint)
	if !ok {
		return "", false
	}
	ref, ok := obs.Joint(r.Reference)
	if !ok {
		return "", false
	}
	gap := r.Axis.of(ref) - r.Axis.of(lm)
	return r.Tip, gap >= r.MinGap-gapEpsilon
}

func (r *Offset) validate() error {
	var errs []error
	if !r.Joint.Valid() {
		errs = append(errs, fmt.Errorf("unknown joint %q", r.Joint))
	}
	if !r.Reference.Valid() {
		errs = append(errs, fmt.Errorf("unknown reference joint %q", r.Reference))
	}
	if r.Joint == r.Reference {
		errs = append(errs, errors.New("joint and reference must differ"))
	}
	if !r.Axis.valid() {
		errs = append(errs, fmt.Errorf("unknown axis %q", r.Axis))
	}
	return errors.Join(errs...)
}
