package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

const (
	KindThreshold = "threshold"
	KindOffset    = "offset"
)

// RuleSpec is the YAML form of a rule. Kind selects which of the remaining
// fields apply.
type RuleSpec struct {
	Name      string  `yaml:"name"`
	Kind      string  `yaml:"kind"`
	Joint     string  `yaml:"joint"`
	Reference string  `yaml:"reference,omitempty"`
	Axis      string  `yaml:"axis"`
	Op        string  `yaml:"op,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
	MinGap    float64 `yaml:"min_gap,omitempty"`
	Tip       string  `yaml:"tip"`
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Parse builds rules from a YAML document. Every problem is reported, not
// just the first.
func Parse(data []byte) ([]Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rule set is empty")
	}

	var (
		out  []Rule
		errs []error
		seen = make(map[string]bool)
	)
	for i, spec := range f.Rules {
		r, err := spec.build()
		if err == nil && seen[spec.Name] {
			err = fmt.Errorf("duplicate rule name %q", spec.Name)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, spec.Name, err))
			continue
		}
		seen[spec.Name] = true
		out = append(out, r)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s RuleSpec) build() (Rule, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("name is required")
	}
	if strings.TrimSpace(s.Tip) == "" {
		return nil, errors.New("tip is required")
	}

	switch s.Kind {
	case KindThreshold:
		r := &Threshold{
			RuleName: s.Name,
			Joint:    models.Joint(s.Joint),
			Axis:     Axis(s.Axis),
			Op:       Op(s.Op),
			Value:    s.Value,
			Tip:      s.Tip,
		}
		return r, r.validate()
	case KindOffset:
		r := &Offset{
			RuleName:  s.Name,
			Joint:     models.Joint(s.Joint),
			Reference: models.Joint(s.Reference),
			Axis:      Axis(s.Axis),
			MinGap:    s.MinGap,
			Tip:       s.Tip,
		}
		return r, r.validate()
	default:
		return nil, fmt.Errorf("unknown kind %q", s.Kind)
	}
}

// Specs converts rules back to their YAML form. Rules that are not one of
// the built-in kinds are skipped.
func Specs(rules []Rule) []RuleSpec {
	var out []RuleSpec
	for _, r := range rules {
		switch r := r.(type) {
		case *Threshold:
			out = append(out, RuleSpec{Name: r.RuleName, Kind: KindThreshold, Joint: string(r.Joint), Axis: string(r.Axis), Op: string(r.Op), Value: r.Value, Tip: r.Tip})
		case *Offset:
			out = append(out, RuleSpec{Name: r.RuleName, Kind: KindOffset, Joint: string(r.Joint), Reference: string(r.Reference), Axis: string(r.Axis), MinGap: r.MinGap, Tip: r.Tip})
		}
	}
	return out
}

// Marshal writes rules as a YAML rule set that Parse accepts.
func Marshal(rules []Rule) ([]byte, error) {
	return yaml.Marshal(ruleFile{Rules: Specs(rules)})
}
