// internal/session/plan.go
package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/actuator/internal/escalation"
)

// StepKind names what a plan step does.
type StepKind string

const (
	StepClick    StepKind = "click"
	StepToggle   StepKind = "toggle"
	StepPause    StepKind = "pause"
	StepNavigate StepKind = "navigate"
	StepChoose   StepKind = "choose"
)

// ErrInvalidPlan wraps every plan validation problem.
var ErrInvalidPlan = errors.New("session: invalid plan")

// Plan is a scripted session loaded from YAML.
type Plan struct {
	Name     string `yaml:"name"`
	StartURL string `yaml:"start_url,omitempty"`
	// ReloadTarget is navigated to by soft-error recovery and the reload escalation.
	ReloadTarget string        `yaml:"reload_target,omitempty"`
	Deadline     time.Duration `yaml:"deadline,omitempty"`
	Steps        []Step        `yaml:"steps"`
}

// Step is one entry of a plan. Which fields apply depends on Kind.
type Step struct {
	Kind StepKind `yaml:"kind"`
	// Name keys the verified-action counters and the choose weights.
	Name string `yaml:"name,omitempty"`

	// navigate
	URL string `yaml:"url,omitempty"`

	// click
	Target []string    `yaml:"target,omitempty"`
	Verify *VerifySpec `yaml:"verify,omitempty"`

	// toggle
	Toggle *escalation.ToggleSelectors `yaml:"toggle,omitempty"`

	// click and toggle
	Scope   string `yaml:"scope,omitempty"`
	Profile string `yaml:"profile,omitempty"`

	// pause
	Min time.Duration `yaml:"min,omitempty"`
	Max time.Duration `yaml:"max,omitempty"`

	// choose
	Rounds  int      `yaml:"rounds,omitempty"`
	Options []Option `yaml:"options,omitempty"`
}

// Option is a weighted alternative of a choose step. The nested step's Name is the
// key passed through the monitor's selection weights.
type Option struct {
	Weight float64 `yaml:"weight"`
	Step   Step    `yaml:"step"`
}

// VerifySpec lists the effect signals of a click.
type VerifySpec struct {
	Visible []string    `yaml:"visible,omitempty"`
	Gone    []string    `yaml:"gone,omitempty"`
	Text    []TextCheck `yaml:"text,omitempty"`
}

// TextCheck expects Contains in the text or attribute of Selector.
type TextCheck struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute,omitempty"`
	Contains  string `yaml:"contains"`
}

// Signals converts the checks into verification signals.
func (v *VerifySpec) Signals() []escalation.Signal {
	if v == nil {
		return nil
	}
	var out []escalation.Signal
	for _, s := range v.Visible {
		out = append(out, escalation.VisibleSignal{Selector: s})
	}
	for _, s := range v.Gone {
		out = append(out, escalation.GoneSignal{Selector: s})
	}
	for _, t := range v.Text {
		out = append(out, escalation.TextSignal{Selector: t.Selector, Attribute: t.Attribute, Contains: t.Contains})
	}
	return out
}

// label is the counter key of a step.
func (s Step) label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

func (s Step) scope() escalation.Scope {
	if s.Scope == "sub_action" {
		return escalation.ScopeSubAction
	}
	return escalation.ScopeSession
}

// ParsePlan decodes and validates a YAML plan. Unknown fields are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPlan reads a plan file. A leading ~ is expanded to the home directory.
func LoadPlan(path string) (*Plan, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("session: expanding plan path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("session: reading plan: %w", err)
	}
	return ParsePlan(data)
}

// Validate reports every malformed step at once.
func (p *Plan) Validate() error {
	var errs []error
	if len(p.Steps) == 0 {
		errs = append(errs, errors.New("plan has no steps"))
	}
	if p.Deadline < 0 {
		errs = append(errs, errors.New("deadline must not be negative"))
	}
	for i, s := range p.Steps {
		if err := s.validate(true); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i, s.Kind, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, errors.Join(errs...))
}

func (s Step) validate(allowChoose bool) error {
	switch s.Scope {
	case "", "session", "sub_action":
	default:
		return fmt.Errorf("unknown scope %q", s.Scope)
	}

	switch s.Kind {
	case StepClick:
		if len(s.Target) == 0 {
			return errors.New("click needs at least one target selector")
		}
	case StepToggle:
		if s.Toggle == nil || len(s.Toggle.Target) == 0 {
			return errors.New("toggle needs target selectors")
		}
		if len(s.Toggle.Done) == 0 && len(s.Toggle.DoneText) == 0 {
			return errors.New("toggle needs a done selector or done text")
		}
	case StepPause:
		if s.Min < 0 || s.Max < s.Min || s.Max == 0 {
			return fmt.Errorf("pause range [%s, %s] is invalid", s.Min, s.Max)
		}
	case StepNavigate:
		if s.URL == "" {
			return errors.New("navigate needs a url")
		}
	case StepChoose:
		if !allowChoose {
			return errors.New("choose steps cannot be nested")
		}
		if len(s.Options) == 0 {
			return errors.New("choose needs options")
		}
		if s.Rounds < 0 {
			return errors.New("rounds must not be negative")
		}
		seen := make(map[string]bool, len(s.Options))
		for j, o := range s.Options {
			if o.Weight < 0 {
				return fmt.Errorf("option %d has a negative weight", j)
			}
			name := o.Step.label()
			if seen[name] {
				return fmt.Errorf("option name %q is used twice", name)
			}
			seen[name] = true
			if err := o.Step.validate(false); err != nil {
				return fmt.Errorf("option %d: %w", j, err)
			}
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}
