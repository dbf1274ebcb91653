// Package script holds the declarative automation document model and a
// directory-backed store for it.
//
// Documents follow the DevTools Recorder layout: a title, a target URL,
// default parameters and an ordered list of typed steps. Each step may carry
// selector candidates, a condition, a loop and a post-step delay.
package script

import (
	"fmt"

	"github.com/titanous/json5"
)

// StepType tags a step.
type StepType string

const (
	StepSetViewport       StepType = "setViewport"
	StepNavigate          StepType = "navigate"
	StepClick             StepType = "click"
	StepDoubleClick       StepType = "doubleClick"
	StepHover             StepType = "hover"
	StepChange            StepType = "change"
	StepKeyDown           StepType = "keyDown"
	StepKeyUp             StepType = "keyUp"
	StepScroll            StepType = "scroll"
	StepWaitForElement    StepType = "waitForElement"
	StepWaitForExpression StepType = "waitForExpression"
	StepWaitAfter         StepType = "waitAfter"
	StepClose             StepType = "close"
	StepLoop              StepType = "loop" // container for a loop, no action of its own
)

// Script is an immutable automation document.
type Script struct {
	ID           string         `json:"id,omitempty"`
	Title        string         `json:"title"`
	TargetURL    string         `json:"targetUrl"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	OutputSchema *OutputSchema  `json:"outputSchema,omitempty"`
	Steps        []Step         `json:"steps"`
}

// OutputSchema describes values read from the page after a successful run.
type OutputSchema struct {
	Description string        `json:"description,omitempty"`
	Fields      []OutputField `json:"fields"`
}

// OutputField names one output. Path is a selector string.
type OutputField struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
}

// Step is one action. Which fields matter depends on Type.
type Step struct {
	Type      StepType  `json:"type"`
	Selectors Selectors `json:"selectors,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Loop      *Loop     `json:"loop,omitempty"`
	WaitAfter int       `json:"waitAfter,omitempty"` // ms

	Value      string `json:"value,omitempty"`
	URL        string `json:"url,omitempty"`
	Key        string `json:"key,omitempty"`
	Button     string `json:"button,omitempty"`
	Expression string `json:"expression,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`  // ms, overrides the selector timeout
	Duration   int    `json:"duration,omitempty"` // ms, waitAfter steps
	Visible    *bool  `json:"visible,omitempty"`

	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor,omitempty"`
	IsMobile          bool    `json:"isMobile,omitempty"`
	HasTouch          bool    `json:"hasTouch,omitempty"`
	IsLandscape       bool    `json:"isLandscape,omitempty"`

	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// Recorder bookkeeping, accepted and ignored.
	Target         string `json:"target,omitempty"`
	AssertedEvents []any  `json:"assertedEvents,omitempty"`
}

// Loop repeats Steps once per item after the owning step's own action.
// Items wins over Source.
type Loop struct {
	Source string `json:"source,omitempty"`
	Items  []any  `json:"items,omitempty"`
	Steps  []Step `json:"steps"`
}

// Selectors is an ordered list of candidate lists. Each candidate list is an
// ordered list of selector strings.
type Selectors [][]string

// UnmarshalJSON accepts a bare string as a one-element candidate list.
func (s *Selectors) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("selectors: %w", err)
	}
	out := make(Selectors, 0, len(raw))
	for i, entry := range raw {
		switch v := entry.(type) {
		case string:
			out = append(out, []string{v})
		case []any:
			list := make([]string, 0, len(v))
			for j, x := range v {
				str, ok := x.(string)
				if !ok {
					return fmt.Errorf("selectors[%d][%d]: want string, got %T", i, j, x)
				}
				list = append(list, str)
			}
			out = append(out, list)
		default:
			return fmt.Errorf("selectors[%d]: want string or list, got %T", i, entry)
		}
	}
	*s = out
	return nil
}

// Validate checks document structure. Step types are not checked here; an
// unknown type fails when the step runs.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.ID)
	}
	if err := validateSteps(s.Steps, "steps"); err != nil {
		return err
	}
	if s.OutputSchema != nil {
		for i, f := range s.OutputSchema.Fields {
			if f.Name == "" || f.Path == "" {
				return fmt.Errorf("outputSchema.fields[%d]: name and path are required", i)
			}
		}
	}
	return nil
}

func validateSteps(steps []Step, at string) error {
	for i, st := range steps {
		if st.Type == "" {
			return fmt.Errorf("%s[%d]: missing type", at, i)
		}
		if st.Loop != nil {
			if len(st.Loop.Steps) == 0 {
				return fmt.Errorf("%s[%d].loop: no steps", at, i)
			}
			if st.Loop.Source == "" && st.Loop.Items == nil {
				return fmt.Errorf("%s[%d].loop: needs source or items", at, i)
			}
			if err := validateSteps(st.Loop.Steps, fmt.Sprintf("%s[%d].loop.steps", at, i)); err != nil {
				return err
			}
		}
	}
	return nil
}
