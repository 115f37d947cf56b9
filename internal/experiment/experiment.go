package experiment

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an experiment. The engine only reads it;
// transitions are managed elsewhere.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Variant is one treatment arm of an experiment. Allocation is a 0..100
// weight; Config is an opaque feature-flag payload interpreted by callers.
type Variant struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Allocation int                    `json:"allocation"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

// TargetAudience restricts which subjects are eligible for an experiment.
// Percentage is the rollout fraction of otherwise-eligible subjects
// (default 100). Rule is an optional CEL expression evaluated against the
// request context; see rule.go.
type TargetAudience struct {
	UserTypes  []string `json:"userTypes,omitempty"`
	Locations  []string `json:"locations,omitempty"`
	Percentage int      `json:"percentage,omitempty"`
	Rule       string   `json:"rule,omitempty"`

	rule *audienceRule
}

// ConversionGoal names a trackable outcome for an experiment.
type ConversionGoal struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value,omitempty"`
}

// Experiment is a named, time-bounded test with variants competing for
// traffic. Instances are treated as immutable once loaded into a Catalog.
type Experiment struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          Status           `json:"status"`
	StartAt         *time.Time       `json:"startDate,omitempty"`
	EndAt           *time.Time       `json:"endDate,omitempty"`
	Variants        []Variant        `json:"variants"`
	TargetAudience  *TargetAudience  `json:"targetAudience,omitempty"`
	ConversionGoals []ConversionGoal `json:"conversionGoals,omitempty"`
}

// ActiveAt reports whether the experiment is active at the given instant.
// Open date bounds are treated as unbounded; the window is inclusive.
func (e *Experiment) ActiveAt(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.StartAt != nil && now.Before(*e.StartAt) {
		return false
	}
	if e.EndAt != nil && now.After(*e.EndAt) {
		return false
	}
	return true
}

// Variant returns the variant with the given id.
func (e *Experiment) Variant(id string) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

// AllocationSum returns the total of all variant allocations. Values other
// than 100 are tolerated; selection closes any gap by awarding it to the
// last variant.
func (e *Experiment) AllocationSum() int {
	sum := 0
	for i := range e.Variants {
		sum += e.Variants[i].Allocation
	}
	return sum
}

// clone copies the experiment so normalization never mutates caller-owned
// definitions, which may still be visible to concurrent readers. Variant
// config maps are shared; they are treated as immutable once loaded.
func (e *Experiment) clone() *Experiment {
	ce := *e
	ce.Variants = append([]Variant(nil), e.Variants...)
	ce.ConversionGoals = append([]ConversionGoal(nil), e.ConversionGoals...)
	if e.TargetAudience != nil {
		ta := *e.TargetAudience
		ta.UserTypes = append([]string(nil), e.TargetAudience.UserTypes...)
		ta.Locations = append([]string(nil), e.TargetAudience.Locations...)
		ta.rule = nil
		ce.TargetAudience = &ta
	}
	return &ce
}

// normalize fills defaults and compiles the audience rule. Called by the
// Catalog before an experiment becomes visible to readers.
func (e *Experiment) normalize() error {
	if ta := e.TargetAudience; ta != nil {
		// Percentage <= 0 is treated as unset. A literal 0% rollout is
		// expressed by pausing the experiment instead.
		if ta.Percentage <= 0 || ta.Percentage > 100 {
			ta.Percentage = 100
		}
		r, err := compileAudienceRule(ta.Rule)
		if err != nil {
			return fmt.Errorf("experiment %q: %w", e.ID, err)
		}
		ta.rule = r
	}
	return nil
}

// validate checks structural requirements. Allocation sums are deliberately
// not checked against 100; see AllocationSum.
func (e *Experiment) validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment: id is required")
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("experiment %q: at least one variant is required", e.ID)
	}
	seen := make(map[string]struct{}, len(e.Variants))
	for i := range e.Variants {
		v := &e.Variants[i]
		if v.ID == "" {
			return fmt.Errorf("experiment %q: variant id is required", e.ID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("experiment %q: duplicate variant %q", e.ID, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Allocation < 0 || v.Allocation > 100 {
			return fmt.Errorf("experiment %q: variant %q allocation out of range: %d", e.ID, v.ID, v.Allocation)
		}
	}
	return nil
}
