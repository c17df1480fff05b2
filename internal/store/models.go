package store

import "time"

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

type ExperimentType string

const (
	TypeButtonText      ExperimentType = "button-text"
	TypeButtonColor     ExperimentType = "button-color"
	TypeHeadlineText    ExperimentType = "headline-text"
	TypeHeadlineSize    ExperimentType = "headline-size"
	TypeOfferText       ExperimentType = "offer-text"
	TypeFormPlaceholder ExperimentType = "form-placeholder"
	TypePageLayout      ExperimentType = "page-layout"
	TypeSocialProof     ExperimentType = "social-proof"
)

type EventType string

const (
	EventVisit      EventType = "visit"
	EventConversion EventType = "conversion"
)

type Experiment struct {
	ID             string
	Name           string
	Description    string
	Type           ExperimentType
	Status         ExperimentStatus
	TrafficSplit   float64 // share of visitors enrolled, 0-100
	TargetElement  string
	TargetSelector string
	GoalType       string
	GoalValue      float64
	Significance   float64 // winner threshold, 0-1
	Variants       []*Variant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Variant struct {
	ID           string
	ExperimentID string
	Name         string
	Description  string
	Content      string // replacement text or attribute value
	CSSClass     string
	Weight       float64 // share of 100; 0 means unspecified (equal split)
	IsControl    bool
	IsWinner     bool
	Position     int
}

// Control returns the control variant, falling back to the first variant
// when none is flagged.
func (e *Experiment) Control() *Variant {
	for _, v := range e.Variants {
		if v.IsControl {
			return v
		}
	}
	if len(e.Variants) > 0 {
		return e.Variants[0]
	}
	return nil
}

// Winner returns the winning variant, if one has been flagged.
func (e *Experiment) Winner() *Variant {
	for _, v := range e.Variants {
		if v.IsWinner {
			return v
		}
	}
	return nil
}

type Assignment struct {
	VisitorID    string
	ExperimentID string
	VariantID    string
	AssignedAt   time.Time
}

type Event struct {
	ID           int64
	ExperimentID string
	VariantID    string
	VisitorID    string
	EventType    EventType
	Value        float64
	CreatedAt    time.Time
}

// VariantCounts holds distinct-visitor counters for one variant, as
// aggregated from the raw event log.
type VariantCounts struct {
	VariantID   string
	Visitors    int
	Conversions int
}
