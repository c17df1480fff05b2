package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/pagesplit/pagesplit/internal/store"
)

var ErrInvalidDefinition = errors.New("invalid experiment definition")

// Definition is an administrator-supplied experiment, pre-validation.
type Definition struct {
	Name           string
	Description    string
	Type           store.ExperimentType
	TrafficSplit   float64
	TargetElement  string
	TargetSelector string
	GoalType       string
	GoalValue      float64
	Significance   float64
	Variants       []VariantDefinition
}

type VariantDefinition struct {
	Name        string
	Description string
	Content     string
	CSSClass    string
	Weight      float64
	IsControl   bool
}

// CreateExperiment validates a definition and persists it in draft status.
// Malformed definitions are rejected outright, never silently coerced.
func (s *Service) CreateExperiment(ctx context.Context, def Definition) (*store.Experiment, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	exp := &store.Experiment{
		ID:             uuid.NewString(),
		Name:           def.Name,
		Description:    def.Description,
		Type:           def.Type,
		Status:         store.StatusDraft,
		TrafficSplit:   def.TrafficSplit,
		TargetElement:  def.TargetElement,
		TargetSelector: def.TargetSelector,
		GoalType:       def.GoalType,
		GoalValue:      def.GoalValue,
		Significance:   def.Significance,
	}
	if exp.Significance == 0 {
		exp.Significance = 0.95
	}

	hasControl := false
	for _, vd := range def.Variants {
		hasControl = hasControl || vd.IsControl
		exp.Variants = append(exp.Variants, &store.Variant{
			ID:          uuid.NewString(),
			Name:        vd.Name,
			Description: vd.Description,
			Content:     vd.Content,
			CSSClass:    vd.CSSClass,
			Weight:      vd.Weight,
			IsControl:   vd.IsControl,
		})
	}
	if !hasControl && len(exp.Variants) > 0 {
		exp.Variants[0].IsControl = true
	}

	if err := s.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// AddVariant appends a variant to a draft experiment. Running, paused, and
// completed experiments have a fixed variant list.
func (s *Service) AddVariant(ctx context.Context, experimentID string, vd VariantDefinition) (*store.Variant, error) {
	exp, err := s.store.GetExperimentByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusDraft {
		return nil, fmt.Errorf("%w: variants can only be added in draft (status is %s)", ErrInvalidDefinition, exp.Status)
	}
	if vd.Name == "" {
		return nil, fmt.Errorf("%w: variant name is required", ErrInvalidDefinition)
	}
	if vd.Weight < 0 || vd.Weight > 100 {
		return nil, fmt.Errorf("%w: variant weight must be within [0,100]", ErrInvalidDefinition)
	}
	if vd.IsControl && exp.Control() != nil && exp.Control().IsControl {
		return nil, fmt.Errorf("%w: experiment already has a control variant", ErrInvalidDefinition)
	}

	v := &store.Variant{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		Name:         vd.Name,
		Description:  vd.Description,
		Content:      vd.Content,
		CSSClass:     vd.CSSClass,
		Weight:       vd.Weight,
		IsControl:    vd.IsControl,
	}
	if err := s.store.AddVariant(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if !KnownType(def.Type) {
		return fmt.Errorf("%w: unknown experiment type %q", ErrInvalidDefinition, def.Type)
	}
	if def.TrafficSplit < 0 || def.TrafficSplit > 100 {
		return fmt.Errorf("%w: traffic split must be within [0,100]", ErrInvalidDefinition)
	}
	if def.Significance < 0 || def.Significance >= 1 {
		return fmt.Errorf("%w: significance threshold must be within [0,1)", ErrInvalidDefinition)
	}

	controls := 0
	weightSum := 0.0
	weighted := false
	for _, vd := range def.Variants {
		if vd.Name == "" {
			return fmt.Errorf("%w: variant name is required", ErrInvalidDefinition)
		}
		if vd.Weight < 0 || vd.Weight > 100 {
			return fmt.Errorf("%w: variant weight must be within [0,100]", ErrInvalidDefinition)
		}
		if vd.Weight > 0 {
			weighted = true
		}
		weightSum += vd.Weight
		if vd.IsControl {
			controls++
		}
	}
	if controls > 1 {
		return fmt.Errorf("%w: at most one control variant", ErrInvalidDefinition)
	}
	if weighted && math.Abs(weightSum-100) > 0.01 {
		return fmt.Errorf("%w: variant weights must sum to 100, got %.2f", ErrInvalidDefinition, weightSum)
	}
	return nil
}
