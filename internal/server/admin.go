package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

type CreateExperimentRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Type           string                 `json:"type"`
	TrafficSplit   float64                `json:"traffic_split"`
	TargetElement  string                 `json:"target_element"`
	TargetSelector string                 `json:"target_selector"`
	GoalType       string                 `json:"goal_type"`
	GoalValue      float64                `json:"goal_value"`
	Significance   float64                `json:"significance"`
	Variants       []CreateVariantRequest `json:"variants"`
}

type CreateVariantRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	CSSClass    string  `json:"css_class"`
	Weight      float64 `json:"weight"`
	IsControl   bool    `json:"is_control"`
}

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req CreateExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	def := experiment.Definition{
		Name:           req.Name,
		Description:    req.Description,
		Type:           store.ExperimentType(req.Type),
		TrafficSplit:   req.TrafficSplit,
		TargetElement:  req.TargetElement,
		TargetSelector: req.TargetSelector,
		GoalType:       req.GoalType,
		GoalValue:      req.GoalValue,
		Significance:   req.Significance,
	}
	if def.TrafficSplit == 0 {
		def.TrafficSplit = 100
	}
	if def.Significance == 0 {
		def.Significance = s.cfg.Significance
	}
	for _, v := range req.Variants {
		def.Variants = append(def.Variants, experiment.VariantDefinition{
			Name:        v.Name,
			Description: v.Description,
			Content:     v.Content,
			CSSClass:    v.CSSClass,
			Weight:      v.Weight,
			IsControl:   v.IsControl,
		})
	}

	exp, err := s.svc.CreateExperiment(r.Context(), def)
	if err != nil {
		if errors.Is(err, experiment.ErrInvalidDefinition) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create experiment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, experimentResponse(exp))
}

// handleExperimentSubresource routes /api/experiments/{name},
// /api/experiments/{name}/status, /{name}/stats and /{name}/variants.
// Everything under here is administrative and token-protected.
func (s *Server) handleExperimentSubresource(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	if name == "" {
		http.Error(w, "Experiment name required", http.StatusBadRequest)
		return
	}

	exp, err := s.store.GetExperiment(r.Context(), name)
	if err != nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, experimentResponse(exp))
	case sub == "" && r.Method == http.MethodDelete:
		if err := s.store.DeleteExperiment(r.Context(), exp.ID); err != nil {
			http.Error(w, "Failed to delete experiment", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case sub == "status" && r.Method == http.MethodPatch:
		s.patchStatus(w, r, exp)
	case sub == "stats" && r.Method == http.MethodGet:
		s.getStats(w, r, exp)
	case sub == "variants" && r.Method == http.MethodPost:
		s.addVariant(w, r, exp)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type StatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) patchStatus(w http.ResponseWriter, r *http.Request, exp *store.Experiment) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updated, err := s.svc.Transition(r.Context(), exp.ID, store.ExperimentStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, experiment.ErrInvalidTransition),
			errors.Is(err, experiment.ErrNoVariants),
			errors.Is(err, experiment.ErrNoTargetSelector),
			errors.Is(err, experiment.ErrUnbalancedWeights):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to update status", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, experimentResponse(updated))
}

type StatsResponse struct {
	Experiment       string               `json:"experiment"`
	Status           string               `json:"status"`
	TotalVisitors    int                  `json:"total_visitors"`
	TotalConversions int                  `json:"total_conversions"`
	ConversionRate   float64              `json:"conversion_rate"`
	ConfidenceLevel  float64              `json:"confidence_level"`
	Confident        bool                 `json:"confident"`
	Winner           string               `json:"winner,omitempty"`
	Variants         []VariantStatsEntry  `json:"variants"`
}

type VariantStatsEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	IsControl   bool    `json:"is_control"`
	Visitors    int     `json:"visitors"`
	Conversions int     `json:"conversions"`
	Rate        float64 `json:"conversion_rate"`
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
	Confidence  float64 `json:"confidence"`
	Improvement float64 `json:"improvement"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request, exp *store.Experiment) {
	counts, err := s.store.GetVariantCounts(r.Context(), exp.ID)
	if err != nil {
		http.Error(w, "Failed to aggregate stats", http.StatusInternalServerError)
		return
	}

	result := stats.Analyze(exp, counts)

	resp := StatsResponse{
		Experiment:       exp.Name,
		Status:           string(exp.Status),
		TotalVisitors:    result.TotalVisitors,
		TotalConversions: result.TotalConversions,
		ConversionRate:   result.ConversionRate,
		ConfidenceLevel:  result.ConfidenceLevel,
		Confident:        result.Confident,
	}
	if winner := exp.Winner(); winner != nil {
		resp.Winner = winner.Name
	}
	for _, vr := range result.Variants {
		resp.Variants = append(resp.Variants, VariantStatsEntry{
			ID:          vr.ID,
			Name:        vr.Name,
			IsControl:   vr.IsControl,
			Visitors:    vr.Visitors,
			Conversions: vr.Conversions,
			Rate:        vr.Rate,
			CILower:     vr.CILower,
			CIUpper:     vr.CIUpper,
			Confidence:  vr.Confidence,
			Improvement: vr.Improvement,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addVariant(w http.ResponseWriter, r *http.Request, exp *store.Experiment) {
	var req CreateVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	v, err := s.svc.AddVariant(r.Context(), exp.ID, experiment.VariantDefinition{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		CSSClass:    req.CSSClass,
		Weight:      req.Weight,
		IsControl:   req.IsControl,
	})
	if err != nil {
		if errors.Is(err, experiment.ErrInvalidDefinition) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to add variant", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, variantResponse(v))
}
