package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/metrics"
	"github.com/pagesplit/pagesplit/internal/store"
	"github.com/pagesplit/pagesplit/internal/visitor"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.store.ListExperiments(r.Context(), "")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		if info, statErr := os.Stat(s.cfg.DBPath); statErr == nil {
			dbSize = info.Size()
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// BeaconRequest is an incoming tracking event. The visitor id travels in
// the payload so cross-origin pages work without third-party cookies.
type BeaconRequest struct {
	ExperimentID string  `json:"experiment_id"`
	EventType    string  `json:"event_type"`
	VisitorID    string  `json:"vid"`
	Value        float64 `json:"value,omitempty"`
}

// handleBeacon accepts visit/conversion events. Well-formed beacons always
// get 204: whether the event was actually recorded (assignment present,
// experiment not frozen) is the tracking service's concern and is never
// surfaced to the page.
func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	s.corsHeaders(w, "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.BeaconsRejected.Inc()
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.VisitorID == "" {
		req.VisitorID = visitor.FromRequest(r)
	}

	if req.ExperimentID == "" || req.VisitorID == "" {
		metrics.BeaconsRejected.Inc()
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	switch store.EventType(req.EventType) {
	case store.EventVisit:
		s.svc.TrackVisit(r.Context(), req.VisitorID, req.ExperimentID)
	case store.EventConversion:
		s.svc.TrackConversion(r.Context(), req.VisitorID, req.ExperimentID, req.Value)
	default:
		metrics.BeaconsRejected.Inc()
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type AssignRequest struct {
	ExperimentID string `json:"experiment_id"`
	VisitorID    string `json:"vid,omitempty"`
}

type AssignResponse struct {
	ExperimentID   string          `json:"experiment_id"`
	VisitorID      string          `json:"vid"`
	Mutation       string          `json:"mutation"`
	TargetSelector string          `json:"target_selector"`
	Variant        VariantResponse `json:"variant"`
}

// handleAssign resolves (or creates) the visitor's assignment for one
// experiment. The assignment store is authoritative; the client caches the
// response only as a read-through cache.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	s.corsHeaders(w, "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" {
		http.Error(w, "Missing experiment_id", http.StatusBadRequest)
		return
	}

	visitorID := req.VisitorID
	if visitorID == "" {
		visitorID = visitor.Ensure(w, r)
	}

	exp, err := s.store.GetExperimentByID(r.Context(), req.ExperimentID)
	if err != nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	v, err := s.svc.AssignOrGet(r.Context(), visitorID, req.ExperimentID)
	if err != nil {
		http.Error(w, "Assignment failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AssignResponse{
		ExperimentID:   exp.ID,
		VisitorID:      visitorID,
		Mutation:       string(experiment.MutationFor(exp.Type)),
		TargetSelector: exp.TargetSelector,
		Variant:        variantResponse(v),
	})
}

type ExperimentResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	Mutation       string            `json:"mutation"`
	TrafficSplit   float64           `json:"traffic_split"`
	TargetElement  string            `json:"target_element,omitempty"`
	TargetSelector string            `json:"target_selector,omitempty"`
	GoalType       string            `json:"goal_type,omitempty"`
	Significance   float64           `json:"significance"`
	Variants       []VariantResponse `json:"variants"`
}

type VariantResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Content   string  `json:"content,omitempty"`
	CSSClass  string  `json:"css_class,omitempty"`
	Weight    float64 `json:"weight,omitempty"`
	IsControl bool    `json:"is_control"`
	IsWinner  bool    `json:"is_winner,omitempty"`
}

// handleExperiments serves the public running-experiment list (GET) and
// the token-protected administrative create (POST).
func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		s.corsHeaders(w, "GET, POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.corsHeaders(w, "GET, POST, OPTIONS")
		s.listExperiments(w, r)
	case http.MethodPost:
		if !s.requireToken(w, r) {
			return
		}
		s.createExperiment(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	status := store.ExperimentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = store.StatusRunning
	}

	// Only the running list is public; unlaunched definitions and archived
	// results stay behind the token.
	if status != store.StatusRunning && !s.requireToken(w, r) {
		return
	}

	experiments, err := s.store.ListExperiments(r.Context(), status)
	if err != nil {
		http.Error(w, "Failed to fetch experiments", http.StatusInternalServerError)
		return
	}

	// Return empty array instead of null
	response := make([]ExperimentResponse, 0, len(experiments))
	for _, exp := range experiments {
		response = append(response, experimentResponse(exp))
	}
	writeJSON(w, http.StatusOK, response)
}

func experimentResponse(exp *store.Experiment) ExperimentResponse {
	resp := ExperimentResponse{
		ID:             exp.ID,
		Name:           exp.Name,
		Description:    exp.Description,
		Type:           string(exp.Type),
		Status:         string(exp.Status),
		Mutation:       string(experiment.MutationFor(exp.Type)),
		TrafficSplit:   exp.TrafficSplit,
		TargetElement:  exp.TargetElement,
		TargetSelector: exp.TargetSelector,
		GoalType:       exp.GoalType,
		Significance:   exp.Significance,
		Variants:       make([]VariantResponse, 0, len(exp.Variants)),
	}
	for _, v := range exp.Variants {
		resp.Variants = append(resp.Variants, variantResponse(v))
	}
	return resp
}

func variantResponse(v *store.Variant) VariantResponse {
	return VariantResponse{
		ID:        v.ID,
		Name:      v.Name,
		Content:   v.Content,
		CSSClass:  v.CSSClass,
		Weight:    v.Weight,
		IsControl: v.IsControl,
		IsWinner:  v.IsWinner,
	}
}

func (s *Server) corsHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
