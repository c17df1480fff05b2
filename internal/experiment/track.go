package experiment

import (
	"context"
	"errors"

	"github.com/pagesplit/pagesplit/internal/metrics"
	"github.com/pagesplit/pagesplit/internal/store"
)

// TrackVisit records a visit event for the visitor's existing assignment.
// Visitors without an assignment are ignored; tracking never creates one.
func (s *Service) TrackVisit(ctx context.Context, visitorID, experimentID string) {
	s.track(ctx, visitorID, experimentID, store.EventVisit, 0)
}

// TrackConversion records a conversion event, optionally carrying a numeric
// value (revenue, download count) for later weighting.
func (s *Service) TrackConversion(ctx context.Context, visitorID, experimentID string, value float64) {
	s.track(ctx, visitorID, experimentID, store.EventConversion, value)
}

// track is fire-and-forget: every failure is logged and counted, none is
// surfaced, so a broken tracking path can never block the page action that
// triggered it.
func (s *Service) track(ctx context.Context, visitorID, experimentID string, eventType store.EventType, value float64) {
	if visitorID == "" {
		metrics.EventsDropped.WithLabelValues("no_visitor").Inc()
		return
	}

	exp, err := s.store.GetExperimentByID(ctx, experimentID)
	if err != nil {
		s.logger.Printf("track %s: experiment %s: %v", eventType, experimentID, err)
		metrics.EventsDropped.WithLabelValues("unknown_experiment").Inc()
		return
	}

	// Completed experiments are frozen; their event log is read-only.
	if exp.Status == store.StatusCompleted {
		metrics.EventsDropped.WithLabelValues("frozen").Inc()
		return
	}

	a, err := s.store.GetAssignment(ctx, visitorID, experimentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("track %s: assignment lookup for %s/%s: %v", eventType, visitorID, exp.Name, err)
		}
		metrics.EventsDropped.WithLabelValues("unassigned").Inc()
		return
	}

	err = s.store.RecordEvent(ctx, &store.Event{
		ExperimentID: experimentID,
		VariantID:    a.VariantID,
		VisitorID:    visitorID,
		EventType:    eventType,
		Value:        value,
	})
	if err != nil {
		s.logger.Printf("track %s: record for %s/%s: %v", eventType, visitorID, exp.Name, err)
		metrics.EventsDropped.WithLabelValues("storage").Inc()
		return
	}

	metrics.EventsRecorded.WithLabelValues(exp.Name, string(eventType)).Inc()
}
