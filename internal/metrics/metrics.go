// Package metrics exposes the service's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesplit_assignments_created_total",
		Help: "New visitor-to-variant assignments persisted.",
	}, []string{"experiment"})

	AssignmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesplit_assignment_write_failures_total",
		Help: "Assignment persistence failures tolerated at assignment time.",
	})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesplit_events_recorded_total",
		Help: "Visit and conversion events accepted into the event log.",
	}, []string{"experiment", "type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesplit_events_dropped_total",
		Help: "Tracking calls dropped (no assignment, frozen experiment, or storage failure).",
	}, []string{"reason"})

	BeaconsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesplit_beacons_rejected_total",
		Help: "Malformed beacon requests rejected by the HTTP layer.",
	})
)
