package store

import "context"

// Store defines the persistence boundary for the experiment subsystem.
type Store interface {
	// Experiment catalog
	CreateExperiment(ctx context.Context, exp *Experiment) error
	AddVariant(ctx context.Context, v *Variant) error
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	GetExperimentByID(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context, status ExperimentStatus) ([]*Experiment, error)
	UpdateStatus(ctx context.Context, id string, status ExperimentStatus) error
	// CompleteExperiment flips the status to completed and flags the
	// winning variant (when winnerVariantID is non-empty) atomically, so a
	// failure leaves neither half applied.
	CompleteExperiment(ctx context.Context, experimentID, winnerVariantID string) error
	DeleteExperiment(ctx context.Context, id string) error

	// Assignment store: PutAssignment is first-write-wins and returns the
	// variant id that ended up persisted, which may differ from the one
	// offered when a concurrent writer got there first.
	GetAssignment(ctx context.Context, visitorID, experimentID string) (*Assignment, error)
	PutAssignment(ctx context.Context, visitorID, experimentID, variantID string) (string, error)

	// Event log
	RecordEvent(ctx context.Context, e *Event) error
	GetVariantCounts(ctx context.Context, experimentID string) ([]VariantCounts, error)
	GetEvents(ctx context.Context, experimentID string) ([]*Event, error)

	Close() error
}
