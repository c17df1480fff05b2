package experiment

import (
	"errors"
	"log"
	"math/rand"

	"github.com/pagesplit/pagesplit/internal/store"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoVariants        = errors.New("experiment has no variants")
	ErrNoTargetSelector  = errors.New("experiment has no target selector")
	ErrUnbalancedWeights = errors.New("variant weights must sum to 100")
)

// Service owns assignment, tracking, and lifecycle logic on top of the
// store. Tracking-path failures are logged and swallowed; administrative
// failures propagate.
type Service struct {
	store  store.Store
	logger *log.Logger

	// draw returns a uniform value in [0,1). Injected by tests.
	draw func() float64
}

func NewService(s store.Store) *Service {
	return &Service{
		store:  s,
		logger: log.New(log.Writer(), "experiment: ", log.LstdFlags),
		draw:   rand.Float64,
	}
}
