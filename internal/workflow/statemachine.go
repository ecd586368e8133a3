// Package workflow holds the transition rules shared by every request kind.
package workflow

import (
	"slices"
	"sync"

	"github.com/dimitrije/cohort-api/internal/models"
)

// Table is a set of allowed state transitions. It is safe for concurrent use.
type Table[T comparable] struct {
	mu          sync.RWMutex
	transitions map[T][]T
}

func NewTable[T comparable]() *Table[T] {
	return &Table[T]{transitions: make(map[T][]T)}
}

// Allow registers from -> to for every target.
func (t *Table[T]) Allow(from T, to ...T) *Table[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(t.transitions[from], target) {
			t.transitions[from] = append(t.transitions[from], target)
		}
	}
	return t
}

func (t *Table[T]) CanTransition(from, to T) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.transitions[from], to)
}

// Requests is the lifecycle every request kind follows: pending is the only
// non-terminal state.
var Requests = NewTable[models.RequestStatus]().
	Allow(models.RequestPending,
		models.RequestAccepted,
		models.RequestDeclined,
		models.RequestCancelled,
		models.RequestExpired,
	)
