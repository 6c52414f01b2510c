package graph

import (
	"errors"
	"fmt"
	"time"
)

// Budget bounds the work of one saturation.
//
// Saturation is cubic in the worst case. The budget turns a runaway
// saturation into a warning and a partially closed graph instead of a hang:
//   - Rounds: the number of outer fixpoint rounds
//   - Timeout: wall time since the budget was started
//
// A zero limit disables that check.
type Budget struct {
	maxRounds int
	timeout   time.Duration
	started   time.Time
	rounds    int
	now       func() time.Time
}

// NewBudget creates a budget with the given limits.
func NewBudget(maxRounds int, timeout time.Duration) *Budget {
	return &Budget{
		maxRounds: maxRounds,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Start records the start time. Check calls it lazily.
func (b *Budget) Start() {
	b.started = b.now()
	b.rounds = 0
}

// Check counts one round and validates both limits.
//
// Returns BudgetExceededError once a limit is passed.
func (b *Budget) Check(graph string) error {
	if b.started.IsZero() {
		b.Start()
	}
	b.rounds++
	if b.maxRounds > 0 && b.rounds > b.maxRounds {
		return &BudgetExceededError{Graph: graph, Rounds: b.rounds, MaxRounds: b.maxRounds}
	}
	if b.timeout > 0 {
		if elapsed := b.now().Sub(b.started); elapsed > b.timeout {
			return &BudgetExceededError{Graph: graph, Rounds: b.rounds, Elapsed: elapsed, Timeout: b.timeout}
		}
	}
	return nil
}

// Rounds returns the number of rounds counted so far.
// Used for logging and diagnostics.
func (b *Budget) Rounds() int {
	return b.rounds
}

// Elapsed returns the wall time since Start.
func (b *Budget) Elapsed() time.Duration {
	if b.started.IsZero() {
		return 0
	}
	return b.now().Sub(b.started)
}

// BudgetExceededError is returned when a saturation exceeds its budget.
type BudgetExceededError struct {
	Graph     string
	Rounds    int
	MaxRounds int
	Elapsed   time.Duration
	Timeout   time.Duration
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("graph %s exceeded saturation timeout: %s > %s after %d rounds",
			e.Graph, e.Elapsed, e.Timeout, e.Rounds)
	}
	return fmt.Sprintf("graph %s exceeded saturation rounds: %d rounds > %d limit",
		e.Graph, e.Rounds, e.MaxRounds)
}

// IsBudgetExceededError returns true if err wraps a BudgetExceededError.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
