// Package status validates execution status transitions against a fixed table.
package status

import (
	"errors"
	"fmt"

	"github.com/dukex/devflow/pkg/models"
	"github.com/qmuntal/stateless"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the complete table of allowed directed transitions.
var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.StatusIdle:         {models.StatusInitializing},
	models.StatusInitializing: {models.StatusRunning},
	models.StatusRunning: {
		models.StatusPaused,
		models.StatusCompleted,
		models.StatusError,
		models.StatusStopping,
	},
	models.StatusPaused:   {models.StatusRunning, models.StatusError},
	models.StatusStopping: {models.StatusStopped},
}

// TransitionError reports a rejected transition.
type TransitionError struct {
	From models.ExecutionStatus
	To   models.ExecutionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition execution from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewMachine builds a state machine positioned at from. Triggers are the target statuses.
func NewMachine(from models.ExecutionStatus) *stateless.StateMachine {
	machine := stateless.NewStateMachine(from)

	for source, targets := range transitions {
		config := machine.Configure(source)
		for _, target := range targets {
			config.Permit(target, target)
		}
	}

	return machine
}

// ValidateTransition reports whether from -> to is listed in the transition table.
func ValidateTransition(from, to models.ExecutionStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}

	allowed, err := NewMachine(from).CanFire(to)
	if err != nil {
		return false
	}

	return allowed
}

// Transition returns a *TransitionError when from -> to is not allowed.
func Transition(from, to models.ExecutionStatus) error {
	if !ValidateTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	return nil
}

// Allowed lists the statuses reachable from the given status.
func Allowed(from models.ExecutionStatus) []models.ExecutionStatus {
	return append([]models.ExecutionStatus(nil), transitions[from]...)
}
