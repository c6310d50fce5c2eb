package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownSender is returned when a submission comes from an agent
	// outside the known set. It is absorbed by the round.
	ErrUnknownSender = errors.New("unknown sender")
	// ErrNoTransition marks an incomplete transition table. Fatal.
	ErrNoTransition = errors.New("no transition")
	// ErrNoMajority is the error form of EventNoMajority.
	ErrNoMajority = errors.New("no majority")
	// ErrRoundTimeout is the error form of EventRoundTimeout.
	ErrRoundTimeout = errors.New("round timeout")
	// ErrDegenerateRound is returned when submitting to a round without collection.
	ErrDegenerateRound = errors.New("degenerate round has no collection")
	// ErrInvalidApp is returned by app validation.
	ErrInvalidApp = errors.New("invalid app")
	// ErrMissingKey is returned by strict reads of the synchronized data.
	ErrMissingKey = errors.New("missing key")
)

// NoTransitionError reports the missing (round, event) pair.
type NoTransitionError struct {
	Round RoundKind
	Event Event
}

func (e NoTransitionError) Error() string {
	return fmt.Sprintf("%v: round %v has no transition for event %v", ErrNoTransition, e.Round, e.Event)
}

func (e NoTransitionError) Unwrap() error { return ErrNoTransition }

// ActivityError wraps the failure of a named external operation.
type ActivityError struct {
	Name string
	Err  error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed: %v", e.Name, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

func (e *ActivityError) Cause() error { return e.Err }

// IsNoTransition reports whether err is (or wraps) ErrNoTransition.
func IsNoTransition(err error) bool {
	return errors.Is(err, ErrNoTransition)
}
