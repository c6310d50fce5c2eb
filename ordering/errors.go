package ordering

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTxInLog is returned to the client if the tx was already ordered
	ErrTxInLog = errors.New("tx already exists in log")
	// ErrSubscriberExists is returned when subscribing twice with the same id
	ErrSubscriberExists = errors.New("subscriber already exists")
)

// ErrTxTooLarge means the tx is too big to be sent in a message to other peers
type ErrTxTooLarge struct {
	Max    int64
	Actual int64
}

func (e ErrTxTooLarge) Error() string {
	return fmt.Sprintf("tx too large. Max size is %d, but got %d", e.Max, e.Actual)
}

// ErrPreCheck is returned when tx does not pass the pre-check.
type ErrPreCheck struct {
	Reason error
}

func (e ErrPreCheck) Error() string {
	return e.Reason.Error()
}

func (e ErrPreCheck) Unwrap() error { return e.Reason }

// IsPreCheckError returns true if err is due to pre check failure.
func IsPreCheckError(err error) bool {
	var e ErrPreCheck
	return errors.As(err, &e)
}
