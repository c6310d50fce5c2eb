package behaviour

import (
	"roundabci/cas"
)

// Step is the next suspension point of a behaviour.
type Step interface {
	step()
}

// CallActivity runs a named activity. Outcome.Result holds its response.
type CallActivity struct {
	Name    string
	Request interface{}
}

// PutObject stores Object in the content-addressed store.
// Outcome.Result holds the cas.ContentHash.
type PutObject struct {
	Object interface{}
}

// GetObject loads the object addressed by Hash. Outcome.Result holds the
// decoded object.
type GetObject struct {
	Hash cas.ContentHash
}

// SubmitPayload broadcasts Value as this agent's payload and waits for the
// round to resolve.
type SubmitPayload struct {
	Value interface{}
}

// Done ends the behaviour.
type Done struct{}

func (CallActivity) step()  {}
func (PutObject) step()     {}
func (GetObject) step()     {}
func (SubmitPayload) step() {}
func (Done) step()          {}
