package types

// Event is the outcome label produced when a round concludes.
// Apps may declare domain events besides the ones below.
type Event string

const (
	EventDone         = Event("done")
	EventNoMajority   = Event("no_majority")
	EventRoundTimeout = Event("round_timeout")
	EventError        = Event("error")
	EventTransact     = Event("transact")
)

func (e Event) String() string {
	return string(e)
}

func (e Event) IsEmpty() bool {
	return e == ""
}
