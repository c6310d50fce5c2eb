package types

// RoundID is the monotonic height of a round inside a run.
// Every entered round, including re-entries of the same kind, gets the next id.
type RoundID int64

const (
	RoundIDZero = RoundID(0)
)

func (id RoundID) Next() RoundID {
	return id + 1
}

func (id RoundID) Int64() int64 {
	return int64(id)
}

// RoundKind names a state of the round state machine.
type RoundKind string

func (k RoundKind) String() string {
	return string(k)
}
