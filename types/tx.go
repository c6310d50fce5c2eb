package types

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

type TxType string

const (
	TxTypePayload = TxType("payload")
	TxTypeTimeout = TxType("timeout")
	TxTypeError   = TxType("error")
)

// Tx is an entry of the totally ordered log shared by all agents.
// Every tx targets the round with the given height; replicas discard txs
// for rounds they are not in.
type Tx interface {
	Type() TxType
	Round() RoundID
	ValidateBasic() error
	Hash() tmbytes.HexBytes
}

// PayloadTx carries one agent's payload for a round.
type PayloadTx struct {
	RoundID RoundID `json:"round_id"`
	Payload Payload `json:"payload"`
}

func (tx *PayloadTx) Type() TxType   { return TxTypePayload }
func (tx *PayloadTx) Round() RoundID { return tx.RoundID }
func (tx *PayloadTx) Hash() tmbytes.HexBytes {
	return txHash(tx.Type(), tx)
}

func (tx *PayloadTx) ValidateBasic() error {
	if err := validateRoundID(tx.RoundID); err != nil {
		return err
	}
	return tx.Payload.ValidateBasic()
}

func (tx *PayloadTx) String() string {
	return fmt.Sprintf("PayloadTx{#%d %v}", tx.RoundID, tx.Payload)
}

// TimeoutTx signals that the deadline of a round elapsed.
// The first one ordered for the current round wins on every replica.
type TimeoutTx struct {
	RoundID RoundID `json:"round_id"`
	Event   Event   `json:"event"`
}

func (tx *TimeoutTx) Type() TxType   { return TxTypeTimeout }
func (tx *TimeoutTx) Round() RoundID { return tx.RoundID }
func (tx *TimeoutTx) Hash() tmbytes.HexBytes {
	return txHash(tx.Type(), tx)
}

func (tx *TimeoutTx) ValidateBasic() error {
	if err := validateRoundID(tx.RoundID); err != nil {
		return err
	}
	if tx.Event.IsEmpty() {
		return errors.New("timeout tx without event")
	}
	return nil
}

func (tx *TimeoutTx) String() string {
	return fmt.Sprintf("TimeoutTx{#%d %v}", tx.RoundID, tx.Event)
}

// ErrorTx reports that the behaviour of Sender failed in a round.
type ErrorTx struct {
	RoundID RoundID `json:"round_id"`
	Sender  AgentID `json:"sender"`
	Reason  string  `json:"reason"`
}

func (tx *ErrorTx) Type() TxType   { return TxTypeError }
func (tx *ErrorTx) Round() RoundID { return tx.RoundID }
func (tx *ErrorTx) Hash() tmbytes.HexBytes {
	return txHash(tx.Type(), tx)
}

func (tx *ErrorTx) ValidateBasic() error {
	if err := validateRoundID(tx.RoundID); err != nil {
		return err
	}
	return tx.Sender.ValidateBasic()
}

// validateRoundID rejects heights before the first round.
func validateRoundID(id RoundID) error {
	if id <= RoundIDZero {
		return fmt.Errorf("invalid round id %d, rounds start at %d", id, RoundIDZero.Next())
	}
	return nil
}

func (tx *ErrorTx) String() string {
	return fmt.Sprintf("ErrorTx{#%d %v %q}", tx.RoundID, tx.Sender, tx.Reason)
}

func txHash(t TxType, tx interface{}) tmbytes.HexBytes {
	bz, err := CanonicalJSON(tx)
	if err != nil {
		// ValidateBasic rejects unserializable payloads before hashing
		panic(err)
	}
	return tmhash.Sum(append([]byte(t), bz...))
}

// ComputeSize returns the size of the canonical encoding of tx.
func ComputeSize(tx Tx) int64 {
	bz, err := CanonicalJSON(tx)
	if err != nil {
		return 0
	}
	return int64(len(bz))
}
