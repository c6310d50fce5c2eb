package types

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// canonical encodes values with sorted map keys, so equal values always
// produce equal bytes regardless of map iteration order.
var canonical = jsoniter.ConfigCompatibleWithStandardLibrary

// CanonicalJSON returns the canonical encoding of v.
func CanonicalJSON(v interface{}) ([]byte, error) {
	return canonical.Marshal(v)
}

// DecodeJSON decodes a canonical encoding into ptr.
func DecodeJSON(bz []byte, ptr interface{}) error {
	return canonical.Unmarshal(bz, ptr)
}

// Payload - the value one agent proposes for the round it participates in.
// A Payload is never mutated after creation.
type Payload struct {
	Sender AgentID     `json:"sender"`
	Value  interface{} `json:"value"`
}

func NewPayload(sender AgentID, value interface{}) Payload {
	return Payload{Sender: sender, Value: value}
}

// Key returns the canonical encoding of the value, used to group equal values.
func (p Payload) Key() (string, error) {
	bz, err := CanonicalJSON(p.Value)
	if err != nil {
		return "", fmt.Errorf("payload from %v is not serializable: %w", p.Sender, err)
	}
	return string(bz), nil
}

func (p Payload) ValidateBasic() error {
	if err := p.Sender.ValidateBasic(); err != nil {
		return err
	}
	_, err := p.Key()
	return err
}

func (p Payload) String() string {
	return fmt.Sprintf("Payload{%v %v}", p.Sender, p.Value)
}
