package types

import (
	"roundabci/types"
)

// Collection keeps at most one payload per agent for a round.
// A later payload from the same agent replaces the earlier one but keeps its
// first insertion position. Every accepted submission is also appended to the
// audit trail, including the ones arriving after the round froze.
type Collection struct {
	order    []types.AgentID
	payloads map[types.AgentID]types.Payload

	audit []AuditEntry
}

// AuditEntry records one accepted submission.
type AuditEntry struct {
	Payload types.Payload `json:"payload"`
	Frozen  bool          `json:"frozen"` // arrived after the round was resolved
}

func NewCollection() *Collection {
	return &Collection{
		order:    []types.AgentID{},
		payloads: make(map[types.AgentID]types.Payload),
		audit:    []AuditEntry{},
	}
}

// Upsert stores payload and reports whether it replaced an earlier one.
func (c *Collection) Upsert(payload types.Payload) (replaced bool) {
	if _, replaced = c.payloads[payload.Sender]; !replaced {
		c.order = append(c.order, payload.Sender)
	}
	c.payloads[payload.Sender] = payload
	c.audit = append(c.audit, AuditEntry{Payload: payload})
	return replaced
}

// Record appends payload to the audit trail only.
func (c *Collection) Record(payload types.Payload) {
	c.audit = append(c.audit, AuditEntry{Payload: payload, Frozen: true})
}

func (c *Collection) Get(sender types.AgentID) (types.Payload, bool) {
	p, ok := c.payloads[sender]
	return p, ok
}

func (c *Collection) Has(sender types.AgentID) bool {
	_, ok := c.payloads[sender]
	return ok
}

func (c *Collection) Size() int {
	return len(c.order)
}

// Payloads returns the payloads in first insertion order.
func (c *Collection) Payloads() []types.Payload {
	res := make([]types.Payload, 0, len(c.order))
	for _, sender := range c.order {
		res = append(res, c.payloads[sender])
	}
	return res
}

// Values returns the sender -> value map of the current snapshot.
func (c *Collection) Values() map[types.AgentID]interface{} {
	res := make(map[types.AgentID]interface{}, len(c.payloads))
	for sender, p := range c.payloads {
		res[sender] = p.Value
	}
	return res
}

func (c *Collection) Audit() []AuditEntry {
	res := make([]AuditEntry, len(c.audit))
	copy(res, c.audit)
	return res
}
