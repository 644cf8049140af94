package types

import (
	"time"

	"github.com/google/uuid"
)

// StatusChange is one append-only audit entry recorded on every state
// transition of an exchange or order.
type StatusChange struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorLabID uuid.UUID `json:"actor_lab_id"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// StatusHistory is stored as a jsonb column; entries are only ever appended.
type StatusHistory []StatusChange

// Append returns the history with a new entry added. The receiver is not
// mutated so callers can keep the pre-transition slice for comparison.
func (h StatusHistory) Append(change StatusChange) StatusHistory {
	out := make(StatusHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, change)
}

// CounterProposal captures the owner's counter terms on an exchange request.
type CounterProposal struct {
	Description           string `json:"description"`
	Qty                   int    `json:"qty"`
	EstimatedValueHalalas int64  `json:"estimated_value_halalas,omitempty"`
	Message               string `json:"message,omitempty"`
}
