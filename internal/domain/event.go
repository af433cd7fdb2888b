package domain

import (
	"time"
)

// EventKind discriminates vault event payloads in the journal and on streams.
type EventKind string

const (
	EventDeposit     EventKind = "deposit"
	EventWithdraw    EventKind = "withdraw"
	EventPauseChange EventKind = "pause_change"
	EventOracleSet   EventKind = "oracle_update"
)

// VaultEvent is emitted after every successful state-changing operation.
// Numeric fields are strings to avoid precision issues when consumed by
// web/UI layers.
type VaultEvent struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	Kind       EventKind `json:"kind"`
	Asset      string    `json:"asset,omitempty"`
	Depositor  string    `json:"depositor,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	NewBalance string    `json:"new_balance,omitempty"`
	Paused     *bool     `json:"paused,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// EventRecord bundles an event with the journal index it originated from.
type EventRecord struct {
	Index uint64     `json:"index"`
	Event VaultEvent `json:"event"`
}
