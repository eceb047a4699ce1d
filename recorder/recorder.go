package recorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds.
const (
	KindDerive  = "derive"
	KindCommand = "command"
)

// Event is one audited derivation pass or command.
type Event struct {
	UserID        uint            `json:"user_id"`
	Kind          string          `json:"kind"`
	Command       string          `json:"command,omitempty"`
	Outcome       string          `json:"outcome"` // "ok" or the rejection reason
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Writes        int             `json:"writes"`
	At            time.Time       `json:"at"`
}

// Recorder keeps an append-only trail of ledger activity.
type Recorder interface {
	Record(evt *Event) error
	Recent(userID uint, limit int) ([]Event, error)
	Close() error
}
