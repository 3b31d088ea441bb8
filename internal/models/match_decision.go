package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DecisionAuto   = "auto"
	DecisionManual = "manual"
)

// DecidedBySystem marks decisions taken by the automatic engine rather
// than a reviewer.
const DecidedBySystem = "system"

// MatchDecision is a ledger row. Rows are append-only: reversal sets the
// Reversed columns on the existing row instead of adding a new one, so
// History can replay the full transition sequence of a transaction.
//
// A partial unique index on transaction_id WHERE reversed = false (created
// at migration time) enforces at most one active decision per transaction.
type MatchDecision struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID   uuid.UUID `gorm:"index"`
	InvoiceTenantID string
	InvoiceID       *string // nil for ignore decisions
	Kind            string
	Score           float64
	// AppliedAmount is what was actually taken off the invoice balance.
	// It differs from the transaction amount when an overpayment was
	// clamped, and is the exact amount restored on reversal.
	AppliedAmount   decimal.Decimal `gorm:"type:numeric(18,2)"`
	Factors         datatypes.JSON
	DecidedBy       string
	DecidedAt       time.Time
	Overpayment     bool
	Reversed        bool `gorm:"index"`
	ReversedAt      *time.Time
	ReversedBy      string
}
