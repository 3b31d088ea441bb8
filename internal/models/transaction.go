package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SourceBank = "bank"
	SourceCard = "card"
)

const (
	TransactionUnmatched = "unmatched"
	TransactionMatched   = "matched"
	TransactionIgnored   = "ignored"
)

// Transaction is a normalized payment record from one of the external
// feeds. (tenant_id, source, external_id) identifies it across
// webhook redeliveries.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"uniqueIndex:idx_transactions_identity"`
	Source      string    `gorm:"uniqueIndex:idx_transactions_identity"`
	ExternalID  string    `gorm:"uniqueIndex:idx_transactions_identity"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency    string
	Description string
	Reference   string
	OccurredAt  time.Time
	Status      string `gorm:"index"`
	CreatedAt   time.Time
}
