package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceOpen    = "open"
	InvoicePartial = "partial"
	InvoicePaid    = "paid"
)

// InvoiceReference is a read replica of an invoice owned by the external
// billing system. The ID is the external invoice id; Number is the
// human-facing reference (e.g. "INV-1042") used for substring matching.
type InvoiceReference struct {
	TenantID  string `gorm:"primaryKey"`
	ID        string `gorm:"primaryKey"`
	Number    string
	AmountDue decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency  string
	Status    string `gorm:"index"`
	DueDate   time.Time
	SyncedAt  time.Time
}
