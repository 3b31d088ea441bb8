// Package provider talks to the external billing system that owns
// invoice balances. All balance mutations in the service funnel through
// the InvoiceProvider interface so a single choke point owns the
// write-back contract.
package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentRequest describes a balance mutation. DecisionID is the
// idempotency key: the provider must treat a replayed decision id as a
// no-op success so webhook retries and crash recovery are safe.
type PaymentRequest struct {
	TenantID   string          `json:"tenant_id"`
	InvoiceID  string          `json:"invoice_id"`
	DecisionID string          `json:"decision_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// InvoiceProvider applies and reverses payments on external invoices.
type InvoiceProvider interface {
	ApplyPayment(ctx context.Context, req PaymentRequest) error
	ReversePayment(ctx context.Context, req PaymentRequest) error
}
