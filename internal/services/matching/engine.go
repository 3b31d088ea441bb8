// Package matching scores unmatched transactions against open invoices.
// Candidate generation is a pure function of its inputs: no persistence,
// no clock, no side effects.
package matching

import (
	"sort"
	"strings"
	"time"

	"invoice-reconciliation-backend/internal/models"
)

// Factors records how each scoring rule contributed to a candidate's
// composite score.
type Factors struct {
	Amount        float64 `json:"amount"`
	Reference     float64 `json:"reference"`
	DateProximity float64 `json:"date_proximity"`
}

// Candidate pairs an invoice with its composite score for one
// transaction. Candidates are transient; only the resulting decision is
// persisted.
type Candidate struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Score         float64   `json:"score"`
	Factors       Factors   `json:"factors"`
	DueDate       time.Time `json:"due_date"`
}

// GenerateCandidates scores tx against invoices and returns candidates
// ordered by score descending, ties broken by earliest due date then
// lowest invoice id. Invoices in another currency, already paid, or
// without a positive outstanding amount are excluded before scoring:
// cross-currency comparison is a correctness boundary, never implicit FX.
// Zero-score candidates are dropped.
func GenerateCandidates(tx *models.Transaction, invoices []models.InvoiceReference, cfg Config) []Candidate {
	var candidates []Candidate

	for i := range invoices {
		inv := &invoices[i]
		if inv.Currency != tx.Currency {
			continue
		}
		if inv.Status == models.InvoicePaid || !inv.AmountDue.IsPositive() {
			continue
		}

		f := Factors{
			Amount:        amountScore(tx, inv, cfg),
			Reference:     referenceScore(tx, inv, cfg),
			DateProximity: dateProximityScore(tx.OccurredAt, inv.DueDate, cfg),
		}

		score := f.Amount + f.Reference + f.DateProximity
		if score == 0 {
			continue
		}

		candidates = append(candidates, Candidate{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			Score:         score,
			Factors:       f,
			DueDate:       inv.DueDate,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.InvoiceID < b.InvoiceID
	})

	return candidates
}

func amountScore(tx *models.Transaction, inv *models.InvoiceReference, cfg Config) float64 {
	diff := tx.Amount.Sub(inv.AmountDue).Abs()
	if diff.LessThanOrEqual(cfg.AmountEpsilon) {
		return cfg.AmountWeight
	}
	return 0
}

func referenceScore(tx *models.Transaction, inv *models.InvoiceReference, cfg Config) float64 {
	number := strings.ToUpper(strings.TrimSpace(inv.Number))
	if number == "" {
		return 0
	}
	if strings.Contains(strings.ToUpper(tx.Reference), number) ||
		strings.Contains(strings.ToUpper(tx.Description), number) {
		return cfg.ReferenceWeight
	}
	return 0
}

func dateProximityScore(occurred, due time.Time, cfg Config) float64 {
	days := occurred.Sub(due).Hours() / 24
	if days < 0 {
		days = -days
	}
	window := float64(cfg.DateWindowDays)
	if days >= window {
		return 0
	}
	return cfg.DateWeight * (1 - days/window)
}
