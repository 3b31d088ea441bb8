package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"invoice-reconciliation-backend/internal/models"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testTransaction(amount string, reference string) *models.Transaction {
	return &models.Transaction{
		TenantID:    "tenant-1",
		Source:      models.SourceBank,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "GBP",
		Description: "incoming transfer",
		Reference:   reference,
		OccurredAt:  baseTime,
		Status:      models.TransactionUnmatched,
	}
}

func testInvoice(id, number, amountDue string, dueIn time.Duration) models.InvoiceReference {
	return models.InvoiceReference{
		TenantID:  "tenant-1",
		ID:        id,
		Number:    number,
		AmountDue: decimal.RequireFromString(amountDue),
		Currency:  "GBP",
		Status:    models.InvoiceOpen,
		DueDate:   baseTime.Add(dueIn),
	}
}

func TestGenerateCandidatesFullMatch(t *testing.T) {
	tx := testTransaction("100.00", "INV-1042 thanks")
	invoices := []models.InvoiceReference{
		testInvoice("1042", "INV-1042", "100.00", 48*time.Hour),
	}

	got := GenerateCandidates(tx, invoices, Default())

	assert.Len(t, got, 1)
	assert.Equal(t, "1042", got[0].InvoiceID)
	assert.InDelta(t, 0.5, got[0].Factors.Amount, 1e-9)
	assert.InDelta(t, 0.35, got[0].Factors.Reference, 1e-9)
	assert.InDelta(t, 0.13, got[0].Factors.DateProximity, 1e-9)
	assert.InDelta(t, 0.98, got[0].Score, 1e-9)
	assert.GreaterOrEqual(t, got[0].Score, Default().AutoAcceptScore)
}

func TestGenerateCandidatesAmountMismatchScoresBelowReview(t *testing.T) {
	tx := testTransaction("99.50", "INV-1042 thanks")
	invoices := []models.InvoiceReference{
		testInvoice("1042", "INV-1042", "100.00", 48*time.Hour),
	}

	got := GenerateCandidates(tx, invoices, Default())

	assert.Len(t, got, 1)
	assert.Zero(t, got[0].Factors.Amount)
	assert.InDelta(t, 0.48, got[0].Score, 1e-9)
	assert.Less(t, got[0].Score, Default().ReviewScore)
}

func TestGenerateCandidatesExcludesOtherCurrencies(t *testing.T) {
	tx := testTransaction("100.00", "INV-1042")

	eur := testInvoice("1042", "INV-1042", "100.00", 0)
	eur.Currency = "EUR"
	invoices := []models.InvoiceReference{
		eur,
		testInvoice("2001", "INV-2001", "100.00", 0),
	}

	got := GenerateCandidates(tx, invoices, Default())

	assert.Len(t, got, 1)
	assert.Equal(t, "2001", got[0].InvoiceID)
}

func TestGenerateCandidatesExcludesPaidAndZeroBalance(t *testing.T) {
	tx := testTransaction("100.00", "")

	paid := testInvoice("1", "INV-1", "100.00", 0)
	paid.Status = models.InvoicePaid
	settled := testInvoice("2", "INV-2", "0.00", 0)

	got := GenerateCandidates(tx, []models.InvoiceReference{paid, settled}, Default())

	assert.Empty(t, got)
}

func TestGenerateCandidatesDropsZeroScores(t *testing.T) {
	tx := testTransaction("100.00", "no reference here")
	invoices := []models.InvoiceReference{
		// wrong amount, no number hit, due date far outside the window
		testInvoice("1042", "INV-1042", "250.00", 60*24*time.Hour),
	}

	assert.Empty(t, GenerateCandidates(tx, invoices, Default()))
}

func TestGenerateCandidatesReferenceIsCaseInsensitive(t *testing.T) {
	tx := testTransaction("42.00", "payment inv-77")
	invoices := []models.InvoiceReference{
		testInvoice("77", "INV-77", "999.00", 40*24*time.Hour),
	}

	got := GenerateCandidates(tx, invoices, Default())

	assert.Len(t, got, 1)
	assert.InDelta(t, 0.35, got[0].Score, 1e-9)
}

func TestGenerateCandidatesOrderingAndTieBreaks(t *testing.T) {
	tx := testTransaction("100.00", "")

	// Same score (amount only); tie broken by due date, then id.
	later := testInvoice("10", "INV-10", "100.00", 120*time.Hour)
	earlierB := testInvoice("5", "INV-5", "100.00", 36*24*time.Hour)
	earlierA := testInvoice("3", "INV-3", "100.00", 36*24*time.Hour)
	higher := testInvoice("99", "INV-99", "100.00", 24*time.Hour)

	got := GenerateCandidates(tx, []models.InvoiceReference{earlierB, later, higher, earlierA}, Default())

	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.InvoiceID)
	}
	// "99" gains date proximity, "10" a smaller amount of it; the two
	// out-of-window invoices share the bare amount score.
	assert.Equal(t, []string{"99", "10", "3", "5"}, ids)
}

func TestDateProximityDecaysLinearly(t *testing.T) {
	cfg := Default()

	assert.InDelta(t, 0.15, dateProximityScore(baseTime, baseTime, cfg), 1e-9)
	assert.InDelta(t, 0.13, dateProximityScore(baseTime, baseTime.Add(48*time.Hour), cfg), 1e-9)
	assert.InDelta(t, 0.13, dateProximityScore(baseTime, baseTime.Add(-48*time.Hour), cfg), 1e-9)
	assert.Zero(t, dateProximityScore(baseTime, baseTime.Add(15*24*time.Hour), cfg))
	assert.Zero(t, dateProximityScore(baseTime, baseTime.Add(100*24*time.Hour), cfg))
}

func TestAmountEpsilonTolerance(t *testing.T) {
	cfg := Default()
	cfg.AmountEpsilon = decimal.RequireFromString("0.01")

	tx := testTransaction("99.99", "")
	invoices := []models.InvoiceReference{
		testInvoice("1", "INV-1", "100.00", 40*24*time.Hour),
	}

	got := GenerateCandidates(tx, invoices, cfg)

	assert.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].Score, 1e-9)
}
