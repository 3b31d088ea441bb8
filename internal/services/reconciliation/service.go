// Package reconciliation owns every mutation of transaction status,
// ledger state and invoice balances. No other code path may alter them.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/provider"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/matching"
)

// TransactionStore persists normalized transactions.
type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListUnmatched(ctx context.Context, tenantID string) ([]models.Transaction, error)
	List(ctx context.Context, f repository.TransactionFilter) ([]models.Transaction, string, bool, error)
	Stats(ctx context.Context, tenantID string) ([]repository.StatusStats, error)
}

// InvoiceStore is the local read replica of the external invoice state.
type InvoiceStore interface {
	ListOpen(ctx context.Context, tenantID, currency string) ([]models.InvoiceReference, error)
	Get(ctx context.Context, tenantID, invoiceID string) (*models.InvoiceReference, error)
	Upsert(ctx context.Context, invoices []models.InvoiceReference) error
}

// DecisionLedger is the append-only record of match decisions.
type DecisionLedger interface {
	Active(ctx context.Context, txID uuid.UUID) (*models.MatchDecision, error)
	History(ctx context.Context, txID uuid.UUID) ([]models.MatchDecision, error)
	CommitDecision(ctx context.Context, decision *models.MatchDecision, txStatus string, inv *repository.InvoiceBalanceUpdate) error
	CommitReversal(ctx context.Context, decisionID uuid.UUID, reversedBy string, inv *repository.InvoiceBalanceUpdate) error
}

// ReviewTaskStore queues low-confidence matches for a human.
type ReviewTaskStore interface {
	Pending(ctx context.Context, txID uuid.UUID) (*models.ReviewTask, error)
	Create(ctx context.Context, task *models.ReviewTask) error
	List(ctx context.Context, tenantID, status string) ([]models.ReviewTask, error)
}

// Engine applies the decision policy on top of candidate scoring.
type Engine struct {
	transactions TransactionStore
	invoices     InvoiceStore
	ledger       DecisionLedger
	tasks        ReviewTaskStore
	provider     provider.InvoiceProvider
	cfg          matching.Config
	locks        *txLocker
	log          *logrus.Logger
}

func NewEngine(
	transactions TransactionStore,
	invoices InvoiceStore,
	ledger DecisionLedger,
	tasks ReviewTaskStore,
	invoiceProvider provider.InvoiceProvider,
	cfg matching.Config,
	log *logrus.Logger,
) *Engine {
	return &Engine{
		transactions: transactions,
		invoices:     invoices,
		ledger:       ledger,
		tasks:        tasks,
		provider:     invoiceProvider,
		cfg:          cfg,
		locks:        newTxLocker(),
		log:          log,
	}
}

// Outcome statuses reported by Decide.
const (
	OutcomeMatched     = "matched"
	OutcomeNeedsReview = "needs_review"
	OutcomeUnmatched   = "unmatched"
)

// Outcome is the result of running the decision policy once.
type Outcome struct {
	Status     string                `json:"status"`
	Decision   *models.MatchDecision `json:"decision,omitempty"`
	Task       *models.ReviewTask    `json:"task,omitempty"`
	Candidates []matching.Candidate  `json:"candidates,omitempty"`
}

// IngestInput is a normalized transaction delivered by a bank or card
// adapter, via webhook or batch poll.
type IngestInput struct {
	TenantID    string          `json:"tenant_id"`
	Source      string          `json:"source"`
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (in *IngestInput) validate() error {
	switch {
	case in.TenantID == "":
		return apperrors.New(apperrors.KindValidation, "tenant id is required")
	case in.Source != models.SourceBank && in.Source != models.SourceCard:
		return apperrors.New(apperrors.KindValidation, "source must be %q or %q, got %q", models.SourceBank, models.SourceCard, in.Source)
	case in.ExternalID == "":
		return apperrors.New(apperrors.KindValidation, "external id is required")
	case in.Amount.IsNegative():
		return apperrors.New(apperrors.KindValidation, "amount cannot be negative: %s", in.Amount)
	case len(in.Currency) != 3:
		return apperrors.New(apperrors.KindValidation, "currency must be a 3-letter ISO 4217 code, got %q", in.Currency)
	case in.OccurredAt.IsZero():
		return apperrors.New(apperrors.KindValidation, "occurred-at is required")
	}
	return nil
}

// Ingest stores a transaction, idempotent on (tenant, source, external
// id). A redelivered webhook gets the previously stored row back.
func (e *Engine) Ingest(ctx context.Context, in IngestInput) (*models.Transaction, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	tx := &models.Transaction{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		Source:      in.Source,
		ExternalID:  in.ExternalID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Description: in.Description,
		Reference:   in.Reference,
		OccurredAt:  in.OccurredAt,
		Status:      models.TransactionUnmatched,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := e.transactions.Insert(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if !created {
		e.log.WithFields(logrus.Fields{
			"tenant":      in.TenantID,
			"source":      in.Source,
			"external_id": in.ExternalID,
		}).Debug("duplicate ingestion, returning stored transaction")
	}
	return tx, created, nil
}

// Decide runs the policy for one transaction. Calling it on a
// transaction with an active decision is a no-op returning that
// decision.
func (e *Engine) Decide(ctx context.Context, txID uuid.UUID) (*Outcome, error) {
	if !e.locks.TryAcquire(txID) {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s has a decision in flight", txID)
	}
	defer e.locks.Release(txID)

	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	active, err := e.ledger.Active(ctx, txID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &Outcome{Status: outcomeForStatus(tx.Status), Decision: active}, nil
	}

	if tx.Status != models.TransactionUnmatched {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s is %s", txID, tx.Status)
	}

	openInvoices, err := e.invoices.ListOpen(ctx, tx.TenantID, tx.Currency)
	if err != nil {
		return nil, err
	}

	candidates := matching.GenerateCandidates(tx, openInvoices, e.cfg)
	if len(candidates) == 0 {
		return &Outcome{Status: OutcomeUnmatched}, nil
	}

	top := candidates[0]
	switch {
	case top.Score >= e.cfg.AutoAcceptScore:
		inv := findInvoice(openInvoices, top.InvoiceID)
		if inv == nil {
			return nil, apperrors.New(apperrors.KindNotFound, "invoice %s vanished during scoring", top.InvoiceID)
		}
		decision, err := e.commitMatch(ctx, tx, inv, models.DecisionAuto, models.DecidedBySystem, top.Score, top.Factors, len(candidates))
		if err != nil {
			return nil, err
		}
		return &Outcome{Status: OutcomeMatched, Decision: decision, Candidates: candidates}, nil

	case top.Score >= e.cfg.ReviewScore:
		task, err := e.queueForReview(ctx, tx, candidates)
		if err != nil {
			return nil, err
		}
		return &Outcome{Status: OutcomeNeedsReview, Task: task, Candidates: candidates}, nil

	default:
		// Below the review floor: leave unmatched, no task. A later
		// invoice sync plus Rescan picks it up again.
		return &Outcome{Status: OutcomeUnmatched, Candidates: candidates}, nil
	}
}

// ApplyManualMatch matches a transaction to an invoice chosen by a
// reviewer, bypassing the thresholds. The invoice must belong to the
// transaction's tenant and currency, and the transaction must not
// already have an active decision.
func (e *Engine) ApplyManualMatch(ctx context.Context, txID uuid.UUID, invoiceID, userID string) (*models.MatchDecision, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "user id is required for manual matches")
	}

	if !e.locks.TryAcquire(txID) {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s has a decision in flight", txID)
	}
	defer e.locks.Release(txID)

	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	active, err := e.ledger.Active(ctx, txID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s already has an active decision", txID)
	}
	if tx.Status != models.TransactionUnmatched {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s is %s", txID, tx.Status)
	}

	inv, err := e.invoices.Get(ctx, tx.TenantID, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "invoice %s not found for tenant %s", invoiceID, tx.TenantID)
		}
		return nil, err
	}
	if inv.Currency != tx.Currency {
		return nil, apperrors.New(apperrors.KindCurrencyMismatch, "invoice %s is in %s, transaction is in %s", invoiceID, inv.Currency, tx.Currency)
	}
	if inv.Status == models.InvoicePaid || !inv.AmountDue.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidState, "invoice %s has no outstanding balance", invoiceID)
	}

	// Score the chosen pair for the audit trail; it has no bearing on
	// whether the match is accepted.
	score, factors := scorePair(tx, inv, e.cfg)

	return e.commitMatch(ctx, tx, inv, models.DecisionManual, userID, score, factors, 1)
}

// ReverseMatch flags the active decision reversed, restores the invoice
// balance by the amount that was applied, and reverts the transaction to
// unmatched. Ignore decisions are terminal and cannot be reversed.
func (e *Engine) ReverseMatch(ctx context.Context, txID uuid.UUID, userID string) (*models.MatchDecision, error) {
	if !e.locks.TryAcquire(txID) {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s has a decision in flight", txID)
	}
	defer e.locks.Release(txID)

	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	active, err := e.ledger.Active(ctx, txID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "transaction %s has no active decision", txID)
	}
	if active.InvoiceID == nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "ignore decisions cannot be reversed")
	}

	inv, err := e.invoices.Get(ctx, active.InvoiceTenantID, *active.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "invoice %s not found for tenant %s", *active.InvoiceID, active.InvoiceTenantID)
		}
		return nil, err
	}

	update := &repository.InvoiceBalanceUpdate{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		Amount:    active.AppliedAmount,
		Restore:   true,
	}

	req := provider.PaymentRequest{
		TenantID:   inv.TenantID,
		InvoiceID:  inv.ID,
		DecisionID: active.ID.String(),
		Amount:     active.AppliedAmount,
		Currency:   tx.Currency,
	}
	if err := e.provider.ReversePayment(ctx, req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindExternalWriteBack, "reverse payment for invoice %s", inv.ID)
	}

	if err := e.ledger.CommitReversal(ctx, active.ID, userID, update); err != nil {
		e.compensate(ctx, e.provider.ApplyPayment, req, "re-apply after failed reversal commit")
		if errors.Is(err, repository.ErrStale) {
			return nil, apperrors.New(apperrors.KindInvalidState, "decision %s was already reversed", active.ID)
		}
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"transaction": txID,
		"decision":    active.ID,
		"invoice":     inv.ID,
		"restored":    active.AppliedAmount.String(),
		"by":          userID,
	}).Info("match reversed")

	now := time.Now().UTC()
	active.Reversed = true
	active.ReversedAt = &now
	active.ReversedBy = userID
	return active, nil
}

// Ignore marks an unmatched transaction as not reconcilable (e.g. an
// internal transfer). The state is terminal: a matched transaction must
// be reversed first, and an ignore cannot be undone.
func (e *Engine) Ignore(ctx context.Context, txID uuid.UUID, userID string) (*models.MatchDecision, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "user id is required")
	}

	if !e.locks.TryAcquire(txID) {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s has a decision in flight", txID)
	}
	defer e.locks.Release(txID)

	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionUnmatched {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s is %s", txID, tx.Status)
	}

	active, err := e.ledger.Active(ctx, txID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "transaction %s already has an active decision", txID)
	}

	decision := &models.MatchDecision{
		ID:            uuid.New(),
		TransactionID: txID,
		Kind:          models.DecisionManual,
		DecidedBy:     userID,
		DecidedAt:     time.Now().UTC(),
	}

	if err := e.ledger.CommitDecision(ctx, decision, models.TransactionIgnored, nil); err != nil {
		return nil, mapCommitError(err, txID)
	}
	return decision, nil
}

// History returns the full ledger for a transaction, oldest first.
func (e *Engine) History(ctx context.Context, txID uuid.UUID) ([]models.MatchDecision, error) {
	if _, err := e.getTransaction(ctx, txID); err != nil {
		return nil, err
	}
	return e.ledger.History(ctx, txID)
}

// SyncInvoices refreshes the invoice read replica from the external
// system.
func (e *Engine) SyncInvoices(ctx context.Context, invoices []models.InvoiceReference) error {
	for i := range invoices {
		inv := &invoices[i]
		switch {
		case inv.TenantID == "" || inv.ID == "":
			return apperrors.New(apperrors.KindValidation, "invoice tenant id and id are required")
		case len(inv.Currency) != 3:
			return apperrors.New(apperrors.KindValidation, "invoice %s: currency must be a 3-letter ISO 4217 code", inv.ID)
		case inv.AmountDue.IsNegative():
			return apperrors.New(apperrors.KindValidation, "invoice %s: amount due cannot be negative", inv.ID)
		}
	}
	return e.invoices.Upsert(ctx, invoices)
}

// RescanResult summarizes one Rescan pass.
type RescanResult struct {
	Scanned     int `json:"scanned"`
	Matched     int `json:"matched"`
	NeedsReview int `json:"needs_review"`
	Unmatched   int `json:"unmatched"`
	Failed      int `json:"failed"`
}

// Rescan re-runs Decide over every unmatched transaction of a tenant,
// picking up invoices that appeared since the last attempt.
func (e *Engine) Rescan(ctx context.Context, tenantID string) (*RescanResult, error) {
	if tenantID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "tenant id is required")
	}

	txs, err := e.transactions.ListUnmatched(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &RescanResult{Scanned: len(txs)}
	for i := range txs {
		outcome, err := e.Decide(ctx, txs[i].ID)
		if err != nil {
			result.Failed++
			e.log.WithError(err).WithField("transaction", txs[i].ID).Warn("rescan: decide failed")
			continue
		}
		switch outcome.Status {
		case OutcomeMatched:
			result.Matched++
		case OutcomeNeedsReview:
			result.NeedsReview++
		default:
			result.Unmatched++
		}
	}
	return result, nil
}

// Stats aggregates transaction counts and amounts per status for a
// tenant.
type Stats struct {
	Total          int64           `json:"total"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	MatchedCount   int64           `json:"matched_count"`
	MatchedSum     decimal.Decimal `json:"matched_sum"`
	UnmatchedCount int64           `json:"unmatched_count"`
	UnmatchedSum   decimal.Decimal `json:"unmatched_sum"`
	IgnoredCount   int64           `json:"ignored_count"`
	IgnoredSum     decimal.Decimal `json:"ignored_sum"`
}

func (e *Engine) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	rows, err := e.transactions.Stats(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount = stats.TotalAmount.Add(r.Sum)
		switch r.Status {
		case models.TransactionMatched:
			stats.MatchedCount, stats.MatchedSum = r.Count, r.Sum
		case models.TransactionUnmatched:
			stats.UnmatchedCount, stats.UnmatchedSum = r.Count, r.Sum
		case models.TransactionIgnored:
			stats.IgnoredCount, stats.IgnoredSum = r.Count, r.Sum
		}
	}
	return stats, nil
}

// ListTransactions and ListReviewTasks expose the read side for the API
// layer without opening another mutation path.
func (e *Engine) ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]models.Transaction, string, bool, error) {
	return e.transactions.List(ctx, f)
}

func (e *Engine) ListReviewTasks(ctx context.Context, tenantID, status string) ([]models.ReviewTask, error) {
	return e.tasks.List(ctx, tenantID, status)
}

// commitMatch performs the shared commit path for auto and manual
// matches: write-back first (with retry inside the provider), then the
// atomic database commit. A commit failure after a successful write-back
// is compensated with a reversal under the same decision id, so the
// invoice balance is never left reflecting a decision that was not
// recorded.
func (e *Engine) commitMatch(
	ctx context.Context,
	tx *models.Transaction,
	inv *models.InvoiceReference,
	kind, decidedBy string,
	score float64,
	factors matching.Factors,
	candidateCount int,
) (*models.MatchDecision, error) {
	applied := tx.Amount
	overpayment := false
	if applied.GreaterThan(inv.AmountDue) {
		applied = inv.AmountDue
		overpayment = true
	}

	invoiceID := inv.ID
	decision := &models.MatchDecision{
		ID:              uuid.New(),
		TransactionID:   tx.ID,
		InvoiceTenantID: inv.TenantID,
		InvoiceID:       &invoiceID,
		Kind:            kind,
		Score:           score,
		AppliedAmount:   applied,
		DecidedBy:       decidedBy,
		DecidedAt:       time.Now().UTC(),
		Overpayment:     overpayment,
	}
	decision.Factors = factorsJSON(factors, candidateCount)

	if overpayment {
		e.log.WithFields(logrus.Fields{
			"transaction": tx.ID,
			"invoice":     inv.ID,
			"amount":      tx.Amount.String(),
			"amount_due":  inv.AmountDue.String(),
		}).Warn("overpayment: payment clamped to outstanding balance")
	}

	req := provider.PaymentRequest{
		TenantID:   inv.TenantID,
		InvoiceID:  inv.ID,
		DecisionID: decision.ID.String(),
		Amount:     applied,
		Currency:   tx.Currency,
	}
	if err := e.provider.ApplyPayment(ctx, req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindExternalWriteBack, "apply payment for invoice %s", inv.ID)
	}

	update := &repository.InvoiceBalanceUpdate{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		Amount:    applied,
	}
	if err := e.ledger.CommitDecision(ctx, decision, models.TransactionMatched, update); err != nil {
		e.compensate(ctx, e.provider.ReversePayment, req, "reverse after failed decision commit")
		return nil, mapCommitError(err, tx.ID)
	}

	e.log.WithFields(logrus.Fields{
		"transaction": tx.ID,
		"invoice":     inv.ID,
		"kind":        kind,
		"score":       score,
		"applied":     applied.String(),
	}).Info("transaction matched")

	return decision, nil
}

func (e *Engine) queueForReview(ctx context.Context, tx *models.Transaction, candidates []matching.Candidate) (*models.ReviewTask, error) {
	existing, err := e.tasks.Pending(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	top := candidates
	if len(top) > 3 {
		top = top[:3]
	}
	payload, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}

	task := &models.ReviewTask{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		TenantID:      tx.TenantID,
		Candidates:    datatypes.JSON(payload),
		Status:        models.ReviewPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"transaction": tx.ID,
		"candidates":  len(top),
		"top_score":   candidates[0].Score,
	}).Info("transaction queued for review")

	return task, nil
}

// compensate undoes a provider write-back whose database commit failed.
// Failure here is logged loudly: the provider call is idempotent on the
// decision id, so a follow-up retry or support action can reconcile it.
func (e *Engine) compensate(ctx context.Context, op func(context.Context, provider.PaymentRequest) error, req provider.PaymentRequest, what string) {
	if err := op(ctx, req); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"invoice":     req.InvoiceID,
			"decision_id": req.DecisionID,
		}).Error("compensation failed: " + what)
	}
}

func (e *Engine) getTransaction(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	tx, err := e.transactions.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "transaction %s not found", txID)
		}
		return nil, err
	}
	return tx, nil
}

func mapCommitError(err error, txID uuid.UUID) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, repository.ErrStale) {
		return apperrors.New(apperrors.KindInvalidState, "transaction %s already has an active decision", txID)
	}
	return err
}

func outcomeForStatus(txStatus string) string {
	if txStatus == models.TransactionMatched {
		return OutcomeMatched
	}
	return txStatus
}

func findInvoice(invoices []models.InvoiceReference, id string) *models.InvoiceReference {
	for i := range invoices {
		if invoices[i].ID == id {
			return &invoices[i]
		}
	}
	return nil
}

func scorePair(tx *models.Transaction, inv *models.InvoiceReference, cfg matching.Config) (float64, matching.Factors) {
	cands := matching.GenerateCandidates(tx, []models.InvoiceReference{*inv}, cfg)
	if len(cands) == 0 {
		return 0, matching.Factors{}
	}
	return cands[0].Score, cands[0].Factors
}

func factorsJSON(f matching.Factors, candidateCount int) datatypes.JSON {
	payload, _ := json.Marshal(map[string]interface{}{
		"amount":          f.Amount,
		"reference":       f.Reference,
		"date_proximity":  f.DateProximity,
		"candidate_count": candidateCount,
	})
	return datatypes.JSON(payload)
}
