package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/models"
)

// ErrStale signals a compare-and-set failure: the transaction or
// decision changed between read and write, i.e. a concurrent writer won.
var ErrStale = errors.New("row changed concurrently")

type DecisionRepository struct {
	db *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// EnsureActiveDecisionIndex creates the partial unique index backing the
// at-most-one-active-decision invariant. AutoMigrate cannot express
// partial indexes, so it is issued raw at boot.
func EnsureActiveDecisionIndex(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_match_decisions_active
		 ON match_decisions (transaction_id) WHERE reversed = false`,
	).Error
}

// Active returns the non-reversed decision for a transaction, or nil.
func (r *DecisionRepository) Active(ctx context.Context, txID uuid.UUID) (*models.MatchDecision, error) {
	var d models.MatchDecision
	err := r.db.WithContext(ctx).
		First(&d, "transaction_id = ? AND reversed = ?", txID, false).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// History returns every ledger row for a transaction, oldest first,
// reversed rows included.
func (r *DecisionRepository) History(ctx context.Context, txID uuid.UUID) ([]models.MatchDecision, error) {
	var ds []models.MatchDecision
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("decided_at ASC").
		Find(&ds).Error
	return ds, err
}

// InvoiceBalanceUpdate carries the replica-side effect of a decision or
// reversal. Amount is always positive; Restore adds it back to the
// balance instead of consuming it. The arithmetic happens in SQL against
// the current row, never against a value read earlier, so concurrent
// updates to the same invoice cannot lose each other.
type InvoiceBalanceUpdate struct {
	TenantID  string
	InvoiceID string
	Amount    decimal.Decimal
	Restore   bool
}

// CommitDecision atomically appends the ledger row, moves the
// transaction out of unmatched, applies the replica balance update and
// resolves any pending review task. The partial unique index turns a
// racing second writer into a duplicated-key error; the guarded status
// update turns a stale read into ErrStale. Either way nothing commits.
func (r *DecisionRepository) CommitDecision(ctx context.Context, decision *models.MatchDecision, txStatus string, inv *InvoiceBalanceUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(decision).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", decision.TransactionID, models.TransactionUnmatched).
			Update("status", txStatus)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrStale
		}

		if inv != nil {
			if err := applyInvoiceUpdate(tx, inv); err != nil {
				return err
			}
		}

		return tx.Model(&models.ReviewTask{}).
			Where("transaction_id = ? AND status = ?", decision.TransactionID, models.ReviewPending).
			Updates(map[string]interface{}{
				"status":      models.ReviewResolved,
				"resolved_at": time.Now().UTC(),
			}).Error
	})
}

// CommitReversal atomically flags the decision reversed, reverts the
// transaction to unmatched and restores the replica balance. The ledger
// row itself is never deleted.
func (r *DecisionRepository) CommitReversal(ctx context.Context, decisionID uuid.UUID, reversedBy string, inv *InvoiceBalanceUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.MatchDecision
		if err := tx.First(&d, "id = ?", decisionID).Error; err != nil {
			return err
		}

		res := tx.Model(&models.MatchDecision{}).
			Where("id = ? AND reversed = ?", decisionID, false).
			Updates(map[string]interface{}{
				"reversed":    true,
				"reversed_at": time.Now().UTC(),
				"reversed_by": reversedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrStale
		}

		err := tx.Model(&models.Transaction{}).
			Where("id = ?", d.TransactionID).
			Update("status", models.TransactionUnmatched).
			Error
		if err != nil {
			return err
		}

		if inv != nil {
			return applyInvoiceUpdate(tx, inv)
		}
		return nil
	})
}

// applyInvoiceUpdate adjusts amount_due relative to the row's current
// value. Consuming balance is guarded by amount_due >= amount: if a
// concurrent writer drained the invoice first, no row matches and the
// caller gets ErrStale instead of a silently wrong balance.
func applyInvoiceUpdate(tx *gorm.DB, inv *InvoiceBalanceUpdate) error {
	var res *gorm.DB
	if inv.Restore {
		res = tx.Model(&models.InvoiceReference{}).
			Where("tenant_id = ? AND id = ?", inv.TenantID, inv.InvoiceID).
			Updates(map[string]interface{}{
				"amount_due": gorm.Expr("amount_due + ?", inv.Amount),
				"status": gorm.Expr("CASE WHEN amount_due + ? = 0 THEN ? ELSE ? END",
					inv.Amount, models.InvoicePaid, models.InvoiceOpen),
			})
	} else {
		res = tx.Model(&models.InvoiceReference{}).
			Where("tenant_id = ? AND id = ? AND amount_due >= ?", inv.TenantID, inv.InvoiceID, inv.Amount).
			Updates(map[string]interface{}{
				"amount_due": gorm.Expr("amount_due - ?", inv.Amount),
				"status": gorm.Expr("CASE WHEN amount_due - ? = 0 THEN ? ELSE ? END",
					inv.Amount, models.InvoicePaid, models.InvoicePartial),
			})
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStale
	}
	return nil
}
