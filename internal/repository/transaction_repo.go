package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"invoice-reconciliation-backend/internal/models"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert persists a transaction idempotently on (tenant, source,
// external id). Returns false when the row already existed, in which
// case tx is populated with the stored row.
func (r *TransactionRepository) Insert(ctx context.Context, tx *models.Transaction) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.Find(ctx, tx.TenantID, tx.Source, tx.ExternalID)
	if err != nil {
		return false, err
	}
	*tx = *existing
	return false, nil
}

func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) Find(ctx context.Context, tenantID, source, externalID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		First(&tx, "tenant_id = ? AND source = ? AND external_id = ?", tenantID, source, externalID).
		Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) ListUnmatched(ctx context.Context, tenantID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.TransactionUnmatched).
		Order("occurred_at ASC").
		Find(&txs).Error
	return txs, err
}

// TransactionFilter drives the paginated listing. Cursor is the last
// transaction id of the previous page.
type TransactionFilter struct {
	TenantID string
	Status   string
	Cursor   string
	Limit    int
	Search   string
}

// List returns one page plus a cursor for the next, probing limit+1 rows
// to detect whether more remain.
func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]models.Transaction, string, bool, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", f.TenantID).
		Order("id ASC").
		Limit(f.Limit + 1)

	if f.Status != "" && f.Status != "all" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Cursor != "" {
		query = query.Where("id > ?", f.Cursor)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where(
			"description ILIKE ? OR reference ILIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like, like,
		)
	}

	var txs []models.Transaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(txs) > f.Limit {
		hasMore = true
		txs = txs[:f.Limit]
		nextCursor = txs[len(txs)-1].ID.String()
	}

	return txs, nextCursor, hasMore, nil
}

// StatusStats aggregates count and amount per transaction status.
type StatusStats struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

func (r *TransactionRepository) Stats(ctx context.Context, tenantID string) ([]StatusStats, error) {
	var rows []StatusStats
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("tenant_id = ?", tenantID).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
