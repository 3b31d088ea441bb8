package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"invoice-reconciliation-backend/internal/models"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// ListOpen returns invoices still owing money for the tenant, restricted
// to the given currency. The currency restriction happens here so the
// scorer only ever sees same-currency invoices.
func (r *InvoiceRepository) ListOpen(ctx context.Context, tenantID, currency string) ([]models.InvoiceReference, error) {
	var invoices []models.InvoiceReference
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND currency = ? AND status IN ? AND amount_due > 0",
			tenantID, currency, []string{models.InvoiceOpen, models.InvoicePartial}).
		Find(&invoices).Error
	return invoices, err
}

func (r *InvoiceRepository) Get(ctx context.Context, tenantID, invoiceID string) (*models.InvoiceReference, error) {
	var inv models.InvoiceReference
	err := r.db.WithContext(ctx).
		First(&inv, "tenant_id = ? AND id = ?", tenantID, invoiceID).
		Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Upsert refreshes the read replica from the external system. Existing
// rows are overwritten; the external system owns this data.
func (r *InvoiceRepository) Upsert(ctx context.Context, invoices []models.InvoiceReference) error {
	if len(invoices) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range invoices {
		invoices[i].SyncedAt = now
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"number", "amount_due", "currency", "status", "due_date", "synced_at"}),
	}).Create(&invoices).Error
}
