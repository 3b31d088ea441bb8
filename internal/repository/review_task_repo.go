package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/models"
)

type ReviewTaskRepository struct {
	db *gorm.DB
}

func NewReviewTaskRepository(db *gorm.DB) *ReviewTaskRepository {
	return &ReviewTaskRepository{db: db}
}

// Pending returns the open review task for a transaction, or nil.
func (r *ReviewTaskRepository) Pending(ctx context.Context, txID uuid.UUID) (*models.ReviewTask, error) {
	var task models.ReviewTask
	err := r.db.WithContext(ctx).
		First(&task, "transaction_id = ? AND status = ?", txID, models.ReviewPending).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *ReviewTaskRepository) Create(ctx context.Context, task *models.ReviewTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *ReviewTaskRepository) List(ctx context.Context, tenantID, status string) ([]models.ReviewTask, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var tasks []models.ReviewTask
	err := query.Find(&tasks).Error
	return tasks, err
}
