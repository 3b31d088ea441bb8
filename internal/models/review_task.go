package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ReviewPending   = "pending"
	ReviewResolved  = "resolved"
	ReviewDismissed = "dismissed"
)

// ReviewTask queues a transaction whose best candidate scored below the
// auto-accept threshold. Candidates holds the top scored invoices as JSON
// so the review UI does not have to re-run the scorer.
type ReviewTask struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID `gorm:"index"`
	TenantID      string    `gorm:"index"`
	Candidates    datatypes.JSON
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
