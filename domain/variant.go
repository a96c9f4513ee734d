package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VariantStatusPendingReview = "pending_review"
	VariantStatusActive        = "active"
	VariantStatusKilled        = "killed"
)

const (
	VariantSourceGenerated = "generated"
	VariantSourceManual    = "manual"
)

// Variant is one candidate page treatment. The patch (headline, subheadline,
// CTA text, hero image reference) is an opaque blob to the allocator; it is
// stored and served verbatim, never interpreted.
type Variant struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID     uuid.UUID         `gorm:"column:site_id;type:uuid;not null;index" json:"site_id"`
	Patch      datatypes.JSONMap `gorm:"column:patch;type:jsonb" json:"patch"`
	Status     string            `gorm:"column:status;not null;default:pending_review;index" json:"status"`
	Source     string            `gorm:"column:source;not null;default:generated" json:"source"`
	KillStreak int               `gorm:"column:kill_streak;not null;default:0" json:"-"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// VariantStatistics holds the durable per-variant counters. Counters only
// ever increase and conversion_count never exceeds visitor_count.
type VariantStatistics struct {
	VariantID       uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey" json:"variant_id"`
	SiteID          uuid.UUID `gorm:"column:site_id;type:uuid;not null;index" json:"site_id"`
	VisitorCount    int64     `gorm:"column:visitor_count;not null;default:0" json:"visitor_count"`
	ConversionCount int64     `gorm:"column:conversion_count;not null;default:0" json:"conversion_count"`
	LastUpdated     time.Time `gorm:"column:last_updated;autoUpdateTime" json:"last_updated"`
}

func (VariantStatistics) TableName() string {
	return "variant_statistics"
}

// VariantReport is the dashboard view of a variant: raw counters plus the
// Beta posterior and the Monte Carlo probability-of-being-best estimate.
type VariantReport struct {
	VariantID       uuid.UUID `json:"variant_id"`
	Status          string    `json:"status"`
	VisitorCount    int64     `json:"visitor_count"`
	ConversionCount int64     `json:"conversion_count"`
	ConversionRate  float64   `json:"conversion_rate"`
	Alpha           float64   `json:"alpha"`
	Beta            float64   `json:"beta"`
	ProbabilityBest float64   `json:"probability_best"`
}
