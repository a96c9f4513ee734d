package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventImpression = "impression"
	EventConversion = "conversion"
)

// AllocatorEvent is the append-only log of raw impression/conversion events
// behind the aggregated counters, kept for offline analysis.
type AllocatorEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	SiteID    uuid.UUID         `gorm:"column:site_id;type:uuid;not null;index" json:"site_id"`
	VariantID uuid.UUID         `gorm:"column:variant_id;type:uuid;not null;index" json:"variant_id"`
	VisitorID string            `gorm:"column:visitor_id;not null" json:"visitor_id"`
	EventType string            `gorm:"column:event_type;not null" json:"event_type"`
	Context   datatypes.JSONMap `gorm:"column:context;type:jsonb" json:"context"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AllocatorEvent) TableName() string {
	return "allocator_events"
}
