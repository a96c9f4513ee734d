package domain

import (
	"time"

	"github.com/google/uuid"
)

// Autonomy modes controlling how new variants earn live traffic.
const (
	AutonomySupervised     = "supervised"
	AutonomyTrainingWheels = "training_wheels"
	AutonomyFullAuto       = "full_auto"
)

const (
	SiteStatusActive = "active"
	SiteStatusPaused = "paused"
)

type Site struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	URL                string    `gorm:"column:url;not null" json:"url"`
	Status             string    `gorm:"column:status;not null;default:active" json:"status"`
	AutonomyMode       string    `gorm:"column:autonomy_mode;not null;default:supervised" json:"autonomy_mode"`
	ApprovalsRemaining int       `gorm:"column:approvals_remaining;not null;default:0" json:"approvals_remaining"`
	APIKeyHash         string    `gorm:"column:api_key_hash;not null" json:"-"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func ValidAutonomyMode(mode string) bool {
	switch mode {
	case AutonomySupervised, AutonomyTrainingWheels, AutonomyFullAuto:
		return true
	}
	return false
}
