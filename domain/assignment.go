package domain

import (
	"time"

	"github.com/google/uuid"
)

// Assignment pins a visitor to one variant for a site. Once written it is
// never mutated in place; a reassignment (only after the assigned variant was
// killed) supersedes it with a fresh record.
type Assignment struct {
	SiteID     uuid.UUID `json:"site_id"`
	VisitorID  string    `json:"visitor_id"`
	VariantID  uuid.UUID `json:"variant_id"`
	AssignedAt time.Time `json:"assigned_at"`
}
