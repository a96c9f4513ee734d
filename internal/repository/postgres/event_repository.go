package postgres

import (
	"context"
	"fmt"

	"evoloop/domain"

	"gorm.io/gorm"
)

type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) SaveEvent(ctx context.Context, event domain.AllocatorEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Create(&event).Error; err != nil {
		return wrapDBErr("save allocator event", err)
	}

	return nil
}
