package postgres

import (
	"context"
	"errors"
	"fmt"

	"evoloop/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VariantRepository struct {
	DB *gorm.DB
}

func NewVariantRepository(db *gorm.DB) *VariantRepository {
	return &VariantRepository{DB: db}
}

// Create inserts the variant together with its zeroed statistics row so the
// counters always exist by the time events arrive.
func (r *VariantRepository) Create(ctx context.Context, variant *domain.Variant) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(variant).Error; err != nil {
			return err
		}
		stats := domain.VariantStatistics{
			VariantID: variant.ID,
			SiteID:    variant.SiteID,
		}
		return tx.Create(&stats).Error
	})
	if err != nil {
		return wrapDBErr("create variant", err)
	}

	return nil
}

func (r *VariantRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Variant{}, fmt.Errorf("context error: %w", err)
	}

	var variant domain.Variant
	err := r.DB.WithContext(ctx).First(&variant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, domain.ErrNotFound
		}
		return domain.Variant{}, wrapDBErr("find variant", err)
	}

	return variant, nil
}

func (r *VariantRepository) FindBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var variants []domain.Variant
	err := r.DB.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at ASC").
		Find(&variants).Error
	if err != nil {
		return nil, wrapDBErr("find variants", err)
	}

	return variants, nil
}

// FindServable resolves a variant for the serving path: it is found only
// while the variant is active and its owning site is too. Killed variants and
// paused sites both come back as ErrNotFound.
func (r *VariantRepository) FindServable(ctx context.Context, id uuid.UUID) (domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Variant{}, fmt.Errorf("context error: %w", err)
	}

	var variant domain.Variant
	err := r.DB.WithContext(ctx).
		Joins("JOIN sites ON sites.id = variants.site_id").
		Where("variants.id = ? AND variants.status = ? AND sites.status = ?",
			id, domain.VariantStatusActive, domain.SiteStatusActive).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, domain.ErrNotFound
		}
		return domain.Variant{}, wrapDBErr("find servable variant", err)
	}

	return variant, nil
}

// FindActiveBySite returns the serving population: active variants whose
// owning site is itself active. A paused site yields an empty slice.
func (r *VariantRepository) FindActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var variants []domain.Variant
	err := r.DB.WithContext(ctx).
		Joins("JOIN sites ON sites.id = variants.site_id").
		Where("variants.site_id = ? AND variants.status = ? AND sites.status = ?",
			siteID, domain.VariantStatusActive, domain.SiteStatusActive).
		Order("variants.created_at ASC").
		Find(&variants).Error
	if err != nil {
		return nil, wrapDBErr("find active variants", err)
	}

	return variants, nil
}

// UpdateStatus performs a guarded transition: the row only changes when its
// current status is one of from. A zero-row update means either the variant
// does not exist (ErrNotFound) or the transition is illegal.
func (r *VariantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Model(&domain.Variant{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return wrapDBErr("update variant status", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.DB.WithContext(ctx).
			Model(&domain.Variant{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return wrapDBErr("check variant existence", err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}

	return nil
}

func (r *VariantRepository) SetKillStreak(ctx context.Context, id uuid.UUID, streak int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).
		Model(&domain.Variant{}).
		Where("id = ?", id).
		Update("kill_streak", streak).Error
	if err != nil {
		return wrapDBErr("set kill streak", err)
	}

	return nil
}
