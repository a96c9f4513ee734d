package postgres

import (
	"context"
	"errors"
	"fmt"

	"evoloop/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SiteRepository struct {
	DB *gorm.DB
}

func NewSiteRepository(db *gorm.DB) *SiteRepository {
	return &SiteRepository{DB: db}
}

func (r *SiteRepository) Create(ctx context.Context, site *domain.Site) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Create(site).Error; err != nil {
		return wrapDBErr("create site", err)
	}

	return nil
}

func (r *SiteRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return domain.Site{}, fmt.Errorf("context error: %w", err)
	}

	var site domain.Site
	err := r.DB.WithContext(ctx).First(&site, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Site{}, domain.ErrNotFound
		}
		return domain.Site{}, wrapDBErr("find site", err)
	}

	return site, nil
}

func (r *SiteRepository) FindAll(ctx context.Context) ([]domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var sites []domain.Site
	if err := r.DB.WithContext(ctx).Find(&sites).Error; err != nil {
		return nil, wrapDBErr("find sites", err)
	}

	return sites, nil
}

func (r *SiteRepository) FindAllActive(ctx context.Context) ([]domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var sites []domain.Site
	err := r.DB.WithContext(ctx).
		Where("status = ?", domain.SiteStatusActive).
		Find(&sites).Error
	if err != nil {
		return nil, wrapDBErr("find active sites", err)
	}

	return sites, nil
}

func (r *SiteRepository) Update(ctx context.Context, site *domain.Site) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Save(site).Error; err != nil {
		return wrapDBErr("update site", err)
	}

	return nil
}

// DecrementApprovals burns one unit of the training-wheels budget in a single
// statement, floored at zero, and reports the remaining count.
func (r *SiteRepository) DecrementApprovals(ctx context.Context, id uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	var remaining int
	err := r.DB.WithContext(ctx).Raw(
		`UPDATE sites
		 SET approvals_remaining = GREATEST(approvals_remaining - 1, 0),
		     updated_at = NOW()
		 WHERE id = ?
		 RETURNING approvals_remaining`,
		id,
	).Scan(&remaining).Error
	if err != nil {
		return 0, wrapDBErr("decrement approvals", err)
	}

	return remaining, nil
}
