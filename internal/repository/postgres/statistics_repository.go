package postgres

import (
	"context"
	"fmt"

	"evoloop/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StatisticsRepository struct {
	DB *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) *StatisticsRepository {
	return &StatisticsRepository{DB: db}
}

// IncrementVisitor bumps visitor_count in a single UPDATE so concurrent
// events never lose increments.
func (r *StatisticsRepository) IncrementVisitor(ctx context.Context, variantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).Exec(
		`UPDATE variant_statistics
		 SET visitor_count = visitor_count + 1, last_updated = NOW()
		 WHERE variant_id = ?`,
		variantID,
	)
	if res.Error != nil {
		return wrapDBErr("increment visitor count", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// IncrementConversion bumps conversion_count, clamped so it never exceeds
// visitor_count. The returned flag reports whether the increment was clamped,
// which happens when a conversion races ahead of its impression.
func (r *StatisticsRepository) IncrementConversion(ctx context.Context, variantID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	var row struct {
		Clamped bool
	}
	res := r.DB.WithContext(ctx).Raw(
		`WITH prev AS (
		     SELECT conversion_count, visitor_count
		     FROM variant_statistics
		     WHERE variant_id = @id
		     FOR UPDATE
		 )
		 UPDATE variant_statistics s
		 SET conversion_count = LEAST(s.conversion_count + 1, s.visitor_count),
		     last_updated = NOW()
		 FROM prev
		 WHERE s.variant_id = @id
		 RETURNING (prev.conversion_count + 1 > prev.visitor_count) AS clamped`,
		map[string]any{"id": variantID},
	).Scan(&row)
	if res.Error != nil {
		return false, wrapDBErr("increment conversion count", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, domain.ErrNotFound
	}

	return row.Clamped, nil
}

func (r *StatisticsRepository) GetBySite(ctx context.Context, siteID uuid.UUID, includeKilled bool) ([]domain.VariantStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).
		Table("variant_statistics AS s").
		Select("s.*").
		Joins("JOIN variants v ON v.id = s.variant_id").
		Where("s.site_id = ?", siteID)
	if !includeKilled {
		q = q.Where("v.status <> ?", domain.VariantStatusKilled)
	}

	var stats []domain.VariantStatistics
	if err := q.Find(&stats).Error; err != nil {
		return nil, wrapDBErr("load statistics", err)
	}

	return stats, nil
}

func (r *StatisticsRepository) GetActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.VariantStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var stats []domain.VariantStatistics
	err := r.DB.WithContext(ctx).
		Table("variant_statistics AS s").
		Select("s.*").
		Joins("JOIN variants v ON v.id = s.variant_id").
		Where("s.site_id = ? AND v.status = ?", siteID, domain.VariantStatusActive).
		Find(&stats).Error
	if err != nil {
		return nil, wrapDBErr("load active statistics", err)
	}

	return stats, nil
}
