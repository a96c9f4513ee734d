package allocator

import (
	"context"
	"fmt"
	"time"

	"evoloop/domain"
	"evoloop/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ---- Repository interfaces ----

type StatisticsRepository interface {
	// IncrementVisitor atomically bumps visitor_count by 1.
	IncrementVisitor(ctx context.Context, variantID uuid.UUID) error
	// IncrementConversion atomically bumps conversion_count by 1, clamping
	// at visitor_count. Reports whether clamping occurred.
	IncrementConversion(ctx context.Context, variantID uuid.UUID) (bool, error)
	// GetBySite returns counters for all variants of a site, excluding
	// killed variants unless includeKilled is set.
	GetBySite(ctx context.Context, siteID uuid.UUID, includeKilled bool) ([]domain.VariantStatistics, error)
	// GetActiveBySite returns counters for active variants only.
	GetActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.VariantStatistics, error)
}

type EventRepository interface {
	SaveEvent(ctx context.Context, event domain.AllocatorEvent) error
}

type VariantRepository interface {
	FindBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error)
}

// ---- Usecase / Service ----

type Service struct {
	statsRepo     StatisticsRepository
	eventRepo     EventRepository
	variantRepo   VariantRepository
	sampler       *Sampler
	reportSamples int
}

func NewService(
	statsRepo StatisticsRepository,
	eventRepo EventRepository,
	variantRepo VariantRepository,
	sampler *Sampler,
	reportSamples int,
) *Service {
	if reportSamples <= 0 {
		reportSamples = defaultProbabilityBestSamples
	}
	return &Service{
		statsRepo:     statsRepo,
		eventRepo:     eventRepo,
		variantRepo:   variantRepo,
		sampler:       sampler,
		reportSamples: reportSamples,
	}
}

// RecordImpression increments the visitor counter for a variant and appends
// the raw event to the log.
func (s *Service) RecordImpression(
	ctx context.Context,
	siteID, variantID uuid.UUID,
	visitorID string,
	eventCtx map[string]any,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := s.statsRepo.IncrementVisitor(ctx, variantID); err != nil {
		return fmt.Errorf("record impression: %w", err)
	}

	s.logEvent(ctx, siteID, variantID, visitorID, domain.EventImpression, eventCtx)

	AllocatorEventsTotal.
		WithLabelValues(siteID.String(), domain.EventImpression).
		Inc()

	return nil
}

// RecordConversion increments the conversion counter. A conversion that
// arrives before its impression (concurrent ingestion) is clamped at
// visitor_count and logged, never rejected.
func (s *Service) RecordConversion(
	ctx context.Context,
	siteID, variantID uuid.UUID,
	visitorID string,
	eventCtx map[string]any,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	clamped, err := s.statsRepo.IncrementConversion(ctx, variantID)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	if clamped {
		tid := TraceIDFromContext(ctx)
		logger.Warn("conversion clamped at visitor count",
			"trace_id", tid,
			"site_id", siteID,
			"variant_id", variantID,
		)
		ConversionClampTotal.Inc()
	}

	s.logEvent(ctx, siteID, variantID, visitorID, domain.EventConversion, eventCtx)

	AllocatorEventsTotal.
		WithLabelValues(siteID.String(), domain.EventConversion).
		Inc()

	return nil
}

func (s *Service) logEvent(
	ctx context.Context,
	siteID, variantID uuid.UUID,
	visitorID, eventType string,
	eventCtx map[string]any,
) {
	event := domain.AllocatorEvent{
		SiteID:    siteID,
		VariantID: variantID,
		VisitorID: visitorID,
		EventType: eventType,
		CreatedAt: time.Now(),
	}
	if eventCtx != nil {
		event.Context = datatypes.JSONMap(eventCtx)
	}

	// the counters are the source of truth; a failed log write must not
	// fail the ingestion path
	if err := s.eventRepo.SaveEvent(ctx, event); err != nil {
		logger.Error("failed to save allocator event",
			"site_id", siteID,
			"variant_id", variantID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// Statistics returns the counter snapshot for a site.
func (s *Service) Statistics(
	ctx context.Context,
	siteID uuid.UUID,
	includeKilled bool,
) ([]domain.VariantStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	stats, err := s.statsRepo.GetBySite(ctx, siteID, includeKilled)
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}
	return stats, nil
}

// Report assembles the dashboard view: counters, posterior parameters and
// the Monte Carlo probability-of-best (computed over active variants only).
func (s *Service) Report(ctx context.Context, siteID uuid.UUID) ([]domain.VariantReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	variants, err := s.variantRepo.FindBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	stats, err := s.statsRepo.GetBySite(ctx, siteID, true)
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}

	statsByID := make(map[uuid.UUID]domain.VariantStatistics, len(stats))
	for _, st := range stats {
		statsByID[st.VariantID] = st
	}

	active := make([]domain.VariantStatistics, 0, len(variants))
	for _, v := range variants {
		if v.Status != domain.VariantStatusActive {
			continue
		}
		st, ok := statsByID[v.ID]
		if !ok {
			st = domain.VariantStatistics{VariantID: v.ID, SiteID: v.SiteID}
		}
		active = append(active, st)
	}
	probs := s.sampler.ProbabilityBest(active, s.reportSamples)

	reports := make([]domain.VariantReport, 0, len(variants))
	for _, v := range variants {
		st := statsByID[v.ID]
		p := PosteriorOf(st)

		rate := 0.0
		if st.VisitorCount > 0 {
			rate = float64(st.ConversionCount) / float64(st.VisitorCount)
		}

		reports = append(reports, domain.VariantReport{
			VariantID:       v.ID,
			Status:          v.Status,
			VisitorCount:    st.VisitorCount,
			ConversionCount: st.ConversionCount,
			ConversionRate:  rate,
			Alpha:           p.Alpha,
			Beta:            p.Beta,
			ProbabilityBest: probs[v.ID],
		})
	}

	return reports, nil
}
