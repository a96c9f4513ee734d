package lifecycle

import (
	"context"
	"fmt"
	"time"

	"evoloop/domain"
	"evoloop/pkg/logger"
	"evoloop/pkg/metrics"

	"github.com/google/uuid"
)

// ---- Repository interfaces ----

type VariantRepository interface {
	Create(ctx context.Context, variant *domain.Variant) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Variant, error)
	FindBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error)
	// UpdateStatus moves a variant to a new status iff its current status is
	// in from. Returns domain.ErrInvalidTransition otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) error
	SetKillStreak(ctx context.Context, id uuid.UUID, streak int) error
}

type SiteRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Site, error)
	FindAllActive(ctx context.Context) ([]domain.Site, error)
	// DecrementApprovals atomically decrements approvals_remaining, floored
	// at zero, and returns the remaining count.
	DecrementApprovals(ctx context.Context, id uuid.UUID) (int, error)
}

type StatisticsRepository interface {
	GetActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.VariantStatistics, error)
}

// ProbabilityEstimator reports each arm's probability of being the best.
type ProbabilityEstimator interface {
	ProbabilityBest(stats []domain.VariantStatistics, n int) map[uuid.UUID]float64
}

// ---- Usecase / Service ----

// Service applies the autonomy-mode policy around which variants earn live
// traffic and retires statistically inferior ones.
type Service struct {
	variantRepo VariantRepository
	siteRepo    SiteRepository
	statsRepo   StatisticsRepository
	estimator   ProbabilityEstimator
	cfg         Config
}

func NewService(
	variantRepo VariantRepository,
	siteRepo SiteRepository,
	statsRepo StatisticsRepository,
	estimator ProbabilityEstimator,
	cfg Config,
) *Service {
	return &Service{
		variantRepo: variantRepo,
		siteRepo:    siteRepo,
		statsRepo:   statsRepo,
		estimator:   estimator,
		cfg:         cfg,
	}
}

// CreateVariant registers a new variant with its initial status derived from
// the owning site's autonomy mode: supervised always starts pending_review,
// full_auto always starts active, training_wheels starts pending_review until
// the site's manual-approval budget is exhausted.
func (s *Service) CreateVariant(ctx context.Context, variant *domain.Variant) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	site, err := s.siteRepo.FindByID(ctx, variant.SiteID)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}

	switch site.AutonomyMode {
	case domain.AutonomyFullAuto:
		variant.Status = domain.VariantStatusActive
	case domain.AutonomyTrainingWheels:
		if site.ApprovalsRemaining > 0 {
			variant.Status = domain.VariantStatusPendingReview
		} else {
			variant.Status = domain.VariantStatusActive
		}
	default:
		variant.Status = domain.VariantStatusPendingReview
	}

	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	if variant.Source == "" {
		variant.Source = domain.VariantSourceGenerated
	}

	if err := s.variantRepo.Create(ctx, variant); err != nil {
		return fmt.Errorf("create variant: %w", err)
	}

	logger.Info("variant created",
		"variant_id", variant.ID,
		"site_id", variant.SiteID,
		"status", variant.Status,
		"autonomy_mode", site.AutonomyMode,
	)

	return nil
}

// Approve moves a pending_review variant into the live population. Under
// training_wheels each manual approval burns one unit of the site's budget.
func (s *Service) Approve(ctx context.Context, variantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	variant, err := s.variantRepo.FindByID(ctx, variantID)
	if err != nil {
		return fmt.Errorf("load variant: %w", err)
	}

	err = s.variantRepo.UpdateStatus(ctx, variantID,
		[]string{domain.VariantStatusPendingReview}, domain.VariantStatusActive)
	if err != nil {
		return err
	}

	site, err := s.siteRepo.FindByID(ctx, variant.SiteID)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}
	if site.AutonomyMode == domain.AutonomyTrainingWheels {
		remaining, err := s.siteRepo.DecrementApprovals(ctx, site.ID)
		if err != nil {
			return fmt.Errorf("decrement approvals: %w", err)
		}
		if remaining == 0 {
			logger.Info("training wheels exhausted, new variants will auto-activate",
				"site_id", site.ID,
			)
		}
	}

	return nil
}

// Reject kills a variant straight out of review.
func (s *Service) Reject(ctx context.Context, variantID uuid.UUID) error {
	return s.kill(ctx, variantID, []string{domain.VariantStatusPendingReview})
}

// Kill retires a variant. Terminal; a killed variant never re-enters sampling.
func (s *Service) Kill(ctx context.Context, variantID uuid.UUID) error {
	return s.kill(ctx, variantID,
		[]string{domain.VariantStatusPendingReview, domain.VariantStatusActive})
}

func (s *Service) kill(ctx context.Context, variantID uuid.UUID, from []string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.variantRepo.UpdateStatus(ctx, variantID, from, domain.VariantStatusKilled)
}

// Sweep evaluates one site's active variants and kills sustained losers: a
// variant with at least MinSampleSize impressions whose probability-of-best
// stays below KillThreshold for RequiredStreak consecutive sweeps. The last
// remaining active variant is never killed. Returns the killed variant ids.
func (s *Service) Sweep(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	variants, err := s.variantRepo.FindBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	active := make([]domain.Variant, 0, len(variants))
	for _, v := range variants {
		if v.Status == domain.VariantStatusActive {
			active = append(active, v)
		}
	}
	if len(active) < 2 {
		return nil, nil
	}

	stats, err := s.statsRepo.GetActiveBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}
	statsByID := make(map[uuid.UUID]domain.VariantStatistics, len(stats))
	for _, st := range stats {
		statsByID[st.VariantID] = st
	}

	population := make([]domain.VariantStatistics, 0, len(active))
	for _, v := range active {
		st, ok := statsByID[v.ID]
		if !ok {
			st = domain.VariantStatistics{VariantID: v.ID, SiteID: v.SiteID}
		}
		population = append(population, st)
	}

	probs := s.estimator.ProbabilityBest(population, s.cfg.SweepSamples)

	var killed []uuid.UUID
	remaining := len(active)

	for _, v := range active {
		st := statsByID[v.ID]
		candidate := st.VisitorCount >= s.cfg.MinSampleSize &&
			probs[v.ID] < s.cfg.KillThreshold

		if !candidate {
			if v.KillStreak != 0 {
				if err := s.variantRepo.SetKillStreak(ctx, v.ID, 0); err != nil {
					return killed, fmt.Errorf("reset kill streak: %w", err)
				}
			}
			continue
		}

		streak := v.KillStreak + 1
		if streak < s.cfg.RequiredStreak || remaining <= 1 {
			if err := s.variantRepo.SetKillStreak(ctx, v.ID, streak); err != nil {
				return killed, fmt.Errorf("bump kill streak: %w", err)
			}
			continue
		}

		if err := s.Kill(ctx, v.ID); err != nil {
			return killed, fmt.Errorf("kill variant %s: %w", v.ID, err)
		}
		remaining--
		killed = append(killed, v.ID)

		logger.Info("variant retired by sweep",
			"variant_id", v.ID,
			"site_id", siteID,
			"visitor_count", st.VisitorCount,
			"probability_best", probs[v.ID],
		)
		metrics.SweepKillsTotal.WithLabelValues(siteID.String()).Inc()
	}

	return killed, nil
}

// SweepAll runs Sweep over every active site. Failures are logged per site so
// one broken site does not starve the rest.
func (s *Service) SweepAll(ctx context.Context) {
	sites, err := s.siteRepo.FindAllActive(ctx)
	if err != nil {
		logger.Error("sweep: failed to list sites", "error", err)
		return
	}

	start := time.Now()
	for _, site := range sites {
		if _, err := s.Sweep(ctx, site.ID); err != nil {
			logger.Error("sweep failed", "site_id", site.ID, "error", err)
		}
	}
	logger.Debug("sweep pass complete",
		"sites", len(sites),
		"elapsed", time.Since(start),
	)
}
