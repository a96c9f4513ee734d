package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evoloop/business/allocator"
	"evoloop/domain"
	"evoloop/pkg/logger"

	"github.com/google/uuid"
)

// ---- Repository interfaces ----

type AssignmentRepository interface {
	// Get returns the current assignment for (siteID, visitorID), or nil
	// when none exists.
	Get(ctx context.Context, siteID uuid.UUID, visitorID string) (*domain.Assignment, error)
	// PutIfAbsent inserts with first-write-wins semantics and returns the
	// durable winner. created is false when a concurrent writer got there
	// first, in which case the returned assignment is theirs.
	PutIfAbsent(ctx context.Context, a domain.Assignment, ttl time.Duration) (domain.Assignment, bool, error)
	// Replace supersedes an existing assignment after its variant was killed.
	Replace(ctx context.Context, a domain.Assignment, ttl time.Duration) error
}

type VariantRepository interface {
	// FindServable resolves a variant only while it is active and its owning
	// site is too; anything else is ErrNotFound.
	FindServable(ctx context.Context, id uuid.UUID) (domain.Variant, error)
	FindActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error)
}

type StatisticsRepository interface {
	GetActiveBySite(ctx context.Context, siteID uuid.UUID) ([]domain.VariantStatistics, error)
}

// Selector draws one variant from the active population.
type Selector interface {
	Select(stats []domain.VariantStatistics) (uuid.UUID, error)
}

// ---- Usecase / Service ----

// Service guarantees a visitor keeps seeing the same variant for the length
// of the session window even though the allocator is stochastic per call.
type Service struct {
	assignmentRepo AssignmentRepository
	variantRepo    VariantRepository
	statsRepo      StatisticsRepository
	selector       Selector
	ttl            time.Duration
}

func NewService(
	assignmentRepo AssignmentRepository,
	variantRepo VariantRepository,
	statsRepo StatisticsRepository,
	selector Selector,
	ttl time.Duration,
) *Service {
	return &Service{
		assignmentRepo: assignmentRepo,
		variantRepo:    variantRepo,
		statsRepo:      statsRepo,
		selector:       selector,
		ttl:            ttl,
	}
}

// Assign resolves the variant a visitor should see. Existing assignments are
// returned unchanged while their variant is still active; a killed variant
// breaks stickiness and triggers a reassignment. When the assignment store is
// unavailable the call degrades to a fresh unpersisted draw: stickiness
// suffers, serving does not.
func (s *Service) Assign(ctx context.Context, siteID uuid.UUID, visitorID string) (domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Variant{}, fmt.Errorf("context error: %w", err)
	}

	existing, err := s.assignmentRepo.Get(ctx, siteID, visitorID)
	if err != nil {
		logger.Warn("assignment store read failed, serving unsticky draw",
			"site_id", siteID,
			"visitor_id", visitorID,
			"error", err,
		)
		_, variant, err := s.draw(ctx, siteID)
		return variant, err
	}

	if existing != nil {
		variant, err := s.variantRepo.FindServable(ctx, existing.VariantID)
		if err == nil {
			return variant, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Variant{}, fmt.Errorf("load assigned variant: %w", err)
		}

		// assigned variant was killed, or its site stopped serving:
		// supersede with a new record rather than serving a dead variant
		variantID, variant, err := s.draw(ctx, siteID)
		if err != nil {
			return domain.Variant{}, err
		}
		replacement := domain.Assignment{
			SiteID:     siteID,
			VisitorID:  visitorID,
			VariantID:  variantID,
			AssignedAt: time.Now(),
		}
		if err := s.assignmentRepo.Replace(ctx, replacement, s.ttl); err != nil {
			logger.Warn("failed to persist reassignment",
				"site_id", siteID,
				"visitor_id", visitorID,
				"error", err,
			)
		}
		return variant, nil
	}

	variantID, variant, err := s.draw(ctx, siteID)
	if err != nil {
		return domain.Variant{}, err
	}

	a := domain.Assignment{
		SiteID:     siteID,
		VisitorID:  visitorID,
		VariantID:  variantID,
		AssignedAt: time.Now(),
	}

	winner, created, err := s.assignmentRepo.PutIfAbsent(ctx, a, s.ttl)
	if err != nil {
		logger.Warn("failed to persist assignment, serving unsticky draw",
			"site_id", siteID,
			"visitor_id", visitorID,
			"error", err,
		)
		return variant, nil
	}
	if !created && winner.VariantID != variantID {
		// lost the first-write race: the durable winner is the assignment
		return s.variantRepo.FindServable(ctx, winner.VariantID)
	}

	return variant, nil
}

// draw runs one Thompson draw over the site's active variants and resolves
// the chosen variant row.
func (s *Service) draw(ctx context.Context, siteID uuid.UUID) (uuid.UUID, domain.Variant, error) {
	active, err := s.variantRepo.FindActiveBySite(ctx, siteID)
	if err != nil {
		return uuid.Nil, domain.Variant{}, fmt.Errorf("load active variants: %w", err)
	}
	if len(active) == 0 {
		return uuid.Nil, domain.Variant{}, domain.ErrNoActiveVariants
	}

	stats, err := s.statsRepo.GetActiveBySite(ctx, siteID)
	if err != nil {
		return uuid.Nil, domain.Variant{}, fmt.Errorf("load statistics: %w", err)
	}

	// new variants may not have landed a stats row yet; they still enter
	// the draw with the uniform prior
	byID := make(map[uuid.UUID]domain.VariantStatistics, len(stats))
	for _, st := range stats {
		byID[st.VariantID] = st
	}
	population := make([]domain.VariantStatistics, 0, len(active))
	for _, v := range active {
		st, ok := byID[v.ID]
		if !ok {
			st = domain.VariantStatistics{VariantID: v.ID, SiteID: v.SiteID}
		}
		population = append(population, st)
	}

	chosen, err := s.selector.Select(population)
	if err != nil {
		return uuid.Nil, domain.Variant{}, err
	}

	for _, v := range active {
		if v.ID == chosen {
			return chosen, v, nil
		}
	}
	return uuid.Nil, domain.Variant{}, fmt.Errorf("selected variant %s not in active set", chosen)
}

var _ Selector = (*allocator.Sampler)(nil)
