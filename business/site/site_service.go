package site

import (
	"context"
	"crypto/rand"
	"fmt"

	"evoloop/domain"
	"evoloop/pkg/logger"

	"github.com/google/uuid"
	"github.com/pobyzaarif/goshortcute"
	"golang.org/x/crypto/bcrypt"
)

// ---- Repository interfaces ----

type SiteRepository interface {
	Create(ctx context.Context, site *domain.Site) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Site, error)
	FindAll(ctx context.Context) ([]domain.Site, error)
	Update(ctx context.Context, site *domain.Site) error
}

// ---- Usecase / Service ----

type Service struct {
	siteRepo         SiteRepository
	defaultApprovals int
}

func NewService(siteRepo SiteRepository, defaultApprovals int) *Service {
	return &Service{
		siteRepo:         siteRepo,
		defaultApprovals: defaultApprovals,
	}
}

// CreateSite registers a site and mints its serving API key. The raw key is
// returned exactly once; only the bcrypt hash is stored.
func (s *Service) CreateSite(ctx context.Context, site *domain.Site) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}

	if site.AutonomyMode == "" {
		site.AutonomyMode = domain.AutonomySupervised
	}
	if !domain.ValidAutonomyMode(site.AutonomyMode) {
		return "", fmt.Errorf("invalid autonomy mode %q", site.AutonomyMode)
	}
	if site.AutonomyMode == domain.AutonomyTrainingWheels && site.ApprovalsRemaining == 0 {
		site.ApprovalsRemaining = s.defaultApprovals
	}
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}
	site.Status = domain.SiteStatusActive

	apiKey, err := generateAPIKey()
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	site.APIKeyHash = string(hash)

	if err := s.siteRepo.Create(ctx, site); err != nil {
		return "", fmt.Errorf("create site: %w", err)
	}

	logger.Info("site created",
		"site_id", site.ID,
		"autonomy_mode", site.AutonomyMode,
	)

	return apiKey, nil
}

func (s *Service) GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return domain.Site{}, fmt.Errorf("context error: %w", err)
	}
	return s.siteRepo.FindByID(ctx, id)
}

func (s *Service) ListSites(ctx context.Context) ([]domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	return s.siteRepo.FindAll(ctx)
}

// UpdateAutonomy switches the site's autonomy mode. Moving into
// training_wheels resets the manual-approval budget.
func (s *Service) UpdateAutonomy(ctx context.Context, id uuid.UUID, mode string) (domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return domain.Site{}, fmt.Errorf("context error: %w", err)
	}
	if !domain.ValidAutonomyMode(mode) {
		return domain.Site{}, fmt.Errorf("invalid autonomy mode %q", mode)
	}

	site, err := s.siteRepo.FindByID(ctx, id)
	if err != nil {
		return domain.Site{}, fmt.Errorf("load site: %w", err)
	}

	if mode == domain.AutonomyTrainingWheels && site.AutonomyMode != domain.AutonomyTrainingWheels {
		site.ApprovalsRemaining = s.defaultApprovals
	}
	site.AutonomyMode = mode

	if err := s.siteRepo.Update(ctx, &site); err != nil {
		return domain.Site{}, fmt.Errorf("update site: %w", err)
	}

	return site, nil
}

// Pause takes a site out of serving. Soft: its variants and counters remain,
// the assign path just sees no active population.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, domain.SiteStatusPaused)
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, domain.SiteStatusActive)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	site, err := s.siteRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}
	site.Status = status
	if err := s.siteRepo.Update(ctx, &site); err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return nil
}

// VerifyAPIKey checks a raw serving key against the site's stored hash.
func (s *Service) VerifyAPIKey(ctx context.Context, id uuid.UUID, apiKey string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	site, err := s.siteRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(site.APIKeyHash), []byte(apiKey)); err != nil {
		return fmt.Errorf("api key mismatch: %w", err)
	}
	return nil
}

func generateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "evk_" + goshortcute.StringtoBase64Encode(string(raw)), nil
}
