//go:build !integration

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"evoloop/domain"

	"github.com/google/uuid"
)

type fakeVariantRepo struct {
	mu       sync.Mutex
	order    []uuid.UUID
	variants map[uuid.UUID]domain.Variant
}

func newFakeVariantRepo() *fakeVariantRepo {
	return &fakeVariantRepo{variants: make(map[uuid.UUID]domain.Variant)}
}

func (f *fakeVariantRepo) Create(_ context.Context, v *domain.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, v.ID)
	f.variants[v.ID] = *v
	return nil
}

func (f *fakeVariantRepo) FindByID(_ context.Context, id uuid.UUID) (domain.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[id]
	if !ok {
		return domain.Variant{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeVariantRepo) FindBySite(_ context.Context, siteID uuid.UUID) ([]domain.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Variant
	for _, id := range f.order {
		if v := f.variants[id]; v.SiteID == siteID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVariantRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []string, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, s := range from {
		if v.Status == s {
			v.Status = to
			f.variants[id] = v
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (f *fakeVariantRepo) SetKillStreak(_ context.Context, id uuid.UUID, streak int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.KillStreak = streak
	f.variants[id] = v
	return nil
}

func (f *fakeVariantRepo) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variants[id].Status
}

func (f *fakeVariantRepo) streak(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variants[id].KillStreak
}

type fakeSiteRepo struct {
	mu    sync.Mutex
	sites map[uuid.UUID]domain.Site
}

func newFakeSiteRepo(sites ...domain.Site) *fakeSiteRepo {
	f := &fakeSiteRepo{sites: make(map[uuid.UUID]domain.Site)}
	for _, s := range sites {
		f.sites[s.ID] = s
	}
	return f
}

func (f *fakeSiteRepo) FindByID(_ context.Context, id uuid.UUID) (domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sites[id]
	if !ok {
		return domain.Site{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSiteRepo) FindAllActive(_ context.Context) ([]domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Site
	for _, s := range f.sites {
		if s.Status == domain.SiteStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSiteRepo) DecrementApprovals(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sites[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.ApprovalsRemaining > 0 {
		s.ApprovalsRemaining--
	}
	f.sites[id] = s
	return s.ApprovalsRemaining, nil
}

type fakeStatsRepo struct {
	stats []domain.VariantStatistics
}

func (f *fakeStatsRepo) GetActiveBySite(_ context.Context, _ uuid.UUID) ([]domain.VariantStatistics, error) {
	return f.stats, nil
}

// fixedEstimator returns canned probability-of-best values.
type fixedEstimator struct {
	probs map[uuid.UUID]float64
}

func (f *fixedEstimator) ProbabilityBest(_ []domain.VariantStatistics, _ int) map[uuid.UUID]float64 {
	return f.probs
}

func TestCreateVariantStatusByAutonomyMode(t *testing.T) {
	cases := []struct {
		name       string
		mode       string
		approvals  int
		wantStatus string
	}{
		{"supervised", domain.AutonomySupervised, 0, domain.VariantStatusPendingReview},
		{"full auto", domain.AutonomyFullAuto, 0, domain.VariantStatusActive},
		{"training wheels with budget", domain.AutonomyTrainingWheels, 3, domain.VariantStatusPendingReview},
		{"training wheels exhausted", domain.AutonomyTrainingWheels, 0, domain.VariantStatusActive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			site := domain.Site{
				ID:                 uuid.New(),
				AutonomyMode:       tc.mode,
				ApprovalsRemaining: tc.approvals,
				Status:             domain.SiteStatusActive,
			}
			repo := newFakeVariantRepo()
			svc := NewService(repo, newFakeSiteRepo(site), &fakeStatsRepo{}, &fixedEstimator{}, DefaultConfig())

			v := domain.Variant{SiteID: site.ID}
			if err := svc.CreateVariant(context.Background(), &v); err != nil {
				t.Fatal(err)
			}
			if v.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", v.Status, tc.wantStatus)
			}
			if v.ID == uuid.Nil {
				t.Fatal("variant was not assigned an id")
			}
		})
	}
}

func TestTrainingWheelsBudgetBurnsDown(t *testing.T) {
	site := domain.Site{
		ID:                 uuid.New(),
		AutonomyMode:       domain.AutonomyTrainingWheels,
		ApprovalsRemaining: 5,
		Status:             domain.SiteStatusActive,
	}
	sites := newFakeSiteRepo(site)
	repo := newFakeVariantRepo()
	svc := NewService(repo, sites, &fakeStatsRepo{}, &fixedEstimator{}, DefaultConfig())

	// five manual rounds: created pending, then approved
	for i := 0; i < 5; i++ {
		v := domain.Variant{SiteID: site.ID}
		if err := svc.CreateVariant(context.Background(), &v); err != nil {
			t.Fatal(err)
		}
		if v.Status != domain.VariantStatusPendingReview {
			t.Fatalf("variant %d: status = %s, want pending_review", i+1, v.Status)
		}
		if err := svc.Approve(context.Background(), v.ID); err != nil {
			t.Fatal(err)
		}
	}

	remaining := sites.sites[site.ID].ApprovalsRemaining
	if remaining != 0 {
		t.Fatalf("approvals remaining = %d, want 0 after five approvals", remaining)
	}

	// budget gone: the sixth variant goes live without review
	v := domain.Variant{SiteID: site.ID}
	if err := svc.CreateVariant(context.Background(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Status != domain.VariantStatusActive {
		t.Fatalf("sixth variant status = %s, want active", v.Status)
	}
}

func TestApproveKilledVariant(t *testing.T) {
	site := domain.Site{ID: uuid.New(), AutonomyMode: domain.AutonomySupervised, Status: domain.SiteStatusActive}
	repo := newFakeVariantRepo()
	svc := NewService(repo, newFakeSiteRepo(site), &fakeStatsRepo{}, &fixedEstimator{}, DefaultConfig())

	v := domain.Variant{SiteID: site.ID}
	if err := svc.CreateVariant(context.Background(), &v); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reject(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}

	err := svc.Approve(context.Background(), v.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	// terminal status, kill is not re-appliable either
	err = svc.Kill(context.Background(), v.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func sweepFixture(t *testing.T, probs map[uuid.UUID]float64) (*Service, *fakeVariantRepo, uuid.UUID) {
	t.Helper()
	site := domain.Site{ID: uuid.New(), AutonomyMode: domain.AutonomyFullAuto, Status: domain.SiteStatusActive}
	repo := newFakeVariantRepo()
	stats := &fakeStatsRepo{}
	est := &fixedEstimator{probs: probs}
	svc := NewService(repo, newFakeSiteRepo(site), stats, est, DefaultConfig())
	return svc, repo, site.ID
}

func TestSweepKillsAfterSecondConsecutiveSweep(t *testing.T) {
	winner := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive}
	loser := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive}

	probs := map[uuid.UUID]float64{winner.ID: 0.99, loser.ID: 0.01}
	svc, repo, siteID := sweepFixture(t, probs)
	winner.SiteID, loser.SiteID = siteID, siteID
	repo.Create(context.Background(), &winner)
	repo.Create(context.Background(), &loser)

	svc.statsRepo = &fakeStatsRepo{stats: []domain.VariantStatistics{
		{VariantID: winner.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 120},
		{VariantID: loser.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 20},
	}}

	killed, err := svc.Sweep(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 0 {
		t.Fatalf("first sweep killed %v, want none", killed)
	}
	if repo.streak(loser.ID) != 1 {
		t.Fatalf("loser streak = %d after first sweep, want 1", repo.streak(loser.ID))
	}
	if repo.status(loser.ID) != domain.VariantStatusActive {
		t.Fatal("loser must survive its first losing sweep")
	}

	killed, err = svc.Sweep(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 1 || killed[0] != loser.ID {
		t.Fatalf("second sweep killed %v, want [%v]", killed, loser.ID)
	}
	if repo.status(loser.ID) != domain.VariantStatusKilled {
		t.Fatalf("loser status = %s, want killed", repo.status(loser.ID))
	}
	if repo.status(winner.ID) != domain.VariantStatusActive {
		t.Fatal("winner must stay active")
	}
}

func TestSweepResetsStreakOnRecovery(t *testing.T) {
	winner := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive}
	loser := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive}

	est := &fixedEstimator{probs: map[uuid.UUID]float64{winner.ID: 0.99, loser.ID: 0.01}}
	svc, repo, siteID := sweepFixture(t, est.probs)
	svc.estimator = est
	winner.SiteID, loser.SiteID = siteID, siteID
	repo.Create(context.Background(), &winner)
	repo.Create(context.Background(), &loser)

	svc.statsRepo = &fakeStatsRepo{stats: []domain.VariantStatistics{
		{VariantID: winner.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 120},
		{VariantID: loser.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 20},
	}}

	if _, err := svc.Sweep(context.Background(), siteID); err != nil {
		t.Fatal(err)
	}
	if repo.streak(loser.ID) != 1 {
		t.Fatalf("streak = %d, want 1", repo.streak(loser.ID))
	}

	// loser recovers above the threshold: the streak must not carry over
	est.probs = map[uuid.UUID]float64{winner.ID: 0.6, loser.ID: 0.4}
	if _, err := svc.Sweep(context.Background(), siteID); err != nil {
		t.Fatal(err)
	}
	if repo.streak(loser.ID) != 0 {
		t.Fatalf("streak = %d after recovery, want 0", repo.streak(loser.ID))
	}

	// dipping again starts the count from scratch
	est.probs = map[uuid.UUID]float64{winner.ID: 0.99, loser.ID: 0.01}
	killed, err := svc.Sweep(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 0 {
		t.Fatalf("killed %v right after a reset, want none", killed)
	}
}

func TestSweepNeverKillsLastActiveVariant(t *testing.T) {
	a := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive, KillStreak: 1}
	b := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive, KillStreak: 1}

	// both arms look terrible; the sweep may not empty the site
	probs := map[uuid.UUID]float64{a.ID: 0.01, b.ID: 0.01}
	svc, repo, siteID := sweepFixture(t, probs)
	a.SiteID, b.SiteID = siteID, siteID
	repo.Create(context.Background(), &a)
	repo.Create(context.Background(), &b)

	svc.statsRepo = &fakeStatsRepo{stats: []domain.VariantStatistics{
		{VariantID: a.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 5},
		{VariantID: b.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 5},
	}}

	killed, err := svc.Sweep(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 1 {
		t.Fatalf("killed %d variants, want exactly 1", len(killed))
	}

	activeLeft := 0
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if repo.status(id) == domain.VariantStatusActive {
			activeLeft++
		}
	}
	if activeLeft != 1 {
		t.Fatalf("%d active variants left, want 1", activeLeft)
	}
}

func TestSweepIgnoresUnderSampledVariants(t *testing.T) {
	winner := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive}
	fresh := domain.Variant{ID: uuid.New(), Status: domain.VariantStatusActive, KillStreak: 1}

	probs := map[uuid.UUID]float64{winner.ID: 0.99, fresh.ID: 0.01}
	svc, repo, siteID := sweepFixture(t, probs)
	winner.SiteID, fresh.SiteID = siteID, siteID
	repo.Create(context.Background(), &winner)
	repo.Create(context.Background(), &fresh)

	// below the sample-size floor the arm is untouchable regardless of odds
	svc.statsRepo = &fakeStatsRepo{stats: []domain.VariantStatistics{
		{VariantID: winner.ID, SiteID: siteID, VisitorCount: 1000, ConversionCount: 120},
		{VariantID: fresh.ID, SiteID: siteID, VisitorCount: 50, ConversionCount: 0},
	}}

	killed, err := svc.Sweep(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 0 {
		t.Fatalf("killed %v, want none", killed)
	}
	if repo.streak(fresh.ID) != 0 {
		t.Fatalf("under-sampled streak = %d, want reset to 0", repo.streak(fresh.ID))
	}
}
