//go:build !integration

package allocator

import (
	"testing"

	"evoloop/domain"

	"github.com/google/uuid"
)

func TestPosteriorOfZeroVisitors(t *testing.T) {
	p := PosteriorOf(domain.VariantStatistics{VariantID: uuid.New()})
	if p.Alpha != 1 || p.Beta != 1 {
		t.Fatalf("zero-visitor posterior = Beta(%v,%v), want Beta(1,1)", p.Alpha, p.Beta)
	}
}

func TestPosteriorOfCounts(t *testing.T) {
	p := PosteriorOf(domain.VariantStatistics{
		VisitorCount:    500,
		ConversionCount: 60,
	})
	if p.Alpha != 61 || p.Beta != 441 {
		t.Fatalf("posterior = Beta(%v,%v), want Beta(61,441)", p.Alpha, p.Beta)
	}

	mean := p.Mean()
	if mean < 0.11 || mean > 0.13 {
		t.Fatalf("posterior mean = %v, want ~0.12", mean)
	}
}

func TestPosteriorClampsBadCounters(t *testing.T) {
	// should never happen past the store's clamp, but the estimator must not
	// produce a negative beta parameter if it does
	p := PosteriorOf(domain.VariantStatistics{
		VisitorCount:    10,
		ConversionCount: 15,
	})
	if p.Alpha != 11 || p.Beta != 1 {
		t.Fatalf("posterior = Beta(%v,%v), want Beta(11,1)", p.Alpha, p.Beta)
	}
}
