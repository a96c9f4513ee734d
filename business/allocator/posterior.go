package allocator

import "evoloop/domain"

// Posterior is the Beta-distribution belief about a variant's true
// conversion rate.
type Posterior struct {
	Alpha float64
	Beta  float64
}

// PosteriorOf derives the Beta posterior from raw counters under a uniform
// Beta(1,1) prior. A variant with zero visitors gets Beta(1,1), which keeps
// its initial exploration weight equal to every other arm.
func PosteriorOf(stats domain.VariantStatistics) Posterior {
	conversions := stats.ConversionCount
	if conversions > stats.VisitorCount {
		conversions = stats.VisitorCount
	}
	return Posterior{
		Alpha: 1 + float64(conversions),
		Beta:  1 + float64(stats.VisitorCount-conversions),
	}
}

// Mean is the posterior expectation of the conversion rate.
func (p Posterior) Mean() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}
