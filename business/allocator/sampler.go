package allocator

import (
	"math/rand"
	"sort"
	"sync"

	"evoloop/domain"

	"github.com/google/uuid"
)

const defaultProbabilityBestSamples = 2000

// Sampler is the Thompson Sampling core: one Beta draw per arm, highest
// sample wins. The random source is seedable so allocation decisions are
// reproducible in tests.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Select picks the variant a visitor should see from the given active-variant
// statistics. Returns domain.ErrNoActiveVariants when the slice is empty. A
// single-variant population short-circuits without sampling.
func (s *Sampler) Select(stats []domain.VariantStatistics) (uuid.UUID, error) {
	if len(stats) == 0 {
		return uuid.Nil, domain.ErrNoActiveVariants
	}
	if len(stats) == 1 {
		return stats[0].VariantID, nil
	}

	ordered := orderedByID(stats)

	s.mu.Lock()
	defer s.mu.Unlock()

	best := 0
	bestSample := -1.0
	for i, st := range ordered {
		p := PosteriorOf(st)
		theta := sampleBeta(s.rng, p.Alpha, p.Beta)
		// strict > keeps the lowest-id arm on exact ties
		if theta > bestSample {
			bestSample = theta
			best = i
		}
	}

	return ordered[best].VariantID, nil
}

// ProbabilityBest estimates P(arm is the argmax) per variant by drawing n
// joint samples and counting wins. Used for reporting and the retirement
// sweep only; live allocation always takes a fresh single draw.
func (s *Sampler) ProbabilityBest(stats []domain.VariantStatistics, n int) map[uuid.UUID]float64 {
	out := make(map[uuid.UUID]float64, len(stats))
	if len(stats) == 0 {
		return out
	}
	if len(stats) == 1 {
		out[stats[0].VariantID] = 1.0
		return out
	}
	if n <= 0 {
		n = defaultProbabilityBestSamples
	}

	ordered := orderedByID(stats)

	posteriors := make([]Posterior, len(ordered))
	for i, st := range ordered {
		posteriors[i] = PosteriorOf(st)
	}

	wins := make([]int, len(ordered))

	s.mu.Lock()
	for trial := 0; trial < n; trial++ {
		best := 0
		bestSample := -1.0
		for i, p := range posteriors {
			theta := sampleBeta(s.rng, p.Alpha, p.Beta)
			if theta > bestSample {
				bestSample = theta
				best = i
			}
		}
		wins[best]++
	}
	s.mu.Unlock()

	for i, st := range ordered {
		out[st.VariantID] = float64(wins[i]) / float64(n)
	}
	return out
}

// orderedByID returns a copy sorted by variant id so that draw order, and
// with it seeded runs, do not depend on storage ordering.
func orderedByID(stats []domain.VariantStatistics) []domain.VariantStatistics {
	ordered := make([]domain.VariantStatistics, len(stats))
	copy(ordered, stats)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].VariantID.String() < ordered[j].VariantID.String()
	})
	return ordered
}
