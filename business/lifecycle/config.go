package lifecycle

type Config struct {
	// MinSampleSize: impressions a variant must accumulate before the sweep
	// will consider killing it.
	MinSampleSize int64

	// KillThreshold: probability-of-best below which a variant becomes a
	// kill candidate.
	KillThreshold float64

	// RequiredStreak: consecutive sweeps a variant must stay below the
	// threshold before it is killed, to avoid flapping on noisy estimates.
	RequiredStreak int

	// SweepSamples: Monte Carlo draws per sweep. Higher than the reporting
	// default since the decision is destructive.
	SweepSamples int
}

const (
	defaultMinSampleSize  = 200
	defaultKillThreshold  = 0.05
	defaultRequiredStreak = 2
	defaultSweepSamples   = 10000
)

func DefaultConfig() Config {
	return Config{
		MinSampleSize:  defaultMinSampleSize,
		KillThreshold:  defaultKillThreshold,
		RequiredStreak: defaultRequiredStreak,
		SweepSamples:   defaultSweepSamples,
	}
}
