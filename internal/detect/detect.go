// Package detect turns a batch of casts into typed coordination signals:
// synchrony clusters, echo clusters, and engagement cascades, plus the
// fused scalar coordination score that feeds the CSD analyzer.
package detect

import "time"

// Config holds detector tuning. All values must be positive; validation
// happens at startup in the config package.
type Config struct {
	SynchronyWindow   time.Duration // width of the synchrony sliding window
	MinSyncUsers      int           // distinct authors required for a synchrony cluster
	EchoMinSimilarity float64       // pairwise similarity threshold for echo edges
	MinEchoUsers      int           // distinct authors required for an echo component
	CascadePerMinute  float64       // engagements/minute threshold for cascades
	BatchCap          int           // echo down-samples to the most recent BatchCap casts
}

// DefaultConfig returns detector defaults matching the daemon defaults.
func DefaultConfig() Config {
	return Config{
		SynchronyWindow:   5 * time.Minute,
		MinSyncUsers:      3,
		EchoMinSimilarity: 0.8,
		MinEchoUsers:      2,
		CascadePerMinute:  10,
		BatchCap:          200,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
