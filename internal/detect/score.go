package detect

import (
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
)

// Fusion weights. Synchrony and echo carry equal weight; cascades are the
// noisiest detector and contribute least.
const (
	weightSynchrony = 0.4
	weightEcho      = 0.4
	weightCascade   = 0.2
)

// Result is the outcome of analyzing one batch: the individual signals
// (forwarded unchanged for alerting) and the fused scalar score that
// feeds the per-channel CSD time series.
type Result struct {
	Signals []cast.Signal
	Score   float64 // [0,1]
}

// Analyze runs all three detectors over a time-ordered batch and fuses
// their strongest strengths into one coordination score. An empty batch
// scores 0. A detector that produced no signal contributes 0.
func Analyze(batch []cast.Cast, cfg Config, now time.Time) Result {
	sync := Synchrony(batch, cfg, now)
	echo := Echo(batch, cfg, now)
	casc := Cascade(batch, cfg, now)

	score := clamp01(weightSynchrony*maxStrength(sync) +
		weightEcho*maxStrength(echo) +
		weightCascade*maxStrength(casc))

	signals := make([]cast.Signal, 0, len(sync)+len(echo)+len(casc))
	signals = append(signals, sync...)
	signals = append(signals, echo...)
	signals = append(signals, casc...)

	return Result{Signals: signals, Score: score}
}

func maxStrength(signals []cast.Signal) float64 {
	best := 0.0
	for _, s := range signals {
		if s.Strength > best {
			best = s.Strength
		}
	}
	return best
}
