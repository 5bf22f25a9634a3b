package detect

import (
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
)

// minElapsed floors the age used in rate calculation so a cast observed
// seconds after posting cannot blow up the engagements-per-minute rate.
const minElapsed = time.Minute

// Cascade flags casts whose engagement accumulates abnormally fast.
// Cascades are evaluated per cast, not per cluster: each qualifying cast
// produces its own signal with the author as sole participant.
func Cascade(batch []cast.Cast, cfg Config, now time.Time) []cast.Signal {
	var signals []cast.Signal
	for _, c := range batch {
		elapsed := now.Sub(c.Timestamp)
		if elapsed < minElapsed {
			elapsed = minElapsed
		}
		rate := float64(c.Engagement()) / elapsed.Minutes()
		if rate <= cfg.CascadePerMinute {
			continue
		}
		signals = append(signals, cast.Signal{
			Kind:       cast.KindCascade,
			Strength:   clamp01(rate / (cfg.CascadePerMinute * 5)),
			Authors:    []string{c.AuthorID},
			CastIDs:    []string{c.ID},
			DetectedAt: now,
		})
	}
	return signals
}
