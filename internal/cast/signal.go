package cast

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SignalKind categorizes coordination signals.
type SignalKind string

const (
	// KindSynchrony: distinct authors posting within a short shared window.
	KindSynchrony SignalKind = "synchrony"
	// KindEcho: near-duplicate text across distinct authors.
	KindEcho SignalKind = "echo"
	// KindCascade: a single cast accumulating engagement abnormally fast.
	KindCascade SignalKind = "cascade"
)

// MinParticipants returns the minimum participant cardinality for the kind.
func (k SignalKind) MinParticipants() int {
	if k == KindCascade {
		return 1
	}
	return 2
}

// Signal is one detected coordination event. Immutable once created.
// Variance and Autocorr are channel-level context carried from the CSD
// analyzer's current estimate, not measurements of this signal.
type Signal struct {
	Kind       SignalKind
	Strength   float64 // [0,1], semantics per detector
	Authors    []string
	CastIDs    []string
	DetectedAt time.Time // time the analysis ran, not cast time
	Variance   float64
	Autocorr   float64
}

// IsPathological reports whether the channel-level context carried by the
// signal exceeds either configured threshold.
func (s Signal) IsPathological(varThreshold, autocorrThreshold float64) bool {
	return s.Variance > varThreshold || s.Autocorr > autocorrThreshold
}

// Summary renders a short human-readable description.
func (s Signal) Summary() string {
	authors := make([]string, len(s.Authors))
	copy(authors, s.Authors)
	sort.Strings(authors)
	return fmt.Sprintf("%s strength=%.2f authors=[%s] casts=%d",
		s.Kind, s.Strength, strings.Join(authors, " "), len(s.CastIDs))
}
