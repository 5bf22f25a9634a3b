// Package cast defines the core data types for the coordination monitor:
// the Cast record (one post on the monitored network) and the
// CoordinationSignal produced by the detectors.
package cast

import "time"

// Cast is one post as observed during a polling cycle. Immutable once
// produced for a cycle; a later poll may return an updated copy of the
// same ID with higher engagement counters, which replaces the snapshot.
type Cast struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"` // stable per account
	Handle     string    `json:"handle"`    // display only
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Likes      int       `json:"likes"`
	Reposts    int       `json:"reposts"`
	Replies    int       `json:"replies"`
}

// Engagement returns the total engagement count for the cast.
func (c Cast) Engagement() int {
	return c.Likes + c.Reposts + c.Replies
}

// Valid reports whether the cast is well-formed. Malformed casts are
// dropped from a batch, never fatal to the cycle.
func (c Cast) Valid() bool {
	if c.ID == "" || c.AuthorID == "" {
		return false
	}
	if c.Timestamp.IsZero() {
		return false
	}
	if c.Likes < 0 || c.Reposts < 0 || c.Replies < 0 {
		return false
	}
	return true
}

// Sanitize filters malformed casts out of a batch, preserving order.
// Returns the clean batch and the number of casts dropped.
func Sanitize(batch []Cast) ([]Cast, int) {
	clean := batch[:0:0]
	dropped := 0
	for _, c := range batch {
		if !c.Valid() {
			dropped++
			continue
		}
		clean = append(clean, c)
	}
	return clean, dropped
}
