package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
)

// simAuthors is the pool of accounts the simulated network posts from.
var simAuthors = []string{
	"3621", "19841", "5650", "8837", "12142",
	"77231", "4163", "9152", "60184", "2210",
}

// simPhrases seed the simulated cast texts. Echo bursts repeat one of
// these across authors with light mutation.
var simPhrases = []string{
	"gm everyone, big day ahead",
	"this protocol changes everything, get in early",
	"shipping a new build tonight",
	"who else is watching the governance vote",
	"the only alpha you need today",
	"touch grass, then check the charts",
}

// SimSource is a deterministic simulated cast network. Each FetchCasts
// call synthesizes activity between the cursor and now for the channel,
// with periodic coordination bursts so every detector gets exercised.
// Seeded runs are reproducible, which is what the tests and the -test
// one-shot mode rely on.
type SimSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	nextID  int
	burstIn map[string]int // polls until the channel's next burst
}

// NewSimSource creates a SimSource with the given seed.
func NewSimSource(seed int64) *SimSource {
	return &SimSource{
		rng:     rand.New(rand.NewSource(seed)),
		burstIn: make(map[string]int),
	}
}

// FetchCasts implements Source. Never fails; the simulated network is
// always reachable.
func (s *SimSource) FetchCasts(ctx context.Context, channel string, since time.Time, limit int) ([]cast.Cast, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	start := since
	if start.IsZero() || now.Sub(start) > 10*time.Minute {
		start = now.Add(-10 * time.Minute)
	}
	span := now.Sub(start)
	if span <= 0 {
		return nil, nil
	}

	burst := false
	if s.burstIn[channel] <= 0 {
		burst = true
		s.burstIn[channel] = 3 + s.rng.Intn(5)
	}
	s.burstIn[channel]--

	n := 3 + s.rng.Intn(8)
	if burst {
		n += 5
	}
	if n > limit {
		n = limit
	}

	var casts []cast.Cast
	burstPhrase := simPhrases[s.rng.Intn(len(simPhrases))]
	for i := 0; i < n; i++ {
		s.nextID++
		author := simAuthors[s.rng.Intn(len(simAuthors))]

		text := simPhrases[s.rng.Intn(len(simPhrases))]
		ts := start.Add(time.Duration(float64(span) * float64(i+1) / float64(n+1)))
		engagement := s.rng.Intn(12)

		if burst {
			// Echo + synchrony: distinct authors, same phrase, tight spacing.
			author = simAuthors[i%len(simAuthors)]
			text = burstPhrase
			ts = now.Add(-time.Duration(n-i) * 5 * time.Second)
			if i == 0 {
				engagement = 150 + s.rng.Intn(200) // one cascading cast per burst
			}
		}

		casts = append(casts, cast.Cast{
			ID:        fmt.Sprintf("0xsim%06d", s.nextID),
			AuthorID:  author,
			Handle:    "sim-" + author,
			Text:      text,
			Timestamp: ts,
			Likes:     engagement / 2,
			Reposts:   engagement / 4,
			Replies:   engagement - engagement/2 - engagement/4,
		})
	}
	return casts, nil
}
