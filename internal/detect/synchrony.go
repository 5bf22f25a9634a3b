package detect

import (
	"sort"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
)

// synchronyCluster is a candidate burst found by one window placement.
type synchronyCluster struct {
	authors map[string]bool
	castIDs map[string]bool
	start   time.Time
}

// Synchrony finds clusters of distinct authors posting within a shared
// time window. The batch must be ordered by timestamp. Overlapping
// placements that would report nested clusters are merged, keeping the
// superset with the highest author count, so one burst yields one signal.
func Synchrony(batch []cast.Cast, cfg Config, now time.Time) []cast.Signal {
	if len(batch) < cfg.MinSyncUsers {
		return nil
	}

	var candidates []synchronyCluster
	for i := range batch {
		end := batch[i].Timestamp.Add(cfg.SynchronyWindow)

		authors := make(map[string]bool)
		castIDs := make(map[string]bool)
		for j := i; j < len(batch); j++ {
			if batch[j].Timestamp.After(end) {
				break
			}
			authors[batch[j].AuthorID] = true
			castIDs[batch[j].ID] = true
		}
		if len(authors) >= cfg.MinSyncUsers {
			candidates = append(candidates, synchronyCluster{
				authors: authors,
				castIDs: castIDs,
				start:   batch[i].Timestamp,
			})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Largest clusters first so subsets are filtered against supersets.
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].authors) != len(candidates[j].authors) {
			return len(candidates[i].authors) > len(candidates[j].authors)
		}
		return candidates[i].start.Before(candidates[j].start)
	})

	var kept []synchronyCluster
	for _, c := range candidates {
		contained := false
		for _, k := range kept {
			if subset(c.castIDs, k.castIDs) {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, c)
		}
	}

	signals := make([]cast.Signal, 0, len(kept))
	for _, c := range kept {
		signals = append(signals, cast.Signal{
			Kind:       cast.KindSynchrony,
			Strength:   clamp01(float64(len(c.authors)) / float64(cfg.MinSyncUsers*3)),
			Authors:    setKeys(c.authors),
			CastIDs:    setKeys(c.castIDs),
			DetectedAt: now,
		})
	}
	return signals
}

func subset(a, b map[string]bool) bool {
	if len(a) > len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func setKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
