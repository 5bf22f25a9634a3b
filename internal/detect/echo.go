package detect

import (
	"math"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
	"github.com/abelbrown/castwatch/internal/textsim"
)

// Echo finds sets of near-duplicate casts spanning distinct authors.
// Casts whose pairwise similarity meets the threshold and whose authors
// differ are joined into an undirected graph; each connected component
// spanning enough distinct authors becomes one signal. Strength is the
// minimum pairwise similarity inside the component, so a single weak link
// cannot hide behind strong ones.
//
// Pairwise comparison is quadratic in batch size. When the batch exceeds
// cfg.BatchCap the most recent BatchCap casts are kept (the batch is
// time-ordered), never the whole poll skipped.
func Echo(batch []cast.Cast, cfg Config, now time.Time) []cast.Signal {
	if cfg.BatchCap > 0 && len(batch) > cfg.BatchCap {
		batch = batch[len(batch)-cfg.BatchCap:]
	}

	// Skip empty texts up front; they can never form an edge.
	var idx []int
	for i, c := range batch {
		if c.Text != "" {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return nil
	}

	// Union-find over batch positions.
	parent := make(map[int]int, len(idx))
	for _, i := range idx {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	type edge struct {
		a, b int
		sim  float64
	}
	var edges []edge
	for x := 0; x < len(idx); x++ {
		for y := x + 1; y < len(idx); y++ {
			a, b := idx[x], idx[y]
			if batch[a].AuthorID == batch[b].AuthorID {
				continue
			}
			sim := textsim.Similarity(batch[a].Text, batch[b].Text)
			if sim >= cfg.EchoMinSimilarity {
				union(a, b)
				edges = append(edges, edge{a: a, b: b, sim: sim})
			}
		}
	}
	if len(edges) == 0 {
		return nil
	}

	type component struct {
		authors map[string]bool
		castIDs map[string]bool
		minSim  float64
	}
	components := make(map[int]*component)
	for _, e := range edges {
		root := find(e.a)
		comp, ok := components[root]
		if !ok {
			comp = &component{
				authors: make(map[string]bool),
				castIDs: make(map[string]bool),
				minSim:  math.Inf(1),
			}
			components[root] = comp
		}
		comp.authors[batch[e.a].AuthorID] = true
		comp.authors[batch[e.b].AuthorID] = true
		comp.castIDs[batch[e.a].ID] = true
		comp.castIDs[batch[e.b].ID] = true
		if e.sim < comp.minSim {
			comp.minSim = e.sim
		}
	}

	minUsers := cfg.MinEchoUsers
	if minUsers < 2 {
		minUsers = 2
	}

	var signals []cast.Signal
	for _, comp := range components {
		if len(comp.authors) < minUsers {
			continue
		}
		signals = append(signals, cast.Signal{
			Kind:       cast.KindEcho,
			Strength:   clamp01(comp.minSim),
			Authors:    setKeys(comp.authors),
			CastIDs:    setKeys(comp.castIDs),
			DetectedAt: now,
		})
	}
	return signals
}
