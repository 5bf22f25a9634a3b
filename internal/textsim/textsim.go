// Package textsim scores how similar two post texts are, for near-duplicate
// detection. Jaccard overlap of normalized word tokens: cheap, symmetric,
// and monotonically decreasing as texts diverge, which is what the echo
// detector's thresholds are tuned against.
package textsim

import "strings"

// Similarity returns the token-set Jaccard similarity of a and b in [0,1].
// Symmetric and reflexive. Degenerate cases by convention: two empty (or
// token-free) texts score 1, empty vs non-empty scores 0.
func Similarity(a, b string) float64 {
	ta := Tokens(a)
	tb := Tokens(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// Tokens normalizes text and returns its word-token set. Lowercases and
// maps any non-alphanumeric rune to a space before splitting.
func Tokens(text string) map[string]bool {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, text)

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
