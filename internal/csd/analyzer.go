// Package csd implements critical-slowing-down analysis over a channel's
// coordination-score time series. A system approaching a critical
// transition shows growing fluctuations (variance) and growing persistence
// (lag-1 autocorrelation); the analyzer tracks both over a bounded rolling
// window and classifies the channel's trend.
package csd

import (
	"math"
	"sync"
)

// State classifies a channel's trend.
type State string

const (
	StateStable           State = "stable"
	StatePathological     State = "pathological"
	StateInsufficientData State = "insufficient_data"
)

// minVariancePoints is the hard floor for a defined sample variance.
const minVariancePoints = 2

// Config tunes one analyzer. Validated by the config package at startup;
// the analyzer assumes positive thresholds and WindowSize >= 2.
type Config struct {
	WindowSize        int     // rolling window capacity (points)
	MinAutocorrPoints int     // points required before autocorrelation is defined
	VarianceThreshold float64 // variance above this is pathological
	AutocorrThreshold float64 // lag-1 autocorrelation above this is pathological
}

// Metrics is a snapshot of the analyzer's current estimates.
type Metrics struct {
	Points      int
	Variance    float64 // valid only when VarianceOK
	VarianceOK  bool
	Autocorr    float64 // valid only when AutocorrOK
	AutocorrOK  bool
	State       State
	Health      float64 // [0,1], 1 = no warning indicators
	LatestScore float64
}

// Analyzer maintains the rolling score history for one channel.
// Safe for concurrent use, though each monitor loop owns its analyzer.
type Analyzer struct {
	mu  sync.Mutex
	cfg Config
	win *window
}

// New creates an Analyzer. MinAutocorrPoints below 3 is raised to 3 since
// a correlation over fewer than two lagged pairs is meaningless.
func New(cfg Config) *Analyzer {
	if cfg.MinAutocorrPoints < 3 {
		cfg.MinAutocorrPoints = 3
	}
	return &Analyzer{
		cfg: cfg,
		win: newWindow(cfg.WindowSize),
	}
}

// Append adds one coordination score to the rolling history.
func (a *Analyzer) Append(score float64) {
	a.mu.Lock()
	a.win.add(score)
	a.mu.Unlock()
}

// Len returns the current number of points in the window.
func (a *Analyzer) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.win.len()
}

// Variance returns the sample variance of the window. ok is false with
// fewer than 2 points: insufficient data is an explicit state, never
// silently zero.
func (a *Analyzer) Variance() (v float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return variance(a.win.values())
}

// AutocorrLag1 returns the lag-1 Pearson autocorrelation of the window.
// ok is false with fewer than MinAutocorrPoints points. A constant series
// has no defined correlation and reports 0: flat history is no evidence
// of persistence.
func (a *Analyzer) AutocorrLag1() (ac float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	values := a.win.values()
	if len(values) < a.cfg.MinAutocorrPoints {
		return 0, false
	}
	return autocorrLag1(values), true
}

// Classify returns the channel's current trend. Pathological iff variance
// is defined and exceeds its threshold, or autocorrelation is defined and
// exceeds its threshold. With neither statistic defined the result is
// InsufficientData, never a false Stable.
func (a *Analyzer) Classify() State {
	m := a.Snapshot()
	return m.State
}

// Snapshot computes all current estimates in one pass.
func (a *Analyzer) Snapshot() Metrics {
	a.mu.Lock()
	values := a.win.values()
	minAC := a.cfg.MinAutocorrPoints
	cfg := a.cfg
	a.mu.Unlock()

	m := Metrics{Points: len(values), Health: 1}
	if len(values) > 0 {
		m.LatestScore = values[len(values)-1]
	}

	m.Variance, m.VarianceOK = variance(values)
	if len(values) >= minAC {
		m.Autocorr, m.AutocorrOK = autocorrLag1(values), true
	}

	switch {
	case m.VarianceOK && m.Variance > cfg.VarianceThreshold,
		m.AutocorrOK && m.Autocorr > cfg.AutocorrThreshold:
		m.State = StatePathological
	case m.VarianceOK || m.AutocorrOK:
		m.State = StateStable
	default:
		m.State = StateInsufficientData
	}

	m.Health = health(m, cfg)
	return m
}

// variance is the unbiased sample variance (n-1 denominator).
func variance(values []float64) (float64, bool) {
	n := len(values)
	if n < minVariancePoints {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n-1), true
}

// autocorrLag1 is the Pearson correlation between values[i] and
// values[i+1] over all valid i. Degenerate denominators (constant head or
// tail) yield 0.
func autocorrLag1(values []float64) float64 {
	n := len(values) - 1
	x := values[:n]
	y := values[1:]

	meanX, meanY := 0.0, 0.0
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// health folds the warning indicators into a single 0-1 score: 1 with no
// indicators, falling as variance, persistence, and the current score
// rise. Variance is normalized against its threshold so health crosses
// its midpoint as the channel approaches the pathological boundary.
func health(m Metrics, cfg Config) float64 {
	varNorm := 0.0
	if m.VarianceOK && cfg.VarianceThreshold > 0 {
		varNorm = math.Min(m.Variance/cfg.VarianceThreshold, 1)
	}
	acNorm := 0.0
	if m.AutocorrOK {
		acNorm = math.Min(math.Abs(m.Autocorr), 1)
	}
	h := 1 - (0.4*varNorm + 0.4*acNorm + 0.2*m.LatestScore)
	return math.Max(0, math.Min(1, h))
}
