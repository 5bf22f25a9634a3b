// Package monitor runs the per-channel polling loops and the supervisor
// that owns them. Each loop cycles Idle → Polling → Analyzing forever:
// fetch the next unseen batch from the cast source, run the detectors,
// feed the fused score into the channel's CSD analyzer, and hand
// pathological results to the supervisor for rate-limited alerting.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
	"github.com/abelbrown/castwatch/internal/csd"
	"github.com/abelbrown/castwatch/internal/detect"
	"github.com/abelbrown/castwatch/internal/fetch"
	"github.com/abelbrown/castwatch/internal/logging"
	"github.com/abelbrown/castwatch/internal/otel"
)

// CastArchive persists observed casts. Narrow interface so the store can
// be swapped or omitted in tests.
type CastArchive interface {
	SaveCasts(channel string, batch []cast.Cast) (int, error)
}

// loopPhase is the loop's position in its cycle.
type loopPhase string

const (
	phaseIdle      loopPhase = "idle"
	phasePolling   loopPhase = "polling"
	phaseAnalyzing loopPhase = "analyzing"
)

// loop owns all mutable state for one monitored channel: the rolling
// score history, the poll cursor, and cycle bookkeeping. Only its own
// goroutine runs cycles; the mutex exists for status snapshots.
type loop struct {
	channel  string
	source   fetch.Source
	analyzer *csd.Analyzer
	opts     Options
	archive  CastArchive
	events   *otel.Logger

	// emit hands a pathological cycle to the supervisor.
	emit func(ctx context.Context, channel string, res detect.Result, m csd.Metrics)

	mu           sync.Mutex
	phase        loopPhase
	cursor       time.Time // latest cast timestamp seen; polls resume after it
	lastPoll     time.Time
	lastErr      error
	consecErrors int
	cycles       int
}

func newLoop(channel string, source fetch.Source, archive CastArchive, events *otel.Logger,
	opts Options, emit func(context.Context, string, detect.Result, csd.Metrics)) *loop {
	if events == nil {
		events = otel.NewNullLogger()
	}
	return &loop{
		channel:  channel,
		source:   source,
		analyzer: csd.New(opts.CSD),
		opts:     opts,
		archive:  archive,
		events:   events,
		emit:     emit,
		phase:    phaseIdle,
	}
}

// run cycles until ctx is cancelled. First cycle fires immediately.
func (l *loop) run(ctx context.Context) {
	l.cycle(ctx)

	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

// cycle runs one poll/analyze pass. Cancellation at any point discards
// the partial cycle: the rolling history and cursor are only touched
// after a completed analysis.
func (l *loop) cycle(ctx context.Context) {
	start := time.Now()
	l.setPhase(phasePolling)
	defer l.setPhase(phaseIdle)

	l.events.Emit(otel.Event{Kind: otel.KindPollStart, Comp: "monitor", Channel: l.channel})

	cursor := l.snapshotCursor()
	batch, err := l.source.FetchCasts(ctx, l.channel, cursor, l.opts.BatchLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient collaborator failure. Retry next tick; a timeout is
		// never treated as an empty (quiet) batch.
		l.recordError(err)
		level := otel.LevelWarn
		if !errors.Is(err, fetch.ErrUnavailable) {
			level = otel.LevelError
		}
		l.events.Emit(otel.Event{Kind: otel.KindPollError, Level: level, Comp: "monitor", Channel: l.channel, Err: err.Error()})
		logging.Warn("Poll failed, will retry", "channel", l.channel, "error", err)
		return
	}

	batch, dropped := cast.Sanitize(batch)
	if dropped > 0 {
		logging.Debug("Dropped malformed casts", "channel", l.channel, "dropped", dropped)
	}

	if len(batch) == 0 {
		// Quiet period: not evidence of stability, so no history point.
		l.recordSuccess(cursor)
		l.events.Emit(otel.Event{Kind: otel.KindPollComplete, Comp: "monitor", Channel: l.channel, Count: 0, Dur: time.Since(start)})
		return
	}

	if l.archive != nil {
		if _, err := l.archive.SaveCasts(l.channel, batch); err != nil {
			l.events.Emit(otel.Event{Kind: otel.KindStoreError, Level: otel.LevelWarn, Comp: "store", Channel: l.channel, Err: err.Error()})
			logging.Error("Failed to archive casts", "channel", l.channel, "error", err)
		}
	}

	l.setPhase(phaseAnalyzing)
	now := time.Now()
	result := detect.Analyze(batch, l.opts.Detect, now)

	// Stop requested mid-analysis: discard, never half-merge.
	if ctx.Err() != nil {
		return
	}

	l.analyzer.Append(result.Score)
	metrics := l.analyzer.Snapshot()

	// Signals carry the channel's current rolling estimates as context.
	for i := range result.Signals {
		result.Signals[i].Variance = metrics.Variance
		result.Signals[i].Autocorr = metrics.Autocorr
	}

	l.recordSuccess(batch[len(batch)-1].Timestamp)

	l.events.Emit(otel.Event{Kind: otel.KindPollComplete, Comp: "monitor", Channel: l.channel,
		Count: len(batch), Score: result.Score, Dur: time.Since(start)})
	for _, s := range result.Signals {
		l.events.Emit(otel.Event{Kind: otel.KindSignal, Comp: "monitor", Channel: l.channel,
			Signal: string(s.Kind), Score: s.Strength, Count: len(s.Authors)})
	}

	if l.pathological(result, metrics) {
		l.emit(ctx, l.channel, result, metrics)
	}
}

// pathological applies the channel-level rule and the per-signal rule.
func (l *loop) pathological(res detect.Result, m csd.Metrics) bool {
	if m.State == csd.StatePathological {
		return true
	}
	for _, s := range res.Signals {
		if m.VarianceOK && s.Variance > l.opts.CSD.VarianceThreshold {
			return true
		}
		if m.AutocorrOK && s.Autocorr > l.opts.CSD.AutocorrThreshold {
			return true
		}
	}
	return false
}

func (l *loop) setPhase(p loopPhase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
}

func (l *loop) snapshotCursor() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

func (l *loop) recordError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.consecErrors++
	l.lastPoll = time.Now()
	l.cycles++
	l.mu.Unlock()
}

// recordSuccess advances the cursor. Idempotent: re-polling an already
// seen range yields an empty batch and leaves the cursor unchanged.
func (l *loop) recordSuccess(cursor time.Time) {
	l.mu.Lock()
	if cursor.After(l.cursor) {
		l.cursor = cursor
	}
	l.lastErr = nil
	l.consecErrors = 0
	l.lastPoll = time.Now()
	l.cycles++
	l.mu.Unlock()
}

// status snapshots the loop state for reporting.
func (l *loop) status() ChannelStatus {
	l.mu.Lock()
	phase := l.phase
	lastPoll := l.lastPoll
	lastErr := l.lastErr
	cycles := l.cycles
	cursor := l.cursor
	l.mu.Unlock()

	m := l.analyzer.Snapshot()
	st := ChannelStatus{
		Channel:  l.channel,
		Phase:    string(phase),
		State:    m.State,
		Health:   m.Health,
		Variance: m.Variance,
		Autocorr: m.Autocorr,
		Points:   m.Points,
		Cycles:   cycles,
		LastPoll: lastPoll,
		Cursor:   cursor,
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}
