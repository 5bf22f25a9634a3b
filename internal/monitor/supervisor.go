package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/castwatch/internal/cast"
	"github.com/abelbrown/castwatch/internal/csd"
	"github.com/abelbrown/castwatch/internal/detect"
	"github.com/abelbrown/castwatch/internal/fetch"
	"github.com/abelbrown/castwatch/internal/logging"
	"github.com/abelbrown/castwatch/internal/otel"
)

// Options tunes the supervisor and every loop it owns. Built once from
// the validated config and never mutated.
type Options struct {
	Detect         detect.Config
	CSD            csd.Config
	PollInterval   time.Duration
	BatchLimit     int
	AlertCooldown  time.Duration
	StatusInterval time.Duration // 0 disables the periodic status report
}

// ChannelStatus is a point-in-time view of one monitored channel.
type ChannelStatus struct {
	Channel   string
	Phase     string
	State     csd.State
	Level     string // healthy | monitoring | warning | critical
	Health    float64
	Variance  float64
	Autocorr  float64
	Points    int
	Cycles    int
	LastPoll  time.Time
	Cursor    time.Time
	LastError string
}

// cooldownEntry tracks alert rate limiting for one (channel, kind) pair.
type cooldownEntry struct {
	lastEmit   time.Time
	suppressed int
}

type runningLoop struct {
	loop   *loop
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the set of channel monitor loops. Loops run
// independently and share no mutable state except the supervisor's
// mutex-guarded alert cool-down table. An error in one channel's cycle
// never reaches another channel or the supervisor itself.
type Supervisor struct {
	source  fetch.Source
	sink    AlertSink
	archive CastArchive
	events  *otel.Logger
	opts    Options

	mu           sync.Mutex
	loops        map[string]*runningLoop
	cooldown     map[string]*cooldownEntry // "channel/kind"
	lastAlert    map[string]time.Time      // channel -> last emission, for status levels
	reportCancel context.CancelFunc        // nil until the status reporter starts

	wg sync.WaitGroup
}

// NewSupervisor creates a Supervisor. archive may be nil to skip
// persistence; events may be nil for no observability (a NullLogger is
// substituted, behavior is identical either way); sink may be nil for
// log-only alerting.
func NewSupervisor(source fetch.Source, sink AlertSink, archive CastArchive, events *otel.Logger, opts Options) *Supervisor {
	if sink == nil {
		sink = LogSink{}
	}
	if events == nil {
		events = otel.NewNullLogger()
	}
	return &Supervisor{
		source:    source,
		sink:      sink,
		archive:   archive,
		events:    events,
		opts:      opts,
		loops:     make(map[string]*runningLoop),
		cooldown:  make(map[string]*cooldownEntry),
		lastAlert: make(map[string]time.Time),
	}
}

// Start launches a monitor loop for each named channel. Channels already
// running are left alone. The loops stop when ctx is cancelled or the
// channel is stopped explicitly.
func (s *Supervisor) Start(ctx context.Context, channels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range channels {
		if _, running := s.loops[ch]; running {
			continue
		}

		loopCtx, cancel := context.WithCancel(ctx)
		l := newLoop(ch, s.source, s.archive, s.events, s.opts, s.emitAlert)
		rl := &runningLoop{loop: l, cancel: cancel, done: make(chan struct{})}
		s.loops[ch] = rl

		s.wg.Add(1)
		go func(ch string) {
			defer s.wg.Done()
			defer close(rl.done)
			l.run(loopCtx)
			s.events.Emit(otel.Event{Kind: otel.KindMonitorStop, Comp: "monitor", Channel: ch})
		}(ch)

		s.events.Emit(otel.Event{Kind: otel.KindMonitorStart, Comp: "monitor", Channel: ch})
		logging.Info("Channel monitor started", "channel", ch)
	}

	if s.opts.StatusInterval > 0 && s.reportCancel == nil {
		reportCtx, cancel := context.WithCancel(ctx)
		s.reportCancel = cancel
		s.wg.Add(1)
		go s.statusReporter(reportCtx)
	}
}

// Stop stops one channel's loop and waits for its cycle to wind down.
// Safe to call at any point in the cycle: a partial analysis is discarded,
// never half-merged into the rolling history. Stopping an unknown channel
// is a no-op.
func (s *Supervisor) Stop(channel string) {
	s.mu.Lock()
	rl, ok := s.loops[channel]
	if ok {
		delete(s.loops, channel)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	rl.cancel()
	<-rl.done
	logging.Info("Channel monitor stopped", "channel", channel)
}

// StopAll stops every loop and the status reporter, then waits.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	loops := s.loops
	s.loops = make(map[string]*runningLoop)
	reportCancel := s.reportCancel
	s.reportCancel = nil
	s.mu.Unlock()

	for _, rl := range loops {
		rl.cancel()
	}
	if reportCancel != nil {
		reportCancel()
	}
	s.wg.Wait()
}

// Channels returns the names of currently monitored channels.
func (s *Supervisor) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.loops))
	for ch := range s.loops {
		names = append(names, ch)
	}
	return names
}

// Status snapshots every running channel.
func (s *Supervisor) Status() []ChannelStatus {
	s.mu.Lock()
	loops := make([]*loop, 0, len(s.loops))
	for _, rl := range s.loops {
		loops = append(loops, rl.loop)
	}
	s.mu.Unlock()

	statuses := make([]ChannelStatus, 0, len(loops))
	for _, l := range loops {
		st := l.status()
		st.Level = s.level(st)
		statuses = append(statuses, st)
	}
	return statuses
}

// PollOnce runs a single cycle for each named channel concurrently,
// without starting persistent loops. Used by the one-shot test mode.
func (s *Supervisor) PollOnce(ctx context.Context, channels ...string) ([]ChannelStatus, error) {
	g, gctx := errgroup.WithContext(ctx)

	loops := make([]*loop, len(channels))
	for i, ch := range channels {
		i, ch := i, ch
		loops[i] = newLoop(ch, s.source, s.archive, s.events, s.opts, s.emitAlert)
		g.Go(func() error {
			loops[i].cycle(gctx)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	statuses := make([]ChannelStatus, len(loops))
	for i, l := range loops {
		statuses[i] = l.status()
		statuses[i].Level = s.level(statuses[i])
	}
	return statuses, nil
}

// emitAlert is called by a loop whose cycle came back pathological.
// Rate limiting happens here: each (channel, kind) pair emits at most
// once per cool-down window; detections inside the window only bump the
// suppressed counter, surfaced on the next allowed emission.
func (s *Supervisor) emitAlert(ctx context.Context, channel string, res detect.Result, m csd.Metrics) {
	// A stopped channel emits nothing, even from an in-flight cycle.
	if ctx.Err() != nil {
		return
	}

	kinds := presentKinds(res.Signals)
	if len(kinds) == 0 {
		kinds = []cast.SignalKind{KindTrend}
	}

	now := time.Now()
	var allowed []cast.SignalKind
	suppressed := 0

	s.mu.Lock()
	for _, k := range kinds {
		key := channel + "/" + string(k)
		entry, ok := s.cooldown[key]
		if !ok {
			entry = &cooldownEntry{}
			s.cooldown[key] = entry
		}
		if !entry.lastEmit.IsZero() && now.Sub(entry.lastEmit) < s.opts.AlertCooldown {
			entry.suppressed++
			continue
		}
		allowed = append(allowed, k)
		suppressed += entry.suppressed
		entry.suppressed = 0
		entry.lastEmit = now
	}
	if len(allowed) > 0 {
		s.lastAlert[channel] = now
	}
	s.mu.Unlock()

	if len(allowed) == 0 {
		logging.Debug("Alert suppressed by cool-down", "channel", channel, "kinds", kinds)
		return
	}

	alert := Alert{
		ID:         uuid.NewString(),
		Channel:    channel,
		Time:       now,
		Kinds:      allowed,
		Severity:   maxSeverity(res.Signals),
		Variance:   m.Variance,
		Autocorr:   m.Autocorr,
		Health:     m.Health,
		Suppressed: suppressed,
		Signals:    triggering(res.Signals, allowed),
	}
	alert.Summary = alert.summary()

	if err := s.sink.Deliver(ctx, alert); err != nil {
		logging.Error("Alert delivery failed", "channel", channel, "error", err)
	}
	s.events.Emit(otel.Event{Kind: otel.KindAlert, Level: otel.LevelWarn, Comp: "monitor",
		Channel: channel, Score: alert.Severity, Count: len(alert.Signals),
		Msg: alert.Summary})
}

// statusReporter periodically logs every channel's health.
func (s *Supervisor) statusReporter(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range s.Status() {
				kv := []interface{}{
					"channel", st.Channel,
					"level", st.Level,
					"state", st.State,
					"health", fmt.Sprintf("%.2f", st.Health),
					"points", st.Points,
				}
				if st.Level == "healthy" {
					logging.Info("Channel status", kv...)
				} else {
					logging.Warn("Channel status", kv...)
				}
			}
		}
	}
}

// level maps analyzer output and recent alert activity to a coarse
// operator-facing level.
func (s *Supervisor) level(st ChannelStatus) string {
	if st.State == csd.StateInsufficientData {
		return "monitoring"
	}
	switch {
	case st.Health < 0.3:
		return "critical"
	case st.Health < 0.6:
		return "warning"
	}

	s.mu.Lock()
	last, ok := s.lastAlert[st.Channel]
	s.mu.Unlock()
	if ok && time.Since(last) < 10*time.Minute {
		return "monitoring"
	}
	return "healthy"
}

func presentKinds(signals []cast.Signal) []cast.SignalKind {
	seen := make(map[cast.SignalKind]bool)
	var kinds []cast.SignalKind
	for _, s := range signals {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

func maxSeverity(signals []cast.Signal) float64 {
	best := 0.0
	for _, s := range signals {
		if s.Strength > best {
			best = s.Strength
		}
	}
	return best
}

func triggering(signals []cast.Signal, kinds []cast.SignalKind) []cast.Signal {
	allowed := make(map[cast.SignalKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	var out []cast.Signal
	for _, s := range signals {
		if allowed[s.Kind] {
			out = append(out, s)
		}
	}
	return out
}
