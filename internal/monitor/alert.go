package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
	"github.com/abelbrown/castwatch/internal/logging"
)

// KindTrend marks an alert raised by the channel-level CSD classification
// alone, with no individual signal in the triggering batch. It shares the
// per-(channel, kind) cool-down table with the detector kinds.
const KindTrend cast.SignalKind = "csd_trend"

// Alert is the structured record delivered to sinks when a channel turns
// pathological. Delivery transport and retries belong to the sink.
type Alert struct {
	ID         string
	Channel    string
	Time       time.Time
	Kinds      []cast.SignalKind
	Severity   float64 // max triggering signal strength, [0,1]
	Variance   float64
	Autocorr   float64
	Health     float64
	Suppressed int // pathological cycles swallowed by the cool-down since the last emission
	Signals    []cast.Signal
	Summary    string
}

// summary renders the human-readable line carried in the alert.
func (a Alert) summary() string {
	kinds := make([]string, len(a.Kinds))
	for i, k := range a.Kinds {
		kinds[i] = string(k)
	}
	s := fmt.Sprintf("channel %s pathological: %s (severity %.2f, variance %.4f, autocorr %.3f)",
		a.Channel, strings.Join(kinds, "+"), a.Severity, a.Variance, a.Autocorr)
	if a.Suppressed > 0 {
		s += fmt.Sprintf(", %d earlier detections suppressed by cool-down", a.Suppressed)
	}
	return s
}

// AlertSink receives emitted alerts.
type AlertSink interface {
	Deliver(ctx context.Context, alert Alert) error
}

// LogSink writes alerts to the structured log. The zero value is usable.
type LogSink struct{}

// Deliver implements AlertSink.
func (LogSink) Deliver(_ context.Context, alert Alert) error {
	logging.Warn("COORDINATION ALERT",
		"channel", alert.Channel,
		"kinds", alert.Kinds,
		"severity", alert.Severity,
		"variance", alert.Variance,
		"autocorr", alert.Autocorr,
		"health", alert.Health,
		"suppressed", alert.Suppressed,
		"summary", alert.Summary)
	return nil
}

// MultiSink fans an alert out to several sinks. A failing sink is logged
// and does not stop delivery to the others.
type MultiSink []AlertSink

// Deliver implements AlertSink.
func (m MultiSink) Deliver(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Deliver(ctx, alert); err != nil {
			logging.Error("Alert sink failed", "channel", alert.Channel, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
