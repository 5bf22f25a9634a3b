package store

import (
	"context"

	"github.com/abelbrown/castwatch/internal/monitor"
)

// AlertSink adapts a Store to the monitor's alert sink interface so
// every emitted alert lands in the alerts table.
type AlertSink struct {
	store *Store
}

// NewAlertSink creates an AlertSink backed by the store.
func NewAlertSink(s *Store) *AlertSink {
	return &AlertSink{store: s}
}

// Deliver implements monitor.AlertSink.
func (k *AlertSink) Deliver(_ context.Context, alert monitor.Alert) error {
	kinds := make([]string, len(alert.Kinds))
	for i, kind := range alert.Kinds {
		kinds[i] = string(kind)
	}
	return k.store.SaveAlert(AlertRecord{
		ID:         alert.ID,
		Channel:    alert.Channel,
		CreatedAt:  alert.Time,
		Kinds:      kinds,
		Severity:   alert.Severity,
		Variance:   alert.Variance,
		Autocorr:   alert.Autocorr,
		Suppressed: alert.Suppressed,
		Summary:    alert.Summary,
	})
}
