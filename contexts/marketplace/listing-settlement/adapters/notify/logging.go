package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// LogNotifier delivers notifications to the structured log. It stands in for
// the push/SMS channel until one is wired.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, notification ports.Notification) error {
	application.ResolveLogger(n.Logger).Info("listing notification dispatched",
		"event", "settlement_notification_dispatched",
		"module", "marketplace/listing-settlement",
		"layer", "adapter",
		"event_id", notification.EventID,
		"event_type", notification.EventType,
		"listing_id", notification.ListingID,
		"entity_id", notification.EntityID,
		"status", notification.Status,
	)
	return nil
}

// LogAlerter writes operator alerts at error level so log-based paging
// picks them up.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a LogAlerter) Alert(_ context.Context, severity string, message string, attrs map[string]string) {
	args := []any{
		"event", "settlement_operator_alert",
		"module", "marketplace/listing-settlement",
		"layer", "adapter",
		"severity", severity,
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, key, attrs[key])
	}
	application.ResolveLogger(a.Logger).Error(message, args...)
}

// Alert is one raised operator alert.
type Alert struct {
	Severity string
	Message  string
	Attrs    map[string]string
}

// RecordingAlerter keeps alerts in memory for tests and local inspection.
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *RecordingAlerter) Alert(_ context.Context, severity string, message string, attrs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, Alert{Severity: severity, Message: message, Attrs: attrs})
}

func (r *RecordingAlerter) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// RecordingNotifier keeps notifications in memory.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []ports.Notification
	Err   error
}

func (r *RecordingNotifier) Notify(_ context.Context, notification ports.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, notification)
	return r.Err
}

func (r *RecordingNotifier) Notifications() []ports.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Notification(nil), r.items...)
}
