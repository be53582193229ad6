package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/ecociel/remind/metrics"
	log "github.com/sirupsen/logrus"
)

type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
)

type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

// Channel is the notification category reminders are posted to.
type Channel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
	Lights      bool       `json:"lights"`
	Vibration   bool       `json:"vibration"`
}

// ReminderChannel is registered once per process.
var ReminderChannel = Channel{
	ID:          "todo_reminder_channel",
	Name:        "Task Reminders",
	Description: "Notifications for task reminders",
	Importance:  ImportanceHigh,
	Lights:      true,
	Vibration:   true,
}

// Notification occupies the slot ID; posting the same ID again replaces it.
type Notification struct {
	ID         int64    `json:"id"`
	ChannelID  string   `json:"channelId"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Priority   Priority `json:"priority"`
	AutoCancel bool     `json:"autoCancel"`
}

// Poster is the system surface that shows notifications.
type Poster interface {
	RegisterChannel(ctx context.Context, ch Channel) error
	Post(ctx context.Context, n Notification) error
}

// Gate reports whether the process may post user-visible notifications.
type Gate interface {
	Granted(ctx context.Context) (bool, error)
}

type Dispatcher struct {
	poster  Poster
	gate    Gate
	channel Channel
	metrics metrics.DeliveryMetrics

	mu         sync.Mutex
	registered bool
}

func NewDispatcher(poster Poster, gate Gate, m metrics.DeliveryMetrics) *Dispatcher {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Dispatcher{poster: poster, gate: gate, channel: ReminderChannel, metrics: m}
}

// EnsureChannelRegistered registers the reminder channel. Once it succeeded,
// later calls return immediately; a failed attempt is retried on the next call.
func (d *Dispatcher) EnsureChannelRegistered(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered {
		return nil
	}
	if err := d.poster.RegisterChannel(ctx, d.channel); err != nil {
		return fmt.Errorf("register channel %s: %w", d.channel.ID, err)
	}
	d.registered = true
	return nil
}

// Prepare registers the reminder channel and logs the permission state.
// Neither failure stops startup; Notify checks both again.
func (d *Dispatcher) Prepare(ctx context.Context) bool {
	if err := d.EnsureChannelRegistered(ctx); err != nil {
		log.Warnf("notification channel not registered yet: %v", err)
	}
	granted, err := d.gate.Granted(ctx)
	if err != nil {
		log.Warnf("notification permission unknown: %v", err)
		return false
	}
	if !granted {
		log.WithField("granted", false).Warn("notification permission denied, reminders are suppressed until granted")
		return false
	}
	log.WithField("granted", true).Info("notification permission")
	return true
}

// Notify posts into slot id when the gate grants permission. A denied
// permission is not reported to the caller.
func (d *Dispatcher) Notify(ctx context.Context, id int64, title, body string) error {
	granted, err := d.gate.Granted(ctx)
	if err != nil {
		d.metrics.NotificationFailed()
		return fmt.Errorf("check notification permission: %w", err)
	}
	if !granted {
		log.WithField("id", id).Debug("notification permission denied, skipping")
		d.metrics.NotificationSuppressed()
		return nil
	}
	if err := d.EnsureChannelRegistered(ctx); err != nil {
		d.metrics.NotificationFailed()
		return err
	}
	n := Notification{
		ID:         id,
		ChannelID:  d.channel.ID,
		Title:      title,
		Body:       body,
		Priority:   PriorityHigh,
		AutoCancel: true,
	}
	if err := d.poster.Post(ctx, n); err != nil {
		d.metrics.NotificationFailed()
		return fmt.Errorf("post notification %d: %w", id, err)
	}
	d.metrics.NotificationPosted()
	return nil
}
