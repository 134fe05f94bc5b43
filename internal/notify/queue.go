// Package notify holds the ordered queue of transient outcome messages.
// The queue owns every auto-dismiss timer; nothing in the rendering layer
// keeps one.
package notify

import (
	"sync"
	"time"

	"github.com/endolabs/endo-cli/internal/config"
	"github.com/rs/xid"
	"go.uber.org/fx"
)

// Category classifies a notification for display purposes.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// Notification is a transient message reporting the outcome of a user
// action. It disappears when its timer expires or when dismissed,
// whichever happens first.
type Notification struct {
	ID        string
	Message   string
	Category  Category
	CreatedAt time.Time
}

type entry struct {
	notification Notification
	timer        *time.Timer
}

// Queue keeps notifications in insertion order. Identical messages are
// not deduplicated.
type Queue struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries []*entry
	updates chan struct{}
	closed  bool
}

type QueueParams struct {
	fx.In

	Config *config.Config
}

func NewQueue(params QueueParams) *Queue {
	ttl := params.Config.Notifications.TTL
	return newQueue(ttl)
}

func newQueue(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Queue{
		ttl:     ttl,
		updates: make(chan struct{}, 1),
	}
}

// Enqueue appends a notification and schedules its auto-dismiss. The
// generated id is returned so tests and the dismiss key binding can
// target it.
func (q *Queue) Enqueue(message string, category Category) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ""
	}

	id := xid.New().String()
	e := &entry{
		notification: Notification{
			ID:        id,
			Message:   message,
			Category:  category,
			CreatedAt: time.Now(),
		},
	}
	e.timer = time.AfterFunc(q.ttl, func() {
		q.Dismiss(id)
	})
	q.entries = append(q.entries, e)
	q.signalLocked()
	return id
}

// Success enqueues a success notification.
func (q *Queue) Success(message string) string {
	return q.Enqueue(message, CategorySuccess)
}

// Error enqueues an error notification.
func (q *Queue) Error(message string) string {
	return q.Enqueue(message, CategoryError)
}

// Dismiss removes the notification and cancels its timer. Dismissing an
// id that is already gone is a no-op, so a late timer firing after a
// manual dismissal has no observable effect.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.notification.ID == id {
			e.timer.Stop()
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.signalLocked()
			return
		}
	}
}

// Items returns the current notifications in insertion order.
func (q *Queue) Items() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Notification, len(q.entries))
	for i, e := range q.entries {
		items[i] = e.notification
	}
	return items
}

// Updates signals whenever the queue content changes. The channel has a
// one-slot buffer; consumers coalesce bursts.
func (q *Queue) Updates() <-chan struct{} {
	return q.updates
}

// Close cancels all pending timers. Further enqueues are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
}

func (q *Queue) signalLocked() {
	select {
	case q.updates <- struct{}{}:
	default:
	}
}

// Module provides the notification queue dependencies
var Module = fx.Module("notify",
	fx.Provide(
		NewQueue,
	),
)
