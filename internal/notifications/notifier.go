// Package notifications fans confession lifecycle events out to the other
// instances of the service over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"confessions/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventsChannel carries every committed lifecycle event.
const EventsChannel = "confessions:events"

// EventType names a committed operation.
type EventType string

const (
	EventSubmitted   EventType = "confession.submitted"
	EventApproved    EventType = "confession.approved"
	EventRejected    EventType = "confession.rejected"
	EventLikeToggled EventType = "confession.like_toggled"
	EventCommented   EventType = "confession.commented"
	EventResync      EventType = "confessions.resync"
)

// Event is the payload published on EventsChannel.
type Event struct {
	Type         EventType `json:"type"`
	ConfessionID int64     `json:"confession_id,omitempty"`
	Instance     string    `json:"instance"`
	At           time.Time `json:"at"`
}

// Notifier provides helpers to publish lifecycle events into Redis channels.
type Notifier struct {
	rdb      *redis.Client
	instance string
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// Each notifier gets a random instance id so it can skip its own events.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, instance: uuid.NewString()}
}

// InstanceID identifies this process on the events channel.
func (n *Notifier) InstanceID() string {
	return n.instance
}

// Publish stamps ev with this instance and the current time and sends it.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	ev.Instance = n.instance
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		return err
	}
	observability.SyncEvents.WithLabelValues("out", string(ev.Type)).Inc()
	return nil
}

// StartEventSubscriber subscribes to EventsChannel and calls onEvent for every
// event published by another instance. It returns once the subscription is
// confirmed; delivery stops when ctx is cancelled.
func (n *Notifier) StartEventSubscriber(ctx context.Context, onEvent func(Event)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("Ignoring malformed event on %s: %v", msg.Channel, err)
					continue
				}
				if ev.Instance == n.instance {
					continue
				}
				observability.SyncEvents.WithLabelValues("in", string(ev.Type)).Inc()
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in EventSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
