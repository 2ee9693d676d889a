package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedis(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.Publish(context.Background(), Event{Type: EventApproved, ConfessionID: 1}))
	assert.NoError(t, n.StartEventSubscriber(context.Background(), func(Event) {}))
	assert.NotEmpty(t, n.InstanceID())
}

func TestNotifier_DeliversForeignEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewNotifier(newClient(t, mr))
	b := NewNotifier(newClient(t, mr))
	require.NotEqual(t, a.InstanceID(), b.InstanceID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	require.NoError(t, b.StartEventSubscriber(ctx, func(ev Event) { got <- ev }))

	require.NoError(t, a.Publish(context.Background(), Event{Type: EventApproved, ConfessionID: 42}))

	select {
	case ev := <-got:
		assert.Equal(t, EventApproved, ev.Type)
		assert.Equal(t, int64(42), ev.ConfessionID)
		assert.Equal(t, a.InstanceID(), ev.Instance)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNotifier_SkipsOwnAndMalformedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := newClient(t, mr)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	require.NoError(t, n.StartEventSubscriber(ctx, func(ev Event) { got <- ev }))

	require.NoError(t, n.Publish(context.Background(), Event{Type: EventSubmitted, ConfessionID: 1}))
	require.NoError(t, rdb.Publish(context.Background(), EventsChannel, "{nope").Err())

	foreign, err := json.Marshal(Event{Type: EventRejected, ConfessionID: 2, Instance: "other"})
	require.NoError(t, err)
	require.NoError(t, rdb.Publish(context.Background(), EventsChannel, foreign).Err())

	select {
	case ev := <-got:
		assert.Equal(t, EventRejected, ev.Type)
		assert.Equal(t, int64(2), ev.ConfessionID)
	case <-time.After(time.Second):
		t.Fatal("foreign event not delivered")
	}
	assert.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_HandlerPanicDoesNotStopSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := newClient(t, mr)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 2)
	require.NoError(t, n.StartEventSubscriber(ctx, func(ev Event) {
		if ev.ConfessionID == 1 {
			panic("boom")
		}
		got <- ev.ConfessionID
	}))

	for _, id := range []int64{1, 2} {
		b, err := json.Marshal(Event{Type: EventApproved, ConfessionID: id, Instance: "peer"})
		require.NoError(t, err)
		require.NoError(t, rdb.Publish(context.Background(), EventsChannel, b).Err())
	}

	select {
	case id := <-got:
		assert.Equal(t, int64(2), id)
	case <-time.After(time.Second):
		t.Fatal("subscriber stopped after panic")
	}
}
