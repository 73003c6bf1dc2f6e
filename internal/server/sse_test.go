package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(node string, n int) Event {
	return Event{Type: EventStep, Node: node, Step: n, Message: "Finished step: " + node}
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroadcaster_SendAndSubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(0)
	defer sub.Cancel()

	b.Send(step("researcher", 1))
	ev := receive(t, sub.Events)
	assert.Equal(t, "researcher", ev.Node)
	assert.Equal(t, 1, ev.ID)
}

func TestBroadcaster_HistoryReplay(t *testing.T) {
	b := NewBroadcaster()
	b.Send(step("researcher", 1))
	b.Send(step("writer", 2))

	sub := b.Subscribe(0)
	defer sub.Cancel()
	assert.Equal(t, "researcher", receive(t, sub.Events).Node)
	assert.Equal(t, "writer", receive(t, sub.Events).Node)
}

func TestBroadcaster_ResumeAfterID(t *testing.T) {
	b := NewBroadcaster()
	b.Send(step("researcher", 1))
	b.Send(step("writer", 2))

	sub := b.Subscribe(1)
	defer sub.Cancel()
	ev := receive(t, sub.Events)
	assert.Equal(t, "writer", ev.Node)
	assert.Equal(t, 2, ev.ID)

	b.Send(step("editor", 3))
	assert.Equal(t, 3, receive(t, sub.Events).ID)

	beyond := b.Subscribe(99)
	defer beyond.Cancel()
	b.Send(step("x", 4))
	assert.Equal(t, 4, receive(t, beyond.Events).ID)
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	sub1 := b.Subscribe(0)
	defer sub1.Cancel()
	sub2 := b.Subscribe(0)
	defer sub2.Cancel()

	b.Send(step("writer", 1))
	assert.Equal(t, "writer", receive(t, sub1.Events).Node)
	assert.Equal(t, "writer", receive(t, sub2.Events).Node)
	sub1.Cancel()
	sub1.Cancel()
}

func TestBroadcaster_CloseAndLateSubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(0)
	defer sub.Cancel()

	b.Send(step("writer", 1))
	b.Close()
	b.Close()
	b.Send(step("ignored", 2))

	var got []Event
	for ev := range sub.Events {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	_, open := <-sub.Finished
	assert.False(t, open)

	late := b.Subscribe(0)
	got = got[:0]
	for ev := range late.Events {
		got = append(got, ev)
	}
	require.Len(t, got, 1, "late subscribers get history, then a closed channel")
	assert.Len(t, b.History(), 1)
}

func TestBroadcaster_LargeHistoryDoesNotBlockSubscribe(t *testing.T) {
	b := NewBroadcaster()
	for i := range 300 {
		b.Send(step("n", i))
	}

	done := make(chan int)
	go func() {
		sub := b.Subscribe(0)
		defer sub.Cancel()
		count := 0
		for range sub.Events {
			count++
			if count == 300 {
				break
			}
		}
		done <- count
	}()

	select {
	case n := <-done:
		assert.Equal(t, 300, n)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe blocked on a large history")
	}
}

func TestBroadcaster_SlowClientDropKeepsDoneOpen(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(0)

	for i := range subscriberSlack + 1 {
		b.Send(step("n", i))
	}

	drained := 0
	for range sub.Events {
		drained++
	}
	assert.Equal(t, subscriberSlack, drained)

	select {
	case <-sub.Finished:
		t.Fatal("done closed on slow-client drop")
	default:
	}
	b.Close()
}

func TestWriteSSE_ReplaysThenDone(t *testing.T) {
	b := NewBroadcaster()
	b.Send(step("researcher", 1))
	b.Send(step("writer", 2))
	b.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/x/events", nil)
	WriteSSE(rec, req, b)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: step\n"))
	assert.Contains(t, body, "id: 1\nevent: step\n")
	assert.Contains(t, body, `"message":"Finished step: researcher"`)
	assert.NotContains(t, body, `"id"`)
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))
}

func TestWriteSSE_ResumesFromLastEventID(t *testing.T) {
	b := NewBroadcaster()
	b.Send(step("researcher", 1))
	b.Send(step("writer", 2))
	b.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/x/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	WriteSSE(rec, req, b)

	body := rec.Body.String()
	assert.NotContains(t, body, "researcher")
	assert.Contains(t, body, "id: 2\nevent: step\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))

	req.Header.Set("Last-Event-ID", "garbage")
	rec = httptest.NewRecorder()
	WriteSSE(rec, req, b)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "event: step\n"))
}
