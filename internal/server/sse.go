package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// subscriberSlack is how many live events a subscriber may fall behind before
// it is cut off.
const subscriberSlack = 64

// Subscription is one reader of a run's progress.
type Subscription struct {
	// Events replays the requested part of the run's history, then carries
	// live events. It is closed when the run finishes or the reader is cut off.
	Events <-chan Event
	// Finished is closed once the run has published its last event.
	Finished <-chan struct{}

	cancel func()
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// Broadcaster keeps the progress log of one run and fans it out to readers.
// Each event gets ID = its 1-based position in the log.
type Broadcaster struct {
	mu       sync.Mutex
	log      []Event
	subs     map[chan Event]struct{}
	finished chan struct{}
	closed   bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:     make(map[chan Event]struct{}),
		finished: make(chan struct{}),
	}
}

// Send appends ev to the log and hands it to every reader. Readers that are
// subscriberSlack events behind lose their subscription; the run never waits.
func (b *Broadcaster) Send(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ev.ID = len(b.log) + 1
	b.log = append(b.log, ev)
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.detach(ch)
		}
	}
}

// Subscribe starts reading after event ID after (0 for the whole log).
func (b *Broadcaster) Subscribe(after int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	after = min(max(after, 0), len(b.log))
	backlog := b.log[after:]
	ch := make(chan Event, len(backlog)+subscriberSlack)
	for _, ev := range backlog {
		ch <- ev
	}

	sub := &Subscription{Events: ch, Finished: b.finished, cancel: func() {}}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[ch] = struct{}{}
	sub.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.detach(ch)
	}
	return sub
}

// detach must be called with b.mu held.
func (b *Broadcaster) detach(ch chan Event) {
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Close marks the run finished and ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.finished)
	for ch := range b.subs {
		b.detach(ch)
	}
}

func (b *Broadcaster) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.log...)
}

// lastEventID reads the resume point a reconnecting EventSource sends.
func lastEventID(r *http.Request) int {
	id, err := strconv.Atoi(strings.TrimSpace(r.Header.Get("Last-Event-ID")))
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func writeFrame(w io.Writer, id int, name string, data []byte) error {
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// WriteSSE streams a run's events to one HTTP client. A "done" event follows
// the last step when the run finishes; a client that was cut off for falling
// behind just sees the stream end and can reconnect with Last-Event-ID.
func WriteSSE(w http.ResponseWriter, r *http.Request, b *Broadcaster) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := b.Subscribe(lastEventID(r))
	defer sub.Cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				select {
				case <-sub.Finished:
					_ = writeFrame(w, 0, "done", []byte("{}"))
					flusher.Flush()
				default:
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := writeFrame(w, ev.ID, ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
