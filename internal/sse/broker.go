// Package sse streams recipe change events to browsers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/feinschmecker/internal/mutation"
)

// Event types.
const (
	TypeRecipeCreated = "recipe.created"
	TypeRecipeUpdated = "recipe.updated"
	TypeRecipeDeleted = "recipe.deleted"
	TypeGraphUpdated  = "graph.updated"
)

const (
	// historySize bounds the events kept for Last-Event-ID replay and is
	// also the per-client buffer.
	historySize = 128
	keepAlive   = 15 * time.Second
)

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RecipeChange is the data of recipe.* events.
type RecipeChange struct {
	ID      string `json:"id"`
	Version int64  `json:"version,omitempty"`
}

// GraphUpdate is the data of graph.updated events. Path is set when the
// graph file was replaced by another process.
type GraphUpdate struct {
	Version int64  `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

var eventTypes = map[string]string{
	mutation.OpCreate: TypeRecipeCreated,
	mutation.OpUpdate: TypeRecipeUpdated,
	mutation.OpDelete: TypeRecipeDeleted,
}

// Filter selects the recipe events a client receives. Graph events are
// always delivered.
type Filter struct {
	Recipe string
}

func (f Filter) match(fr frame) bool {
	return f.Recipe == "" || fr.recipe == "" || fr.recipe == f.Recipe
}

// frame is an encoded event. recipe is empty for non-recipe events.
type frame struct {
	id     uint64
	recipe string
	raw    []byte
}

type subscription struct {
	ch     chan []byte
	filter Filter
	after  uint64
}

// Broker fans events out to connected clients.
//
// A single goroutine owns the client set, the replay history and the
// graph.updated throttle; public methods talk to it over channels.
// Publish and PublishChange return once the loop has taken the event, so a
// later Subscribe with a replay id sees it.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan mutation.Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends at most one graph.updated event per
// graphThrottle. Versions arriving inside the window are coalesced into one
// trailing event carrying the newest version.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event),
		changeCh:      make(chan mutation.Change),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]Filter)
	var (
		seq     uint64
		history []frame

		lastGraph  time.Time
		pending    bool
		pendingVer int64
		timer      *time.Timer
		timerC     <-chan time.Time
	)

	emit := func(event Event, recipe string) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		fr := frame{
			id:     seq,
			recipe: recipe,
			raw:    []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)),
		}
		history = append(history, fr)
		if len(history) > historySize {
			history = history[len(history)-historySize:]
		}
		for ch, f := range clients {
			if !f.match(fr) {
				continue
			}
			select {
			case ch <- fr.raw:
			default:
				// Slow client; it can catch up with Last-Event-ID.
			}
		}
	}

	graphChanged := func(version int64) {
		wait := b.graphMin - time.Since(lastGraph)
		if wait <= 0 {
			lastGraph = time.Now()
			emit(Event{Type: TypeGraphUpdated, Data: GraphUpdate{Version: version}}, "")
			return
		}
		pending, pendingVer = true, version
		if timerC == nil {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.filter
			if sub.after == 0 {
				continue
			}
			for _, fr := range history {
				if fr.id <= sub.after || !sub.filter.match(fr) {
					continue
				}
				select {
				case sub.ch <- fr.raw:
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			var recipe string
			if rc, ok := event.Data.(RecipeChange); ok {
				recipe = rc.ID
			}
			emit(event, recipe)

		case c := <-b.changeCh:
			typ, ok := eventTypes[c.Op]
			if !ok {
				continue
			}
			emit(Event{Type: typ, Data: RecipeChange{ID: c.ID, Version: c.Version}}, c.ID)
			graphChanged(c.Version)

		case <-timerC:
			timerC = nil
			if pending {
				pending = false
				lastGraph = time.Now()
				emit(Event{Type: TypeGraphUpdated, Data: GraphUpdate{Version: pendingVer}}, "")
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client receiving the events f selects. A non-zero
// lastID first replays the retained events newer than it.
func (b *Broker) Subscribe(f Filter, lastID uint64) chan []byte {
	ch := make(chan []byte, historySize)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, filter: f, after: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishGraphFile announces that the graph file at path was replaced
// outside this process.
func (b *Broker) PublishGraphFile(path string) {
	b.Publish(Event{Type: TypeGraphUpdated, Data: GraphUpdate{Path: path}})
}

// PublishChange sends the recipe event for c and a throttled graph.updated.
func (b *Broker) PublishChange(c mutation.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// Hook returns a mutation hook that publishes every committed change.
func (b *Broker) Hook() mutation.Hook {
	return func(_ context.Context, c mutation.Change) { b.PublishChange(c) }
}

// ServeHTTP is the GET /events handler. ?recipe=<id> limits recipe events
// to one recipe; a Last-Event-ID header resumes after that event.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	filter := Filter{Recipe: r.URL.Query().Get("recipe")}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(filter, lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
