// Package relaytest runs an in-process relay for tests. Stored events are
// served in the order they were seeded, which stands in for the upstream's
// hotness ranking.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/relay"
)

type Relay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	stored       []nostr.Event
	published    []nostr.Event
	conns        map[*conn]struct{}
	reqs         []nostr.Filter
	withholdEOSE bool
	rejectReason string
	closeReason  string
	eventDelay   time.Duration
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string][]nostr.Filter
}

func New() *Relay {
	r := &Relay{conns: make(map[*conn]struct{})}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// URL is the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *Relay) Close() {
	r.DropConnections()
	r.srv.Close()
}

// Seed stores events to be served to subscriptions.
func (r *Relay) Seed(events ...nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, events...)
}

// Published returns the events clients have sent.
func (r *Relay) Published() []nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nostr.Event(nil), r.published...)
}

// Requests returns every filter received in a REQ.
func (r *Relay) Requests() []nostr.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nostr.Filter(nil), r.reqs...)
}

// WaitForPublished polls until match returns true for n published events
// or timeout elapses, returning the matching events.
func (r *Relay) WaitForPublished(n int, timeout time.Duration, match func(nostr.Event) bool) []nostr.Event {
	deadline := time.Now().Add(timeout)
	for {
		var got []nostr.Event
		for _, ev := range r.Published() {
			if match == nil || match(ev) {
				got = append(got, ev)
			}
		}
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WithholdEOSE stops the relay from ever signalling end of stored events.
func (r *Relay) WithholdEOSE(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withholdEOSE = on
}

// RejectPublishes answers every EVENT with OK false and reason. An empty
// reason accepts again.
func (r *Relay) RejectPublishes(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectReason = reason
}

// CloseSubscriptions answers every REQ with CLOSED and reason.
func (r *Relay) CloseSubscriptions(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeReason = reason
}

// SlowEvents delays each stored event sent in reply to a REQ.
func (r *Relay) SlowEvents(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventDelay = d
}

// DropConnections closes every client connection from the server side.
func (r *Relay) DropConnections() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[*conn]struct{})
	r.mu.Unlock()
	for c := range conns {
		_ = c.ws.Close()
	}
}

// ConnectionCount reports live client connections.
func (r *Relay) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws, subs: make(map[string][]nostr.Filter)}

	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.conns, c)
		r.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := relay.ParseMessage(data)
		if err != nil {
			c.send(relay.EncodeNotice("invalid: " + err.Error()))
			continue
		}
		switch msg.Label {
		case relay.LabelReq:
			r.handleReq(c, msg)
		case relay.LabelClose:
			c.mu.Lock()
			delete(c.subs, msg.SubscriptionID)
			c.mu.Unlock()
		case relay.LabelEvent:
			r.handleEvent(c, *msg.Event)
		}
	}
}

func (r *Relay) handleReq(c *conn, msg *relay.Message) {
	r.mu.Lock()
	r.reqs = append(r.reqs, msg.Filters...)
	closeReason := r.closeReason
	withhold := r.withholdEOSE
	delay := r.eventDelay
	stored := append([]nostr.Event(nil), r.stored...)
	r.mu.Unlock()

	if closeReason != "" {
		c.send(relay.EncodeClosed(msg.SubscriptionID, closeReason))
		return
	}

	c.mu.Lock()
	c.subs[msg.SubscriptionID] = msg.Filters
	c.mu.Unlock()

	for _, f := range msg.Filters {
		sent := 0
		for _, ev := range stored {
			if f.Limit > 0 && sent >= f.Limit {
				break
			}
			if !f.Matches(ev) {
				continue
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			c.send(relay.EncodeSubscriptionEvent(msg.SubscriptionID, ev))
			sent++
		}
	}
	if !withhold {
		c.send(relay.EncodeEOSE(msg.SubscriptionID))
	}
}

func (r *Relay) handleEvent(c *conn, ev nostr.Event) {
	if err := ev.Verify(); err != nil {
		c.send(relay.EncodeOK(ev.ID, false, "invalid: "+err.Error()))
		return
	}

	r.mu.Lock()
	reason := r.rejectReason
	if reason == "" {
		r.published = append(r.published, ev)
		r.stored = append(r.stored, ev)
	}
	conns := make([]*conn, 0, len(r.conns))
	for other := range r.conns {
		conns = append(conns, other)
	}
	r.mu.Unlock()

	if reason != "" {
		c.send(relay.EncodeOK(ev.ID, false, reason))
		return
	}
	c.send(relay.EncodeOK(ev.ID, true, ""))

	for _, other := range conns {
		other.broadcast(ev)
	}
}

func (c *conn) broadcast(ev nostr.Event) {
	c.mu.Lock()
	var subIDs []string
	for id, filters := range c.subs {
		for _, f := range filters {
			if f.Matches(ev) {
				subIDs = append(subIDs, id)
				break
			}
		}
	}
	c.mu.Unlock()

	for _, id := range subIDs {
		c.send(relay.EncodeSubscriptionEvent(id, ev))
	}
}

func (c *conn) send(data []byte, err error) {
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, data)
}
