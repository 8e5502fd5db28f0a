// Package relay is the websocket transport to Nostr relays: a single
// connection Client, a multi-relay Pool for listening and publishing, and a
// lazily dialed Upstream for one-shot queries.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
)

var (
	ErrClosed             = errors.New("relay connection closed")
	ErrRejected           = errors.New("relay rejected event")
	ErrSubscriptionClosed = errors.New("subscription closed by relay")
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	subscriptionBuffer  = 256
)

type Options struct {
	DialTimeout time.Duration
	// VerifySignatures drops inbound events whose id or signature is invalid.
	VerifySignatures bool
	Logger           logger.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = logger.NewNoOpLogger()
	}
	return o
}

type okResult struct {
	accepted bool
	reason   string
}

// Client is one websocket connection to one relay.
type Client struct {
	url  string
	opts Options
	conn *websocket.Conn
	log  logger.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending map[string]chan okResult
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to url and starts reading frames.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		url:     url,
		opts:    opts,
		conn:    conn,
		log:     opts.Logger.WithFields(map[string]interface{}{"relay": url}),
		subs:    make(map[string]*Subscription),
		pending: make(map[string]chan okResult),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) URL() string { return c.url }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, nil while it is alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		subs := c.subs
		c.subs = make(map[string]*Subscription)
		pending := c.pending
		c.pending = make(map[string]chan okResult)
		c.mu.Unlock()

		_ = c.conn.Close()
		close(c.done)

		for _, s := range subs {
			s.end("")
		}
		for _, ch := range pending {
			close(ch)
		}
	})
}

func (c *Client) write(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.Alive() {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown(err)
		return fmt.Errorf("write to %s: %w", c.url, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.log.Debug("ignoring frame", map[string]interface{}{"error": err})
			continue
		}

		switch msg.Label {
		case LabelEvent:
			c.deliver(msg)
		case LabelEOSE:
			if s := c.subscription(msg.SubscriptionID); s != nil {
				s.markEOSE()
			}
		case LabelOK:
			c.mu.Lock()
			ch, ok := c.pending[msg.EventID]
			delete(c.pending, msg.EventID)
			c.mu.Unlock()
			if ok {
				ch <- okResult{accepted: msg.Accepted, reason: msg.Reason}
			}
		case LabelClosed:
			c.mu.Lock()
			s := c.subs[msg.SubscriptionID]
			delete(c.subs, msg.SubscriptionID)
			c.mu.Unlock()
			if s != nil {
				s.end(msg.Reason)
			}
		case LabelNotice:
			c.log.Info("relay notice", map[string]interface{}{"notice": msg.Reason})
		}
	}
}

func (c *Client) subscription(id string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[id]
}

func (c *Client) deliver(msg *Message) {
	s := c.subscription(msg.SubscriptionID)
	if s == nil || msg.Event == nil {
		return
	}
	if c.opts.VerifySignatures {
		if err := msg.Event.Verify(); err != nil {
			c.log.Debug("dropping event with bad signature", map[string]interface{}{
				"eventId": msg.Event.ID,
				"error":   err,
			})
			return
		}
	}
	select {
	case s.events <- *msg.Event:
	case <-s.closed:
	}
}

// Publish sends ev and waits for the relay's OK.
func (c *Client) Publish(ctx context.Context, ev nostr.Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	ch := make(chan okResult, 1)
	c.mu.Lock()
	c.pending[ev.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ev.ID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, data); err != nil {
		return err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if !res.accepted {
			return fmt.Errorf("%w: %s", ErrRejected, res.reason)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe opens a REQ. The caller must Unsub when done.
func (c *Client) Subscribe(ctx context.Context, filters ...nostr.Filter) (*Subscription, error) {
	s := &Subscription{
		ID:     uuid.NewString(),
		client: c,
		events: make(chan nostr.Event, subscriptionBuffer),
		eose:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.Events = s.events

	data, err := EncodeReq(s.ID, filters...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[s.ID] = s
	c.mu.Unlock()

	if err := c.write(ctx, data); err != nil {
		c.mu.Lock()
		delete(c.subs, s.ID)
		c.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// QuerySync collects stored events for filter until the relay signals end
// of stored events. If ctx ends first the events gathered so far are
// returned together with ctx.Err().
func (c *Client) QuerySync(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	sub, err := c.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()
	return c.collect(ctx, sub)
}

func (c *Client) collect(ctx context.Context, sub *Subscription) ([]nostr.Event, error) {
	var events []nostr.Event
	for {
		select {
		case ev := <-sub.Events:
			events = append(events, ev)
		case <-sub.EndOfStoredEvents():
			return append(events, sub.drain()...), nil
		case <-sub.Closed():
			events = append(events, sub.drain()...)
			if reason := sub.Reason(); reason != "" {
				return events, fmt.Errorf("%w: %s", ErrSubscriptionClosed, reason)
			}
			if err := c.Err(); err != nil {
				return events, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return events, ErrClosed
		case <-ctx.Done():
			return append(events, sub.drain()...), ctx.Err()
		}
	}
}

// Subscription is an open REQ on a Client.
type Subscription struct {
	ID string
	// Events delivers matching events in relay order. It is never closed;
	// select on Closed as well.
	Events <-chan nostr.Event

	client *Client
	events chan nostr.Event

	eose     chan struct{}
	eoseOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
	reason    string
}

func (s *Subscription) EndOfStoredEvents() <-chan struct{} { return s.eose }

// Closed is closed when the relay ends the subscription, the connection
// drops or Unsub is called.
func (s *Subscription) Closed() <-chan struct{} { return s.closed }

// Reason blocks until the subscription is closed and returns the relay's
// CLOSED message, empty for any other ending.
func (s *Subscription) Reason() string {
	<-s.closed
	return s.reason
}

func (s *Subscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

func (s *Subscription) end(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.closed)
	})
}

func (s *Subscription) drain() []nostr.Event {
	var out []nostr.Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Unsub sends CLOSE and stops delivery.
func (s *Subscription) Unsub() {
	c := s.client
	c.mu.Lock()
	_, open := c.subs[s.ID]
	delete(c.subs, s.ID)
	c.mu.Unlock()

	if open && c.Alive() {
		if data, err := EncodeClose(s.ID); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.write(ctx, data)
			cancel()
		}
	}
	s.end("")
}
