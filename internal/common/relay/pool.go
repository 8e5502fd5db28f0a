package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/metrics"
	"divine-dvm/internal/common/nostr"
)

var ErrNoRelayAccepted = errors.New("no relay accepted the event")

// PublishResult is one relay's answer to a publish.
type PublishResult struct {
	URL string
	Err error
}

// Pool keeps one Client per relay URL and redials on demand.
type Pool struct {
	urls []string
	opts Options
	log  logger.Logger

	// reconnect backoff bounds
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(urls []string, opts Options) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		urls:           append([]string(nil), urls...),
		opts:           opts,
		log:            opts.Logger,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		clients:        make(map[string]*Client),
	}
}

func (p *Pool) URLs() []string { return append([]string(nil), p.urls...) }

// Client returns a live connection to url, dialing if needed.
func (p *Pool) Client(ctx context.Context, url string) (*Client, error) {
	p.mu.Lock()
	c, ok := p.clients[url]
	p.mu.Unlock()
	if ok && c.Alive() {
		return c, nil
	}

	c, err := Dial(ctx, url, p.opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[url]; ok && existing.Alive() {
		_ = c.Close()
		return existing, nil
	}
	p.clients[url] = c
	return c, nil
}

// Connect dials every relay, logging the ones that fail. It returns an
// error only if none could be reached.
func (p *Pool) Connect(ctx context.Context) error {
	var (
		g         errgroup.Group
		mu        sync.Mutex
		connected int
	)
	for _, url := range p.urls {
		url := url
		g.Go(func() error {
			if _, err := p.Client(ctx, url); err != nil {
				p.log.Warn("relay connect failed", map[string]interface{}{"relay": url, "error": err})
				return nil
			}
			mu.Lock()
			connected++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if connected == 0 && len(p.urls) > 0 {
		return fmt.Errorf("could not connect to any of %d relays", len(p.urls))
	}
	return nil
}

// Publish sends ev to every relay concurrently. It succeeds when at least
// one relay accepts.
func (p *Pool) Publish(ctx context.Context, ev nostr.Event) ([]PublishResult, error) {
	results := make([]PublishResult, len(p.urls))

	var g errgroup.Group
	for i, url := range p.urls {
		i, url := i, url
		g.Go(func() error {
			err := p.publishOne(ctx, url, ev)
			results[i] = PublishResult{URL: url, Err: err}
			metrics.RelayPublishes.WithLabelValues(url, strconv.FormatBool(err == nil)).Inc()
			return nil
		})
	}
	_ = g.Wait()

	var reasons []string
	for _, r := range results {
		if r.Err == nil {
			return results, nil
		}
		reasons = append(reasons, r.URL+": "+r.Err.Error())
	}
	if len(reasons) == 0 {
		return results, fmt.Errorf("%w: no relays configured", ErrNoRelayAccepted)
	}
	return results, fmt.Errorf("%w: %s", ErrNoRelayAccepted, strings.Join(reasons, "; "))
}

func (p *Pool) publishOne(ctx context.Context, url string, ev nostr.Event) error {
	c, err := p.Client(ctx, url)
	if err != nil {
		return err
	}
	return c.Publish(ctx, ev)
}

// Subscribe holds filter open on every relay until ctx ends, calling handle
// for each event. Dropped connections are redialed with exponential backoff
// and resubscribed from the newest created_at seen on that relay.
func (p *Pool) Subscribe(ctx context.Context, filter nostr.Filter, handle func(url string, ev nostr.Event)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, url := range p.urls {
		url := url
		g.Go(func() error {
			p.listen(gctx, url, filter, handle)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) listen(ctx context.Context, url string, filter nostr.Filter, handle func(string, nostr.Event)) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.MaxElapsedTime = 0

	log := p.log.WithFields(map[string]interface{}{"relay": url})
	gauge := metrics.RelayConnections.WithLabelValues(url)

	var newest int64
	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		c, err := p.Client(ctx, url)
		if err != nil {
			return err
		}

		f := filter
		if newest > 0 && (f.Since == nil || *f.Since < newest) {
			since := newest
			f.Since = &since
		}
		sub, err := c.Subscribe(ctx, f)
		if err != nil {
			return err
		}
		defer sub.Unsub()

		gauge.Set(1)
		defer gauge.Set(0)
		exp.Reset()
		log.Info("listening for job requests", map[string]interface{}{"subscription": sub.ID})

		for {
			select {
			case ev := <-sub.Events:
				if ev.CreatedAt > newest {
					newest = ev.CreatedAt
				}
				handle(url, ev)
			case <-sub.Closed():
				if reason := sub.Reason(); reason != "" {
					return fmt.Errorf("%w: %s", ErrSubscriptionClosed, reason)
				}
				if err := c.Err(); err != nil {
					return err
				}
				return ErrClosed
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("relay subscription lost, retrying", map[string]interface{}{
			"error": err,
			"retry": wait.String(),
		})
	}

	_ = backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
}

func (p *Pool) Close() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
