package relay

import (
	"context"
	"sync"

	"divine-dvm/internal/common/nostr"
)

// Upstream is the single source relay queried for hot content. The
// connection is dialed on first use and redialed after it drops.
type Upstream struct {
	url  string
	opts Options

	mu     sync.Mutex
	client *Client
}

func NewUpstream(url string, opts Options) *Upstream {
	return &Upstream{url: url, opts: opts.withDefaults()}
}

func (u *Upstream) URL() string { return u.url }

func (u *Upstream) conn(ctx context.Context) (*Client, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client != nil && u.client.Alive() {
		return u.client, nil
	}
	c, err := Dial(ctx, u.url, u.opts)
	if err != nil {
		return nil, err
	}
	u.client = c
	return c, nil
}

// QuerySync behaves like Client.QuerySync on the upstream connection.
func (u *Upstream) QuerySync(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	c, err := u.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.QuerySync(ctx, filter)
}

func (u *Upstream) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client != nil {
		_ = u.client.Close()
		u.client = nil
	}
}
