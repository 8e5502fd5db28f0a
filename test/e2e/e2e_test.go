// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divine-dvm/internal/common/config"
	"divine-dvm/internal/common/dvm"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/relay"
	"divine-dvm/internal/common/relay/relaytest"
	"divine-dvm/internal/manager"
	dhv "divine-dvm/internal/workers/content-discovery/discover-hot-videos"
)

type harness struct {
	listen   []*relaytest.Relay
	upstream *relaytest.Relay
	mgr      *manager.Manager
	client   *nostr.Keys
	cancel   context.CancelFunc
	done     chan error
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func startService(t *testing.T, listeners int, videos int) *harness {
	t.Helper()
	for _, k := range []string{"NOSTR_PRIVATE_KEY", "RELAY_LIST", "ANNOUNCE_RELAY_LIST", "DIVINE_RELAY", "MAX_RESULTS", "REDIS_ADDRESS"} {
		t.Setenv(k, "")
	}

	h := &harness{upstream: relaytest.New(), done: make(chan error, 1)}
	t.Cleanup(h.upstream.Close)

	var quoted []string
	for i := 0; i < listeners; i++ {
		r := relaytest.New()
		t.Cleanup(r.Close)
		h.listen = append(h.listen, r)
		quoted = append(quoted, fmt.Sprintf("%q", r.URL()))
	}
	listenURLs := strings.Join(quoted, ", ")

	creator, err := nostr.GenerateKeys()
	require.NoError(t, err)
	for i := 0; i < videos; i++ {
		ev := nostr.Event{Kind: nostr.KindDivineVideo, Tags: nostr.Tags{{"d", fmt.Sprintf("video-%d", i)}}}
		require.NoError(t, creator.SignEvent(&ev))
		h.upstream.Seed(ev)
	}

	svcKeys, err := nostr.GenerateKeys()
	require.NoError(t, err)
	h.client, err = nostr.GenerateKeys()
	require.NoError(t, err)

	cfg, err := config.LoadFromFile(writeConfig(t, fmt.Sprintf(`
app:
  name: divine-dvm-e2e
nostr:
  private_key: %s
relays:
  listen: [%s]
  announce: [%s]
  upstream: %q
  publish_timeout: 2000
discovery:
  query_timeout: 1000
`, svcKeys.SecretKeyHex(), listenURLs, listenURLs, h.upstream.URL())))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	h.mgr, err = manager.New(cfg, logger.NewTestLogger(t), manager.Options{
		Registerer:    reg,
		Gatherer:      reg,
		ShutdownGrace: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.mgr.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
		h.mgr.Close()
	})

	require.Eventually(t, h.mgr.Ready, 5*time.Second, 10*time.Millisecond)
	return h
}

func (h *harness) request(t *testing.T, tags ...nostr.Tag) nostr.Event {
	t.Helper()
	ev := nostr.Event{Kind: nostr.KindContentDiscoveryRequest, Tags: tags}
	require.NoError(t, h.client.SignEvent(&ev))

	for _, r := range h.listen {
		c, err := relay.Dial(context.Background(), r.URL(), relay.Options{})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, c.Publish(ctx, ev))
		cancel()
		_ = c.Close()
	}
	return ev
}

func answering(req nostr.Event, kinds ...int) func(nostr.Event) bool {
	return func(ev nostr.Event) bool {
		if !ev.Tags.ContainsValue("e", req.ID) {
			return false
		}
		for _, k := range kinds {
			if ev.Kind == k {
				return true
			}
		}
		return false
	}
}

func steps(events []nostr.Event) []string {
	var out []string
	for _, ev := range events {
		if status, _, ok := dvm.FeedbackStatus(ev); ok {
			out = append(out, string(status))
			continue
		}
		out = append(out, "result")
	}
	return out
}

func TestE2E_HotVideosRequest(t *testing.T) {
	h := startService(t, 1, 8)
	req := h.request(t, nostr.Tag{"i", "hot", "text"}, nostr.Tag{"param", "max_results", "5"})

	events := h.listen[0].WaitForPublished(3, 5*time.Second,
		answering(req, nostr.KindJobFeedback, nostr.KindContentDiscoveryResult))
	require.Len(t, events, 3)
	assert.Equal(t, []string{"processing", "result", "success"}, steps(events))

	result := events[1]
	assert.Equal(t, h.mgr.PublicKey(), result.PubKey)
	assert.NoError(t, result.Verify())
	assert.True(t, result.Tags.ContainsValue("p", req.PubKey))

	items, err := dhv.ParsePayload(result.Content)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, fmt.Sprintf("video-%d", i), it.Identifier)
		assert.Equal(t, h.upstream.URL(), it.RelayHint)
	}

	reqs := h.upstream.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "sort:hot", reqs[0].Search)
	assert.Equal(t, []int{nostr.KindDivineVideo}, reqs[0].Kinds)
	assert.Equal(t, 5, reqs[0].Limit)
}

func TestE2E_InvalidRequestGetsOnlyError(t *testing.T) {
	h := startService(t, 1, 3)
	req := h.request(t, nostr.Tag{"i", "https://example.com", "url"})

	events := h.listen[0].WaitForPublished(1, 5*time.Second, answering(req, nostr.KindJobFeedback, nostr.KindContentDiscoveryResult))
	require.Len(t, events, 1)
	assert.Equal(t, []string{"error"}, steps(events))

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, h.listen[0].WaitForPublished(0, 0, answering(req, nostr.KindJobFeedback, nostr.KindContentDiscoveryResult)), 1)
	assert.Empty(t, h.upstream.Requests())
}

func TestE2E_SameRequestOnTwoRelaysIsProcessedOnce(t *testing.T) {
	h := startService(t, 2, 2)
	req := h.request(t, nostr.Tag{"i", "hot", "text"})

	for _, r := range h.listen {
		events := r.WaitForPublished(3, 5*time.Second, answering(req, nostr.KindJobFeedback, nostr.KindContentDiscoveryResult))
		require.Len(t, events, 3)
	}

	time.Sleep(300 * time.Millisecond)
	for _, r := range h.listen {
		results := r.WaitForPublished(0, 0, answering(req, nostr.KindContentDiscoveryResult))
		assert.Len(t, results, 1)
	}
	assert.Len(t, h.upstream.Requests(), 1)
}

func TestE2E_AnnouncesOnStartup(t *testing.T) {
	h := startService(t, 1, 0)

	announcements := h.listen[0].WaitForPublished(2, 5*time.Second, func(ev nostr.Event) bool {
		return ev.PubKey == h.mgr.PublicKey() &&
			(ev.Kind == nostr.KindHandlerInformation || ev.Kind == nostr.KindProfileMetadata)
	})
	require.Len(t, announcements, 2)

	for _, ev := range announcements {
		if ev.Kind == nostr.KindHandlerInformation {
			assert.True(t, ev.Tags.ContainsValue("k", "5300"))
			assert.True(t, ev.Tags.ContainsValue("d", "divine-hot-videos"))
		}
	}
}
