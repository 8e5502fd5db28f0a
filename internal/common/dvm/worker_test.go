package dvm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divine-dvm/internal/common/database"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/nostr"
)

// chanSource replays events pushed on a channel until ctx ends.
type chanSource struct {
	events chan nostr.Event
	filter nostr.Filter
}

func (s *chanSource) Subscribe(ctx context.Context, filter nostr.Filter, handle func(string, nostr.Event)) error {
	s.filter = filter
	for {
		select {
		case ev := <-s.events:
			handle("ws://test", ev)
		case <-ctx.Done():
			return nil
		}
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	seen    []string
	running int32
	peak    int32
	block   chan struct{}
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, ev nostr.Event) error {
	n := atomic.AddInt32(&h.running, 1)
	defer atomic.AddInt32(&h.running, -1)
	for {
		p := atomic.LoadInt32(&h.peak)
		if n <= p || atomic.CompareAndSwapInt32(&h.peak, p, n) {
			break
		}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.seen = append(h.seen, ev.ID)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

type failingGuard struct{}

func (failingGuard) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingGuard) Release(context.Context, string) error {
	return errors.New("redis down")
}

func TestWorker_DispatchesAndDeduplicates(t *testing.T) {
	src := &chanSource{events: make(chan nostr.Event)}
	h := &recordingHandler{}
	w := NewWorker(src, h, WorkerOptions{
		TaskType:      "test",
		Filter:        nostr.Filter{Kinds: []int{nostr.KindContentDiscoveryRequest}},
		MaxJobsActive: 2,
		Logger:        logger.NewTestLogger(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	src.events <- nostr.Event{ID: "a"}
	src.events <- nostr.Event{ID: "a"}
	src.events <- nostr.Event{ID: "b"}

	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, w.Wait(time.Second))

	assert.ElementsMatch(t, []string{"a", "b"}, h.seen)
	assert.Equal(t, []int{nostr.KindContentDiscoveryRequest}, src.filter.Kinds)
}

func TestWorker_BoundsConcurrency(t *testing.T) {
	src := &chanSource{events: make(chan nostr.Event)}
	h := &recordingHandler{block: make(chan struct{})}
	w := NewWorker(src, h, WorkerOptions{MaxJobsActive: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	for _, id := range []string{"1", "2", "3", "4"} {
		src.events <- nostr.Event{ID: id}
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&h.running) == 2 }, time.Second, 5*time.Millisecond)
	close(h.block)
	require.Eventually(t, func() bool { return h.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&h.peak))
}

func TestWorker_GuardFailureStillProcesses(t *testing.T) {
	src := &chanSource{events: make(chan nostr.Event)}
	h := &recordingHandler{err: errors.New("handler failed")}
	w := NewWorker(src, h, WorkerOptions{MaxJobsActive: 1, Guard: failingGuard{}, Logger: logger.NewTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	src.events <- nostr.Event{ID: "x"}
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorker_WaitTimesOut(t *testing.T) {
	src := &chanSource{events: make(chan nostr.Event)}
	h := &recordingHandler{block: make(chan struct{})}
	defer close(h.block)
	w := NewWorker(src, h, WorkerOptions{MaxJobsActive: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	src.events <- nostr.Event{ID: "slow"}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&h.running) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.False(t, w.Wait(50*time.Millisecond))
}

func TestWorker_ReleasesClaimOfJobDroppedAtShutdown(t *testing.T) {
	src := &chanSource{events: make(chan nostr.Event)}
	h := &recordingHandler{block: make(chan struct{})}
	guard := database.NewMemoryGuard(time.Minute)
	w := NewWorker(src, h, WorkerOptions{MaxJobsActive: 1, Guard: guard, Logger: logger.NewTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	src.events <- nostr.Event{ID: "busy"}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&h.running) == 1 }, time.Second, 5*time.Millisecond)
	src.events <- nostr.Event{ID: "queued"}

	cancel()
	bg := context.Background()
	require.Eventually(t, func() bool {
		ok, _ := guard.Claim(bg, "queued")
		return ok
	}, time.Second, 5*time.Millisecond, "claim of the job that never started is released")

	ok, _ := guard.Claim(bg, "busy")
	assert.False(t, ok, "running job keeps its claim")

	close(h.block)
	assert.True(t, w.Wait(time.Second))
	assert.Equal(t, []string{"busy"}, h.seen)
}
