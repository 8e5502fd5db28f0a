package discoverhotvideos

import (
	"context"
	stderrors "errors"
	"time"

	"divine-dvm/internal/common/errors"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/metrics"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/observability"
)

// Fetcher runs one stored-events query. It returns whatever arrived before
// ctx ended together with ctx's error. *relay.Upstream satisfies it.
type Fetcher interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error)
}

// HotContentQuerier asks the upstream relay for its hot-ranked items.
type HotContentQuerier struct {
	fetcher  Fetcher
	upstream string
	ceiling  int
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHotContentQuerier(fetcher Fetcher, cfg *Config, obs *observability.Observability, log logger.Logger) *HotContentQuerier {
	return &HotContentQuerier{
		fetcher:  fetcher,
		upstream: cfg.UpstreamRelay,
		ceiling:  cfg.MaxResultsCeiling,
		obs:      obs,
		logger:   log,
	}
}

// BuildFilter is the single filter sent upstream, e.g.
// {"kinds":[34236],"limit":20,"search":"sort:hot"}.
func BuildFilter(req QueryRequest) nostr.Filter {
	return nostr.Filter{
		Kinds:  []int{req.Kind},
		Limit:  req.Limit,
		Search: req.Search,
	}
}

// Query issues req once. A deadline is not an error: the outcome is marked
// TimedOut and carries what was collected. Cancellation of the parent
// context abandons the job.
func (q *HotContentQuerier) Query(ctx context.Context, req QueryRequest) (*QueryOutcome, error) {
	if req.Limit <= 0 {
		return nil, errors.NewInternalError(stderrors.New("query limit must be positive"))
	}
	if q.ceiling > 0 && req.Limit > q.ceiling {
		req.Limit = q.ceiling
	}

	qctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	events, err := q.fetcher.QuerySync(qctx, BuildFilter(req))
	outcome := &QueryOutcome{Received: len(events), Duration: time.Since(start)}

	for _, ev := range events {
		ref, ok := q.toReference(ev, req.Kind)
		if !ok {
			outcome.Skipped++
			continue
		}
		outcome.Items = append(outcome.Items, ref)
	}

	label := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		q.record(ctx, outcome.Duration, "abandoned")
		return outcome, errors.NewJobAbandonedError(string(StateQuerying))
	case stderrors.Is(err, context.DeadlineExceeded):
		label = "timeout"
		outcome.TimedOut = true
		timeout := errors.NewUpstreamTimeoutError(q.upstream, len(outcome.Items))
		q.logger.Warn(timeout.Message, map[string]interface{}{
			"upstream":  q.upstream,
			"collected": len(outcome.Items),
			"timeout":   req.Timeout.String(),
		})
	default:
		q.record(ctx, outcome.Duration, "error")
		return outcome, errors.NewUpstreamTransportError(q.upstream, err)
	}

	q.record(ctx, outcome.Duration, label)
	if outcome.Skipped > 0 {
		q.logger.Debug("skipped upstream events", map[string]interface{}{"skipped": outcome.Skipped})
	}
	return outcome, nil
}

func (q *HotContentQuerier) record(ctx context.Context, d time.Duration, outcome string) {
	metrics.UpstreamQueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
	q.obs.RecordQueryDuration(ctx, d, outcome)
}

// toReference keeps only addressable events of the requested kind.
func (q *HotContentQuerier) toReference(ev nostr.Event, kind int) (ItemReference, bool) {
	if ev.Kind != kind {
		return ItemReference{}, false
	}
	d, ok := ev.Tags.Find("d")
	if !ok || ev.PubKey == "" {
		return ItemReference{}, false
	}
	return ItemReference{
		Kind:       ev.Kind,
		PubKey:     ev.PubKey,
		Identifier: d.Value(),
		RelayHint:  q.upstream,
	}, true
}
