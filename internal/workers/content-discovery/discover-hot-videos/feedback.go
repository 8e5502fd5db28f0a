package discoverhotvideos

import (
	"context"

	"divine-dvm/internal/common/dvm"
	"divine-dvm/internal/common/metrics"
	"divine-dvm/internal/common/nostr"
)

// EventEmitter signs and publishes events as the service. *dvm.Emitter
// satisfies it.
type EventEmitter interface {
	Emit(ctx context.Context, ev nostr.Event) (nostr.Event, error)
	PublicKey() string
}

// FeedbackEmitter publishes one kind 7000 event per call. It does not retry.
type FeedbackEmitter struct {
	emitter EventEmitter
}

func NewFeedbackEmitter(emitter EventEmitter) *FeedbackEmitter {
	return &FeedbackEmitter{emitter: emitter}
}

func (f *FeedbackEmitter) Emit(ctx context.Context, req *JobRequest, status dvm.JobStatus, message string) error {
	ev := dvm.BuildFeedback(req.ID, req.Requester, status, message)
	_, err := f.emitter.Emit(ctx, ev)

	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	metrics.FeedbackPublished.WithLabelValues(string(status), outcome).Inc()
	return err
}
