// Package dvm builds and publishes data-vending-machine job events and runs
// the listener that dispatches incoming job requests to a handler.
package dvm

import (
	"divine-dvm/internal/common/nostr"
)

// JobStatus is the value of a feedback event's status tag.
type JobStatus string

const (
	StatusProcessing      JobStatus = "processing"
	StatusSuccess         JobStatus = "success"
	StatusError           JobStatus = "error"
	StatusPaymentRequired JobStatus = "payment-required"
)

// resultKindOffset maps a request kind to its result kind.
const resultKindOffset = 1000

// BuildFeedback returns an unsigned kind 7000 event for the job.
func BuildFeedback(jobID, requester string, status JobStatus, message string) nostr.Event {
	statusTag := nostr.Tag{"status", string(status)}
	if message != "" {
		statusTag = append(statusTag, message)
	}
	return nostr.Event{
		Kind:    nostr.KindJobFeedback,
		Content: message,
		Tags: nostr.Tags{
			statusTag,
			{"e", jobID},
			{"p", requester},
		},
	}
}

// BuildResult returns an unsigned result event answering request. The
// request is embedded verbatim and its input tags are echoed.
func BuildResult(request nostr.Event, content, alt string) nostr.Event {
	tags := nostr.Tags{
		{"request", request.String()},
		{"e", request.ID},
		{"p", request.PubKey},
	}
	for _, in := range request.Tags.FindAll("i") {
		tags = append(tags, append(nostr.Tag(nil), in...))
	}
	if alt != "" {
		tags = append(tags, nostr.Tag{"alt", alt})
	}
	return nostr.Event{
		Kind:    request.Kind + resultKindOffset,
		Content: content,
		Tags:    tags,
	}
}

// FeedbackStatus reads the status and message of a feedback event.
func FeedbackStatus(ev nostr.Event) (JobStatus, string, bool) {
	tag, ok := ev.Tags.Find("status")
	if !ok {
		return "", "", false
	}
	return JobStatus(tag.Value()), tag.At(2), true
}
