package discoverhotvideos

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"divine-dvm/internal/common/dvm"
	"divine-dvm/internal/common/nostr"
)

const InputTypeText = "text"

// OutputFormat is the MIME type requested with an `output` tag.
type OutputFormat string

const (
	OutputJSON OutputFormat = "application/json"
	OutputText OutputFormat = "text/plain"
)

// ParamMaxResults is the only recognized `param` name.
const ParamMaxResults = "max_results"

type InputDescriptor struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// ParamFallback records a parameter that was ignored or replaced.
type ParamFallback struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Params are the typed job parameters. MaxResultsSet is false when the
// request gave no usable max_results.
type Params struct {
	MaxResults    int             `json:"maxResults"`
	MaxResultsSet bool            `json:"maxResultsSet"`
	Fallbacks     []ParamFallback `json:"fallbacks,omitempty"`
}

// JobRequest is an accepted content discovery request.
type JobRequest struct {
	ID        string            `json:"id"`
	Requester string            `json:"requester"`
	Inputs    []InputDescriptor `json:"inputs"`
	Params    Params            `json:"params"`
	Output    OutputFormat      `json:"output"`
	Raw       nostr.Event       `json:"-"`
}

func (r *JobRequest) Input() InputDescriptor {
	if len(r.Inputs) == 0 {
		return InputDescriptor{}
	}
	return r.Inputs[0]
}

// ItemReference addresses one replaceable content item.
type ItemReference struct {
	Kind       int    `json:"kind"`
	PubKey     string `json:"pubkey"`
	Identifier string `json:"identifier"`
	RelayHint  string `json:"relayHint,omitempty"`
}

// Address renders kind:pubkey:identifier.
func (r ItemReference) Address() string {
	return fmt.Sprintf("%d:%s:%s", r.Kind, r.PubKey, r.Identifier)
}

// referenceKey is the identifying triple without the relay hint.
type referenceKey struct {
	kind       int
	pubKey     string
	identifier string
}

func (r ItemReference) key() referenceKey {
	return referenceKey{kind: r.Kind, pubKey: r.PubKey, identifier: r.Identifier}
}

// Equal compares the identifying triple; the relay hint is ignored.
func (r ItemReference) Equal(o ItemReference) bool {
	return r.key() == o.key()
}

// ParseAddress is the inverse of Address. The identifier may itself
// contain colons.
func ParseAddress(addr string) (ItemReference, error) {
	parts := strings.SplitN(addr, ":", 3)
	if len(parts) != 3 {
		return ItemReference{}, fmt.Errorf("address %q: want kind:pubkey:identifier", addr)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return ItemReference{}, fmt.Errorf("address %q: bad kind: %w", addr, err)
	}
	return ItemReference{Kind: kind, PubKey: parts[1], Identifier: parts[2]}, nil
}

type JobResult struct {
	JobID string          `json:"jobId"`
	Items []ItemReference `json:"items"`
}

type QueryRequest struct {
	Kind    int
	Search  string
	Limit   int
	Timeout time.Duration
}

// QueryOutcome is what one upstream query produced. TimedOut means the
// deadline ended collection early and Items may be partial.
type QueryOutcome struct {
	Items    []ItemReference
	Received int
	Skipped  int
	TimedOut bool
	Duration time.Duration
}

// Report summarizes one run of the job state machine.
type Report struct {
	JobID     string          `json:"jobId"`
	State     State           `json:"state"`
	History   []State         `json:"history"`
	Feedback  []dvm.JobStatus `json:"feedback"`
	Items     int             `json:"items"`
	TimedOut  bool            `json:"timedOut"`
	Ignored   bool            `json:"ignored"`
	Fallbacks []ParamFallback `json:"fallbacks,omitempty"`
	Err       error           `json:"-"`
	Duration  time.Duration   `json:"duration"`
}
