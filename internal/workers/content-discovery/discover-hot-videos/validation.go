package discoverhotvideos

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"divine-dvm/internal/common/errors"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/validation"
)

// RequestEventSchema is the structural check applied before any tag is
// read.
const RequestEventSchema = `{
  "type": "object",
  "required": ["id", "pubkey", "created_at", "kind", "tags", "content"],
  "properties": {
    "id":         {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "pubkey":     {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "created_at": {"type": "integer", "minimum": 0},
    "kind":       {"type": "integer"},
    "content":    {"type": "string"},
    "sig":        {"type": "string"},
    "tags": {
      "type": "array",
      "items": {
        "type": "array",
        "items": {"type": "string"}
      }
    }
  }
}`

var requestSchema = validation.MustCompileSchema(RequestEventSchema)

// RequestValidator turns raw request events into JobRequests.
type RequestValidator struct {
	defaultMaxResults int
	maxResultsCeiling int
}

func NewRequestValidator(cfg *Config) *RequestValidator {
	return &RequestValidator{
		defaultMaxResults: cfg.DefaultMaxResults,
		maxResultsCeiling: cfg.MaxResultsCeiling,
	}
}

// AddressedElsewhere reports whether the request names specific service
// providers and servicePubKey is not one of them. Requests without a p tag
// are open to any provider.
func AddressedElsewhere(ev nostr.Event, servicePubKey string) bool {
	providers := ev.Tags.FindAll("p")
	if len(providers) == 0 {
		return false
	}
	for _, p := range providers {
		if p.Value() == servicePubKey {
			return false
		}
	}
	return true
}

// Validate accepts or rejects ev. Rejections are VALIDATION_FAILED
// StandardErrors whose details are safe to show the requester.
func (v *RequestValidator) Validate(ev nostr.Event) (*JobRequest, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.NewValidationError("unreadable event")
	}
	res, err := requestSchema.Validate(raw)
	if err != nil {
		return nil, errors.NewValidationError("unreadable event")
	}
	if !res.Valid {
		return nil, errors.NewValidationError("malformed event: " + strings.Join(res.GetErrorMessages(), "; "))
	}

	if ev.Kind != nostr.KindContentDiscoveryRequest {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported kind %d", ev.Kind))
	}

	inputTags := ev.Tags.FindAll("i")
	if len(inputTags) == 0 {
		return nil, errors.NewValidationError("missing input: expected an i tag of type text")
	}
	inputs := make([]InputDescriptor, 0, len(inputTags))
	for _, t := range inputTags {
		in := InputDescriptor{Value: t.Value(), Type: t.At(2)}
		if in.Type != InputTypeText {
			return nil, errors.NewValidationError(fmt.Sprintf("unsupported input type %q", in.Type))
		}
		inputs = append(inputs, in)
	}

	return &JobRequest{
		ID:        ev.ID,
		Requester: ev.PubKey,
		Inputs:    inputs,
		Params:    v.ParseParams(ev.Tags),
		Output:    parseOutput(ev.Tags),
		Raw:       ev,
	}, nil
}

// ParseParams never fails. Anything unusable is recorded as a fallback and
// the default applies.
func (v *RequestValidator) ParseParams(tags nostr.Tags) Params {
	var p Params
	for _, t := range tags.FindAll("param") {
		name, value := t.Value(), t.At(2)

		if name != ParamMaxResults {
			p.Fallbacks = append(p.Fallbacks, ParamFallback{Name: name, Value: value, Reason: "unknown parameter ignored"})
			continue
		}
		if p.MaxResultsSet {
			p.Fallbacks = append(p.Fallbacks, ParamFallback{Name: name, Value: value, Reason: "duplicate parameter ignored"})
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		switch {
		case err != nil:
			p.Fallbacks = append(p.Fallbacks, ParamFallback{Name: name, Value: value,
				Reason: fmt.Sprintf("not a number, using default %d", v.defaultMaxResults)})
		case n <= 0:
			p.Fallbacks = append(p.Fallbacks, ParamFallback{Name: name, Value: value,
				Reason: fmt.Sprintf("must be positive, using default %d", v.defaultMaxResults)})
		default:
			p.MaxResults = n
			p.MaxResultsSet = true
			if n > v.maxResultsCeiling {
				p.Fallbacks = append(p.Fallbacks, ParamFallback{Name: name, Value: value,
					Reason: fmt.Sprintf("clamped to %d", v.maxResultsCeiling)})
			}
		}
	}
	return p
}

func parseOutput(tags nostr.Tags) OutputFormat {
	t, ok := tags.Find("output")
	if ok && strings.EqualFold(strings.TrimSpace(t.Value()), string(OutputText)) {
		return OutputText
	}
	return OutputJSON
}
