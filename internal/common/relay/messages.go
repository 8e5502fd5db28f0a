package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	gonostr "github.com/nbd-wtf/go-nostr"

	"divine-dvm/internal/common/nostr"
)

// Wire labels for NIP-01 messages.
const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelEOSE   = "EOSE"
	LabelOK     = "OK"
	LabelClosed = "CLOSED"
	LabelNotice = "NOTICE"
)

var ErrMalformedMessage = errors.New("malformed relay message")

// Message is a decoded relay-to-client or client-to-relay frame. Which
// fields are set depends on Label.
type Message struct {
	Label          string
	SubscriptionID string
	Event          *nostr.Event
	Filters        []nostr.Filter
	EventID        string
	Accepted       bool
	Reason         string
}

func EncodeEvent(ev nostr.Event) ([]byte, error) {
	return json.Marshal(&gonostr.EventEnvelope{Event: ev.Lib()})
}

func EncodeReq(subID string, filters ...nostr.Filter) ([]byte, error) {
	env := gonostr.ReqEnvelope{SubscriptionID: subID}
	for _, f := range filters {
		env.Filters = append(env.Filters, f.Lib())
	}
	return json.Marshal(&env)
}

func EncodeClose(subID string) ([]byte, error) {
	env := gonostr.CloseEnvelope(subID)
	return json.Marshal(&env)
}

func EncodeSubscriptionEvent(subID string, ev nostr.Event) ([]byte, error) {
	return json.Marshal(&gonostr.EventEnvelope{SubscriptionID: &subID, Event: ev.Lib()})
}

func EncodeEOSE(subID string) ([]byte, error) {
	env := gonostr.EOSEEnvelope(subID)
	return json.Marshal(&env)
}

func EncodeOK(eventID string, accepted bool, reason string) ([]byte, error) {
	return json.Marshal(&gonostr.OKEnvelope{EventID: eventID, OK: accepted, Reason: reason})
}

func EncodeClosed(subID, reason string) ([]byte, error) {
	return json.Marshal(&gonostr.ClosedEnvelope{SubscriptionID: subID, Reason: reason})
}

func EncodeNotice(msg string) ([]byte, error) {
	env := gonostr.NoticeEnvelope(msg)
	return json.Marshal(&env)
}

// ParseMessage decodes any NIP-01 frame. EVENT frames without a
// subscription id are client publishes.
func ParseMessage(data []byte) (*Message, error) {
	env := gonostr.ParseMessage(string(data))
	if env == nil {
		return nil, fmt.Errorf("%w: %.64s", ErrMalformedMessage, data)
	}

	switch e := env.(type) {
	case *gonostr.EventEnvelope:
		ev := nostr.FromLib(e.Event)
		msg := &Message{Label: LabelEvent, Event: &ev}
		if e.SubscriptionID != nil {
			msg.SubscriptionID = *e.SubscriptionID
		}
		return msg, nil
	case *gonostr.ReqEnvelope:
		msg := &Message{Label: LabelReq, SubscriptionID: e.SubscriptionID}
		for _, f := range e.Filters {
			msg.Filters = append(msg.Filters, nostr.FilterFromLib(f))
		}
		return msg, nil
	case *gonostr.CloseEnvelope:
		return &Message{Label: LabelClose, SubscriptionID: string(*e)}, nil
	case *gonostr.EOSEEnvelope:
		return &Message{Label: LabelEOSE, SubscriptionID: string(*e)}, nil
	case *gonostr.ClosedEnvelope:
		return &Message{Label: LabelClosed, SubscriptionID: e.SubscriptionID, Reason: e.Reason}, nil
	case *gonostr.OKEnvelope:
		return &Message{Label: LabelOK, EventID: e.EventID, Accepted: e.OK, Reason: e.Reason}, nil
	case *gonostr.NoticeEnvelope:
		return &Message{Label: LabelNotice, Reason: string(*e)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported label %q", ErrMalformedMessage, env.Label())
	}
}
