// Package nostr holds the event model shared by the relay transport and the
// job workers. Canonical ids, BIP-340 signatures, bech32 keys and the filter
// codec come from go-nostr; this package keeps the service's own types so
// callers deal in plain int64 timestamps and the Tags helpers below.
package nostr

import (
	"encoding/json"
	"errors"
	"fmt"

	gonostr "github.com/nbd-wtf/go-nostr"
)

// Event kinds used by the content discovery worker.
const (
	KindProfileMetadata         = 0
	KindContentDiscoveryRequest = 5300
	KindContentDiscoveryResult  = 6300
	KindJobFeedback             = 7000
	KindHandlerInformation      = 31990
	KindDivineVideo             = 34236
)

var (
	ErrInvalidID        = errors.New("event id does not match content")
	ErrInvalidSignature = errors.New("event signature is invalid")
	ErrMissingSignature = errors.New("event is not signed")
)

// Event is a signed NIP-01 event.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Lib converts to the go-nostr representation.
func (e Event) Lib() gonostr.Event {
	return gonostr.Event{
		ID:        e.ID,
		PubKey:    e.PubKey,
		CreatedAt: gonostr.Timestamp(e.CreatedAt),
		Kind:      e.Kind,
		Tags:      e.Tags.Lib(),
		Content:   e.Content,
		Sig:       e.Sig,
	}
}

// FromLib converts a go-nostr event.
func FromLib(ev gonostr.Event) Event {
	return Event{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: int64(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      TagsFromLib(ev.Tags),
		Content:   ev.Content,
		Sig:       ev.Sig,
	}
}

// Serialize returns the canonical form the id is computed over:
// [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() []byte {
	lib := e.Lib()
	return lib.Serialize()
}

func (e *Event) ComputeID() string {
	lib := e.Lib()
	return lib.GetID()
}

func (e *Event) CheckID() bool {
	return e.ID == e.ComputeID()
}

// Verify checks both the id and the schnorr signature.
func (e *Event) Verify() error {
	if e.Sig == "" {
		return ErrMissingSignature
	}
	if !e.CheckID() {
		return ErrInvalidID
	}

	lib := e.Lib()
	ok, err := lib.CheckSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

func (e Event) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

// MarshalJSON keeps tags as [] instead of null, relays reject the latter.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	return json.Marshal(alias(e))
}
