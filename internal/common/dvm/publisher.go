package dvm

import (
	"context"
	"fmt"

	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/relay"
)

// Signer signs outgoing events with the service identity.
type Signer interface {
	SignEvent(ev *nostr.Event) error
	PublicKey() string
}

// Publisher delivers a signed event to the network.
type Publisher interface {
	Publish(ctx context.Context, ev nostr.Event) error
}

// PoolPublisher publishes to every relay of a pool and succeeds when any of
// them accepts.
type PoolPublisher struct {
	Pool *relay.Pool
}

func (p PoolPublisher) Publish(ctx context.Context, ev nostr.Event) error {
	_, err := p.Pool.Publish(ctx, ev)
	return err
}

// Emitter signs then publishes.
type Emitter struct {
	signer    Signer
	publisher Publisher
}

func NewEmitter(signer Signer, publisher Publisher) *Emitter {
	return &Emitter{signer: signer, publisher: publisher}
}

func (e *Emitter) PublicKey() string { return e.signer.PublicKey() }

// Emit signs ev and publishes it, returning the signed event.
func (e *Emitter) Emit(ctx context.Context, ev nostr.Event) (nostr.Event, error) {
	if err := e.signer.SignEvent(&ev); err != nil {
		return ev, fmt.Errorf("sign kind %d: %w", ev.Kind, err)
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		return ev, err
	}
	return ev, nil
}
