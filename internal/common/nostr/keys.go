package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	gonostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	hrpSecretKey = "nsec"
	hrpPublicKey = "npub"
)

var ErrInvalidSecretKey = errors.New("invalid secret key")

// Keys is the service identity used to sign every outgoing event.
type Keys struct {
	secHex string
	pubHex string
}

func GenerateKeys() (*Keys, error) {
	return ParseSecretKey(gonostr.GeneratePrivateKey())
}

// ParseSecretKey accepts a 64-char hex key or a bech32 nsec.
func ParseSecretKey(s string) (*Keys, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSecretKey)
	}

	secHex := s
	if strings.HasPrefix(s, hrpPublicKey+"1") || strings.HasPrefix(s, hrpSecretKey+"1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
		}
		if prefix != hrpSecretKey {
			return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidSecretKey, prefix)
		}
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected nsec payload %T", ErrInvalidSecretKey, value)
		}
		secHex = v
	}

	raw, err := hex.DecodeString(secHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidSecretKey, len(raw))
	}
	if secp256k1.PrivKeyFromBytes(raw).Key.IsZero() {
		return nil, fmt.Errorf("%w: zero key", ErrInvalidSecretKey)
	}

	secHex = strings.ToLower(secHex)
	pubHex, err := gonostr.GetPublicKey(secHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	return &Keys{secHex: secHex, pubHex: pubHex}, nil
}

// PublicKey returns the x-only public key in hex.
func (k *Keys) PublicKey() string {
	return k.pubHex
}

func (k *Keys) SecretKeyHex() string {
	return k.secHex
}

func (k *Keys) Nsec() (string, error) {
	return nip19.EncodePrivateKey(k.secHex)
}

func (k *Keys) Npub() (string, error) {
	return nip19.EncodePublicKey(k.pubHex)
}

// SignEvent fills pubkey, created_at (when unset), id and sig.
func (k *Keys) SignEvent(ev *Event) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	if ev.Tags == nil {
		ev.Tags = Tags{}
	}

	lib := ev.Lib()
	if err := lib.Sign(k.secHex); err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	ev.PubKey = lib.PubKey
	ev.ID = lib.ID
	ev.Sig = lib.Sig
	return nil
}
