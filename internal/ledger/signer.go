package ledger

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"

	"github.com/tunevault/service_layer/internal/apperr"
)

// ed25519Flag is the scheme byte some wallets prepend to exported keys.
const ed25519Flag = 0x00

// Signer holds the process-wide keypair. It is loaded once at startup; an
// unusable key is a configuration error, never a per-request one.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner decodes base64 key material and builds the keypair. Accepted
// lengths: 33 bytes (scheme flag + seed), 32 bytes (seed, expanded via key
// derivation) or 64 bytes (full private key).
func NewSigner(encodedKey string) (*Signer, error) {
	if encodedKey == "" {
		return nil, apperr.Config("SUI_PRIVATE_KEY", "required value is missing")
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, apperr.Config("SUI_PRIVATE_KEY", "invalid base64: %v", err)
	}

	if len(raw) == 33 && raw[0] == ed25519Flag {
		raw = raw[1:]
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, apperr.Config("SUI_PRIVATE_KEY", "unexpected private key length: %d bytes", len(raw))
	}

	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign produces a detached signature over the transaction bytes. Safe for
// concurrent use.
func (s *Signer) Sign(txBytes []byte) []byte {
	return ed25519.Sign(s.priv, txBytes)
}

// Address returns the signer's hex-encoded address.
func (s *Signer) Address() string {
	return "0x" + hex.EncodeToString(s.pub)
}

// PublicKey returns the raw public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(s.pub))
	copy(out, s.pub)
	return out
}
