// Package cryptosys provides the switchboard's cryptographic capability
// object: a small interface for hashing and signature verification, and a
// concrete ed25519 + blake2b implementation.
//
// The switchboard core depends only on the CryptoSystem interface, so it
// never has to know whether it is running against real ed25519 keys or a
// deterministic fake used in tests.
package cryptosys

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/arkeep-io/switchboard/internal/wire"
)

// CryptoSystem is the capability object injected into the switchboard at
// construction. Hash is used by internal/sharding to project an address
// onto the 32-bit keyspace ring. Verify checks that signature is a valid
// signature of payload under the public key pubKey.
type CryptoSystem interface {
	Hash(data []byte) []byte
	Verify(pubKey wire.AgentID, signature []byte, payload []byte) bool
}

// Ed25519System is the production CryptoSystem: blake2b-256 for hashing,
// ed25519 for signature verification. AgentID is the raw 32-byte public key
// encoded as a string.
type Ed25519System struct{}

// New returns the production CryptoSystem.
func New() CryptoSystem {
	return Ed25519System{}
}

// Hash returns the blake2b-256 digest of data.
func (Ed25519System) Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Verify reports whether signature is a valid ed25519 signature of payload
// under pubKey. A malformed (wrong-length) public key or signature is
// treated as a verification failure rather than a panic.
func (Ed25519System) Verify(pubKey wire.AgentID, signature []byte, payload []byte) bool {
	key := []byte(pubKey)
	if len(key) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key), payload, signature)
}

// Keypair is a convenience ed25519 identity used by tests and the
// reference client to sign outbound envelopes.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// AgentID returns the public key as a wire.AgentID.
func (k Keypair) AgentID() wire.AgentID {
	return wire.AgentID(k.Public)
}

// Sign signs payload with the keypair's private key.
func (k Keypair) Sign(payload []byte) []byte {
	return ed25519.Sign(k.Private, payload)
}

// GenerateKeypair creates a new random ed25519 identity.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, fmt.Errorf("cryptosys: generate keypair: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}
