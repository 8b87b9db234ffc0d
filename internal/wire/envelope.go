package wire

import (
	"encoding/json"
	"fmt"
)

// Verifier is the subset of cryptosys.CryptoSystem that SignedWireMessage
// needs. Declared locally to avoid an import cycle (cryptosys depends on
// wire for AgentID) — any type satisfying this interface works, including
// the real CryptoSystem.
type Verifier interface {
	Verify(pubKey AgentID, signature []byte, payload []byte) bool
}

// SignedWireMessage is the frame payload carried on the wire: a signed,
// opaque WireMessage. Payload is the encoded form of a WireMessage; it is
// only deserialized after Verify succeeds.
type SignedWireMessage struct {
	Provenance AgentID `json:"provenance"`
	Signature  []byte  `json:"signature"`
	Payload    []byte  `json:"payload"`
}

// Verify checks the signature against the declared provenance, using the
// injected crypto system. A false result means the frame must be discarded.
func (s SignedWireMessage) Verify(v Verifier) bool {
	return v.Verify(s.Provenance, s.Signature, s.Payload)
}

// DecodePayload deserialises Payload into a concrete WireMessage. Callers
// must call Verify first — DecodePayload does not re-check the signature.
func (s SignedWireMessage) DecodePayload() (WireMessage, error) {
	return Decode(s.Payload)
}

// EncodeSignedWireMessage serialises a SignedWireMessage to its on-the-wire
// JSON form, the shape that travels inside a single binary WebSocket frame.
func EncodeSignedWireMessage(s SignedWireMessage) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("wire: encode signed message: %w", err)
	}
	return data, nil
}

// DecodeSignedWireMessage parses the on-the-wire JSON form of a
// SignedWireMessage.
func DecodeSignedWireMessage(raw []byte) (SignedWireMessage, error) {
	var s SignedWireMessage
	if err := json.Unmarshal(raw, &s); err != nil {
		return SignedWireMessage{}, fmt.Errorf("wire: decode signed message: %w", err)
	}
	return s, nil
}

// Sign builds a SignedWireMessage for msg, signed by signFn (typically
// cryptosys.Keypair.Sign). Used by the reference client and by tests.
func Sign(msg WireMessage, provenance AgentID, signFn func(payload []byte) []byte) (SignedWireMessage, error) {
	payload, err := Encode(msg)
	if err != nil {
		return SignedWireMessage{}, err
	}
	return SignedWireMessage{
		Provenance: provenance,
		Signature:  signFn(payload),
		Payload:    payload,
	}, nil
}
