// Package wire defines the switchboard's protocol message types: the
// tagged WireMessage variants, the signed envelope they travel in, and the
// opaque identifiers (Uri, AgentID, SpaceHash, EntryHash, AspectHash) used
// throughout the rest of the module.
//
// The concrete byte-level framing of each variant is an external concern;
// this package only fixes the in-process Go representation and a JSON
// encoding reasonable enough to round-trip through the adapter in
// internal/wsadapter and in tests.
package wire

// Uri identifies a single WebSocket connection for the life of that
// connection. Stable per connection, meaningless across reconnects.
type Uri string

// AgentID is a peer's public key, used both as its identity and as its
// address on the sharding ring (internal/sharding).
type AgentID string

// SpaceHash identifies a space: a shared data context that agents join.
type SpaceHash string

// EntryHash identifies an entry: an ordered collection of aspects.
type EntryHash string

// AspectHash identifies one content-addressed fragment of an entry.
type AspectHash string

// WireVersion is returned in every StatusResponse. Bumped only when the
// shape of a wire variant changes in a way that breaks older peers; peers
// presenting a mismatched version are not rejected by this implementation.
const WireVersion uint32 = 1
