// Package sharding implements the naive-sharding keyspace: mapping content
// addresses onto a circular 32-bit ring and determining which agents are
// responsible for a given location under a replication factor r.
package sharding

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/arkeep-io/switchboard/internal/wire"
)

// Location is a position on the circular 32-bit keyspace ring.
type Location uint32

// Hasher is the subset of cryptosys.CryptoSystem sharding needs. Declared
// locally (rather than importing cryptosys) so this package has no
// dependency on the concrete crypto implementation — any 1-argument digest
// function works, including a deterministic fake in tests.
type Hasher interface {
	Hash(data []byte) []byte
}

// EntryLocation projects an entry address onto the ring: the crypto
// system's digest of the address, folded to 32 bits via xxhash.
func EntryLocation(h Hasher, entry wire.EntryHash) Location {
	return fold(h, []byte(entry))
}

// AgentLocation projects an agent id onto the ring the same way an entry
// address is projected, so the two are comparable on one ring.
func AgentLocation(h Hasher, agent wire.AgentID) Location {
	return fold(h, []byte(agent))
}

func fold(h Hasher, data []byte) Location {
	digest := h.Hash(data)
	return Location(uint32(xxhash.Sum64(digest)))
}

// distance returns the circular distance between two ring locations — the
// shorter of the two arcs connecting them.
func distance(a, b Location) uint32 {
	var d uint32
	if a > b {
		d = uint32(a - b)
	} else {
		d = uint32(b - a)
	}
	if wrap := ^uint32(0) - d + 1; wrap < d {
		return wrap
	}
	return d
}

// ClosestAgents returns the r agents whose locations are closest to loc on
// the ring, ties broken by lexicographic AgentID. If there are
// r or fewer agents, all of them are returned. The result order is by
// increasing distance then AgentID, and is invariant under the insertion
// order of agentLocations.
func ClosestAgents(loc Location, agentLocations map[wire.AgentID]Location, r uint64) []wire.AgentID {
	type candidate struct {
		agent wire.AgentID
		dist  uint32
	}
	candidates := make([]candidate, 0, len(agentLocations))
	for agent, agentLoc := range agentLocations {
		candidates = append(candidates, candidate{agent: agent, dist: distance(loc, agentLoc)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].agent < candidates[j].agent
	})

	n := len(candidates)
	if r < uint64(n) {
		n = int(r)
	}
	out := make([]wire.AgentID, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].agent
	}
	return out
}
