// Package space implements the per-space directory: the agent↔uri
// binding, the union of every aspect ever seen in the space, and the
// per-agent missing-aspect ledger.
package space

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arkeep-io/switchboard/internal/aspect"
	"github.com/arkeep-io/switchboard/internal/sharding"
	"github.com/arkeep-io/switchboard/internal/wire"
)

// AgentInfo is the directory entry for one agent in a space.
type AgentInfo struct {
	Uri wire.Uri
}

// ErrURITaken is returned by JoinAgent when the requested uri is already
// bound to a different, still-present agent in the space.
type ErrURITaken struct {
	Uri           wire.Uri
	ExistingAgent wire.AgentID
}

func (e ErrURITaken) Error() string {
	return fmt.Sprintf("space: uri %s already claimed by agent %s", e.Uri, e.ExistingAgent)
}

// Space is the per-space directory: agent↔uri mapping, known aspects, and
// the per-agent missing-aspect ledger.
//
// A single switchboard instance is single-threaded so Space's
// methods are never raced against each other by the core event loop. Every
// method still takes the mutex, so a Space can be read from another
// goroutine; the admin HTTP surface (internal/adminapi) reads only counts
// from the Switchboard and never a Space directly.
type Space struct {
	mu sync.RWMutex

	agents   map[wire.AgentID]AgentInfo
	uriOwner map[wire.Uri]wire.AgentID

	allAspects map[wire.EntryHash]map[wire.AspectHash]struct{}

	missingByAgent map[wire.AgentID]map[wire.EntryHash]map[wire.AspectHash]struct{}
}

// New returns an empty Space.
func New() *Space {
	return &Space{
		agents:         make(map[wire.AgentID]AgentInfo),
		uriOwner:       make(map[wire.Uri]wire.AgentID),
		allAspects:     make(map[wire.EntryHash]map[wire.AspectHash]struct{}),
		missingByAgent: make(map[wire.AgentID]map[wire.EntryHash]map[wire.AspectHash]struct{}),
	}
}

// JoinAgent inserts or overwrites the agent→uri binding. Re-joining under
// the same agent id replaces the previous uri. It fails only if uri is
// already claimed by a different, still-registered agent.
func (s *Space) JoinAgent(agent wire.AgentID, uri wire.Uri) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.uriOwner[uri]; ok && owner != agent {
		return ErrURITaken{Uri: uri, ExistingAgent: owner}
	}

	if existing, ok := s.agents[agent]; ok && existing.Uri != uri {
		delete(s.uriOwner, existing.Uri)
	}

	s.agents[agent] = AgentInfo{Uri: uri}
	s.uriOwner[uri] = agent
	return nil
}

// RemoveAgent removes agent from the space and returns the number of
// agents remaining. The caller (switchboard) is responsible for removing
// the space entirely when this returns 0.
func (s *Space) RemoveAgent(agent wire.AgentID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.agents[agent]; ok {
		delete(s.uriOwner, info.Uri)
		delete(s.agents, agent)
	}
	delete(s.missingByAgent, agent)
	return len(s.agents)
}

// AllAspects returns the union of every aspect ever added to the space.
func (s *Space) AllAspects() aspect.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotAllAspectsLocked()
}

func (s *Space) snapshotAllAspectsLocked() aspect.List {
	m := make(map[wire.EntryHash][]wire.AspectHash, len(s.allAspects))
	for entry, set := range s.allAspects {
		aspects := make([]wire.AspectHash, 0, len(set))
		for a := range set {
			aspects = append(aspects, a)
		}
		m[entry] = aspects
	}
	return aspect.New(m)
}

// AddAspect idempotently records that entry has aspectHash as one of its
// aspects, somewhere in the space.
func (s *Space) AddAspect(entry wire.EntryHash, aspectHash wire.AspectHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allAspects[entry] == nil {
		s.allAspects[entry] = make(map[wire.AspectHash]struct{}, 1)
	}
	s.allAspects[entry][aspectHash] = struct{}{}
}

// AddMissingAspect records that agent is known to lack aspectHash of entry.
// The caller must ensure the aspect is already present in AllAspects
// before calling this.
func (s *Space) AddMissingAspect(agent wire.AgentID, entry wire.EntryHash, aspectHash wire.AspectHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingByAgent[agent] == nil {
		s.missingByAgent[agent] = make(map[wire.EntryHash]map[wire.AspectHash]struct{})
	}
	if s.missingByAgent[agent][entry] == nil {
		s.missingByAgent[agent][entry] = make(map[wire.AspectHash]struct{}, 1)
	}
	s.missingByAgent[agent][entry][aspectHash] = struct{}{}
}

// RemoveMissingAspect records that agent is no longer missing aspectHash of
// entry. Removing the last aspect for (agent, entry) removes the entry;
// removing the last entry removes the agent from the ledger entirely.
func (s *Space) RemoveMissingAspect(agent wire.AgentID, entry wire.EntryHash, aspectHash wire.AspectHash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.missingByAgent[agent]
	if !ok {
		return
	}
	aspects, ok := entries[entry]
	if !ok {
		return
	}
	delete(aspects, aspectHash)
	if len(aspects) == 0 {
		delete(entries, entry)
	}
	if len(entries) == 0 {
		delete(s.missingByAgent, agent)
	}
}

// AgentsWithMissingAspects returns every agent that currently has at least
// one outstanding missing aspect, in lexicographic order for determinism.
func (s *Space) AgentsWithMissingAspects() []wire.AgentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wire.AgentID, 0, len(s.missingByAgent))
	for agent := range s.missingByAgent {
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AgentIsMissingAllAspects reports whether every aspect in aspects is
// listed as missing for agent under entry — i.e. this agent cannot help
// serve any of them.
func (s *Space) AgentIsMissingAllAspects(agent wire.AgentID, entry wire.EntryHash, aspects []wire.AspectHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	missing := s.missingByAgent[agent][entry]
	if len(missing) == 0 {
		return len(aspects) == 0
	}
	for _, a := range aspects {
		if _, ok := missing[a]; !ok {
			return false
		}
	}
	return true
}

// AgentIsMissingSomeAspectForEntry reports whether agent is missing at
// least one aspect of entry.
func (s *Space) AgentIsMissingSomeAspectForEntry(agent wire.AgentID, entry wire.EntryHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.missingByAgent[agent][entry]) > 0
}

// AgentIDToURI returns the uri currently bound to agent, if joined.
func (s *Space) AgentIDToURI(agent wire.AgentID) (wire.Uri, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.agents[agent]
	return info.Uri, ok
}

// AllAgents returns a snapshot copy of the agent→info directory.
func (s *Space) AllAgents() map[wire.AgentID]AgentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[wire.AgentID]AgentInfo, len(s.agents))
	for a, info := range s.agents {
		out[a] = info
	}
	return out
}

// AgentCount returns the number of agents currently joined to the space.
func (s *Space) AgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// AgentsExcept returns every agent in the space other than except, in
// lexicographic order. Used to build the full-sync replica set.
func (s *Space) AgentsExcept(except wire.AgentID) []wire.AgentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wire.AgentID, 0, len(s.agents))
	for a := range s.agents {
		if a != except {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AgentsSupposedToHoldEntry returns the r agents in the space whose
// locations are closest to loc on the sharding ring.
func (s *Space) AgentsSupposedToHoldEntry(h sharding.Hasher, loc sharding.Location, r uint64) []wire.AgentID {
	locs := s.agentLocationsLocked(h)
	return sharding.ClosestAgents(loc, locs, r)
}

func (s *Space) agentLocationsLocked(h sharding.Hasher) map[wire.AgentID]sharding.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[wire.AgentID]sharding.Location, len(s.agents))
	for a := range s.agents {
		out[a] = sharding.AgentLocation(h, a)
	}
	return out
}

// AspectsInShardForAgent returns the restriction of AllAspects to entries
// whose ring location places agent among the r agents closest to it —
// i.e. what agent is expected to hold under naive sharding.
func (s *Space) AspectsInShardForAgent(h sharding.Hasher, agent wire.AgentID, r uint64) aspect.List {
	s.mu.RLock()
	all := s.snapshotAllAspectsLocked()
	agentLocs := make(map[wire.AgentID]sharding.Location, len(s.agents))
	for a := range s.agents {
		agentLocs[a] = sharding.AgentLocation(h, a)
	}
	s.mu.RUnlock()

	return all.FilteredByEntryHash(func(entry wire.EntryHash) bool {
		entryLoc := sharding.EntryLocation(h, entry)
		for _, a := range sharding.ClosestAgents(entryLoc, agentLocs, r) {
			if a == agent {
				return true
			}
		}
		return false
	})
}
