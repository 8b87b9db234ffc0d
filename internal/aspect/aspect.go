// Package aspect implements the AspectList algebra: per-entry sets of
// aspect hashes with union, difference, filtering, and a canonical debug
// rendering.
package aspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arkeep-io/switchboard/internal/wire"
)

// Pair is a single (entry, aspect) tuple, used when flattening a List to a
// set for membership tests.
type Pair struct {
	Entry  wire.EntryHash
	Aspect wire.AspectHash
}

// List is an immutable-by-convention map of entry → set of aspect hashes.
// Every operation returns a new List rather than mutating the receiver, so
// a List can be safely shared once built. The zero value is an empty list.
type List struct {
	entries map[wire.EntryHash]map[wire.AspectHash]struct{}
}

// New builds a List from a {entry: [aspect, …]} mapping. Construction is
// total (any input, including nil, produces a valid List) and idempotent
// (duplicate aspects in the input slice collapse into the set).
func New(m map[wire.EntryHash][]wire.AspectHash) List {
	entries := make(map[wire.EntryHash]map[wire.AspectHash]struct{}, len(m))
	for entry, aspects := range m {
		if len(aspects) == 0 {
			continue
		}
		set := make(map[wire.AspectHash]struct{}, len(aspects))
		for _, a := range aspects {
			set[a] = struct{}{}
		}
		entries[entry] = set
	}
	return List{entries: entries}
}

// clone returns a deep copy of the receiver's backing map, used internally
// whenever an operation needs to build a fresh List.
func (l List) clone() map[wire.EntryHash]map[wire.AspectHash]struct{} {
	out := make(map[wire.EntryHash]map[wire.AspectHash]struct{}, len(l.entries))
	for entry, set := range l.entries {
		newSet := make(map[wire.AspectHash]struct{}, len(set))
		for a := range set {
			newSet[a] = struct{}{}
		}
		out[entry] = newSet
	}
	return out
}

// With returns a new List with (entry, aspect) inserted. Idempotent: adding
// an aspect already present is a no-op (beyond the copy).
func (l List) With(entry wire.EntryHash, aspectHash wire.AspectHash) List {
	out := l.clone()
	if out[entry] == nil {
		out[entry] = make(map[wire.AspectHash]struct{}, 1)
	}
	out[entry][aspectHash] = struct{}{}
	return List{entries: out}
}

// Union returns the set-union of l and other: every entry present in
// either, with the union of their aspect sets.
func (l List) Union(other List) List {
	out := l.clone()
	for entry, set := range other.entries {
		if out[entry] == nil {
			out[entry] = make(map[wire.AspectHash]struct{}, len(set))
		}
		for a := range set {
			out[entry][a] = struct{}{}
		}
	}
	return List{entries: out}
}

// Diff returns, for every entry in l, the aspects present in l but absent
// from other. Entries whose residue is empty are omitted from the result —
// so Diff(a, a) is always the empty List.
func (l List) Diff(other List) List {
	out := make(map[wire.EntryHash]map[wire.AspectHash]struct{})
	for entry, set := range l.entries {
		otherSet := other.entries[entry]
		var residue map[wire.AspectHash]struct{}
		for a := range set {
			if _, present := otherSet[a]; !present {
				if residue == nil {
					residue = make(map[wire.AspectHash]struct{})
				}
				residue[a] = struct{}{}
			}
		}
		if len(residue) > 0 {
			out[entry] = residue
		}
	}
	return List{entries: out}
}

// FilteredByEntryHash returns the restriction of l to entries for which
// pred returns true.
func (l List) FilteredByEntryHash(pred func(wire.EntryHash) bool) List {
	out := make(map[wire.EntryHash]map[wire.AspectHash]struct{})
	for entry, set := range l.entries {
		if pred(entry) {
			out[entry] = set
		}
	}
	return List{entries: out}
}

// PerEntry returns the aspect set for entry, if any.
func (l List) PerEntry(entry wire.EntryHash) ([]wire.AspectHash, bool) {
	set, ok := l.entries[entry]
	if !ok {
		return nil, false
	}
	out := make([]wire.AspectHash, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

// EntryAddresses returns every entry with a non-empty aspect set. The
// order is stable within one call (lexicographic) but callers must not
// depend on any particular order across different Lists.
func (l List) EntryAddresses() []wire.EntryHash {
	out := make([]wire.EntryHash, 0, len(l.entries))
	for entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsEmpty reports whether the list has no entries with aspects.
func (l List) IsEmpty() bool {
	return len(l.entries) == 0
}

// Pairs flattens the list to the set of (entry, aspect) tuples it contains,
// mirroring the HashSet<(EntryHash, AspectHash)> conversion the original
// implementation uses when caching missing-aspect info.
func (l List) Pairs() []Pair {
	var out []Pair
	for entry, set := range l.entries {
		for a := range set {
			out = append(out, Pair{Entry: entry, Aspect: a})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry != out[j].Entry {
			return out[i].Entry < out[j].Entry
		}
		return out[i].Aspect < out[j].Aspect
	})
	return out
}

// PrettyString renders the list in a stable, human-readable form for debug
// logging — one line per entry, aspects sorted.
func (l List) PrettyString() string {
	if l.IsEmpty() {
		return "(empty aspect list)"
	}
	var b strings.Builder
	for _, entry := range l.EntryAddresses() {
		aspects, _ := l.PerEntry(entry)
		strs := make([]string, len(aspects))
		for i, a := range aspects {
			strs[i] = string(a)
		}
		fmt.Fprintf(&b, "  %s: [%s]\n", entry, strings.Join(strs, ", "))
	}
	return b.String()
}
