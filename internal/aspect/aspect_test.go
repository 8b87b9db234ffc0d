package aspect_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arkeep-io/switchboard/internal/aspect"
	"github.com/arkeep-io/switchboard/internal/wire"
)

func listOf(m map[wire.EntryHash][]wire.AspectHash) aspect.List {
	return aspect.New(m)
}

func TestDiffSelfIsEmpty(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1", "AS2"},
		"E2": {"AS3"},
	})
	assert.True(t, a.Diff(a).IsEmpty())
}

func TestDiffResidue(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1", "AS2"},
	})
	b := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1"},
	})
	diff := a.Diff(b)
	aspects, ok := diff.PerEntry("E1")
	assert.True(t, ok)
	assert.Equal(t, []wire.AspectHash{"AS2"}, aspects)
}

func TestDiffOmitsEmptyResidueEntries(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1"},
		"E2": {"AS2"},
	})
	b := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1"},
	})
	diff := a.Diff(b)
	assert.Equal(t, []wire.EntryHash{"E2"}, diff.EntryAddresses())
}

func TestUnion(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{"E1": {"AS1"}})
	b := listOf(map[wire.EntryHash][]wire.AspectHash{"E1": {"AS2"}, "E2": {"AS3"}})
	union := a.Union(b)
	aspects, _ := union.PerEntry("E1")
	assert.ElementsMatch(t, []wire.AspectHash{"AS1", "AS2"}, aspects)
	assert.ElementsMatch(t, []wire.EntryHash{"E1", "E2"}, union.EntryAddresses())
}

func TestFilteredByEntryHash(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{
		"E1": {"AS1"},
		"E2": {"AS2"},
	})
	filtered := a.FilteredByEntryHash(func(e wire.EntryHash) bool { return e == "E1" })
	assert.Equal(t, []wire.EntryHash{"E1"}, filtered.EntryAddresses())
}

func TestConstructionIdempotent(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{"E1": {"AS1", "AS1", "AS1"}})
	aspects, _ := a.PerEntry("E1")
	assert.Equal(t, []wire.AspectHash{"AS1"}, aspects)
}

func TestWithIdempotent(t *testing.T) {
	a := aspect.List{}
	a = a.With("E1", "AS1")
	a = a.With("E1", "AS1")
	aspects, _ := a.PerEntry("E1")
	assert.Equal(t, []wire.AspectHash{"AS1"}, aspects)
}

func TestPairs(t *testing.T) {
	a := listOf(map[wire.EntryHash][]wire.AspectHash{"E1": {"AS2", "AS1"}})
	assert.Equal(t, []aspect.Pair{
		{Entry: "E1", Aspect: "AS1"},
		{Entry: "E1", Aspect: "AS2"},
	}, a.Pairs())
}

func TestEmptyListConstruction(t *testing.T) {
	a := aspect.New(nil)
	assert.True(t, a.IsEmpty())
	assert.Empty(t, a.EntryAddresses())
}

// TestPropertyDiffSelfIsAlwaysEmpty is a randomized trace test for
// invariant 5: Diff(a, a) is empty for all a. Seeded explicitly for
// reproducibility.
func TestPropertyDiffSelfIsAlwaysEmpty(t *testing.T) {
	const seed = 20260730
	rnd := rand.New(rand.NewSource(seed))

	for trial := 0; trial < 200; trial++ {
		entryCount := rnd.Intn(6)
		m := make(map[wire.EntryHash][]wire.AspectHash, entryCount)
		for e := 0; e < entryCount; e++ {
			entry := wire.EntryHash(fmt.Sprintf("E%d-%d", trial, e))
			aspectCount := rnd.Intn(5)
			aspects := make([]wire.AspectHash, aspectCount)
			for i := range aspects {
				aspects[i] = wire.AspectHash(fmt.Sprintf("AS%d-%d-%d", trial, e, i))
			}
			m[entry] = aspects
		}
		a := listOf(m)
		assert.Truef(t, a.Diff(a).IsEmpty(), "trial %d: %+v", trial, m)
	}
}
