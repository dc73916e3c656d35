package lexicon

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
)

func TestOpenEmptyDirectory(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.NextID())
}

func TestResolveOrCreateAssignsDenseIDs(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	id, created := s.ResolveOrCreate("virus")
	assert.Equal(t, 0, id)
	assert.True(t, created)

	id, created = s.ResolveOrCreate("vaccin")
	assert.Equal(t, 1, id)
	assert.True(t, created)

	id, created = s.ResolveOrCreate("virus")
	assert.Equal(t, 0, id)
	assert.False(t, created)
}

func TestCommitAppendsToBarrels(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	s.ResolveOrCreate("virus")
	s.ResolveOrCreate("antibodi")
	s.ResolveOrCreate("2019")
	barrels, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 22, 27}, barrels)

	data, err := os.ReadFile(shard.LexiconPath(dir, 22))
	require.NoError(t, err)
	assert.Equal(t, "virus\t0\n", string(data))

	s.ResolveOrCreate("viral")
	_, err = s.Commit()
	require.NoError(t, err)
	data, err = os.ReadFile(shard.LexiconPath(dir, 22))
	require.NoError(t, err)
	assert.Equal(t, "virus\t0\nviral\t3\n", string(data))

	barrels, err = s.Commit()
	require.NoError(t, err)
	assert.Empty(t, barrels)
}

func TestReopenKeepsIDsAndContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	for _, term := range []string{"covid", "sar", "cov", "pandem"} {
		s.ResolveOrCreate(term)
	}
	_, err = s.Commit()
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Len())
	assert.Equal(t, 4, reopened.NextID())
	id, ok := reopened.Resolve("sar")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	id, created := reopened.ResolveOrCreate("outbreak")
	assert.True(t, created)
	assert.Equal(t, 4, id)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	content := "covid\t7\nbroken line\ncough\tabc\ncold\t-1\n\ncell\t9\n"
	require.NoError(t, os.WriteFile(shard.LexiconPath(dir, 3), []byte(content), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 10, s.NextID())
	_, ok := s.Resolve("cough")
	assert.False(t, ok)
}

func TestUniqueIDsPerTerm(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	terms := []string{"a1", "b2", "c3", "a1", "zz", "b2", "9x"}
	seen := make(map[int]string)
	for _, term := range terms {
		id, _ := s.ResolveOrCreate(term)
		if prev, ok := seen[id]; ok {
			assert.Equal(t, prev, term, "id %d shared by %q and %q", id, prev, term)
		}
		seen[id] = term
	}
	assert.Len(t, seen, 5)
}

func TestReaderResolve(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.ResolveOrCreate("virus")
	s.ResolveOrCreate("vaccin")
	s.ResolveOrCreate("mask")
	_, err = s.Commit()
	require.NoError(t, err)

	r, err := NewReader(dir, 4)
	require.NoError(t, err)

	id, ok, err := r.Resolve("vaccin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok, err = r.Resolve("unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	resolved := r.ResolveAll([]string{"mask", "virus", "nope"})
	assert.Equal(t, map[string]int{"mask": 2, "virus": 0}, resolved)

	hits, misses := r.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(4), misses)
}

func TestReaderEvictsLeastRecentlyUsedBarrel(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.ResolveOrCreate("virus")
	s.ResolveOrCreate("vaccin")
	s.ResolveOrCreate("mask")
	_, err = s.Commit()
	require.NoError(t, err)

	r, err := NewReader(dir, 1)
	require.NoError(t, err)
	for _, term := range []string{"vaccin", "mask", "vaccin"} {
		_, ok, err := r.Resolve(term)
		require.NoError(t, err)
		require.True(t, ok)
	}
	hits, misses := r.Stats()
	assert.Zero(t, hits)
	assert.Equal(t, int64(3), misses)

	// virus shares the v barrel that was just reloaded.
	id, ok, err := r.Resolve("virus")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, id)
	hits, _ = r.Stats()
	assert.Equal(t, int64(1), hits)
}

func TestReaderInvalidateSeesNewTerms(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.ResolveOrCreate("virus")
	_, err = s.Commit()
	require.NoError(t, err)

	r, err := NewReader(dir, 4)
	require.NoError(t, err)
	_, ok, err := r.Resolve("viral")
	require.NoError(t, err)
	assert.False(t, ok)

	s.ResolveOrCreate("viral")
	barrels, err := s.Commit()
	require.NoError(t, err)

	_, ok, _ = r.Resolve("viral")
	assert.False(t, ok, "cached barrel is stale until invalidated")

	r.Invalidate(barrels...)
	id, ok, err := r.Resolve("viral")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestWalkVisitsAllBarrels(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	for _, term := range []string{"zinc", "alpha", "42nd"} {
		s.ResolveOrCreate(term)
	}
	_, err = s.Commit()
	require.NoError(t, err)

	var got []string
	require.NoError(t, Walk(dir, func(e Entry) { got = append(got, e.Term) }))
	assert.Equal(t, []string{"alpha", "zinc", "42nd"}, got)
}
