package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulateCrashAfterAppend writes chunks and vectors the way WriteBatch does,
// but stops short of bumping CommittedChunkCount/TotalChunks and saving
// metadata — the exact window a crash between the vector append and the
// metadata update leaves behind.
func simulateCrashAfterAppend(t *testing.T, h *Handle, chunks []Chunk, vectors []VectorRecord) {
	t.Helper()
	require.NoError(t, h.AppendVectors(vectors))
	require.NoError(t, h.AppendChunks(chunks))
}

func TestReconcileTrimsOrphanedChunksAndVectorsAfterCrash(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 2))

	committed := []Chunk{{ChunkID: "c1", RelativePath: "a.go", Text: "committed"}}
	require.NoError(t, h.WriteBatch(committed, testVectors(committed, 2)))
	require.Equal(t, 1, h.Metadata().CommittedChunkCount)

	orphaned := []Chunk{
		{ChunkID: "c2", RelativePath: "b.go", Text: "orphan-1"},
		{ChunkID: "c3", RelativePath: "b.go", Text: "orphan-2"},
	}
	simulateCrashAfterAppend(t, h, orphaned, testVectors(orphaned, 2))

	// Before reopening, the on-disk shards hold 3 chunk/vector records, but
	// metadata.json still says only 1 is committed.
	require.NoError(t, h.Close())

	reopened, err := Open(base, h.ID(), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Equal(t, 1, reopened.Metadata().CommittedChunkCount)
	assert.Equal(t, []string{"c1"}, reopened.ChunkIDsForPath("a.go"))
	assert.Empty(t, reopened.ChunkIDsForPath("b.go"), "orphaned chunks must be dropped from the path index on reconcile")

	got, err := reopened.LookupChunks([]string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Contains(t, got, "c1")
	assert.NotContains(t, got, "c2")
	assert.NotContains(t, got, "c3")

	snaps, err := reopened.SnapshotVectorShards()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Entries, "vector shard must be trimmed back to the committed count")
}

func TestReconcileTrimsIncompleteTrailingChunkLine(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 2))

	chunks := []Chunk{{ChunkID: "c1", RelativePath: "a.go", Text: "whole"}}
	require.NoError(t, h.WriteBatch(chunks, testVectors(chunks, 2)))

	// Append a partial line directly to the shard, simulating a crash
	// mid-write of a JSON record (no trailing newline).
	shard := shardPath(h.dir, "chunks", h.currentChunkShard, ".jsonl")
	f, err := os.OpenFile(shard, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"chunk_id":"c2","relative_path":"a.go"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, h.Close())

	reopened, err := Open(base, h.ID(), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	lines, err := readLines(shard)
	require.NoError(t, err)
	assert.Len(t, lines, 1, "the incomplete trailing line must be dropped")

	got, err := reopened.LookupChunks([]string{"c1", "c2"})
	require.NoError(t, err)
	assert.Contains(t, got, "c1")
	assert.NotContains(t, got, "c2")
}

func TestReconcileIsNoOpWhenNothingIsOrphaned(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 2))

	chunks := []Chunk{{ChunkID: "c1", RelativePath: "a.go"}, {ChunkID: "c2", RelativePath: "a.go"}}
	require.NoError(t, h.WriteBatch(chunks, testVectors(chunks, 2)))
	require.NoError(t, h.Close())

	reopened, err := Open(base, h.ID(), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.ElementsMatch(t, []string{"c1", "c2"}, reopened.ChunkIDsForPath("a.go"))
	assert.Equal(t, 2, reopened.Metadata().CommittedChunkCount)
}

func TestReconcileHandlesNeverEmbeddedRepository(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	reopened, err := Open(base, h.ID(), true)

	require.NoError(t, err, "reconcile must tolerate a repository with no stamped dimension yet")
	require.NoError(t, reopened.Close())
}
