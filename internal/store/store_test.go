package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVectors(chunks []Chunk, dim int) []VectorRecord {
	vecs := make([]VectorRecord, len(chunks))
	for i, c := range chunks {
		values := make([]float32, dim)
		for j := range values {
			values[j] = float32(i + j)
		}
		vecs[i] = VectorRecord{ChunkID: c.ChunkID, Dimension: dim, Values: values, ProviderID: "p", ModelID: "m"}
	}
	return vecs
}

func TestCreateAndOpenRoundTrip(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()

	h, err := Create(base, root)
	require.NoError(t, err)
	id := h.ID()
	require.NoError(t, h.Close())

	reopened, err := Open(base, id, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Equal(t, id, reopened.ID())
	assert.Equal(t, root, reopened.Metadata().RootPath)
}

func TestCreateRejectsExistingRepository(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()

	h, err := Create(base, root)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = Create(base, root)

	assert.Error(t, err)
}

func TestOpenUnknownRepositoryFails(t *testing.T) {
	base := t.TempDir()

	_, err := Open(base, "does-not-exist", false)

	assert.Error(t, err)
}

func TestStampProviderIfUnsetFirstCallWins(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 1536))

	assert.Equal(t, "openai", h.Metadata().ProviderID)
	assert.Equal(t, 1536, h.Dimension())
}

func TestStampProviderIfUnsetRejectsDimensionConflict(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 1536))

	err = h.StampProviderIfUnset("openai", "text-embedding-3", 768)

	assert.Error(t, err)
}

func TestStampProviderIfUnsetRejectsProviderConflict(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 1536))

	err = h.StampProviderIfUnset("cohere", "embed-v3", 1536)

	assert.Error(t, err)
}

func TestFileRecordRoundTrip(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	fr := FileRecord{RelativePath: "a.go", SizeBytes: 10, LastModifiedUnixNano: 123, ContentHash: "abc"}
	h.PutFileRecord(fr)

	got, ok := h.GetFileRecord("a.go")
	require.True(t, ok)
	assert.Equal(t, fr, *got)

	require.NoError(t, h.FlushCatalog())

	h.DeleteFileRecord("a.go")
	_, ok = h.GetFileRecord("a.go")
	assert.False(t, ok)
}

func TestAllFileRecordsReturnsIndependentCopies(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	h.PutFileRecord(FileRecord{RelativePath: "a.go", SizeBytes: 1})

	snapshot := h.AllFileRecords()
	snapshot["a.go"].SizeBytes = 999

	got, _ := h.GetFileRecord("a.go")
	assert.Equal(t, int64(1), got.SizeBytes, "mutating a snapshot copy must not affect the stored record")
}

// TestWriteBatchMaintainsChunkVectorCorrespondence exercises the testable
// invariant that every stored Chunk has exactly one Vector Record sharing
// its chunk_id, and that ChunkIDsForPath reflects the same set.
func TestWriteBatchMaintainsChunkVectorCorrespondence(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 3))

	chunks := []Chunk{
		{ChunkID: "c1", RelativePath: "a.go", Text: "a"},
		{ChunkID: "c2", RelativePath: "a.go", Text: "b"},
	}
	vectors := testVectors(chunks, 3)

	require.NoError(t, h.WriteBatch(chunks, vectors))

	assert.ElementsMatch(t, []string{"c1", "c2"}, h.ChunkIDsForPath("a.go"))
	assert.Equal(t, 2, h.Metadata().CommittedChunkCount)
	assert.Equal(t, 2, h.Metadata().TotalChunks)

	got, err := h.LookupChunks([]string{"c1", "c2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	snaps, err := h.SnapshotVectorShards()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 2, snaps[0].Entries)

	entries, err := h.ReadVectorShard(snaps[0], 3)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteBatchRejectsMismatchedBatchSizes(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	err = h.WriteBatch([]Chunk{{ChunkID: "c1", RelativePath: "a.go"}}, nil)

	assert.Error(t, err)
}

func TestRemoveTombstonesAndHidesFromVectorRead(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 2))
	chunks := []Chunk{{ChunkID: "c1", RelativePath: "a.go"}, {ChunkID: "c2", RelativePath: "a.go"}}
	require.NoError(t, h.WriteBatch(chunks, testVectors(chunks, 2)))

	require.NoError(t, h.Remove([]string{"c1"}))

	assert.True(t, h.IsTombstoned("c1"))
	assert.False(t, h.IsTombstoned("c2"))

	snaps, err := h.SnapshotVectorShards()
	require.NoError(t, err)
	entries, err := h.ReadVectorShard(snaps[0], 2)
	require.NoError(t, err)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ChunkID)
	}
	assert.NotContains(t, ids, "c1")
	assert.Contains(t, ids, "c2")
}

func TestCompactRewritesShardsWithoutTombstoned(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.StampProviderIfUnset("openai", "text-embedding-3", 2))
	chunks := []Chunk{{ChunkID: "c1", RelativePath: "a.go"}, {ChunkID: "c2", RelativePath: "a.go"}}
	require.NoError(t, h.WriteBatch(chunks, testVectors(chunks, 2)))
	require.NoError(t, h.Remove([]string{"c1"}))

	require.NoError(t, h.Compact())

	assert.False(t, h.IsTombstoned("c1"))
	got, err := h.LookupChunks([]string{"c1", "c2"})
	require.NoError(t, err)
	assert.NotContains(t, got, "c1")
	assert.Contains(t, got, "c2")
}

func TestDeleteRemovesRepositoryDirectory(t *testing.T) {
	base, root := t.TempDir(), t.TempDir()
	h, err := Create(base, root)
	require.NoError(t, err)
	id := h.ID()
	require.NoError(t, h.Close())

	require.NoError(t, Delete(base, id))

	_, err = Open(base, id, false)
	assert.Error(t, err)
}

func TestListReturnsCreatedRepositories(t *testing.T) {
	base := t.TempDir()
	h1, err := Create(base, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h1.Close())
	h2, err := Create(base, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h2.Close())

	ids, err := List(base)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{h1.ID(), h2.ID()}, ids)
}

func TestListOnMissingBaseDirReturnsEmpty(t *testing.T) {
	base := t.TempDir() + "/does-not-exist"

	ids, err := List(base)

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRepositoryIDIsStableForSamePath(t *testing.T) {
	root := t.TempDir()

	id1, err := RepositoryID(root)
	require.NoError(t, err)
	id2, err := RepositoryID(root)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 16)
}

func TestRepositoryIDDiffersAcrossPaths(t *testing.T) {
	id1, err := RepositoryID(t.TempDir())
	require.NoError(t, err)
	id2, err := RepositoryID(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}
