package store

import (
	"os"
	"path/filepath"
	"sort"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// VectorShardSnapshot pins the byte length of one vector shard's .bin and
// the corresponding entry count of its .index at the moment a query began,
// so a concurrently-appending writer cannot be observed mid-append.
type VectorShardSnapshot struct {
	BinPath   string
	IndexPath string
	Entries   int
}

// SnapshotVectorShards captures the current shard set and sizes for a
// read-only query scan. Readers never take the write lock; shards may grow
// after this call, and growth is ignored.
func (h *Handle) SnapshotVectorShards() ([]VectorShardSnapshot, error) {
	nums := h.vectorShardNumbers()
	sort.Ints(nums)

	var out []VectorShardSnapshot
	for _, n := range nums {
		binPath := shardPath(h.dir, "vectors", n, ".bin")
		idxPath := shardPath(h.dir, "vectors", n, ".index")
		info, err := os.Stat(binPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
		}
		dim := h.Dimension()
		if dim == 0 {
			continue
		}
		entries := int(info.Size() / (int64(dim) * 4))
		out = append(out, VectorShardSnapshot{BinPath: binPath, IndexPath: idxPath, Entries: entries})
	}
	return out, nil
}

// VectorEntry is one (chunk_id, vector) pair read from a shard snapshot.
type VectorEntry struct {
	ChunkID string
	Values  []float32
}

// ReadVectorShard reads up to snap.Entries (chunk_id, vector) pairs from a
// snapshot, skipping tombstoned chunk_ids.
func (h *Handle) ReadVectorShard(snap VectorShardSnapshot, dimension int) ([]VectorEntry, error) {
	ids, err := readLinesUpTo(snap.IndexPath, snap.Entries)
	if err != nil {
		return nil, err
	}
	values, err := readVectorBinUpTo(snap.BinPath, dimension, snap.Entries)
	if err != nil {
		return nil, err
	}

	n := snap.Entries
	if len(ids) < n {
		n = len(ids)
	}
	if len(values) < n {
		n = len(values)
	}

	out := make([]VectorEntry, 0, n)
	for i := 0; i < n; i++ {
		if h.IsTombstoned(ids[i]) {
			continue
		}
		out = append(out, VectorEntry{ChunkID: ids[i], Values: values[i]})
	}
	return out, nil
}

func readLinesUpTo(path string, limit int) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if limit < len(lines) {
		lines = lines[:limit]
	}
	return lines, nil
}

func readVectorBinUpTo(path string, dimension, limit int) ([][]float32, error) {
	all, err := readVectorBin(path, dimension)
	if err != nil {
		return nil, err
	}
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// LookupChunks reads chunk metadata for a set of chunk_ids, scanning chunk
// shards one at a time and stopping early once every requested id has been
// found.
func (h *Handle) LookupChunks(chunkIDs []string) (map[string]Chunk, error) {
	want := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}

	out := make(map[string]Chunk, len(chunkIDs))
	entries, err := os.ReadDir(filepath.Join(h.dir, "chunks"))
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}

	for _, e := range entries {
		if len(out) == len(want) {
			break
		}
		path := filepath.Join(h.dir, "chunks", e.Name())
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			c, ok := decodeChunkLine(line)
			if !ok || !want[c.ChunkID] {
				continue
			}
			out[c.ChunkID] = c
		}
	}
	return out, nil
}
