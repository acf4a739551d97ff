package store

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sort"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// reconcile repairs crash damage on writer Open: it trims any incomplete
// trailing records left by a crash mid-append, then trims vector shards
// back to the committed chunk count recorded in metadata, per §4.1's
// crash-safety invariant.
func (h *Handle) reconcile() error {
	if err := h.truncateIncompleteChunkTails(); err != nil {
		return err
	}

	dim := h.meta.Dimension
	if dim == 0 {
		// No vectors have ever been written; nothing to reconcile.
		return nil
	}

	shards := h.vectorShardNumbers()
	sort.Ints(shards)

	total := 0
	counts := make(map[int]int, len(shards))
	for _, n := range shards {
		c, err := h.truncateIncompleteVectorTail(n, dim)
		if err != nil {
			return err
		}
		counts[n] = c
		total += c
	}

	committed := h.meta.CommittedChunkCount
	if total <= committed {
		return h.truncateChunkShardsToCount(committed)
	}

	// Trim the excess from the most recent shards backward.
	excess := total - committed
	for i := len(shards) - 1; i >= 0 && excess > 0; i-- {
		n := shards[i]
		keep := counts[n] - excess
		if keep < 0 {
			keep = 0
		}
		trimmed := counts[n] - keep
		if trimmed > 0 {
			if err := h.truncateVectorShardToEntries(n, dim, keep); err != nil {
				return err
			}
			excess -= trimmed
		}
		if keep == 0 {
			h.currentVectorShard = n
		}
	}
	return h.truncateChunkShardsToCount(committed)
}

func (h *Handle) vectorShardNumbers() []int {
	return h.shardNumbersIn("vectors")
}

func (h *Handle) chunkShardNumbers() []int {
	return h.shardNumbersIn("chunks")
}

func (h *Handle) shardNumbersIn(kind string) []int {
	entries, err := os.ReadDir(filepath.Join(h.dir, kind))
	if err != nil {
		return nil
	}
	seen := make(map[int]bool)
	for _, e := range entries {
		m := shardNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var n int
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		seen[n] = true
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// truncateChunkShardsToCount trims complete chunk-shard lines back to
// committed, the chunk-side mirror of the vector-shard trim above: a
// crash between AppendChunks finishing and the CommittedChunkCount
// increment leaves complete chunk records with no committed vector
// counterpart, since WriteBatch writes vectors, then chunks, then bumps
// the counter last.
func (h *Handle) truncateChunkShardsToCount(committed int) error {
	shards := h.chunkShardNumbers()
	sort.Ints(shards)

	counts := make(map[int]int, len(shards))
	total := 0
	for _, n := range shards {
		lines, err := readLines(shardPath(h.dir, "chunks", n, ".jsonl"))
		if err != nil {
			return err
		}
		counts[n] = len(lines)
		total += len(lines)
	}
	if total <= committed {
		return nil
	}

	excess := total - committed
	for i := len(shards) - 1; i >= 0 && excess > 0; i-- {
		n := shards[i]
		path := shardPath(h.dir, "chunks", n, ".jsonl")
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		keep := counts[n] - excess
		if keep < 0 {
			keep = 0
		}
		dropped := lines[keep:]
		if len(dropped) == 0 {
			continue
		}
		if err := writeLines(path, lines[:keep]); err != nil {
			return err
		}
		h.removeChunksFromPathIndex(dropped)
		excess -= len(dropped)
		if keep == 0 {
			h.currentChunkShard = n
		}
	}
	return h.savePathIndexLocked()
}

// removeChunksFromPathIndex drops trimmed chunk_ids from the in-memory
// path index so ChunkIDsForPath never resolves to a chunk record that
// reconcile just removed from disk.
func (h *Handle) removeChunksFromPathIndex(lines []string) {
	for _, line := range lines {
		c, ok := decodeChunkLine(line)
		if !ok {
			continue
		}
		ids := h.pathIndex[c.RelativePath]
		for i, id := range ids {
			if id == c.ChunkID {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(h.pathIndex, c.RelativePath)
		} else {
			h.pathIndex[c.RelativePath] = ids
		}
	}
}

// truncateIncompleteChunkTails drops any trailing partial JSON line from
// each chunk shard, the signature of a crash mid-append.
func (h *Handle) truncateIncompleteChunkTails() error {
	entries, err := os.ReadDir(filepath.Join(h.dir, "chunks"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	for _, e := range entries {
		path := filepath.Join(h.dir, "chunks", e.Name())
		if err := truncateToLastNewline(path); err != nil {
			return err
		}
	}
	return nil
}

func truncateToLastNewline(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	last := -1
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == '\n' {
			last = i
			break
		}
	}
	truncated := data[:last+1]
	return os.WriteFile(path, truncated, 0o644)
}

// truncateIncompleteVectorTail ensures a vector shard's .bin length is a
// multiple of dimension*4 bytes and that its .index has exactly that many
// lines, trimming whichever is ahead. Returns the resulting entry count.
func (h *Handle) truncateIncompleteVectorTail(shardNum, dimension int) (int, error) {
	binPath := shardPath(h.dir, "vectors", shardNum, ".bin")
	idxPath := shardPath(h.dir, "vectors", shardNum, ".index")

	binInfo, err := os.Stat(binPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}

	stride := int64(dimension) * 4
	binEntries := binInfo.Size() / stride
	if binInfo.Size()%stride != 0 {
		if err := os.Truncate(binPath, binEntries*stride); err != nil {
			return 0, ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
	}

	ids, err := readLines(idxPath)
	if err != nil {
		return 0, err
	}

	entries := int64(len(ids))
	if entries > binEntries {
		ids = ids[:binEntries]
		if err := writeLines(idxPath, ids); err != nil {
			return 0, err
		}
		entries = binEntries
	} else if entries < binEntries {
		if err := os.Truncate(binPath, entries*stride); err != nil {
			return 0, ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
	}

	return int(entries), nil
}

// truncateVectorShardToEntries trims a vector shard down to the first keep
// entries.
func (h *Handle) truncateVectorShardToEntries(shardNum, dimension, keep int) error {
	binPath := shardPath(h.dir, "vectors", shardNum, ".bin")
	idxPath := shardPath(h.dir, "vectors", shardNum, ".index")
	stride := int64(dimension) * 4

	if err := os.Truncate(binPath, int64(keep)*stride); err != nil && !os.IsNotExist(err) {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	ids, err := readLines(idxPath)
	if err != nil {
		return err
	}
	if keep < len(ids) {
		ids = ids[:keep]
	}
	return writeLines(idxPath, ids)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Compact rewrites chunk and vector shards excluding tombstoned chunk_ids,
// then clears the tombstone set. It is safe to call only from a writer
// handle.
func (h *Handle) Compact() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.tombstones) == 0 {
		return nil
	}

	dim := h.meta.Dimension
	chunkShards, err := os.ReadDir(filepath.Join(h.dir, "chunks"))
	if err != nil && !os.IsNotExist(err) {
		return ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}

	var keptChunks []Chunk
	for _, e := range chunkShards {
		path := filepath.Join(h.dir, "chunks", e.Name())
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		for _, line := range lines {
			c, ok := decodeChunkLine(line)
			if !ok {
				continue
			}
			if _, tomb := h.tombstones[c.ChunkID]; tomb {
				continue
			}
			keptChunks = append(keptChunks, c)
		}
		if err := os.Remove(path); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
	}

	keptVectors := make(map[string][]float32)
	if dim > 0 {
		for _, n := range h.vectorShardNumbers() {
			ids, err := readLines(shardPath(h.dir, "vectors", n, ".index"))
			if err != nil {
				return err
			}
			values, err := readVectorBin(shardPath(h.dir, "vectors", n, ".bin"), dim)
			if err != nil {
				return err
			}
			for i, id := range ids {
				if _, tomb := h.tombstones[id]; tomb {
					continue
				}
				if i < len(values) {
					keptVectors[id] = values[i]
				}
			}
			os.Remove(shardPath(h.dir, "vectors", n, ".bin"))
			os.Remove(shardPath(h.dir, "vectors", n, ".index"))
		}
	}

	h.currentChunkShard = 0
	h.currentVectorShard = 0
	h.pathIndex = make(map[string][]string)

	h.mu.Unlock()
	if len(keptChunks) > 0 {
		vectors := make([]VectorRecord, 0, len(keptChunks))
		for _, c := range keptChunks {
			vectors = append(vectors, VectorRecord{
				ChunkID:    c.ChunkID,
				Dimension:  dim,
				Values:     keptVectors[c.ChunkID],
				ProviderID: h.meta.ProviderID,
				ModelID:    h.meta.ModelID,
			})
		}
		if err := h.AppendChunks(keptChunks); err != nil {
			h.mu.Lock()
			return err
		}
		if err := h.AppendVectors(vectors); err != nil {
			h.mu.Lock()
			return err
		}
	}
	h.mu.Lock()

	h.tombstones = make(map[string]struct{})
	if err := h.saveTombstonesLocked(); err != nil {
		return err
	}
	h.meta.LastCleanupAt = nowMilli()
	return h.saveCatalog()
}

func decodeChunkLine(line string) (Chunk, bool) {
	var c Chunk
	if err := jsonUnmarshalString(line, &c); err != nil {
		return Chunk{}, false
	}
	return c, true
}

func readVectorBin(path string, dimension int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeFilePermission, err)
	}
	stride := dimension * 4
	n := len(data) / stride
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		vals := make([]float32, dimension)
		base := i * stride
		for j := 0; j < dimension; j++ {
			bits := binary.LittleEndian.Uint32(data[base+j*4 : base+j*4+4])
			vals[j] = math.Float32frombits(bits)
		}
		out[i] = vals
	}
	return out, nil
}
