package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

var shardNamePattern = regexp.MustCompile(`^(\d{5})`)

func shardPath(dir, kind string, index int, ext string) string {
	return filepath.Join(dir, kind, fmt.Sprintf("%05d%s", index, ext))
}

// latestShardIndex scans <dir>/<kind>/*<ext> and returns the highest shard
// number present, or 0 if the directory is empty.
func (h *Handle) latestShardIndex(kind, ext string) int {
	entries, err := os.ReadDir(filepath.Join(h.dir, kind))
	if err != nil {
		return 0
	}
	max := 0
	for _, e := range entries {
		m := shardNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return max
}

// WriteBatch durably appends a batch of (chunk, vector) pairs in the order
// that makes crash recovery well-defined: vectors first, then chunks, then
// the commit counter. A crash between the vector append and the chunk
// append leaves the vector shard ahead of CommittedChunkCount; reconcile
// trims it back on the next writer Open.
func (h *Handle) WriteBatch(chunks []Chunk, vectors []VectorRecord) error {
	if len(chunks) != len(vectors) {
		return ierrors.New(ierrors.ErrCodeInternal, "chunk and vector batch sizes differ", nil)
	}
	if err := h.AppendVectors(vectors); err != nil {
		return err
	}
	if err := h.AppendChunks(chunks); err != nil {
		return err
	}

	h.mu.Lock()
	h.meta.CommittedChunkCount += len(chunks)
	h.meta.TotalChunks += len(chunks)
	h.mu.Unlock()
	return h.SaveMetadata()
}

// AppendChunks JSON-lines-appends chunk metadata to the current chunk
// shard, rolling to a new shard when the current one exceeds the
// configured byte threshold, and updates the path index used by
// ChunkIDsForPath.
func (h *Handle) AppendChunks(chunks []Chunk) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}

	path := shardPath(h.dir, "chunks", h.currentChunkShard, ".jsonl")
	if info, err := os.Stat(path); err == nil && info.Size() > h.shardSizeBytes {
		h.currentChunkShard++
		path = shardPath(h.dir, "chunks", h.currentChunkShard, ".jsonl")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			return ierrors.Wrap(ierrors.ErrCodeInternal, err)
		}
		if _, err := w.Write(line); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
		h.pathIndex[c.RelativePath] = append(h.pathIndex[c.RelativePath], c.ChunkID)
	}
	if err := w.Flush(); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	if err := f.Sync(); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}

	return h.savePathIndexLocked()
}

// AppendVectors writes raw float32 little-endian values contiguously to the
// current vector shard and appends chunk_ids to its parallel .index file,
// rolling to a new shard when the byte threshold is exceeded.
func (h *Handle) AppendVectors(vectors []VectorRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vectors) == 0 {
		return nil
	}

	binPath := shardPath(h.dir, "vectors", h.currentVectorShard, ".bin")
	idxPath := shardPath(h.dir, "vectors", h.currentVectorShard, ".index")

	if info, err := os.Stat(binPath); err == nil && info.Size() > h.shardSizeBytes {
		h.currentVectorShard++
		binPath = shardPath(h.dir, "vectors", h.currentVectorShard, ".bin")
		idxPath = shardPath(h.dir, "vectors", h.currentVectorShard, ".index")
	}

	bf, err := os.OpenFile(binPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	defer bf.Close()

	xf, err := os.OpenFile(idxPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	defer xf.Close()

	var buf bytes.Buffer
	idxWriter := bufio.NewWriter(xf)
	for _, v := range vectors {
		for _, f32 := range v.Values {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(f32))
			buf.Write(b[:])
		}
		if _, err := idxWriter.WriteString(v.ChunkID); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
		if err := idxWriter.WriteByte('\n'); err != nil {
			return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
		}
	}
	if _, err := bf.Write(buf.Bytes()); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	if err := bf.Sync(); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	if err := idxWriter.Flush(); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}
	if err := xf.Sync(); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeDiskFull, err)
	}

	return nil
}

func (h *Handle) savePathIndexLocked() error {
	return atomicWriteJSON(filepath.Join(h.dir, "path_index.json"), h.pathIndex)
}

func (h *Handle) loadPathIndex() error {
	path := filepath.Join(h.dir, "path_index.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return readJSON(path, &h.pathIndex)
}

func (h *Handle) loadTombstones() error {
	path := filepath.Join(h.dir, "tombstones.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	var list []string
	if err := readJSON(path, &list); err != nil {
		return err
	}
	for _, id := range list {
		h.tombstones[id] = struct{}{}
	}
	return nil
}

func (h *Handle) saveTombstonesLocked() error {
	list := make([]string, 0, len(h.tombstones))
	for id := range h.tombstones {
		list = append(list, id)
	}
	sort.Strings(list)
	return atomicWriteJSON(filepath.Join(h.dir, "tombstones.json"), list)
}

// Remove marks chunk_ids as tombstoned. Tombstoned entries are skipped by
// future full scans; periodic Compact rewrites shards excluding them.
func (h *Handle) Remove(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	h.mu.Lock()
	for _, id := range chunkIDs {
		h.tombstones[id] = struct{}{}
	}
	removed := len(chunkIDs)
	h.meta.TotalChunks -= removed
	if h.meta.TotalChunks < 0 {
		h.meta.TotalChunks = 0
	}
	err := h.saveTombstonesLocked()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.SaveMetadata()
}

// IsTombstoned reports whether a chunk_id has been removed but not yet
// compacted away.
func (h *Handle) IsTombstoned(chunkID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tombstones[chunkID]
	return ok
}
