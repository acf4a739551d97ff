// Package query implements the Query Engine (C9): embed once, scan every
// vector shard of the target repositories, and return the top-k chunks by
// cosine similarity, enriched with their stored chunk metadata.
package query

import (
	"math"
	"sort"

	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
)

// DefaultK and DefaultMinScore are the documented query defaults.
const (
	DefaultK        = 8
	DefaultMinScore = 0
)

// Options tunes one Search call.
type Options struct {
	K        int
	MinScore float64
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	return o
}

// Result is one ranked chunk, enriched with enough of its stored record to
// render or follow up on without a second round trip.
type Result struct {
	ChunkID      string
	Score        float64
	RelativePath string
	LineStart    int
	LineEnd      int
	Text         string
}

// Search scores queryVector against every vector shard of h, in shard
// order, keeping a bounded top-k set as it goes, then enriches the
// surviving candidates with their stored chunk metadata. It never mutates
// h; readers need no write lock and tolerate shards growing concurrently
// because SnapshotVectorShards pins shard sizes at call time.
func Search(h *store.Handle, queryVector []float32, opts Options) ([]Result, error) {
	opts = opts.withDefaults()

	qNorm := norm(queryVector)
	if qNorm == 0 {
		return nil, nil
	}

	snaps, err := h.SnapshotVectorShards()
	if err != nil {
		return nil, err
	}

	dim := h.Dimension()
	heap := newScoreHeap(opts.K)
	for _, snap := range snaps {
		entries, err := h.ReadVectorShard(snap, dim)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			score := cosineSimilarity(queryVector, qNorm, e.Values)
			if score < opts.MinScore {
				continue
			}
			heap.consider(candidate{chunkID: e.ChunkID, score: score})
		}
	}

	top := heap.sorted()
	if len(top) == 0 {
		return nil, nil
	}

	ids := make([]string, len(top))
	for i, c := range top {
		ids[i] = c.chunkID
	}
	chunks, err := h.LookupChunks(ids)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(top))
	for _, c := range top {
		ch, ok := chunks[c.chunkID]
		if !ok {
			continue // owning chunk shard was compacted away between the vector scan and lookup; drop rather than fail the query
		}
		out = append(out, Result{
			ChunkID:      c.chunkID,
			Score:        c.score,
			RelativePath: ch.RelativePath,
			LineStart:    ch.LineStart,
			LineEnd:      ch.LineEnd,
			Text:         ch.Text,
		})
	}
	return out, nil
}

// SearchRepositories runs Search across several repositories against one
// query vector and merges into a single top-k. A repository whose stamped
// dimension doesn't match the query vector is skipped with a telemetry
// warning rather than aborting the whole query, per the documented
// mismatched-repository behavior.
func SearchRepositories(handles []*store.Handle, queryVector []float32, opts Options, sink telemetry.Sink) ([]Result, error) {
	opts = opts.withDefaults()

	var all []Result
	for _, h := range handles {
		if h.Dimension() != len(queryVector) {
			telemetry.Emit(sink, telemetry.Event{
				Kind:         telemetry.KindError,
				RepositoryID: h.ID(),
				Message:      "repository dimension does not match query vector, skipped",
			})
			continue
		}
		res, err := Search(h, queryVector, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, res...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ChunkID < all[j].ChunkID
	})
	if len(all) > opts.K {
		all = all[:opts.K]
	}
	return all, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(q []float32, qNorm float64, v []float32) float64 {
	vNorm := norm(v)
	if vNorm == 0 {
		return 0
	}
	var dot float64
	n := len(q)
	if len(v) < n {
		n = len(v)
	}
	for i := 0; i < n; i++ {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}
