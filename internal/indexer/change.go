// Package indexer implements the Change Detector (C4) and Index Writer
// (C8): the orchestration layer that turns a walked file set into a
// classification against the repository's catalog, and turns embedded
// chunks back into committed store records.
package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/aman-cerp/semindex/internal/scanner"
	"github.com/aman-cerp/semindex/internal/store"
)

// mtimeTolerance is the quick-check equality tolerance; host filesystems
// commonly truncate mtime precision below this, so exact equality would
// false-negative on otherwise-identical files.
const mtimeTolerance = time.Millisecond

// Classification is the outcome of comparing one file against the
// catalog's stored record.
type Classification int

const (
	Unchanged Classification = iota
	Added
	Modified
	Deleted
	Skipped
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is one file's classification outcome.
type Result struct {
	RelativePath string
	Class        Classification
	ContentHash  string // populated for added/modified/unchanged
	Err          error  // populated for skipped

	// StaleRecord is set for an Unchanged result reached via the hash
	// fallback (the quick-check size/mtime didn't match, but the content
	// hash did): the catalog's stored (size, mtime) is out of date even
	// though the content is not, and should be refreshed so the next run
	// converges back to the cheap quick-check instead of rehashing again.
	StaleRecord bool
}

// Stats summarizes a classification run.
type Stats struct {
	Added     int
	Modified  int
	Deleted   int
	Unchanged int
	Skipped   int
}

// Report is the Change Detector's complete output for one run.
type Report struct {
	Added     []Result
	Modified  []Result
	Deleted   []Result
	Unchanged []Result
	Skipped   []Result
	Stats     Stats
}

// Classify compares the current entries from a scanner walk against a
// store's file catalog. It never mutates the store; callers own the
// remove-then-reindex sequencing the spec requires of an orchestrator.
func Classify(h *store.Handle, entries []scanner.Entry) (Report, error) {
	var report Report
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		seen[e.RelativePath] = true
		result := classifyOne(h, e)
		appendResult(&report, result)
	}

	for _, rec := range h.AllFileRecords() {
		if seen[rec.RelativePath] {
			continue
		}
		result := Result{RelativePath: rec.RelativePath, Class: Deleted}
		report.Deleted = append(report.Deleted, result)
		report.Stats.Deleted++
	}

	return report, nil
}

func classifyOne(h *store.Handle, e scanner.Entry) Result {
	stored, ok := h.GetFileRecord(e.RelativePath)
	if ok && quickCheckMatches(stored, e) {
		return Result{RelativePath: e.RelativePath, Class: Unchanged, ContentHash: stored.ContentHash}
	}

	hash, err := hashFile(e.AbsolutePath)
	if err != nil {
		return Result{RelativePath: e.RelativePath, Class: Skipped, Err: err}
	}

	if !ok {
		return Result{RelativePath: e.RelativePath, Class: Added, ContentHash: hash}
	}
	if stored.ContentHash == hash {
		return Result{RelativePath: e.RelativePath, Class: Unchanged, ContentHash: hash, StaleRecord: true}
	}
	return Result{RelativePath: e.RelativePath, Class: Modified, ContentHash: hash}
}

func quickCheckMatches(stored *store.FileRecord, e scanner.Entry) bool {
	if stored.SizeBytes != e.Size {
		return false
	}
	diff := e.ModTime.UnixNano() - stored.LastModifiedUnixNano
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff) <= mtimeTolerance
}

func hashFile(absolutePath string) (string, error) {
	f, err := os.Open(absolutePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func appendResult(report *Report, r Result) {
	switch r.Class {
	case Added:
		report.Added = append(report.Added, r)
		report.Stats.Added++
	case Modified:
		report.Modified = append(report.Modified, r)
		report.Stats.Modified++
	case Unchanged:
		report.Unchanged = append(report.Unchanged, r)
		report.Stats.Unchanged++
	case Skipped:
		report.Skipped = append(report.Skipped, r)
		report.Stats.Skipped++
	}
}
