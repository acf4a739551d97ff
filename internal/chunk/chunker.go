// Package chunk implements the Chunker (C3): a generic, language-agnostic
// splitter that converts a file's text into overlapping, size-bounded
// chunks with deterministic, content-addressable chunk IDs.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Params configures chunking. Split replaces a non-positive TargetChars or
// MaxChars and a negative OverlapRatio with DefaultParams' values; a zero
// OverlapRatio and the boolean fields are used as given.
type Params struct {
	TargetChars           int
	MaxChars              int
	OverlapRatio          float64
	RespectLineBreaks     bool
	RespectWordBoundaries bool
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		TargetChars:           4000,
		MaxChars:              6000,
		OverlapRatio:          0.15,
		RespectLineBreaks:     true,
		RespectWordBoundaries: true,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.TargetChars <= 0 {
		p.TargetChars = d.TargetChars
	}
	if p.MaxChars <= 0 {
		p.MaxChars = d.MaxChars
	}
	if p.OverlapRatio < 0 {
		p.OverlapRatio = d.OverlapRatio
	}
	return p
}

// Chunk is one emitted chunk, prior to being owned by a store.Chunk record.
type Chunk struct {
	ChunkID       string
	RelativePath  string
	ByteStart     int
	ByteEnd       int
	LineStart     int
	LineEnd       int
	Text          string
	TokenEstimate int
}

// Split converts text into an ordered sequence of overlapping chunks
// covering the entire input, per the offset/overlap/boundary-search
// algorithm. Empty or whitespace-only text yields zero chunks.
func Split(relativePath, text string, params Params) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	p := params.withDefaults()

	overlap := int(float64(p.TargetChars) * p.OverlapRatio)
	lineStarts := computeLineStarts(text)

	var chunks []Chunk
	length := len(text)
	i := 0
	for i < length {
		end := i + p.TargetChars
		if end > length {
			end = length
		}

		split := end
		if i+p.TargetChars < length {
			split = findSplit(text, i, end, p)
		}
		if split-i > p.MaxChars {
			split = i + p.MaxChars
		}
		if split <= i {
			split = end
		}
		if split > length {
			split = length
		}

		chunkText := text[i:split]
		lineStart, lineEnd := lineRange(lineStarts, i, split)

		chunks = append(chunks, Chunk{
			ChunkID:       ChunkID(relativePath, i, chunkText),
			RelativePath:  relativePath,
			ByteStart:     i,
			ByteEnd:       split,
			LineStart:     lineStart,
			LineEnd:       lineEnd,
			Text:          chunkText,
			TokenEstimate: tokenEstimate(chunkText),
		})

		if split == length {
			break
		}
		next := split - overlap
		if next <= i {
			next = split
		}
		i = next
	}

	return chunks
}

// findSplit searches backward within [end - target/4, end] for the best
// split candidate: a newline, else whitespace, else end itself.
func findSplit(text string, start, end int, p Params) int {
	windowStart := end - p.TargetChars/4
	if windowStart < start {
		windowStart = start
	}

	if p.RespectLineBreaks {
		for i := end - 1; i >= windowStart; i-- {
			if text[i] == '\n' {
				return i + 1
			}
		}
	}
	if p.RespectWordBoundaries {
		for i := end - 1; i >= windowStart; i-- {
			if text[i] == ' ' || text[i] == '\t' {
				return i + 1
			}
		}
	}
	return end
}

// ChunkID returns the deterministic content-addressable chunk identifier:
// hex(SHA-256(relative_path || ":" || byte_offset || ":" || text)).
func ChunkID(relativePath string, byteOffset int, text string) string {
	h := sha256.New()
	h.Write([]byte(relativePath))
	h.Write([]byte(":"))
	h.Write([]byte(itoa(byteOffset)))
	h.Write([]byte(":"))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// tokenEstimate is a batch-planning heuristic only, never authoritative:
// ceil(len/3).
func tokenEstimate(text string) int {
	return (len(text) + 2) / 3
}

func computeLineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineRange returns the 1-indexed [start, end] line numbers spanned by
// byte range [byteStart, byteEnd).
func lineRange(lineStarts []int, byteStart, byteEnd int) (int, int) {
	startLine := lineForOffset(lineStarts, byteStart)
	endOffset := byteEnd
	if endOffset > byteStart {
		endOffset--
	}
	endLine := lineForOffset(lineStarts, endOffset)
	if endLine < startLine {
		endLine = startLine
	}
	return startLine + 1, endLine + 1
}

func lineForOffset(lineStarts []int, offset int) int {
	lo, hi := 0, len(lineStarts)-1
	result := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if lineStarts[mid] <= offset {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}
