package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusLinesEndWithMessage(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed 3 files")
	w.Warning("provider degraded")
	w.Error("disk full")
	w.Dim("detail")

	out := buf.String()
	assert.Contains(t, out, "indexed 3 files")
	assert.Contains(t, out, "provider degraded")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "detail")
}

func TestProgressBarBoundsFilledWidth(t *testing.T) {
	w := New(&bytes.Buffer{})

	assert.Equal(t, 10, len([]rune(stripANSI(w.ProgressBar(0, 10, 10)))))
	assert.Equal(t, 10, len([]rune(stripANSI(w.ProgressBar(10, 10, 10)))))
	assert.Equal(t, 10, len([]rune(stripANSI(w.ProgressBar(100, 10, 10)))))
}

func TestProgressBarZeroTotalIsEmpty(t *testing.T) {
	w := New(&bytes.Buffer{})
	bar := stripANSI(w.ProgressBar(0, 0, 5))
	assert.Equal(t, "░░░░░", bar)
}

// stripANSI removes lipgloss's SGR escape sequences so width assertions
// count rendered glyphs rather than control bytes; non-interactive test
// buffers render plain text already, but this keeps the test robust to
// any renderer profile.
func stripANSI(s string) string {
	var out []rune
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
