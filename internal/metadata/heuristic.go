package metadata

import (
	"regexp"
	"strings"

	"github.com/aman-cerp/semindex/internal/store"
)

// Heuristic patterns covering the common declaration shapes of languages
// without a registered tree-sitter grammar (Rust, Java/C#, C/C++, Ruby;
// other languages get only what these patterns happen to match): regex
// over source lines, not a parse. Good
// enough to give an unrecognized language some symbol metadata instead of
// none.
var heuristicDeclPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)`),                      // Rust
	regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)`),                               // Rust
	regexp.MustCompile(`^\s*(?:pub\s+)?(?:trait|impl)\s+(\w+)`),                       // Rust
	regexp.MustCompile(`^\s*(?:public|private|protected|static|\s)*(?:class|interface)\s+(\w+)`), // Java/C#
	regexp.MustCompile(`^\s*def\s+(\w+)`),                                             // Ruby
	regexp.MustCompile(`^\s*(?:[\w:<>\*&\s]+?)\s+(\w+)\s*\([^;{]*\)\s*\{`),             // C/C++ function def
}

var heuristicImportPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*use\s+[\w:{}, ]+;`),     // Rust
	regexp.MustCompile(`^\s*import\s+[\w.\*]+;`),    // Java
	regexp.MustCompile(`^\s*#include\s+[<"][^>"]+[>"]`), // C/C++
	regexp.MustCompile(`^\s*require\s+['"][\w./-]+['"]`), // Ruby
}

// extractHeuristic scans text line by line for declaration- and
// import-shaped lines using the patterns above. It never errors; a chunk
// in an unrecognized language with no matching lines yields nil metadata.
func extractHeuristic(text string, lineStart int) (*store.ExtractedMetadata, error) {
	meta := &store.ExtractedMetadata{}
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		for _, p := range heuristicImportPatterns {
			if p.MatchString(line) {
				meta.Imports = append(meta.Imports, strings.TrimSpace(line))
				break
			}
		}
		for _, p := range heuristicDeclPatterns {
			m := p.FindStringSubmatch(line)
			if m == nil || len(m) < 2 {
				continue
			}
			meta.Symbols = append(meta.Symbols, store.Symbol{
				Name:      m[1],
				Kind:      "declaration",
				StartLine: i + lineStart,
				EndLine:   i + lineStart,
			})
			break
		}
	}

	if len(meta.Imports) == 0 && len(meta.Symbols) == 0 {
		return nil, nil
	}
	return meta, nil
}
