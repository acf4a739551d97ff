// Package metadata implements the Metadata Extractor Registry (C10): a
// tagged-variant set of per-language extractors that enrich a chunk with
// imports, symbol declarations, and a docstring, falling back to a
// heuristic regex-based extractor for any language without a registered
// tree-sitter grammar.
package metadata

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/aman-cerp/semindex/internal/store"
)

// Extractor enriches one chunk's text, overlapping [lineStart, lineEnd]
// (1-indexed, inclusive) of the file it was cut from.
type Extractor interface {
	// Extract returns the metadata an extractor could determine. A nil
	// *store.ExtractedMetadata with a nil error means "nothing found",
	// never an error on its own.
	Extract(text string, lineStart int) (*store.ExtractedMetadata, error)
}

type extractorFunc func(text string, lineStart int) (*store.ExtractedMetadata, error)

func (f extractorFunc) Extract(text string, lineStart int) (*store.ExtractedMetadata, error) {
	return f(text, lineStart)
}

// Registry maps file extensions to language-specific extractors, with a
// heuristic fallback for everything else.
type Registry struct {
	mu        sync.RWMutex
	extToLang map[string]string
	languages map[string]*sitter.Language
	fallback  Extractor
}

// NewRegistry builds the registry with the default set of tree-sitter
// grammars. The fallback heuristic extractor handles any extension not
// registered here.
func NewRegistry() *Registry {
	r := &Registry{
		extToLang: make(map[string]string),
		languages: make(map[string]*sitter.Language),
		fallback:  extractorFunc(extractHeuristic),
	}
	r.register("go", golang.GetLanguage(), ".go")
	r.register("typescript", typescript.GetLanguage(), ".ts")
	r.register("tsx", tsx.GetLanguage(), ".tsx")
	r.register("javascript", javascript.GetLanguage(), ".js", ".mjs", ".cjs")
	r.register("jsx", javascript.GetLanguage(), ".jsx")
	r.register("python", python.GetLanguage(), ".py")
	return r
}

func (r *Registry) register(name string, lang *sitter.Language, exts ...string) {
	r.languages[name] = lang
	for _, e := range exts {
		r.extToLang[e] = name
	}
}

// LanguageForPath returns the registered language name for a path's
// extension, or "" if none is registered.
func (r *Registry) LanguageForPath(relativePath string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extToLang[strings.ToLower(filepath.Ext(relativePath))]
}

// ExtractForPath runs the extractor registered for relativePath's
// extension, or the heuristic fallback if none is registered. text is the
// chunk's own text, not the whole file; lineStart is the chunk's starting
// line number within the file (1-indexed), used to offset symbol line
// numbers back into file coordinates.
func (r *Registry) ExtractForPath(relativePath, text string, lineStart int) (*store.ExtractedMetadata, error) {
	lang := r.LanguageForPath(relativePath)
	if lang == "" {
		return r.fallback.Extract(text, lineStart)
	}

	r.mu.RLock()
	tsLang := r.languages[lang]
	r.mu.RUnlock()

	return extractTreeSitter(context.Background(), tsLang, lang, text, lineStart)
}

// Supported returns the extensions this registry has a tree-sitter
// grammar for. Anything else falls to the heuristic extractor, never an
// error.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		out = append(out, ext)
	}
	return out
}

var defaultRegistry = NewRegistry()

// Default returns the package-wide registry used by components that do
// not need a custom language set.
func Default() *Registry { return defaultRegistry }
