package metadata

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/aman-cerp/semindex/internal/store"
)

// langConfig names the tree-sitter node types that mark a declaration
// worth surfacing as a symbol, per language. Grounded on the teacher's
// code chunker's per-language grammar tables.
type langConfig struct {
	function  []string
	method    []string
	class     []string
	iface     []string
	typeDef   []string
	importDef []string
}

var langConfigs = map[string]langConfig{
	"go": {
		function:  []string{"function_declaration"},
		method:    []string{"method_declaration"},
		typeDef:   []string{"type_declaration"},
		importDef: []string{"import_declaration"},
	},
	"typescript": {
		function:  []string{"function_declaration"},
		method:    []string{"method_definition"},
		class:     []string{"class_declaration"},
		iface:     []string{"interface_declaration"},
		typeDef:   []string{"type_alias_declaration"},
		importDef: []string{"import_statement"},
	},
	"tsx": {
		function:  []string{"function_declaration"},
		method:    []string{"method_definition"},
		class:     []string{"class_declaration"},
		iface:     []string{"interface_declaration"},
		typeDef:   []string{"type_alias_declaration"},
		importDef: []string{"import_statement"},
	},
	"javascript": {
		function:  []string{"function_declaration", "function"},
		method:    []string{"method_definition"},
		class:     []string{"class_declaration"},
		importDef: []string{"import_statement"},
	},
	"jsx": {
		function:  []string{"function_declaration", "function"},
		method:    []string{"method_definition"},
		class:     []string{"class_declaration"},
		importDef: []string{"import_statement"},
	},
	"python": {
		function:  []string{"function_definition"},
		class:     []string{"class_definition"},
		importDef: []string{"import_statement", "import_from_statement"},
	},
}

// extractTreeSitter parses a chunk's text fragment in isolation (chunks
// rarely align with a file's grammar root, so a parse with HasError spans
// is expected and not itself fatal) and collects symbol declarations and
// import statements visible within it.
func extractTreeSitter(ctx context.Context, lang *sitter.Language, langName, text string, lineStart int) (*store.ExtractedMetadata, error) {
	if lang == nil {
		return extractHeuristic(text, lineStart)
	}
	cfg, ok := langConfigs[langName]
	if !ok {
		return extractHeuristic(text, lineStart)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	source := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		return extractHeuristic(text, lineStart)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	meta := &store.ExtractedMetadata{}
	walk(root, func(n *sitter.Node) {
		switch {
		case matchesAny(n.Type(), cfg.importDef):
			if imp := strings.TrimSpace(nodeContent(n, source)); imp != "" {
				meta.Imports = append(meta.Imports, imp)
			}
		case matchesAny(n.Type(), cfg.function):
			meta.Symbols = append(meta.Symbols, buildSymbol(n, source, "function", lineStart))
		case matchesAny(n.Type(), cfg.method):
			meta.Symbols = append(meta.Symbols, buildSymbol(n, source, "method", lineStart))
		case matchesAny(n.Type(), cfg.class):
			meta.Symbols = append(meta.Symbols, buildSymbol(n, source, "class", lineStart))
		case matchesAny(n.Type(), cfg.iface):
			meta.Symbols = append(meta.Symbols, buildSymbol(n, source, "interface", lineStart))
		case matchesAny(n.Type(), cfg.typeDef):
			meta.Symbols = append(meta.Symbols, buildSymbol(n, source, "type", lineStart))
		}
	})

	if langName == "go" {
		meta.Docstring = leadingGoDocComment(text)
	} else if langName == "python" {
		meta.Docstring = leadingPythonDocstring(text)
	}

	if len(meta.Imports) == 0 && len(meta.Symbols) == 0 && meta.Docstring == "" {
		return nil, nil
	}
	return meta, nil
}

func matchesAny(t string, candidates []string) bool {
	for _, c := range candidates {
		if t == c {
			return true
		}
	}
	return false
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	fn(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil {
			walk(child, fn)
		}
	}
}

func nodeContent(n *sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start >= end || int(end) > len(source) {
		return ""
	}
	return string(source[start:end])
}

func nodeName(n *sitter.Node, source []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "field_identifier", "type_identifier", "property_identifier":
			return nodeContent(child, source)
		case "type_spec":
			if name := nodeName(child, source); name != "" {
				return name
			}
		case "variable_declarator":
			if name := nodeName(child, source); name != "" {
				return name
			}
		}
	}
	return ""
}

func buildSymbol(n *sitter.Node, source []byte, kind string, lineStart int) store.Symbol {
	name := nodeName(n, source)
	content := nodeContent(n, source)
	sig := content
	if idx := strings.IndexAny(content, "{\n"); idx != -1 {
		sig = strings.TrimSpace(content[:idx])
	}
	start := int(n.StartPoint().Row) + lineStart
	end := int(n.EndPoint().Row) + lineStart
	return store.Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: start,
		EndLine:   end,
		DocComment: truncate(sig, 200),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func leadingGoDocComment(text string) string {
	lines := strings.Split(text, "\n")
	var doc []string
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "//") {
			doc = append(doc, strings.TrimSpace(strings.TrimPrefix(trimmed, "//")))
			continue
		}
		break
	}
	return strings.Join(doc, " ")
}

func leadingPythonDocstring(text string) string {
	trimmed := strings.TrimSpace(text)
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(trimmed, q) {
			rest := trimmed[len(q):]
			if end := strings.Index(rest, q); end != -1 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}
	return ""
}
