package tsparse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parser parses TypeScript and TSX source into Trees. One Parser is not
// safe for concurrent use; callers parsing multiple files concurrently
// should use one Parser per goroutine (mirrors the teacher's chunk.Parser).
type Parser struct {
	parser *sitter.Parser
}

// NewParser returns a ready-to-use Parser.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// LanguageForPath picks "tsx" for .tsx files and "typescript" otherwise.
// Callers are expected to have already filtered to {.ts,.tsx} per the
// watcher's extension allowlist.
func LanguageForPath(path string) string {
	if len(path) >= 4 && path[len(path)-4:] == ".tsx" {
		return "tsx"
	}
	return "typescript"
}

// Parse parses source under the given language ("typescript" or "tsx").
func (p *Parser) Parse(ctx context.Context, language string, source []byte) (*Tree, error) {
	var lang *sitter.Language
	switch language {
	case "typescript":
		lang = typescript.GetLanguage()
	case "tsx":
		lang = tsx.GetLanguage()
	default:
		return nil, fmt.Errorf("tsparse: unsupported language %q", language)
	}

	p.parser.SetLanguage(lang)
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tsparse: parse: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("tsparse: parse produced a nil tree")
	}

	return &Tree{
		Root:     convert(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}
