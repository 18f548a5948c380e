package tsparse

import "context"

// SourceParser is the facade the rest of the module depends on instead of
// *Parser directly. Per spec §1 the AST parser is an external
// collaborator consumed only through its interface; extract and indexer
// take a SourceParser so tests can substitute a fixture-backed fake
// without linking tree-sitter.
type SourceParser interface {
	ParseFile(ctx context.Context, path string, source []byte) (*Tree, error)
}

// treeSitterParser adapts Parser to SourceParser, picking the grammar
// from the file extension.
type treeSitterParser struct {
	parser *Parser
}

// NewSourceParser returns the tree-sitter-backed SourceParser.
func NewSourceParser() SourceParser {
	return &treeSitterParser{parser: NewParser()}
}

func (t *treeSitterParser) ParseFile(ctx context.Context, path string, source []byte) (*Tree, error) {
	return t.parser.Parse(ctx, LanguageForPath(path), source)
}
