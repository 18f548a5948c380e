package tsparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: parsing TypeScript source yields function_declaration nodes.
func TestParser_ParseTypeScript_ReturnsAST(t *testing.T) {
	source := []byte(`interface User {
	name: string;
}

function greet(user: User): string {
	return "hi " + user.name;
}
`)

	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), "typescript", source)
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "typescript", tree.Language)

	funcs := tree.Root.FindAllByType("function_declaration")
	assert.Len(t, funcs, 1)

	ifaces := tree.Root.FindAllByType("interface_declaration")
	assert.Len(t, ifaces, 1)
}

// TS02: .tsx files parse under the tsx grammar and tolerate JSX syntax.
func TestParser_ParseTSX_ReturnsAST(t *testing.T) {
	source := []byte(`function Widget() {
	return <div className="x">hi</div>;
}
`)

	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), LanguageForPath("widget.tsx"), source)
	require.NoError(t, err)
	assert.Equal(t, "tsx", tree.Language)
	assert.False(t, tree.Root.HasError)
}

// TS03: an unsupported language name is a reported error, not a panic.
func TestParser_Parse_UnsupportedLanguage(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), "python", []byte("x = 1"))
	require.Error(t, err)
}

// TS04: Field resolves a named child (e.g. a function's "name" field).
func TestNode_Field_FindsNamedChild(t *testing.T) {
	source := []byte(`function greet(user) {}`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), "typescript", source)
	require.NoError(t, err)

	fn := tree.Root.FindAllByType("function_declaration")[0]
	name := fn.Field("name")
	require.NotNil(t, name)
	assert.Equal(t, "greet", name.Content(source))
}
