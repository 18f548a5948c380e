package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func nodeTypes(nodes []graph.Node) map[graph.NodeID]graph.NodeType {
	out := make(map[graph.NodeID]graph.NodeType, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Type
	}
	return out
}

func hasEdge(edges []graph.Edge, source, target graph.NodeID, typ graph.EdgeType) bool {
	for _, e := range edges {
		if e.Source == source && e.Target == target && e.Type == typ {
			return true
		}
	}
	return false
}

func extractFile(t *testing.T, root, rel string) ([]graph.Node, []graph.Edge) {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(tsparse.NewSourceParser())
	proj, err := reg.Register("app", root, filepath.Join(root, "tsconfig.json"))
	require.NoError(t, err)

	tree, err := proj.Tree(ctx, rel)
	require.NoError(t, err)

	nodes, edges, err := Extract(ctx, proj, rel, "app", tree)
	require.NoError(t, err)
	return nodes, edges
}

// TS01: a function calling another declared function in the same file
// produces a Function node for each and a CALLS edge between them.
func TestExtract_FunctionCall_SameFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", `
function helper(): number {
  return 1;
}

export function run(): number {
  return helper();
}
`)

	nodes, edges := extractFile(t, root, "src/a.ts")

	types := nodeTypes(nodes)
	helperID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "helper")
	runID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "run")
	assert.Equal(t, graph.NodeFunction, types[helperID])
	assert.Equal(t, graph.NodeFunction, types[runID])

	require.True(t, hasEdge(edges, runID, helperID, graph.EdgeCalls))
}

// TS02: an imported function resolves through the module graph and its
// call is attributed to the class method that calls it, not the class.
func TestExtract_MethodCall_CrossFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/math.ts", `export function add(a: number, b: number): number {
  return a + b;
}`)
	writeFile(t, root, "src/calc.ts", `import { add } from "./math";

export class Calculator {
  sum(): number {
    return add(1, 2);
  }
}`)

	nodes, edges := extractFile(t, root, "src/calc.ts")

	types := nodeTypes(nodes)
	classID := graph.NewNodeID("src/calc.ts", graph.NodeClass, "Calculator")
	methodID := graph.NewNodeID("src/calc.ts", graph.NodeMethod, "Calculator.sum")
	addID := graph.NewNodeID("src/math.ts", graph.NodeFunction, "add")
	assert.Equal(t, graph.NodeClass, types[classID])
	assert.Equal(t, graph.NodeMethod, types[methodID])

	require.True(t, hasEdge(edges, methodID, addID, graph.EdgeCalls))
	assert.False(t, hasEdge(edges, classID, addID, graph.EdgeCalls))
}

// TS03: this.method() calls resolve to a sibling method without type
// inference, and the TAKES edge for that method's own parameter is
// attributed to the method, not the enclosing class.
func TestExtract_ThisMethodCall_AndParameterType(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/user.ts", `export class User {}`)
	writeFile(t, root, "src/service.ts", `import { User } from "./user";

export class UserService {
  save(user: User): void {
    this.validate(user);
  }

  validate(user: User): void {}
}`)

	_, edges := extractFile(t, root, "src/service.ts")

	classID := graph.NewNodeID("src/service.ts", graph.NodeClass, "UserService")
	saveID := graph.NewNodeID("src/service.ts", graph.NodeMethod, "UserService.save")
	validateID := graph.NewNodeID("src/service.ts", graph.NodeMethod, "UserService.validate")
	userID := graph.NewNodeID("src/user.ts", graph.NodeClass, "User")

	require.True(t, hasEdge(edges, saveID, validateID, graph.EdgeCalls))
	require.True(t, hasEdge(edges, saveID, userID, graph.EdgeTakes))
	require.True(t, hasEdge(edges, validateID, userID, graph.EdgeTakes))
	assert.False(t, hasEdge(edges, classID, userID, graph.EdgeTakes))
}

// TS04: a class heritage clause produces EXTENDS/IMPLEMENTS edges.
func TestExtract_ClassHeritage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/base.ts", `export class Base {}
export interface Serializable {}`)
	writeFile(t, root, "src/derived.ts", `import { Base, Serializable } from "./base";

export class Derived extends Base implements Serializable {}`)

	_, edges := extractFile(t, root, "src/derived.ts")

	derivedID := graph.NewNodeID("src/derived.ts", graph.NodeClass, "Derived")
	baseID := graph.NewNodeID("src/base.ts", graph.NodeClass, "Base")
	serializableID := graph.NewNodeID("src/base.ts", graph.NodeInterface, "Serializable")

	assert.True(t, hasEdge(edges, derivedID, baseID, graph.EdgeExtends))
	assert.True(t, hasEdge(edges, derivedID, serializableID, graph.EdgeImplements))
}

// TS05: a type alias to a single named type is ALIAS_FOR; a composed
// type alias decomposes into DERIVES_FROM for every reachable reference.
func TestExtract_TypeAlias_AliasForAndDerivesFrom(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/model.ts", `export class User {}
export class Admin {}`)
	writeFile(t, root, "src/types.ts", `import { User, Admin } from "./model";

export type UserId = User;
export type Account = User | Admin;`)

	_, edges := extractFile(t, root, "src/types.ts")

	userIdID := graph.NewNodeID("src/types.ts", graph.NodeTypeAlias, "UserId")
	accountID := graph.NewNodeID("src/types.ts", graph.NodeTypeAlias, "Account")
	userID := graph.NewNodeID("src/model.ts", graph.NodeClass, "User")
	adminID := graph.NewNodeID("src/model.ts", graph.NodeClass, "Admin")

	assert.True(t, hasEdge(edges, userIdID, userID, graph.EdgeAliasFor))
	assert.True(t, hasEdge(edges, accountID, userID, graph.EdgeDerivesFrom))
	assert.True(t, hasEdge(edges, accountID, adminID, graph.EdgeDerivesFrom))
}

// TS06: an interface property and a method_signature's parameter type
// both attribute their USES_TYPE/HAS_PROPERTY/TAKES edges to the
// interface itself, since interface method signatures have no node of
// their own.
func TestExtract_InterfaceProperties(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/user.ts", `export class User {}`)
	writeFile(t, root, "src/repo.ts", `import { User } from "./user";

export interface UserRepository {
  current: User;
  save(user: User): void;
}`)

	_, edges := extractFile(t, root, "src/repo.ts")

	repoID := graph.NewNodeID("src/repo.ts", graph.NodeInterface, "UserRepository")
	userID := graph.NewNodeID("src/user.ts", graph.NodeClass, "User")

	assert.True(t, hasEdge(edges, repoID, userID, graph.EdgeHasProperty))
	assert.True(t, hasEdge(edges, repoID, userID, graph.EdgeTakes))
}

// TS07: a JSX component reference inside a function body produces an
// INCLUDES edge, while a lowercase DOM tag does not.
func TestExtract_JSXIncludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/button.tsx", `export function Button() {
  return <button />;
}`)
	writeFile(t, root, "src/form.tsx", `import { Button } from "./button";

export function Form() {
  return <div><Button /></div>;
}`)

	_, edges := extractFile(t, root, "src/form.tsx")

	formID := graph.NewNodeID("src/form.tsx", graph.NodeFunction, "Form")
	buttonID := graph.NewNodeID("src/button.tsx", graph.NodeFunction, "Button")

	assert.True(t, hasEdge(edges, formID, buttonID, graph.EdgeIncludes))
}

// TS08: an unresolvable call target (an arbitrary member expression on a
// non-`this` object) is silently dropped rather than erroring.
func TestExtract_UnresolvedCall_IsDropped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", `export function run(logger: Console): void {
  logger.log("hi");
}`)

	nodes, edges := extractFile(t, root, "src/a.ts")
	require.NotEmpty(t, nodes)

	runID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "run")
	for _, e := range edges {
		assert.NotEqual(t, graph.EdgeCalls, e.Type, "expected no CALLS edge for an unresolved member call from %s", runID)
	}
}

// TS09: a function passed by name as a callback argument produces a
// REFERENCES edge with reference_context "callback", distinct from the
// CALLS edge for the outer function being invoked.
func TestExtract_CallbackReference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/handler.ts", `export function onReady(): void {}`)
	writeFile(t, root, "src/a.ts", `import { onReady } from "./handler";

export function register(cb: () => void): void {}

export function run(): void {
  register(onReady);
}`)

	_, edges := extractFile(t, root, "src/a.ts")

	runID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "run")
	onReadyID := graph.NewNodeID("src/handler.ts", graph.NodeFunction, "onReady")

	var found bool
	for _, e := range edges {
		if e.Source == runID && e.Target == onReadyID && e.Type == graph.EdgeReferences {
			assert.Equal(t, graph.RefContextCallback, e.Meta.ReferenceContext)
			found = true
		}
	}
	assert.True(t, found, "expected a REFERENCES edge with callback context from run to onReady")
}

// TS10: a two-hop path through an object property literal: a function
// referenced as a property value produces a REFERENCES edge with
// reference_context "property" from the enclosing function to the
// referenced one.
func TestExtract_PropertyReference_TwoHop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/validators.ts", `export function isEmail(): boolean {
  return true;
}`)
	writeFile(t, root, "src/a.ts", `import { isEmail } from "./validators";

export function buildSchema(): object {
  return { email: isEmail };
}`)

	_, edges := extractFile(t, root, "src/a.ts")

	buildSchemaID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "buildSchema")
	isEmailID := graph.NewNodeID("src/validators.ts", graph.NodeFunction, "isEmail")

	var found bool
	for _, e := range edges {
		if e.Source == buildSchemaID && e.Target == isEmailID && e.Type == graph.EdgeReferences {
			assert.Equal(t, graph.RefContextProperty, e.Meta.ReferenceContext)
			found = true
		}
	}
	assert.True(t, found, "expected a REFERENCES edge with property context from buildSchema to isEmail")
}

// TS11: calling the same target twice from the same caller aggregates
// onto a single CALLS edge with call_count 2 and two call_sites, rather
// than emitting a separate edge per call site.
func TestExtract_RepeatedCall_AggregatesCallCount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/math.ts", `export function add(a: number, b: number): number {
  return a + b;
}`)
	writeFile(t, root, "src/a.ts", `import { add } from "./math";

export function run(): number {
  const x = add(1, 2);
  const y = add(3, 4);
  return x + y;
}`)

	_, edges := extractFile(t, root, "src/a.ts")

	runID := graph.NewNodeID("src/a.ts", graph.NodeFunction, "run")
	addID := graph.NewNodeID("src/math.ts", graph.NodeFunction, "add")

	var callEdges []graph.Edge
	for _, e := range edges {
		if e.Source == runID && e.Target == addID && e.Type == graph.EdgeCalls {
			callEdges = append(callEdges, e)
		}
	}
	require.Len(t, callEdges, 1, "expected exactly one CALLS edge aggregating both call sites")
	assert.Equal(t, 2, callEdges[0].Meta.CallCount)
	assert.Len(t, callEdges[0].Meta.CallSites, 2)
}
