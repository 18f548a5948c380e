package graph

import "time"

// NodeType enumerates the discriminated node variants (spec §3.1).
type NodeType string

const (
	NodeFunction  NodeType = "Function"
	NodeClass     NodeType = "Class"
	NodeMethod    NodeType = "Method"
	NodeInterface NodeType = "Interface"
	NodeTypeAlias NodeType = "TypeAlias"
	NodeVariable  NodeType = "Variable"
)

// Visibility is Method-specific.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// Param is a function/method parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Props carries the variant-specific fields of a Node, JSON-encoded in
// the `props` column. Only the fields relevant to the node's Type are
// populated; the rest are left zero.
type Props struct {
	// Function / Method
	Parameters []Param `json:"parameters,omitempty"`
	ReturnType string  `json:"return_type,omitempty"`
	Async      bool    `json:"async,omitempty"`

	// Method only
	Visibility Visibility `json:"visibility,omitempty"`
	Static     bool       `json:"static,omitempty"`

	// Class
	Extends    string   `json:"extends,omitempty"`
	Implements []string `json:"implements,omitempty"`

	// Interface
	InterfaceExtends []string `json:"interface_extends,omitempty"`

	// TypeAlias
	AliasedType string `json:"aliased_type,omitempty"`

	// Variable
	VariableType string `json:"variable_type,omitempty"`
	IsConst      bool   `json:"is_const,omitempty"`
}

// Node is a single declaration in the graph.
type Node struct {
	ID          NodeID   `json:"id"`
	Type        NodeType `json:"type"`
	Name        string   `json:"name"`
	Package     string   `json:"package"`
	FilePath    string   `json:"file_path"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Exported    bool     `json:"exported"`
	ContentHash string   `json:"content_hash"`
	Snippet     string   `json:"snippet"`
	Props       Props    `json:"props"`
}

// EdgeType enumerates runtime and compile-time edge kinds (spec §3.1).
type EdgeType string

const (
	// Runtime edges.
	EdgeCalls      EdgeType = "CALLS"
	EdgeReferences EdgeType = "REFERENCES"
	EdgeUsesType   EdgeType = "USES_TYPE"

	// Compile-time edges.
	EdgeExtends     EdgeType = "EXTENDS"
	EdgeIncludes    EdgeType = "INCLUDES"
	EdgeImplements  EdgeType = "IMPLEMENTS"
	EdgeTakes       EdgeType = "TAKES"
	EdgeReturns     EdgeType = "RETURNS"
	EdgeHasType     EdgeType = "HAS_TYPE"
	EdgeHasProperty EdgeType = "HAS_PROPERTY"
	EdgeDerivesFrom EdgeType = "DERIVES_FROM"
	EdgeAliasFor    EdgeType = "ALIAS_FOR"
)

// RuntimeEdgeTypes and CompileTimeEdgeTypes partition EdgeType (spec §3.1).
var (
	RuntimeEdgeTypes      = []EdgeType{EdgeCalls, EdgeReferences, EdgeUsesType}
	CompileTimeEdgeTypes  = []EdgeType{EdgeExtends, EdgeIncludes, EdgeImplements, EdgeTakes, EdgeReturns, EdgeHasType, EdgeHasProperty, EdgeDerivesFrom, EdgeAliasFor}
)

// CallSite is a line range inside the source (caller) node where a call
// expression appears.
type CallSite struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ReferenceContext classifies how a REFERENCES edge's target is used.
type ReferenceContext string

const (
	RefContextCallback   ReferenceContext = "callback"
	RefContextProperty   ReferenceContext = "property"
	RefContextArray      ReferenceContext = "array"
	RefContextReturn     ReferenceContext = "return"
	RefContextAssignment ReferenceContext = "assignment"
	RefContextAccess     ReferenceContext = "access"
)

// UsageContext classifies where a USES_TYPE/TAKES/RETURNS/HAS_TYPE edge
// originates from.
type UsageContext string

const (
	UsageContextParameter UsageContext = "parameter"
	UsageContextReturn    UsageContext = "return"
	UsageContextProperty  UsageContext = "property"
	UsageContextVariable  UsageContext = "variable"
)

// EdgeMeta carries the optional, type-dependent fields attached to an
// edge (spec §3.1). Lists are JSON-encoded on disk.
type EdgeMeta struct {
	CallCount        int              `json:"call_count,omitempty"`
	CallSites        []CallSite       `json:"call_sites,omitempty"`
	IsTypeOnly       bool             `json:"is_type_only,omitempty"`
	ImportedSymbols  []string         `json:"imported_symbols,omitempty"`
	Context          UsageContext     `json:"context,omitempty"`
	ReferenceContext ReferenceContext `json:"reference_context,omitempty"`
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	Source NodeID   `json:"source"`
	Target NodeID   `json:"target"`
	Type   EdgeType `json:"type"`
	Meta   EdgeMeta `json:"meta"`
}

// ManifestEntry records the on-disk state of one file at the last
// successful index.
type ManifestEntry struct {
	MTime       time.Time `json:"mtime"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
}

// Manifest maps relative file path to its last-indexed state. It is the
// single authoritative on-disk representation (spec §9 resolves the
// historical two-representation ambiguity in favor of this one).
type Manifest struct {
	Files map[string]ManifestEntry `json:"files"`
}

// NewManifest returns an empty, ready-to-use Manifest.
func NewManifest() *Manifest {
	return &Manifest{Files: make(map[string]ManifestEntry)}
}
