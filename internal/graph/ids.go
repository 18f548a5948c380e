// Package graph implements the node/edge data model, the SQLite-backed
// store, and the recursive-CTE traversal engine.
package graph

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NodeID is the canonical, globally unique identifier for a node:
// "{relative_file_path}:{NodeType}:{symbol_path}".
type NodeID string

// NewNodeID builds a canonical NodeID. filePath must already be relative
// and forward-slashed; symbolPath is dotted for nested symbols
// (e.g. "User.save" for a method).
func NewNodeID(filePath string, typ NodeType, symbolPath string) NodeID {
	return NodeID(fmt.Sprintf("%s:%s:%s", filePath, typ, symbolPath))
}

// Split decomposes a NodeID back into its three parts. It returns an
// error if the ID has fewer than three colon-delimited segments.
func (id NodeID) Split() (filePath string, typ NodeType, symbolPath string, err error) {
	s := string(id)
	// File paths are assumed to contain no ':', so split on the first two
	// colons; any further colons stay in the symbol path.
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("graph: malformed NodeID %q", s)
	}
	return parts[0], NodeType(parts[1]), parts[2], nil
}

// FilePath returns the file-path component of the NodeID, or "" if
// malformed.
func (id NodeID) FilePath() string {
	fp, _, _, err := id.Split()
	if err != nil {
		return ""
	}
	return fp
}

// HasFilePrefix reports whether id belongs to the given file, i.e. its
// string form starts with "{filePath}:".
func HasFilePrefix(id NodeID, filePath string) bool {
	return strings.HasPrefix(string(id), filePath+":")
}

// ToRelativeSlash converts an OS path (relative to or under root) to the
// project's canonical forward-slash relative form.
func ToRelativeSlash(root, absOrRelPath string) (string, error) {
	rel := absOrRelPath
	if filepath.IsAbs(absOrRelPath) {
		r, err := filepath.Rel(root, absOrRelPath)
		if err != nil {
			return "", fmt.Errorf("graph: %s is not under root %s: %w", absOrRelPath, root, err)
		}
		rel = r
	}
	return filepath.ToSlash(rel), nil
}

// DeriveProjectRoot returns the nearest ancestor of startDir (inclusive)
// that contains a tsconfig.json or package.json, falling back to
// startDir itself if none is found. Pure string/path logic; callers are
// expected to have already verified the candidate files exist.
func DeriveProjectRoot(startDir string, hasMarker func(dir string) bool) string {
	dir := filepath.Clean(startDir)
	for {
		if hasMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}
