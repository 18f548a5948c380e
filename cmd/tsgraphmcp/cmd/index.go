package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couzic/ts-graph-mcp/internal/gitignore"
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/output"
	"github.com/couzic/ts-graph-mcp/internal/xerrors"
)

// sourceExtensions are the file extensions the indexer recognizes,
// mirroring the manual-resolution candidates in registry.Project
// (.ts/.tsx, plus the .js/.jsx a TS project commonly mixes in).
var sourceExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "One-shot bulk index of all configured packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(projectRoot)
	if err != nil {
		return withExitCode(xerrors.ConfigError("failed to initialize project", err), 2)
	}
	defer a.Close()

	out := output.New(cmd.OutOrStdout())
	manifest, err := graph.LoadManifest(a.manifestPath)
	if err != nil {
		return withExitCode(xerrors.IOError("failed to load manifest", err), 1)
	}

	var totalNodes, totalEdges, totalFiles int
	for _, pkg := range a.cfg.Packages {
		proj, ok := a.registry.Project(pkg.Name)
		if !ok {
			continue
		}
		files, err := discoverSourceFiles(proj.Root)
		if err != nil {
			return withExitCode(xerrors.IOError(fmt.Sprintf("failed to scan package %s", pkg.Name), err), 1)
		}
		for _, relPath := range files {
			res, err := a.indexer.IndexFile(ctx, proj, relPath)
			if err != nil {
				out.Warning(fmt.Sprintf("%s: %v", relPath, err))
				continue
			}
			totalNodes += res.NodesAdded
			totalEdges += res.EdgesAdded
			totalFiles++
			absPath := filepath.Join(proj.Root, filepath.FromSlash(relPath))
			info, statErr := os.Stat(absPath)
			content, readErr := os.ReadFile(absPath)
			if statErr == nil && readErr == nil {
				manifest.Files[relPath] = graph.ManifestEntry{
					MTime:       info.ModTime(),
					Size:        info.Size(),
					ContentHash: contentHash(content),
				}
			}
		}
	}

	if err := graph.SaveManifest(a.manifestPath, manifest); err != nil {
		return withExitCode(xerrors.IOError("failed to save manifest", err), 1)
	}

	out.Successf("indexed %d files (%d nodes, %d edges)", totalFiles, totalNodes, totalEdges)
	return nil
}

// discoverSourceFiles walks root for TypeScript/JavaScript source
// files, honoring .gitignore and always skipping the cache directory,
// the same exclusions the watcher applies to live file events.
func discoverSourceFiles(root string) ([]string, error) {
	matcher := gitignore.New()
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, p := range gitignore.ParsePatterns(string(data)) {
			matcher.AddPattern(p)
		}
	}
	matcher.AddPattern(cacheDirName + "/")
	matcher.AddPattern(cacheDirName + "/**")
	matcher.AddPattern("node_modules/")
	matcher.AddPattern("node_modules/**")

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if strings.HasPrefix(relPath, ".git/") || relPath == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.Match(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// contentHash is the manifest's content_hash, matching the watcher
// pipeline's own fileHash: SHA-256 of the file's raw source bytes.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
