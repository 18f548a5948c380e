//go:build ignore

// Package main generates a synthetic TypeScript corpus for indexing
// benchmarks (go run scripts/bench-compare.go's counterpart workload).
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// componentTemplate is a realistic React component: imports, an
// interface, and a function exercising the edges the extractor cares
// about (cross-file imports and exported symbols), modeled after the
// shape real indexed repos tend to have.
var componentTemplate = `import { useState, useEffect, useCallback } from 'react';
import type { %sData } from './types';
import { fetch%s } from './api';

export interface %sProps {
  id: string;
  name: string;
  onUpdate?: (data: %sData) => void;
}

/**
 * %s component for %s functionality.
 */
export function %s({ id, name, onUpdate }: %sProps): JSX.Element {
  const [data, setData] = useState<%sData | null>(null);
  const [loading, setLoading] = useState(false);
  const [error, setError] = useState<Error | null>(null);

  const load = useCallback(async () => {
    setLoading(true);
    try {
      const result = await fetch%s(id);
      setData(result);
      onUpdate?.(result);
    } catch (e) {
      setError(e instanceof Error ? e : new Error('unknown error'));
    } finally {
      setLoading(false);
    }
  }, [id, onUpdate]);

  useEffect(() => {
    load();
  }, [load]);

  if (loading) return <div>Loading %s...</div>;
  if (error) return <div>Error: {error.message}</div>;
  if (!data) return <div>No data</div>;

  return (
    <div className="%s-container">
      <h2>{name}</h2>
      <p>ID: {id}</p>
    </div>
  );
}

export default %s;
`

// moduleTemplate is a plain TS module exporting a class and a few
// free functions, the kind of file dependenciesOf/dependentsOf queries
// are run against.
var moduleTemplate = `import { %sConfig } from './config';

export interface %sResult {
  success: boolean;
  data?: unknown;
  error?: string;
}

export class %s {
  private cache = new Map<string, unknown>();
  private initialized = false;

  constructor(private readonly config: %sConfig) {}

  initialize(): void {
    if (this.initialized) return;
    this.initialized = true;
  }

  process(input: Record<string, unknown>): %sResult {
    if (!this.initialized) this.initialize();
    try {
      return { success: true, data: this.transform(input) };
    } catch (e) {
      return { success: false, error: String(e) };
    }
  }

  private transform(input: Record<string, unknown>): unknown {
    return { ...input, processedBy: this.config };
  }
}

export function create%s(config: %sConfig): %s {
  return new %s(config);
}
`

// Word pools for generating realistic names.
var (
	nouns = []string{
		"Handler", "Manager", "Service", "Controller", "Processor",
		"Engine", "Client", "Worker", "Factory", "Builder",
		"Parser", "Validator", "Formatter", "Converter", "Cache",
		"Store", "Queue", "Router", "Dispatcher", "Monitor",
		"Auth", "User", "Session", "Token", "Config",
		"Event", "Message", "Request", "Response", "Panel",
	}
	domains = []string{
		"authentication", "authorization", "caching", "logging", "monitoring",
		"messaging", "scheduling", "routing", "parsing", "validation",
		"serialization", "indexing", "searching", "filtering", "pagination",
	}
)

func main() {
	flag.Parse()
	rand.Seed(*seed)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output directory: %v\n", err)
		os.Exit(1)
	}

	// Roughly half components, half plain modules, matching a typical
	// TS project's mix of .tsx and .ts files.
	componentFiles := *numFiles / 2
	moduleFiles := *numFiles - componentFiles

	generated := 0
	for i := 0; i < componentFiles; i++ {
		if err := generateComponentFile(i); err != nil {
			fmt.Fprintf(os.Stderr, "error generating component file %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < moduleFiles; i++ {
		if err := generateModuleFile(i); err != nil {
			fmt.Fprintf(os.Stderr, "error generating module file %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("generated %d files in %s\n", generated, *outputDir)
}

func randomWord(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func generateComponentFile(index int) error {
	noun := randomWord(nouns)
	domain := randomWord(domains)

	content := fmt.Sprintf(componentTemplate,
		noun, noun,
		noun, noun,
		noun, domain, noun, noun, noun,
		noun, noun, noun, noun,
	)

	filename := filepath.Join(*outputDir, fmt.Sprintf("%s%d.tsx", noun, index))
	return os.WriteFile(filename, []byte(content), 0o644)
}

func generateModuleFile(index int) error {
	noun := randomWord(nouns)

	content := fmt.Sprintf(moduleTemplate,
		noun, noun, noun, noun, noun,
		noun, noun, noun, noun,
	)

	filename := filepath.Join(*outputDir, fmt.Sprintf("%s%d.ts", noun, index))
	return os.WriteFile(filename, []byte(content), 0o644)
}
