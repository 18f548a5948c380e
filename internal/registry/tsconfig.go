package registry

import (
	"encoding/json"
	"os"
	"strings"
)

// TSConfig holds the subset of tsconfig.json the import resolver needs:
// the base URL non-relative specifiers are resolved against, and the
// path-alias map ("@app/*" -> ["src/*"]).
type TSConfig struct {
	BaseURL string
	Paths   map[string][]string
}

type rawTSConfig struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// loadTSConfig reads and parses a tsconfig.json. A missing file is not an
// error — projects without path aliases are common — it just yields a
// zero-value TSConfig.
func loadTSConfig(path string) (TSConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return TSConfig{}, nil
	}
	if err != nil {
		return TSConfig{}, err
	}

	var raw rawTSConfig
	if err := json.Unmarshal(stripJSONComments(data), &raw); err != nil {
		return TSConfig{}, err
	}

	return TSConfig{
		BaseURL: raw.CompilerOptions.BaseURL,
		Paths:   raw.CompilerOptions.Paths,
	}, nil
}

// stripJSONComments removes // line comments so encoding/json can parse
// tsconfig.json, which permits them despite not being strict JSON.
// Scoped: does not attempt to handle comments inside string literals that
// themselves contain "//", a rare pattern in tsconfig files.
func stripJSONComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

// resolveAlias rewrites a non-relative specifier through the paths map,
// returning the candidate target pattern (still possibly containing a
// trailing "*") or false if no alias pattern matches.
func (c TSConfig) resolveAlias(specifier string) (string, bool) {
	for pattern, targets := range c.Paths {
		if len(targets) == 0 {
			continue
		}
		prefix, hasStar := strings.CutSuffix(pattern, "*")
		if hasStar {
			if !strings.HasPrefix(specifier, prefix) {
				continue
			}
			rest := strings.TrimPrefix(specifier, prefix)
			targetPrefix, _ := strings.CutSuffix(targets[0], "*")
			return targetPrefix + rest, true
		}
		if pattern == specifier {
			return targets[0], true
		}
	}
	return "", false
}
