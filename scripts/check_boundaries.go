// Command check_boundaries fails when a package imports across a layer it
// should not see. Run from the repository root: go run ./scripts.
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const moduleRoot = "key2key/"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule constrains the imports of every file under a layer. Allow
// entries are import path prefixes; "{module}" expands to the bounded
// context's own import path.
type layerRule struct {
	name  string
	allow []string
	// deny is checked before allow and carries its own message.
	deny []denyRule
}

type denyRule struct {
	prefix string
	rule   string
}

var infrastructure = []denyRule{
	{prefix: moduleRoot + "internal/", rule: "only adapters may reach platform infrastructure"},
}

var contextRules = map[string]layerRule{
	"domain": {
		name: "domain",
		allow: []string{
			"{module}/domain",
			"github.com/shopspring/decimal",
		},
		deny: infrastructure,
	},
	"ports": {
		name: "ports",
		allow: []string{
			"{module}/domain",
			"{module}/ports",
			moduleRoot + "contracts",
			"github.com/shopspring/decimal",
			"github.com/golang/mock/gomock",
		},
		deny: infrastructure,
	},
	"application": {
		name: "application",
		allow: []string{
			"{module}/application",
			"{module}/domain",
			"{module}/ports",
			moduleRoot + "contracts",
			"github.com/shopspring/decimal",
			"github.com/go-playground/validator/v10",
			"github.com/cenkalti/backoff/v4",
			"github.com/gammazero/workerpool",
			"go.opentelemetry.io/otel",
		},
		deny: infrastructure,
	},
	"transport": {
		name: "transport",
		deny: infrastructure,
	},
}

// platformDeny keeps shared infrastructure from depending on the process
// wiring that composes it.
var platformDeny = []denyRule{
	{prefix: moduleRoot + "internal/app", rule: "platform must not import the composition root"},
	{prefix: moduleRoot + "cmd", rule: "platform must not import entrypoints"},
}

func main() {
	root := flag.String("root", ".", "repository root")
	flag.Parse()

	violations, err := collectViolations(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary check aborted: %v\n", err)
		os.Exit(2)
	}
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}
	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) ([]violation, error) {
	var out []violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".go") || strings.HasSuffix(rel, "_test.go") {
			return nil
		}
		out = append(out, checkFile(path, rel)...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		if out[i].Import != out[j].Import {
			return out[i].Import < out[j].Import
		}
		return out[i].Rule < out[j].Rule
	})
	return out, err
}

func checkFile(path, rel string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: rel, Line: 1, Rule: "file must parse"}}
	}

	var out []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		for _, rule := range rulesFor(rel, importPath) {
			out = append(out, violation{File: rel, Line: line, Import: importPath, Rule: rule})
		}
	}
	return out
}

// rulesFor returns every rule the import breaks for a file at rel.
func rulesFor(rel, importPath string) []string {
	parts := strings.Split(rel, "/")
	switch {
	case parts[0] == "contracts":
		if !isStdlib(importPath) && !hasPrefix(importPath, moduleRoot+"contracts") {
			return []string{"contracts must stay dependency free"}
		}
		return nil
	case len(parts) > 2 && parts[0] == "internal" && parts[1] == "platform":
		return denied(importPath, platformDeny)
	case parts[0] == "contexts" && len(parts) >= 4:
		return contextViolations(parts, importPath)
	}
	return nil
}

func contextViolations(parts []string, importPath string) []string {
	module := fmt.Sprintf("%scontexts/%s/%s", moduleRoot, parts[1], parts[2])
	var broken []string
	if strings.HasPrefix(importPath, moduleRoot+"contexts/") && !hasPrefix(importPath, module) {
		broken = append(broken, "cross-module imports are forbidden")
	}

	rule, ok := contextRules[parts[3]]
	if !ok {
		return broken
	}
	if strings.Contains(importPath, "/adapters") && hasPrefix(importPath, module) {
		broken = append(broken, rule.name+" must not import adapters")
	}
	if importPath == "github.com/golang/mock/gomock" && (len(parts) < 6 || parts[4] != "mocks") {
		broken = append(broken, "only generated mocks may import gomock")
	}
	if found := denied(importPath, rule.deny); len(found) > 0 {
		return append(broken, found...)
	}
	if len(rule.allow) == 0 || isStdlib(importPath) {
		return broken
	}
	for _, prefix := range rule.allow {
		if hasPrefix(importPath, strings.ReplaceAll(prefix, "{module}", module)) {
			return broken
		}
	}
	return append(broken, rule.name+" import is outside explicit allowlist")
}

func denied(importPath string, rules []denyRule) []string {
	var broken []string
	for _, d := range rules {
		if hasPrefix(importPath, strings.TrimSuffix(d.prefix, "/")) {
			broken = append(broken, d.rule)
		}
	}
	return broken
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if strings.HasPrefix(importPath, moduleRoot) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
