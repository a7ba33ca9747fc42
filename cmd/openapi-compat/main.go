// Command openapi-compat checks that the RecipeBox JSON API stays backward
// compatible with a saved baseline document.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	_ "recipebox/docs" // registers the generated document

	"github.com/swaggo/swag"
)

func main() {
	basePath := flag.String("base", "", "baseline swagger document (YAML or JSON)")
	revisionPath := flag.String("revision", "", "revised document; defaults to the one compiled into this binary")
	snapshot := flag.String("snapshot", "", "write the compiled document as YAML to this path and exit")
	flag.Parse()

	current, err := swag.ReadDoc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read compiled document: %v\n", err)
		os.Exit(1)
	}

	if *snapshot != "" {
		out, err := toYAML([]byte(current))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to convert document: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*snapshot, out, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *snapshot)
		return
	}

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>] | -snapshot <path>")
		os.Exit(2)
	}

	baseSpec, err := loadSpec(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}

	revisionRaw := []byte(current)
	if *revisionPath != "" {
		// #nosec G304: path comes from CLI flags in a dev tool
		if revisionRaw, err = os.ReadFile(*revisionPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read revision spec: %v\n", err)
			os.Exit(1)
		}
	}
	revisionSpec, err := parseSpec(revisionRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse revision spec: %v\n", err)
		os.Exit(1)
	}

	if issues := compare(baseSpec, revisionSpec); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Println("openapi compatibility check passed")
}

func loadSpec(path string) (apiSpec, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSpec(raw)
}
