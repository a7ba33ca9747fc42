package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var httpMethods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

// parameter is the part of an OpenAPI parameter clients depend on.
type parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type operation struct {
	Parameters []parameter          `yaml:"parameters"`
	Responses  map[string]yaml.Node `yaml:"responses"`
}

// apiSpec maps path -> method -> operation.
type apiSpec map[string]map[string]operation

// parseSpec reads a swagger 2.0 or OpenAPI 3 document in YAML or JSON.
func parseSpec(raw []byte) (apiSpec, error) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Paths == nil {
		return nil, errors.New("missing top-level paths field")
	}

	spec := make(apiSpec, len(doc.Paths))
	for path, item := range doc.Paths {
		ops := make(map[string]operation)
		for key, node := range item {
			method := strings.ToLower(strings.TrimSpace(key))
			if !slices.Contains(httpMethods, method) {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}
			ops[method] = op
		}
		if len(ops) > 0 {
			spec[path] = ops
		}
	}
	return spec, nil
}

// compare lists the changes in revision that break clients written
// against base: removed paths, operations or response codes, and newly
// required parameters.
func compare(base, revision apiSpec) []string {
	var issues []string

	for path, baseOps := range base {
		revOps, ok := revision[path]
		if !ok {
			issues = append(issues, "removed path: "+path)
			continue
		}

		for method, baseOp := range baseOps {
			name := strings.ToUpper(method) + " " + path
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, "removed operation: "+name)
				continue
			}

			for code := range baseOp.Responses {
				if _, ok := revOp.Responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", name, strings.ToUpper(code)))
				}
			}

			for _, p := range revOp.Parameters {
				if !p.Required {
					continue
				}
				known := slices.ContainsFunc(baseOp.Parameters, func(b parameter) bool {
					return b.Name == p.Name && b.In == p.In && b.Required
				})
				if !known {
					issues = append(issues, fmt.Sprintf("new required parameter: %s -> %s (%s)", name, p.Name, p.In))
				}
			}
		}
	}

	slices.Sort(issues)
	return issues
}

// toYAML converts a JSON document to YAML for a reviewable baseline file.
func toYAML(raw []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	clearStyle(&doc)
	return yaml.Marshal(&doc)
}

// clearStyle drops the flow style JSON input carries so the output is
// block YAML.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
