// Package depgraph renders a fetched specification index as a dependency
// graph, either as Graphviz DOT text or as SVG.
package depgraph

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/quarrydev/quarry/pkg/gem"
)

// Options configures graph output.
type Options struct {
	// Detailed adds version and platform lines to node labels.
	Detailed bool
}

// ToDOT converts an index to Graphviz DOT. Each gem name becomes one node;
// edges follow declared dependencies. Dependencies on gems absent from the
// index (unfetched frontier) are drawn dashed.
func ToDOT(index *gem.Index, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n")
	buf.WriteString("\n")

	names := index.Names()
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	for _, name := range names {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", name, nodeLabel(index, name, opts.Detailed))
	}

	buf.WriteString("\n")
	missing := make(map[string]bool)
	for _, name := range names {
		for _, dep := range dependencyNames(index, name) {
			if !known[dep] && !missing[dep] {
				missing[dep] = true
				fmt.Fprintf(&buf, "  %q [style=\"rounded,dashed\"];\n", dep)
			}
			fmt.Fprintf(&buf, "  %q -> %q;\n", name, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeLabel(index *gem.Index, name string, detailed bool) string {
	if !detailed {
		return name
	}
	var lines []string
	for _, spec := range index.Lookup(name) {
		line := spec.Version.String()
		if spec.Platform != gem.DefaultPlatform {
			line += " (" + spec.Platform + ")"
		}
		lines = append(lines, line)
	}
	return name + "\n" + strings.Join(lines, "\n")
}

// dependencyNames returns the union of dependency names across a gem's
// variants, sorted for stable output.
func dependencyNames(index *gem.Index, name string) []string {
	seen := make(map[string]bool)
	for _, spec := range index.Lookup(name) {
		for _, dep := range spec.Dependencies() {
			seen[dep.Name] = true
		}
	}
	deps := make([]string, 0, len(seen))
	for d := range seen {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

// RenderSVG renders DOT text to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
