package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/pkg/fetcher"
	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/source"
)

// fetchCommand creates the fetch command: resolve the dependency closure
// for the named gems against every configured source.
func (c *CLI) fetchCommand() *cobra.Command {
	var (
		noCache  bool
		jsonOut  bool
		specDirs []string
	)

	cmd := &cobra.Command{
		Use:   "fetch NAME...",
		Short: "Fetch the dependency closure for the given gem names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			backend := c.newCache(cmd.Context(), cfg, noCache)
			defer backend.Close()

			prog := newProgress(c.Logger)
			merged := gem.NewIndex()
			for _, raw := range cfg.Sources {
				loc, err := source.Resolve(raw, cfg)
				if err != nil {
					return err
				}

				session := fetcher.New(loc, cfg, fetcher.Options{
					Cache:    backend,
					SpecDirs: specDirs,
					Command:  "fetch",
					Logger:   c.Logger,
				})

				spin := newSpinnerWithContext(cmd.Context(), fmt.Sprintf("Fetching metadata from %s", loc.Safe()))
				spin.Start()
				index, err := session.Specs(cmd.Context(), args)
				spin.Stop()
				if err != nil {
					return fmt.Errorf("fetching from %s: %w", loc.Safe(), err)
				}

				for _, name := range index.Names() {
					for _, spec := range index.Lookup(name) {
						merged.Add(spec)
					}
				}
				printSuccess("Fetched %d specs from %s", index.Size(), loc.Safe())
			}
			prog.done(fmt.Sprintf("Resolved %d gems", len(merged.Names())))

			if jsonOut {
				return writeIndexJSON(os.Stdout, merged)
			}
			printIndex(merged)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the artifact cache")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the index as JSON")
	cmd.Flags().StringArrayVar(&specDirs, "spec-dir", nil, "local directory searched for gemspec files before the network")
	return cmd
}

// printIndex renders the merged index as styled text.
func printIndex(index *gem.Index) {
	printNewline()
	for _, name := range index.Names() {
		fmt.Println(StyleTitle.Render(name))
		for _, spec := range index.Lookup(name) {
			line := spec.Version.String()
			if spec.Platform != gem.DefaultPlatform {
				line += " (" + spec.Platform + ")"
			}
			if !spec.DepsKnown() {
				line += " " + StyleDim.Render("deps pending")
			}
			printDetail("%s", line)
			for _, dep := range spec.Dependencies() {
				printDetail("  %s %s", dep.Name, requirementText(dep))
			}
		}
	}
	printNewline()
	printStats(len(index.Names()), index.Size())
}

func requirementText(dep gem.Dependency) string {
	if len(dep.Requirements) == 0 {
		return ">= 0"
	}
	parts := make([]string, len(dep.Requirements))
	for i, r := range dep.Requirements {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// specJSON is the JSON shape of one spec in --json output.
type specJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Platform     string            `json:"platform"`
	Source       string            `json:"source"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	DepsPending  bool              `json:"deps_pending,omitempty"`
}

func writeIndexJSON(w io.Writer, index *gem.Index) error {
	var out []specJSON
	for _, name := range index.Names() {
		for _, spec := range index.Lookup(name) {
			sj := specJSON{
				Name:        spec.Name,
				Version:     spec.Version.String(),
				Platform:    spec.Platform,
				Source:      spec.Source.Safe(),
				DepsPending: !spec.DepsKnown(),
			}
			if deps := spec.Dependencies(); len(deps) > 0 {
				sj.Dependencies = make(map[string]string, len(deps))
				for _, d := range deps {
					sj.Dependencies[d.Name] = requirementText(d)
				}
			}
			out = append(out, sj)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// fetchIndex is shared by graph and mirror: resolve the closure for names
// against the first configured source.
func (c *CLI) fetchIndex(ctx context.Context, names []string, noCache bool) (*gem.Index, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}

	loc, err := source.Resolve(cfg.Sources[0], cfg)
	if err != nil {
		return nil, err
	}

	backend := c.newCache(ctx, cfg, noCache)
	defer backend.Close()

	session := fetcher.New(loc, cfg, fetcher.Options{
		Cache:   backend,
		Command: "fetch",
		Logger:  c.Logger,
	})
	return session.Specs(ctx, names)
}
