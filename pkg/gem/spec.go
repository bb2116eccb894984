// Package gem defines the typed package-specification model shared by the
// fetcher and the resolver: versions with RubyGems ordering, requirement
// constraints, specs, and the name-keyed Index the fetcher hands to the
// resolver.
package gem

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quarrydev/quarry/pkg/source"
)

// DefaultPlatform is the platform recorded for pure-Ruby gems.
const DefaultPlatform = "ruby"

// toolName is excluded from built indexes; the tool never manages itself.
const toolName = "quarry"

// Dependency is a runtime dependency of a spec: a gem name plus the
// requirement list that versions of that gem must satisfy.
type Dependency struct {
	Name         string
	Requirements []Requirement
}

// DepsFetchFunc fetches the dependency list for a spec whose dependencies
// were not included in the index it came from. Used by lazy specs built from
// the legacy full index.
type DepsFetchFunc func(ctx context.Context, name string, version Version, platform string) ([]Dependency, error)

// Spec describes one publishable gem variant. Immutable once constructed,
// except for the one-time lazy dependency resolution of legacy index entries.
type Spec struct {
	Name     string
	Version  Version
	Platform string

	// Source is the registry location the spec was fetched from, recorded
	// for disambiguation when the resolver merges multiple registries.
	Source *source.Location

	deps      []Dependency
	depsKnown bool
}

// NewSpec builds a spec with a known dependency list.
func NewSpec(name string, version Version, platform string, deps []Dependency, src *source.Location) *Spec {
	if platform == "" {
		platform = DefaultPlatform
	}
	return &Spec{
		Name:      name,
		Version:   version,
		Platform:  platform,
		Source:    src,
		deps:      deps,
		depsKnown: true,
	}
}

// NewLazySpec builds a spec whose dependencies are resolved on demand via
// ResolveDependencies. Used for legacy full-index entries, which list only
// (name, version, platform).
func NewLazySpec(name string, version Version, platform string, src *source.Location) *Spec {
	if platform == "" {
		platform = DefaultPlatform
	}
	return &Spec{Name: name, Version: version, Platform: platform, Source: src}
}

// FullName returns the archive-style name: "rails-7.1.2" for the default
// platform, "nokogiri-1.15.0-x86_64-linux" otherwise.
func (s *Spec) FullName() string {
	if s.Platform == DefaultPlatform {
		return fmt.Sprintf("%s-%s", s.Name, s.Version)
	}
	return fmt.Sprintf("%s-%s-%s", s.Name, s.Version, s.Platform)
}

// DepsKnown reports whether the dependency list has been populated.
func (s *Spec) DepsKnown() bool { return s.depsKnown }

// Dependencies returns the dependency list. For lazy specs it is empty
// until ResolveDependencies succeeds.
func (s *Spec) Dependencies() []Dependency { return s.deps }

// ResolveDependencies populates a lazy spec's dependency list using fetch.
// It is a no-op for specs whose dependencies are already known.
func (s *Spec) ResolveDependencies(ctx context.Context, fetch DepsFetchFunc) error {
	if s.depsKnown {
		return nil
	}
	deps, err := fetch(ctx, s.Name, s.Version, s.Platform)
	if err != nil {
		return err
	}
	s.deps = deps
	s.depsKnown = true
	return nil
}

// Index maps gem names to the spec variants satisfying that name. Built by
// one fetch session, then handed to the resolver and never mutated again.
type Index struct {
	specs map[string][]*Spec
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{specs: make(map[string][]*Spec)}
}

// Add inserts a spec under its name.
func (i *Index) Add(s *Spec) {
	i.specs[s.Name] = append(i.specs[s.Name], s)
}

// Lookup returns all spec variants for name, or nil when unknown.
func (i *Index) Lookup(name string) []*Spec { return i.specs[name] }

// Names returns all indexed gem names, sorted.
func (i *Index) Names() []string {
	names := make([]string, 0, len(i.specs))
	for n := range i.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Size returns the total number of specs across all names.
func (i *Index) Size() int {
	n := 0
	for _, variants := range i.specs {
		n += len(variants)
	}
	return n
}

// RawEntry is one tuple as it arrives off the wire, before typing.
// Dependencies is nil for entries from sources that omit them (the legacy
// full index); such entries become lazy specs.
type RawEntry struct {
	Name         string
	Version      string
	Platform     string
	Dependencies []RawDependency
	DepsKnown    bool
}

// RawDependency pairs a dependency name with its comma-joined requirement
// string as transmitted by the dependency API.
type RawDependency struct {
	Name         string
	Requirements string
}

// EntryError reports a raw entry that failed typing, naming the gem that
// carries the malformed data.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("gem %s: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Builder accumulates raw entries into an Index, typing versions and
// requirements along the way.
type Builder struct {
	src   *source.Location
	index *Index
}

// NewBuilder returns a Builder producing specs owned by src.
func NewBuilder(src *source.Location) *Builder {
	return &Builder{src: src, index: NewIndex()}
}

// Add types one raw entry and inserts it into the index. Entries named
// after the tool itself are skipped. A malformed version or requirement
// fails the whole add with an error naming the offending gem.
func (b *Builder) Add(raw RawEntry) error {
	name := strings.TrimSpace(raw.Name)
	if name == "" || name == toolName {
		return nil
	}

	version, err := ParseVersion(raw.Version)
	if err != nil {
		return &EntryError{Name: name, Err: err}
	}

	if !raw.DepsKnown {
		b.index.Add(NewLazySpec(name, version, raw.Platform, b.src))
		return nil
	}

	deps := make([]Dependency, 0, len(raw.Dependencies))
	for _, rd := range raw.Dependencies {
		reqs, err := ParseRequirements(rd.Requirements)
		if err != nil {
			return &EntryError{Name: name, Err: fmt.Errorf("dependency %s: %w", rd.Name, err)}
		}
		deps = append(deps, Dependency{Name: rd.Name, Requirements: reqs})
	}
	b.index.Add(NewSpec(name, version, raw.Platform, deps, b.src))
	return nil
}

// AddAll adds every raw entry, stopping at the first failure.
func (b *Builder) AddAll(raws []RawEntry) error {
	for _, r := range raws {
		if err := b.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// Index returns the accumulated index.
func (b *Builder) Index() *Index { return b.index }
