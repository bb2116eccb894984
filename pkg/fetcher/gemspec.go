package fetcher

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/quarrydev/quarry/pkg/cache"
	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/rubymarshal"
	"github.com/quarrydev/quarry/pkg/source"
)

// quickSpecPath is the registry directory serving per-file marshaled
// specifications.
const quickSpecPath = "quick/Marshal.4.8"

// specFetcher retrieves single-gem specification files, used to resolve
// dependencies of specs that came from the full index. Lookup order: local
// spec directories by filename, the cache backend, then the registry.
type specFetcher struct {
	src      *source.Location
	follower *redirectFollower
	retries  int
	cache    cache.Cache
	specDirs []string
	logger   *log.Logger
}

// fetchSpecDeps returns the runtime dependency list for one gem variant.
func (s *specFetcher) fetchSpecDeps(ctx context.Context, name string, version gem.Version, platform string) ([]gem.Dependency, error) {
	filename := gem.NewLazySpec(name, version, platform, s.src).FullName() + ".gemspec.rz"

	payload, err := s.payload(ctx, filename)
	if err != nil {
		return nil, err
	}

	deps, err := parseGemspecDeps(payload)
	if err != nil {
		return nil, &MalformedSpecError{Name: name, Err: err}
	}
	return deps, nil
}

// payload locates the compressed gemspec by filename: local directories
// first, then the cache, then the source (directly for file:// sources,
// over HTTP otherwise). Network fetches are cached without expiry, since a
// published spec never changes.
func (s *specFetcher) payload(ctx context.Context, filename string) ([]byte, error) {
	for _, dir := range s.specDirs {
		if data, err := os.ReadFile(filepath.Join(dir, filename)); err == nil {
			s.logger.Debug("gemspec found locally", "file", filename, "dir", dir)
			return data, nil
		}
	}

	if data, hit, err := s.cache.Get(ctx, filename); err == nil && hit {
		return data, nil
	}

	if s.src.Scheme() == "file" {
		path := filepath.Join(s.src.URL().Path, quickSpecPath, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			// Keep the failure surface typed even for file:// sources.
			return nil, &HTTPError{Err: err}
		}
		return data, nil
	}

	uri := s.src.Join(quickSpecPath, filename).URL()
	var body []byte
	err := attempt(ctx, s.retries, func() error {
		var ferr error
		body, ferr = s.follower.fetch(ctx, uri)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, filename, body, 0); err != nil {
		s.logger.Debug("gemspec cache write failed", "file", filename, "err", err)
	}
	return body, nil
}

// parseGemspecDeps inflates and decodes a .gemspec.rz payload, returning
// the runtime dependencies of the marshaled Gem::Specification.
func parseGemspecDeps(payload []byte) ([]gem.Dependency, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}

	decoded, err := rubymarshal.Decode(raw)
	if err != nil {
		return nil, err
	}
	ud, ok := decoded.(*rubymarshal.UserDefined)
	if !ok {
		return nil, fmt.Errorf("expected marshaled specification, got %T", decoded)
	}

	fields, err := rubymarshal.Decode(ud.Data)
	if err != nil {
		return nil, err
	}
	arr, ok := rubymarshal.AsArray(fields)
	if !ok {
		return nil, fmt.Errorf("specification dump is not an array")
	}

	// The dump is a positional field array; the dependency list is the
	// element holding Gem::Dependency objects.
	for _, field := range arr {
		objs, ok := dependencyObjects(field)
		if !ok {
			continue
		}
		return typedDependencies(objs)
	}
	return nil, nil // a spec with no dependencies has no such element
}

// dependencyObjects reports whether field is a non-empty array of
// Gem::Dependency objects.
func dependencyObjects(field any) ([]*rubymarshal.Object, bool) {
	items, ok := rubymarshal.AsArray(field)
	if !ok || len(items) == 0 {
		return nil, false
	}
	objs := make([]*rubymarshal.Object, 0, len(items))
	for _, item := range items {
		obj, ok := item.(*rubymarshal.Object)
		if !ok || obj.Class != "Gem::Dependency" {
			return nil, false
		}
		objs = append(objs, obj)
	}
	return objs, true
}

func typedDependencies(objs []*rubymarshal.Object) ([]gem.Dependency, error) {
	var deps []gem.Dependency
	for _, obj := range objs {
		nameVal, _ := obj.Ivar("name")
		name, ok := rubymarshal.AsString(nameVal)
		if !ok || name == "" {
			return nil, fmt.Errorf("dependency missing name")
		}

		// Development dependencies are irrelevant for resolution.
		if typVal, ok := obj.Ivar("type"); ok {
			if typ, _ := rubymarshal.AsString(typVal); typ == "development" {
				continue
			}
		}

		reqVal, _ := obj.Ivar("requirement")
		reqs, err := requirementList(reqVal)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}
		deps = append(deps, gem.Dependency{Name: name, Requirements: reqs})
	}
	return deps, nil
}

// requirementList decodes a marshaled Gem::Requirement, which dumps as
// [[["op", Gem::Version], ...]].
func requirementList(v any) ([]gem.Requirement, error) {
	um, ok := v.(*rubymarshal.UserMarshal)
	if !ok {
		return nil, fmt.Errorf("requirement is not user-marshaled")
	}
	outer, ok := rubymarshal.AsArray(um.Value)
	if !ok || len(outer) == 0 {
		return nil, fmt.Errorf("requirement dump is empty")
	}
	pairs, ok := rubymarshal.AsArray(outer[0])
	if !ok {
		return nil, fmt.Errorf("requirement dump is not a pair list")
	}

	var reqs []gem.Requirement
	for _, p := range pairs {
		pair, ok := rubymarshal.AsArray(p)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("constraint is not an [op, version] pair")
		}
		op, _ := rubymarshal.AsString(pair[0])
		verStr, ok := versionString(pair[1])
		if !ok {
			return nil, fmt.Errorf("constraint version is malformed")
		}
		req, err := gem.ParseRequirement(op + " " + verStr)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func versionString(v any) (string, bool) {
	if s, ok := rubymarshal.AsString(v); ok {
		return s, true
	}
	um, ok := v.(*rubymarshal.UserMarshal)
	if !ok {
		return "", false
	}
	arr, ok := rubymarshal.AsArray(um.Value)
	if !ok || len(arr) != 1 {
		return "", false
	}
	return rubymarshal.AsString(arr[0])
}
