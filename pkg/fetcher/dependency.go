package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/rubymarshal"
	"github.com/quarrydev/quarry/pkg/source"
)

// dependencyFetcher resolves the transitive dependency closure of a name
// list through the incremental dependency-query API.
type dependencyFetcher struct {
	src        *source.Location
	follower   *redirectFollower
	retries    int
	batchLimit int
	logger     *log.Logger
}

// resolveClosure repeatedly queries the dependency API until no new names
// remain. It is a worklist loop: each round queries the names not yet
// covered, collects the entries, and seeds the next round with every
// dependency name those entries reference. Termination holds because the
// set of queried names strictly grows while the name universe is finite.
//
// Any failure aborts the whole closure, not just the failing batch.
func (d *dependencyFetcher) resolveClosure(ctx context.Context, names []string) ([]gem.RawEntry, error) {
	fullyQueried := make(map[string]bool)
	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}

	var collected []gem.RawEntry
	for round := 1; ; round++ {
		var frontier []string
		for n := range requested {
			if !fullyQueried[n] {
				frontier = append(frontier, n)
			}
		}
		if len(frontier) == 0 {
			return collected, nil
		}
		sort.Strings(frontier)
		d.logger.Debug("dependency query round", "round", round, "names", len(frontier))

		newNames := make(map[string]bool)
		for start := 0; start < len(frontier); start += d.batchLimit {
			batch := frontier[start:min(start+d.batchLimit, len(frontier))]
			entries, err := d.queryBatch(ctx, batch)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				collected = append(collected, e)
				for _, dep := range e.Dependencies {
					newNames[dep.Name] = true
				}
			}
			for _, n := range batch {
				fullyQueried[n] = true
			}
		}
		requested = newNames
	}
}

// queryBatch issues one dependency-API request for up to batchLimit names
// and decodes the marshaled response into raw entries.
func (d *dependencyFetcher) queryBatch(ctx context.Context, names []string) ([]gem.RawEntry, error) {
	uri := d.src.Join("api", "v1", "dependencies").URL()
	uri.RawQuery = "gems=" + url.QueryEscape(strings.Join(names, ","))

	var body []byte
	err := attempt(ctx, d.retries, func() error {
		var ferr error
		body, ferr = d.follower.fetch(ctx, uri)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return parseDependencyResponse(body)
}

// parseDependencyResponse decodes the marshaled array of dependency records:
// {name, number, platform, dependencies: [[name, "req1, req2"], ...]}.
func parseDependencyResponse(body []byte) ([]gem.RawEntry, error) {
	decoded, err := rubymarshal.Decode(body)
	if err != nil {
		return nil, &MalformedSpecError{Name: "dependency API response", Err: err}
	}
	records, ok := rubymarshal.AsArray(decoded)
	if !ok {
		return nil, &MalformedSpecError{Name: "dependency API response", Err: fmt.Errorf("expected array, got %T", decoded)}
	}

	entries := make([]gem.RawEntry, 0, len(records))
	for _, rec := range records {
		h, ok := rubymarshal.AsHash(rec)
		if !ok {
			return nil, &MalformedSpecError{Name: "dependency API response", Err: fmt.Errorf("expected hash entry, got %T", rec)}
		}
		entry, err := parseDependencyRecord(h)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseDependencyRecord(h *rubymarshal.Hash) (gem.RawEntry, error) {
	name := hashString(h, "name")
	if name == "" {
		return gem.RawEntry{}, &MalformedSpecError{Name: "(unnamed)", Err: fmt.Errorf("entry missing name")}
	}

	entry := gem.RawEntry{
		Name:      name,
		Version:   hashString(h, "number"),
		Platform:  hashString(h, "platform"),
		DepsKnown: true,
	}

	rawDeps, _ := h.Get("dependencies")
	depList, _ := rubymarshal.AsArray(rawDeps)
	for _, rd := range depList {
		pair, ok := rubymarshal.AsArray(rd)
		if !ok || len(pair) != 2 {
			return gem.RawEntry{}, &MalformedSpecError{Name: name, Err: fmt.Errorf("dependency entry is not a pair")}
		}
		depName, okName := rubymarshal.AsString(pair[0])
		reqs, okReqs := rubymarshal.AsString(pair[1])
		if !okName || !okReqs {
			return gem.RawEntry{}, &MalformedSpecError{Name: name, Err: fmt.Errorf("dependency pair has wrong types")}
		}
		// Validate the comma-joined requirement list up front so a bad
		// entry names the gem that carries it.
		if _, err := gem.ParseRequirements(reqs); err != nil {
			return gem.RawEntry{}, &MalformedSpecError{Name: name, Err: err}
		}
		entry.Dependencies = append(entry.Dependencies, gem.RawDependency{Name: depName, Requirements: reqs})
	}
	return entry, nil
}

func hashString(h *rubymarshal.Hash, key string) string {
	v, _ := h.Get(key)
	s, _ := rubymarshal.AsString(v)
	return s
}
