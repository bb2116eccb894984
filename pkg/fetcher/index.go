package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/rubymarshal"
	"github.com/quarrydev/quarry/pkg/source"
)

// specsIndexPath is the bulk artifact listing every spec in the registry.
const specsIndexPath = "specs.4.8.gz"

// indexFetcher downloads the registry's complete specification index, the
// fallback when the dependency API is unavailable. Index entries carry no
// dependency lists; the resulting specs resolve dependencies on demand.
type indexFetcher struct {
	src      *source.Location
	follower *redirectFollower
	retries  int
	logger   *log.Logger
}

// fetchFullIndex downloads, decompresses, and decodes the full index into
// raw entries. The source is an explicit parameter of the fetcher, so no
// process-wide registry state is overridden or restored.
func (f *indexFetcher) fetchFullIndex(ctx context.Context) ([]gem.RawEntry, error) {
	uri := f.src.Join(specsIndexPath).URL()
	f.logger.Debug("fetching full index", "source", f.src.Safe())

	var body []byte
	err := attempt(ctx, f.retries, func() error {
		var ferr error
		body, ferr = f.follower.fetch(ctx, uri)
		return ferr
	})
	if err != nil {
		return nil, f.classifyIndexError(err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &MalformedSpecError{Name: "full index", Err: err}
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, &MalformedSpecError{Name: "full index", Err: err}
	}

	return parseFullIndex(raw)
}

// classifyIndexError refines generic HTTP failures from the index download:
// a 403 means the registry rejected the request outright, which with
// credentials present means they are wrong, and without means they are
// required.
func (f *indexFetcher) classifyIndexError(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusForbidden {
		if f.src.HasCredentials() {
			return &BadAuthError{Host: f.src.Host()}
		}
		return &AuthError{Host: f.src.Host()}
	}
	return err
}

// parseFullIndex decodes the marshaled [[name, Gem::Version, platform]...]
// list.
func parseFullIndex(raw []byte) ([]gem.RawEntry, error) {
	decoded, err := rubymarshal.Decode(raw)
	if err != nil {
		return nil, &MalformedSpecError{Name: "full index", Err: err}
	}
	rows, ok := rubymarshal.AsArray(decoded)
	if !ok {
		return nil, &MalformedSpecError{Name: "full index", Err: fmt.Errorf("expected array, got %T", decoded)}
	}

	entries := make([]gem.RawEntry, 0, len(rows))
	for _, row := range rows {
		tuple, ok := rubymarshal.AsArray(row)
		if !ok || len(tuple) != 3 {
			return nil, &MalformedSpecError{Name: "full index", Err: fmt.Errorf("index row is not a triple")}
		}
		name, _ := rubymarshal.AsString(tuple[0])
		platform, _ := rubymarshal.AsString(tuple[2])
		version, ok := indexVersion(tuple[1])
		if !ok || name == "" {
			return nil, &MalformedSpecError{Name: name, Err: fmt.Errorf("index row has malformed name or version")}
		}
		entries = append(entries, gem.RawEntry{Name: name, Version: version, Platform: platform})
	}
	return entries, nil
}

// indexVersion extracts the version string from an index row. Registries
// marshal it either as a user-marshaled Gem::Version (dumping as
// ["1.2.0"]) or as a plain string.
func indexVersion(v any) (string, bool) {
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
