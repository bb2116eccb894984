package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newDependencyServer serves the dependency API from a fixture map of
// records keyed by gem name, recording every gems= parameter it receives.
func newDependencyServer(t *testing.T, fixtures map[string]*dependencyFixture, queries *[][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/dependencies" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		names := strings.Split(r.URL.Query().Get("gems"), ",")
		*queries = append(*queries, names)

		records := []any{}
		for _, name := range names {
			if fx, ok := fixtures[name]; ok {
				records = append(records, dependencyRecord(fx.name, fx.number, "ruby", fx.deps...))
			}
		}
		w.Write(mustEncode(t, records))
	}))
}

type dependencyFixture struct {
	name   string
	number string
	deps   [][2]string
}

func newDependencyFetcher(t *testing.T, serverURL string, batchLimit int) *dependencyFetcher {
	t.Helper()
	src := testLocation(t, serverURL)
	return &dependencyFetcher{
		src:        src,
		follower:   newTestFollower(src, 5),
		retries:    1,
		batchLimit: batchLimit,
		logger:     testLogger(),
	}
}

func TestResolveClosure(t *testing.T) {
	fixtures := map[string]*dependencyFixture{
		"rails":         {name: "rails", number: "7.1.2", deps: [][2]string{{"activesupport", "= 7.1.2"}, {"rack", ">= 2.2.4"}}},
		"activesupport": {name: "activesupport", number: "7.1.2", deps: [][2]string{{"tzinfo", "~> 2.0"}}},
		"rack":          {name: "rack", number: "3.0.8"},
		"tzinfo":        {name: "tzinfo", number: "2.0.6"},
	}
	var queries [][]string
	srv := newDependencyServer(t, fixtures, &queries)
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	entries, err := d.resolveClosure(context.Background(), []string{"rails"})
	if err != nil {
		t.Fatalf("resolveClosure() error: %v", err)
	}

	if len(entries) != 4 {
		t.Errorf("got %d entries, want 4", len(entries))
	}
	// Round one queries the requested name, round two its dependencies,
	// round three the remaining frontier.
	want := [][]string{{"rails"}, {"activesupport", "rack"}, {"tzinfo"}}
	if len(queries) != len(want) {
		t.Fatalf("got %d queries %v, want %d", len(queries), queries, len(want))
	}
	for i := range want {
		if strings.Join(queries[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("query %d = %v, want %v", i, queries[i], want[i])
		}
	}
}

func TestResolveClosureEmptyNames(t *testing.T) {
	var queries [][]string
	srv := newDependencyServer(t, nil, &queries)
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	entries, err := d.resolveClosure(context.Background(), nil)
	if err != nil {
		t.Fatalf("resolveClosure() error: %v", err)
	}
	if len(entries) != 0 || len(queries) != 0 {
		t.Errorf("entries = %v, queries = %v, want none", entries, queries)
	}
}

func TestResolveClosureCyclicDependencies(t *testing.T) {
	fixtures := map[string]*dependencyFixture{
		"a": {name: "a", number: "1.0", deps: [][2]string{{"b", ">= 0"}}},
		"b": {name: "b", number: "1.0", deps: [][2]string{{"a", ">= 0"}}},
	}
	var queries [][]string
	srv := newDependencyServer(t, fixtures, &queries)
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	entries, err := d.resolveClosure(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("resolveClosure() error: %v", err)
	}
	// a, then b; the cycle back to a must not query it again.
	if len(entries) != 2 || len(queries) != 2 {
		t.Errorf("entries = %d, queries = %v", len(entries), queries)
	}
}

func TestResolveClosureBatching(t *testing.T) {
	fixtures := make(map[string]*dependencyFixture)
	var names []string
	for i := 0; i < 250; i++ {
		name := fmt.Sprintf("gem-%03d", i)
		names = append(names, name)
		fixtures[name] = &dependencyFixture{name: name, number: "1.0"}
	}

	var queries [][]string
	srv := newDependencyServer(t, fixtures, &queries)
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	entries, err := d.resolveClosure(context.Background(), names)
	if err != nil {
		t.Fatalf("resolveClosure() error: %v", err)
	}

	if len(entries) != 250 {
		t.Errorf("got %d entries, want 250", len(entries))
	}
	if len(queries) != 3 {
		t.Fatalf("got %d requests, want 3 batches", len(queries))
	}
	seen := make(map[string]bool)
	for _, q := range queries {
		if len(q) > 100 {
			t.Errorf("batch of %d names exceeds the request limit", len(q))
		}
		for _, n := range q {
			if seen[n] {
				t.Errorf("name %s queried twice", n)
			}
			seen[n] = true
		}
	}
	if len(seen) != 250 {
		t.Errorf("queried %d distinct names, want 250", len(seen))
	}
}

func TestQueryBatchMalformedRequirement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mustEncode(t, []any{
			dependencyRecord("broken", "1.0", "ruby", [2]string{"dep", "@@ nope"}),
		}))
	}))
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	_, err := d.resolveClosure(context.Background(), []string{"broken"})

	var malformed *MalformedSpecError
	if !errors.As(err, &malformed) {
		t.Fatalf("resolveClosure() error = %v, want MalformedSpecError", err)
	}
	if malformed.Name != "broken" {
		t.Errorf("MalformedSpecError.Name = %q, want \"broken\"", malformed.Name)
	}
}

func TestQueryBatchUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	d := newDependencyFetcher(t, srv.URL, 100)
	_, err := d.resolveClosure(context.Background(), []string{"rack"})

	var malformed *MalformedSpecError
	if !errors.As(err, &malformed) {
		t.Fatalf("resolveClosure() error = %v, want MalformedSpecError", err)
	}
}
