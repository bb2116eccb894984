// Package fetcher implements the remote-metadata fetch protocol: bounded
// redirects with credential scoping, retry with an abort class for
// authentication failures, the recursive dependency-closure query, and the
// full-index fallback. One Fetcher is a single-registry session; sessions
// share no state, so independent sessions can be driven concurrently by the
// resolver.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/quarrydev/quarry/pkg/buildinfo"
	"github.com/quarrydev/quarry/pkg/cache"
	"github.com/quarrydev/quarry/pkg/config"
	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/source"
)

// apiState is the session's memoized dependency-API availability.
type apiState int

const (
	apiUnknown apiState = iota
	apiAvailable
	apiUnavailable // latched for the rest of the session
)

// Options configures a fetch session beyond its config file settings.
type Options struct {
	// Cache backs gemspec payload caching; nil disables caching.
	Cache cache.Cache

	// SpecDirs are local directories searched by filename before any
	// network gemspec fetch.
	SpecDirs []string

	// Command and EnabledOptions identify the invocation in the
	// User-Agent header.
	Command        string
	EnabledOptions []string

	Logger *log.Logger
}

// Fetcher is one fetch session against one registry. It operates strictly
// sequentially: one outstanding request at a time over per-host keep-alive
// connections. Not safe for concurrent use; run one Fetcher per goroutine.
type Fetcher struct {
	src    *source.Location
	cfg    *config.Config
	logger *log.Logger

	deps  *dependencyFetcher
	index *indexFetcher
	specs *specFetcher

	state apiState
}

// New builds a session for src. The connection manager, TLS settings, and
// the identifying User-Agent are fixed here for the session's lifetime.
func New(src *source.Location, cfg *config.Config, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	backend := opts.Cache
	if backend == nil {
		backend = cache.NewNullCache()
	}

	conns := newConnectionManager(cfg.SSL, cfg.Timeout())
	exec := &requestExecutor{
		conns:     conns,
		userAgent: userAgent(opts.Command, opts.EnabledOptions),
		loc:       src,
	}
	follower := &redirectFollower{exec: exec, limit: cfg.Fetch.RedirectLimit}

	return &Fetcher{
		src:    src,
		cfg:    cfg,
		logger: logger,
		deps: &dependencyFetcher{
			src:        src,
			follower:   follower,
			retries:    cfg.Fetch.Retries,
			batchLimit: cfg.Fetch.APIRequestLimit,
			logger:     logger,
		},
		index: &indexFetcher{
			src:      src,
			follower: follower,
			retries:  cfg.Fetch.Retries,
			logger:   logger,
		},
		specs: &specFetcher{
			src:      src,
			follower: follower,
			retries:  cfg.Fetch.Retries,
			cache:    cache.NewScoped(backend, "gemspec:"),
			specDirs: opts.SpecDirs,
			logger:   logger,
		},
	}
}

// Source returns the session's registry location.
func (f *Fetcher) Source() *source.Location { return f.src }

// APIAvailable reports the memoized availability determination; false only
// after the session has latched the API unavailable.
func (f *Fetcher) APIAvailable() bool { return f.useAPI() }

// Specs resolves specifications for the requested names: the transitive
// closure via the dependency API when it is available, otherwise the full
// index (whose entries resolve dependencies lazily). Authentication
// failures and malformed registry responses propagate immediately and never
// trigger the fallback; any other API failure latches the API unavailable
// for the rest of the session.
func (f *Fetcher) Specs(ctx context.Context, names []string) (*gem.Index, error) {
	if f.useAPI() {
		entries, err := f.deps.resolveClosure(ctx, names)
		var malformed *MalformedSpecError
		switch {
		case err == nil:
			f.state = apiAvailable
			return f.buildIndex(entries)
		case IsAbort(err):
			return nil, err
		case errors.As(err, &malformed):
			// A registry serving broken entries will serve them from the
			// full index too; fail with the gem's name instead of masking
			// it behind a fallback.
			return nil, err
		default:
			f.state = apiUnavailable
			f.logger.Warn("dependency API unavailable, falling back to full index",
				"source", f.src.Safe())
			f.logger.Debug("dependency API failure", "err", err)
		}
	}

	entries, err := f.index.fetchFullIndex(ctx)
	if err != nil {
		return nil, err
	}
	return f.buildIndex(entries)
}

// SpecDependencies fetches the dependency list for a lazily-resolved spec.
// It has the shape of [gem.DepsFetchFunc].
func (f *Fetcher) SpecDependencies(ctx context.Context, name string, version gem.Version, platform string) ([]gem.Dependency, error) {
	return f.specs.fetchSpecDeps(ctx, name, version, platform)
}

func (f *Fetcher) useAPI() bool {
	if f.cfg.Fetch.DisableEndpoint {
		return false
	}
	return f.state != apiUnavailable
}

func (f *Fetcher) buildIndex(entries []gem.RawEntry) (*gem.Index, error) {
	builder := gem.NewBuilder(f.src)
	if err := builder.AddAll(entries); err != nil {
		var entryErr *gem.EntryError
		if errors.As(err, &entryErr) {
			return nil, &MalformedSpecError{Name: entryErr.Name, Err: entryErr.Err}
		}
		return nil, &MalformedSpecError{Name: "specification", Err: err}
	}
	return builder.Index(), nil
}

// userAgent composes the identifying client string: tool version, runtime,
// invoking command, enabled option names, and a random correlation token.
func userAgent(command string, options []string) string {
	parts := []string{
		fmt.Sprintf("quarry/%s", buildinfo.Version),
		fmt.Sprintf("(%s/%s)", runtime.GOOS, runtime.GOARCH),
		runtime.Version(),
	}
	if command != "" {
		parts = append(parts, "command/"+command)
	}
	if len(options) > 0 {
		parts = append(parts, "options/"+strings.Join(options, ","))
	}
	parts = append(parts, uuid.NewString())
	return strings.Join(parts, " ")
}
