// Package mirror re-serves a fetched specification index over the same
// wire protocol the fetcher consumes. Pointing a source at a running
// mirror lets air-gapped machines resolve against metadata fetched
// elsewhere.
package mirror

import (
	"compress/gzip"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/rubymarshal"
)

// Server serves a static index. The index must not be mutated while the
// server is running.
type Server struct {
	index  *gem.Index
	logger *log.Logger
}

// NewServer builds a mirror for index.
func NewServer(index *gem.Index, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{index: index, logger: logger}
}

// Handler returns the mirror's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/v1/dependencies", s.handleDependencies)
	r.Get("/specs.4.8.gz", s.handleFullIndex)
	r.Get("/info/{name}", s.handleInfo)
	return r
}

// handleDependencies answers a dependency query with marshaled records for
// every requested name, mirroring the registry protocol.
func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	gems := r.URL.Query().Get("gems")
	var records []any
	if gems != "" {
		for _, name := range strings.Split(gems, ",") {
			for _, spec := range s.index.Lookup(strings.TrimSpace(name)) {
				records = append(records, dependencyRecord(spec))
			}
		}
	}

	body, err := rubymarshal.Encode(records)
	if err != nil {
		s.logger.Error("encoding dependency response", "err", err)
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(body)
}

func dependencyRecord(spec *gem.Spec) *rubymarshal.Hash {
	var deps []any
	for _, d := range spec.Dependencies() {
		reqs := make([]string, len(d.Requirements))
		for i, r := range d.Requirements {
			reqs[i] = r.String()
		}
		deps = append(deps, []any{d.Name, strings.Join(reqs, ", ")})
	}

	h := &rubymarshal.Hash{}
	h.Set(rubymarshal.Symbol("name"), spec.Name)
	h.Set(rubymarshal.Symbol("number"), spec.Version.String())
	h.Set(rubymarshal.Symbol("platform"), spec.Platform)
	h.Set(rubymarshal.Symbol("dependencies"), deps)
	return h
}

// handleFullIndex serves the bulk [[name, version, platform]...] artifact.
func (s *Server) handleFullIndex(w http.ResponseWriter, r *http.Request) {
	rows := make([]any, 0, s.index.Size())
	for _, name := range s.index.Names() {
		for _, spec := range s.index.Lookup(name) {
			rows = append(rows, []any{spec.Name, spec.Version.String(), spec.Platform})
		}
	}

	body, err := rubymarshal.Encode(rows)
	if err != nil {
		s.logger.Error("encoding full index", "err", err)
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	gz.Write(body)
}

// handleInfo serves a plain-text version listing for one gem.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	specs := s.index.Lookup(name)
	if len(specs) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "---")
	for _, spec := range specs {
		if spec.Platform == gem.DefaultPlatform {
			fmt.Fprintln(w, spec.Version.String())
		} else {
			fmt.Fprintf(w, "%s-%s\n", spec.Version.String(), spec.Platform)
		}
	}
}
