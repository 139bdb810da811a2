// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry is the runtime's single source of truth for "given a
// tool name, get an invocable handle and its schema".
//
// Three provenances are layered; lookup order is userSupplied, then
// synthesized, then builtIn — most specific wins. Mutations serialize
// under a mutex and publish a fresh immutable snapshot; lookups read the
// snapshot through an atomic pointer and never block. A handle captured
// by a running plan therefore remains valid for the rest of that plan
// even if the name is re-registered mid-flight.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/relay/services/orchestrator/catalog"
	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
	"github.com/AleutianAI/relay/services/orchestrator/synth"
)

// lookupOrder is the provenance precedence for Resolve.
var lookupOrder = []datatypes.Provenance{
	datatypes.ProvenanceUserSupplied,
	datatypes.ProvenanceSynthesized,
	datatypes.ProvenanceBuiltIn,
}

// snapshot is the immutable index published to readers.
type snapshot struct {
	byProvenance map[datatypes.Provenance]map[string]*datatypes.ToolRecord
}

func (s *snapshot) find(name string) *datatypes.ToolRecord {
	for _, prov := range lookupOrder {
		if rec, ok := s.byProvenance[prov][name]; ok {
			return rec
		}
	}
	return nil
}

// Options configures a Registry. All fields are optional.
type Options struct {
	// Catalog is the persistent tool store. Nil disables persistence;
	// saves then keep only the in-memory record.
	Catalog *catalog.Store

	// Backend produces tool source for missing names. Nil disables
	// synthesis: Resolve misses become ErrUnknownTool immediately.
	Backend synth.Backend

	// StaticDir mirrors synthesized source text to disk for inspection.
	// Empty disables mirroring.
	StaticDir string

	// SynthPerMinute caps synthesis requests. Zero means 30/min.
	SynthPerMinute int
}

// Registry is the in-memory tool index.
//
// Thread Safety: all methods are safe for concurrent use. Reads are
// lock-free against the current snapshot; writes serialize.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	catalog   *catalog.Store
	backend   synth.Backend
	staticDir string
	limiter   *rate.Limiter

	// loadFailures records, per tool name, why the last source load
	// failed. Written under mu; read for diagnostics only.
	loadFailures map[string]string
}

// New builds an empty registry.
func New(opts Options) *Registry {
	perMinute := opts.SynthPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	r := &Registry{
		catalog:      opts.Catalog,
		backend:      opts.Backend,
		staticDir:    opts.StaticDir,
		limiter:      rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		loadFailures: map[string]string{},
	}
	r.snap.Store(&snapshot{byProvenance: map[datatypes.Provenance]map[string]*datatypes.ToolRecord{}})
	return r
}

// Register stores or updates a record in memory and invalidates any
// previously published handle under that name.
//
// Description:
//
//	Registration is idempotent: registering an identical record twice
//	leaves the index in the same observable state. A non-builtIn record
//	without source text gets a reconstructed stub so the "sourceText is
//	required for synthesized and userSupplied provenance" invariant
//	holds for every stored record.
func (r *Registry) Register(rec datatypes.ToolRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("%w: tool record has no name", datatypes.ErrMalformedPlan)
	}
	if rec.Provenance == "" {
		rec.Provenance = datatypes.ProvenanceUserSupplied
	}
	if rec.Schema == nil {
		rec.Schema = datatypes.ParameterSchema{}
	}
	if rec.SourceText == "" && rec.Provenance != datatypes.ProvenanceBuiltIn {
		rec.SourceText = synth.Stub(rec.Name, rec.Schema)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishLocked(&rec)
	delete(r.loadFailures, rec.Name)
	return nil
}

// publishLocked installs rec in a fresh snapshot. Caller holds mu.
func (r *Registry) publishLocked(rec *datatypes.ToolRecord) {
	old := r.snap.Load()
	next := &snapshot{byProvenance: make(map[datatypes.Provenance]map[string]*datatypes.ToolRecord, len(old.byProvenance))}
	for prov, tools := range old.byProvenance {
		copied := make(map[string]*datatypes.ToolRecord, len(tools))
		for name, t := range tools {
			copied[name] = t
		}
		next.byProvenance[prov] = copied
	}
	if next.byProvenance[rec.Provenance] == nil {
		next.byProvenance[rec.Provenance] = map[string]*datatypes.ToolRecord{}
	}
	next.byProvenance[rec.Provenance][rec.Name] = rec
	r.snap.Store(next)
}

// removeLocked drops name from every provenance layer. Caller holds mu.
func (r *Registry) removeLocked(name string) {
	old := r.snap.Load()
	next := &snapshot{byProvenance: make(map[datatypes.Provenance]map[string]*datatypes.ToolRecord, len(old.byProvenance))}
	for prov, tools := range old.byProvenance {
		copied := make(map[string]*datatypes.ToolRecord, len(tools))
		for n, t := range tools {
			if n != name {
				copied[n] = t
			}
		}
		next.byProvenance[prov] = copied
	}
	r.snap.Store(next)
}

// Resolve returns an invocable record for name, compiling from source
// text when no handle is loaded yet.
//
// Outputs:
//
//	*datatypes.ToolRecord - A callable record. The pointer is stable: the
//	                        caller may hold it for the remainder of a plan
//	                        regardless of later re-registration.
//	error                 - ErrUnknownTool when the name is absent,
//	                        ErrLoad when source text failed to compile.
func (r *Registry) Resolve(name string) (*datatypes.ToolRecord, error) {
	rec := r.snap.Load().find(name)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", datatypes.ErrUnknownTool, name)
	}
	if rec.Callable() {
		return rec, nil
	}
	return r.compile(rec)
}

// Lookup returns the visible record for name without attempting to
// compile it. Inspection endpoints use this so a record whose source no
// longer loads can still be examined.
func (r *Registry) Lookup(name string) (*datatypes.ToolRecord, bool) {
	rec := r.snap.Load().find(name)
	return rec, rec != nil
}

// compile loads a record's source text into a handle and publishes the
// compiled record.
func (r *Registry) compile(rec *datatypes.ToolRecord) (*datatypes.ToolRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have compiled while we waited for mu.
	if current := r.snap.Load().find(rec.Name); current != nil && current.Callable() {
		return current, nil
	}

	if rec.SourceText == "" {
		err := fmt.Errorf("%w: %q has neither handle nor source text", datatypes.ErrLoad, rec.Name)
		r.loadFailures[rec.Name] = err.Error()
		return nil, err
	}
	manifest, handler, err := synth.Load(rec.SourceText)
	if err != nil {
		r.loadFailures[rec.Name] = err.Error()
		slog.Warn("tool source load failed",
			slog.String("tool", rec.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	compiled := *rec
	compiled.Handler = handler
	if len(compiled.Schema) == 0 {
		compiled.Schema = manifest.Schema
	}
	r.publishLocked(&compiled)
	delete(r.loadFailures, rec.Name)
	return &compiled, nil
}

// LoadFailure returns the recorded reason the last source load of name
// failed, or "".
func (r *Registry) LoadFailure(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadFailures[name]
}

// Synthesize requests source for a missing tool, registers the loaded
// handle, and persists the record.
//
// Description:
//
//	If a prior tool of the same name exists in the catalog, its parameter
//	list is passed to the back-end so the emitted signature preserves the
//	prior names and positions (backward-compatibility rule). The registry
//	update happens before the catalog save; a save failure is returned
//	wrapped in ErrSave but the in-memory registration stands, so the
//	caller can treat it as a warning.
func (r *Registry) Synthesize(ctx context.Context, name string, observed datatypes.ParameterSchema) (*datatypes.ToolRecord, error) {
	if r.backend == nil {
		return nil, fmt.Errorf("%w: %q (synthesis disabled)", datatypes.ErrUnknownTool, name)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("synthesis rate limit: %w", err)
	}

	var existing datatypes.ParameterSchema
	if r.catalog != nil {
		prior, err := r.catalog.Find(ctx, name)
		if err != nil {
			slog.Warn("catalog lookup before synthesis failed",
				slog.String("tool", name),
				slog.String("error", err.Error()),
			)
		} else if prior != nil {
			existing = prior.Schema
		}
	}

	source, err := r.backend.Synthesize(ctx, synth.Request{Name: name, Params: observed, Existing: existing})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", datatypes.ErrSynthesis, name, err)
	}
	manifest, handler, err := synth.Load(source)
	if err != nil {
		r.mu.Lock()
		r.loadFailures[name] = err.Error()
		r.mu.Unlock()
		return nil, err
	}

	rec := datatypes.ToolRecord{
		Name:        name,
		Description: fmt.Sprintf("synthesized %s tool", manifest.Family),
		Schema:      manifest.Schema,
		SourceText:  source,
		Handler:     handler,
		Provenance:  datatypes.ProvenanceSynthesized,
	}
	if err := r.Register(rec); err != nil {
		return nil, err
	}
	resolved, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	slog.Info("tool synthesized",
		slog.String("tool", name),
		slog.String("family", string(manifest.Family)),
		slog.Int("params", len(manifest.Schema)),
		slog.Bool("extended_prior", existing != nil),
	)

	if saveErr := r.persist(ctx, resolved); saveErr != nil {
		return resolved, saveErr
	}
	return resolved, nil
}

// Save persists a record and its source text to the catalog and updates
// the in-memory index.
func (r *Registry) Save(ctx context.Context, name string, handler datatypes.Handler, description string, schema datatypes.ParameterSchema, prov datatypes.Provenance) error {
	rec := datatypes.ToolRecord{
		Name:        name,
		Description: description,
		Schema:      schema,
		Handler:     handler,
		Provenance:  prov,
	}
	if err := r.Register(rec); err != nil {
		return err
	}
	resolved, err := r.Resolve(name)
	if err != nil {
		return err
	}
	return r.persist(ctx, resolved)
}

// persist writes rec to the catalog and the static mirror. Returns an
// ErrSave-wrapped error on catalog failure; mirror failures only log.
func (r *Registry) persist(ctx context.Context, rec *datatypes.ToolRecord) error {
	r.mirror(rec)
	if r.catalog == nil {
		return nil
	}
	err := r.catalog.Upsert(ctx, catalog.Record{
		Name:        rec.Name,
		Description: rec.Description,
		Schema:      rec.Schema,
		SourceText:  rec.SourceText,
		Provenance:  rec.Provenance,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
	if err != nil && !errors.Is(err, datatypes.ErrSave) {
		err = fmt.Errorf("%w: %v", datatypes.ErrSave, err)
	}
	return err
}

// mirror writes source text to the static directory for later
// inspection. Best effort.
func (r *Registry) mirror(rec *datatypes.ToolRecord) {
	if r.staticDir == "" || rec.SourceText == "" {
		return
	}
	if err := os.MkdirAll(r.staticDir, 0o755); err != nil {
		slog.Warn("static mirror mkdir failed", slog.String("error", err.Error()))
		return
	}
	path := filepath.Join(r.staticDir, rec.Name+".go.txt")
	if err := os.WriteFile(path, []byte(rec.SourceText), 0o644); err != nil {
		slog.Warn("static mirror write failed",
			slog.String("tool", rec.Name),
			slog.String("error", err.Error()),
		)
	}
}

// ExtractSource obtains the source text of a record: the stored text,
// else the static mirror, else a minimal reconstructed stub.
func (r *Registry) ExtractSource(rec *datatypes.ToolRecord) string {
	if rec == nil {
		return ""
	}
	if rec.SourceText != "" {
		return rec.SourceText
	}
	if r.staticDir != "" {
		if data, err := os.ReadFile(filepath.Join(r.staticDir, rec.Name+".go.txt")); err == nil {
			return string(data)
		}
	}
	return synth.Stub(rec.Name, rec.Schema)
}

// Delete removes name from the in-memory index and the catalog. Built-in
// tools cannot be deleted.
func (r *Registry) Delete(ctx context.Context, name string) error {
	rec := r.snap.Load().find(name)
	if rec == nil {
		return fmt.Errorf("%w: %q", datatypes.ErrUnknownTool, name)
	}
	if rec.Provenance == datatypes.ProvenanceBuiltIn {
		return fmt.Errorf("cannot delete built-in tool %q", name)
	}
	r.mu.Lock()
	r.removeLocked(name)
	delete(r.loadFailures, name)
	r.mu.Unlock()
	if r.catalog != nil {
		return r.catalog.Delete(ctx, name)
	}
	return nil
}

// Info is one row of List.
type Info struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Provenance  datatypes.Provenance      `json:"provenance"`
	Schema      datatypes.ParameterSchema `json:"parameter_schema"`
	Async       bool                      `json:"async"`
	Callable    bool                      `json:"callable"`
}

// List returns every visible record. Names shadowed by a more specific
// provenance appear once, under the winning provenance.
func (r *Registry) List() []Info {
	snap := r.snap.Load()
	seen := map[string]bool{}
	var infos []Info
	for _, prov := range lookupOrder {
		names := make([]string, 0, len(snap.byProvenance[prov]))
		for name := range snap.byProvenance[prov] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			rec := snap.byProvenance[prov][name]
			infos = append(infos, Info{
				Name:        rec.Name,
				Description: rec.Description,
				Provenance:  rec.Provenance,
				Schema:      rec.Schema,
				Async:       rec.Async,
				Callable:    rec.Callable(),
			})
		}
	}
	return infos
}

// Names returns all visible tool names, sorted. Used as the parser hint.
func (r *Registry) Names() []string {
	infos := r.List()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	sort.Strings(names)
	return names
}
