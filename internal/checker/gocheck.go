package checker

import (
	"context"
	"fmt"
	"go/importer"
	"go/token"
	"go/types"
	"go/version"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"sidecheck/internal/diag"
	"sidecheck/internal/project"
	"sidecheck/internal/trace"
)

// Options configures the Go backend.
type Options struct {
	Root              string
	EnableLint        bool
	CacheDir          string // empty disables the disk cache
	FullRebuildOnInit bool   // ignore disk cache entries on the first request
	Jobs              int    // concurrent file reads; <= 0 means GOMAXPROCS
}

// Stats describes the work done by the last Check call.
type Stats struct {
	FilesRead   int
	Invalidated int // packages dropped by the dirty closure
	Checked     int // packages type-checked
	CacheHits   int // packages served from the disk cache
}

// Go type-checks a Go project with go/types and keeps the results of
// every package between requests. Not safe for concurrent use; a worker
// owns exactly one instance.
type Go struct {
	opts   Options
	layout project.Layout
	sizes  types.Sizes
	cache  *DiskCache

	fset  *token.FileSet
	std   types.Importer
	files map[string]*fileVersion
	pkgs  map[string]*pkgState

	requests int
	reparsed int // files parsed again into fset since the last reset
	stats    Stats
}

// reparseLimit bounds fset growth: a FileSet never forgets a file, so once
// this many files have been re-parsed the next Check starts from fresh
// state. The disk cache stays valid across such a reset.
var reparseLimit = 4096

// New resolves the project layout and prepares empty state. No files are
// read until the first Check.
func New(opts Options) (*Go, error) {
	layout, err := project.LoadLayout(opts.Root)
	if err != nil {
		return nil, err
	}
	g := &Go{
		opts:   opts,
		layout: layout,
		sizes:  types.SizesFor("gc", runtime.GOARCH),
	}
	if opts.CacheDir != "" {
		if g.cache, err = OpenDiskCache(opts.CacheDir); err != nil {
			return nil, err
		}
	}
	g.reset()
	return g, nil
}

func (g *Go) Layout() project.Layout { return g.layout }

// LastStats returns the counters of the most recent request.
func (g *Go) LastStats() Stats { return g.stats }

func (g *Go) reset() {
	g.reparsed = 0
	g.fset = token.NewFileSet()
	g.std = importer.ForCompiler(g.fset, "source", nil)
	g.files = make(map[string]*fileVersion)
	g.pkgs = make(map[string]*pkgState)
}

func (g *Go) Check(ctx context.Context, req Request) ([]diag.Diagnostic, error) {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeWorker, "typecheck", trace.ParentFromContext(ctx))
	defer span.End("")
	ctx = trace.WithSpan(ctx, span)

	g.stats = Stats{}
	useCache := g.cache != nil
	if g.requests == 0 && g.opts.FullRebuildOnInit {
		useCache = false
	}
	g.requests++
	if req.FullRebuild {
		g.reset()
		useCache = false
	} else if g.reparsed >= reparseLimit {
		trace.Point(tr, trace.ScopeWorker, "fset_reset", "", "reparsed", strconv.Itoa(g.reparsed))
		g.reset()
	}

	files, err := project.ListGoFiles(g.layout.Root)
	if err != nil {
		return nil, err
	}
	dirty, err := g.refresh(ctx, files, req.Changed)
	if err != nil {
		return nil, err
	}
	changed, presence := g.syncPackages(dirty)
	pl := g.buildPlan()
	g.stats.Invalidated = g.invalidate(pl, changed, presence)
	trace.Point(tr, trace.ScopeWorker, "refresh", "",
		"read", strconv.Itoa(g.stats.FilesRead),
		"changed", strconv.Itoa(len(changed)),
		"invalidated", strconv.Itoa(g.stats.Invalidated))

	scope := make(map[string]struct{}, len(req.Files))
	var owned []string
	for _, f := range req.Files {
		scope[f] = struct{}{}
		if fv, ok := g.files[f]; ok && !fv.Excluded {
			owned = append(owned, project.PackageDir(f))
		}
	}
	slices.Sort(owned)
	owned = slices.Compact(owned)

	if err := g.checkPackages(ctx, pl, owned, useCache); err != nil {
		return nil, err
	}

	bag := diag.NewBag()
	for _, dir := range owned {
		for _, d := range g.pkgs[dir].Diagnostics {
			if _, ok := scope[d.File]; ok {
				bag.Add(d)
			}
		}
	}
	bag.Sort()
	bag.Dedup()
	span.WithExtra("packages", strconv.Itoa(len(owned))).
		WithExtra("checked", strconv.Itoa(g.stats.Checked)).
		WithExtra("diagnostics", strconv.Itoa(bag.Len()))
	return bag.Items(), nil
}

// checkPackages brings the diagnostics of every owned package up to date.
// Packages whose types a re-checked package needs are checked too, always
// dependencies before importers.
func (g *Go) checkPackages(ctx context.Context, pl *plan, owned []string, useCache bool) error {
	var keys map[string]project.Digest
	if g.cache != nil {
		keys = g.cacheKeys(pl)
	}

	need := make(map[string]bool)
	for _, dir := range owned {
		st := g.pkgs[dir]
		if st.valid {
			continue
		}
		if useCache && g.loadCached(st, keys[dir]) {
			g.stats.CacheHits++
			continue
		}
		need[dir] = true
	}
	// importers come last in order; walk backwards to push the need for
	// types down to dependencies
	for i := len(pl.order) - 1; i >= 0; i-- {
		dir := pl.order[i]
		if !need[dir] {
			continue
		}
		for _, dep := range pl.acyclicImports(dir, g.pkgs[dir].Imports) {
			if st, ok := g.pkgs[dep]; ok && st.Types == nil {
				need[dep] = true
			}
		}
	}

	for _, dir := range pl.order {
		if !need[dir] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st := g.pkgs[dir]
		g.checkPackage(ctx, pl, st)
		g.stats.Checked++
		if g.cache != nil {
			payload := &DiskPayload{Package: st.Path, Files: st.Files, Diagnostics: st.Diagnostics}
			if err := g.cache.Put(keys[dir], payload); err != nil {
				trace.Errorf(trace.FromContext(ctx), trace.ScopePackage, "cache-put", "%s: %v", st.Path, err)
			}
		}
	}
	return nil
}

// cacheKeys derives a key per package from its content, the keys of its
// project dependencies, its import cycle and the lint setting.
func (g *Go) cacheKeys(pl *plan) map[string]project.Digest {
	keys := make(map[string]project.Digest, len(pl.order))
	for _, dir := range pl.order {
		st := g.pkgs[dir]
		imports := pl.acyclicImports(dir, st.Imports)
		deps := make([]project.Digest, 0, len(imports)+1)
		for _, dep := range imports {
			deps = append(deps, keys[dep])
		}
		extra := fmt.Sprintf("lint=%t go=%s", g.opts.EnableLint, g.layout.GoVersion)
		for _, dep := range st.Imports {
			if pl.sameCycle(dir, dep) {
				extra += " cycle=" + dep
			}
		}
		deps = append(deps, project.DigestBytes([]byte(extra)))
		keys[dir] = project.Combine(st.Digest, deps...)
	}
	return keys
}

func (g *Go) loadCached(st *pkgState, key project.Digest) bool {
	payload, ok, err := g.cache.Get(key)
	if err != nil || !ok {
		return false
	}
	st.Diagnostics = payload.Diagnostics
	st.valid = true
	return true
}

// rel converts a position filename back to the project-relative form.
func (g *Go) rel(filename string) string {
	r, err := filepath.Rel(g.layout.Root, filename)
	if err != nil {
		return filepath.ToSlash(filename)
	}
	return filepath.ToSlash(r)
}

func (g *Go) goVersion() string {
	if g.layout.GoVersion == "" {
		return ""
	}
	return version.Lang("go" + g.layout.GoVersion)
}
