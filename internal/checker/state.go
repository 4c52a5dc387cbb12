package checker

import (
	"context"
	"errors"
	"go/ast"
	"go/build"
	"go/parser"
	"go/scanner"
	"go/types"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sidecheck/internal/diag"
	"sidecheck/internal/project"
)

// fileVersion is the last observed state of one project file.
type fileVersion struct {
	Digest   project.Digest
	Size     int64
	ModTime  time.Time
	Excluded bool // build constraints exclude the file on this platform
	Syntax   *ast.File
	Diags    []diag.Diagnostic // read and syntax errors
}

// pkgState is everything remembered about one project package.
type pkgState struct {
	Dir     string
	Path    string
	Files   []string // buildable files, sorted
	Digest  project.Digest
	Imports []string // project package dirs imported, sorted

	Types       *types.Package
	Diagnostics []diag.Diagnostic
	valid       bool // Diagnostics reflect the current content
}

// refresh re-reads new and changed files, forgets deleted ones and returns
// the set of package dirs whose file contents changed.
func (g *Go) refresh(ctx context.Context, files []string, changed []string) (map[string]bool, error) {
	listed := make(map[string]struct{}, len(files))
	for _, f := range files {
		listed[f] = struct{}{}
	}
	dirty := make(map[string]bool)
	for f := range g.files {
		if _, ok := listed[f]; !ok {
			delete(g.files, f)
			dirty[project.PackageDir(f)] = true
		}
	}

	changedSet := make(map[string]struct{}, len(changed))
	for _, f := range project.NormalizeAll(g.layout.Root, changed) {
		changedSet[f] = struct{}{}
	}
	toRead := make([]string, 0, len(files))
	for _, f := range files {
		_, known := g.files[f]
		_, touched := changedSet[f]
		if !known || touched {
			toRead = append(toRead, f)
		}
	}
	if len(toRead) == 0 {
		return dirty, nil
	}

	jobs := g.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	// slots are per index, no locking needed; g.files is only read here
	results := make([]*fileVersion, len(toRead))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(min(jobs, len(toRead)))
	for i, f := range toRead {
		old := g.files[f]
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			results[i] = g.readFile(f, old)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, f := range toRead {
		fv := results[i]
		old, ok := g.files[f]
		if ok && old == fv {
			continue
		}
		if ok && fv.Syntax != nil {
			g.reparsed++
		}
		g.files[f] = fv
		dirty[project.PackageDir(f)] = true
	}
	g.stats.FilesRead = len(toRead)
	return dirty, nil
}

// readFile loads, digests and parses one file. When the digest matches old,
// old is returned as is.
func (g *Go) readFile(rel string, old *fileVersion) *fileVersion {
	abs := g.layout.Abs(rel)
	src, err := os.ReadFile(abs)
	if err != nil {
		msg := "cannot read file: " + err.Error()
		return &fileVersion{
			Digest: project.DigestBytes([]byte(msg)),
			Diags:  []diag.Diagnostic{diag.NewError(diag.IOLoadFileError, rel, 1, 1, msg)},
		}
	}
	fv := &fileVersion{Digest: project.DigestBytes(src), Size: int64(len(src))}
	if st, err := os.Stat(abs); err == nil {
		fv.ModTime = st.ModTime()
	}
	if old != nil && old.Digest == fv.Digest {
		return old
	}
	if ok, err := build.Default.MatchFile(filepath.Dir(abs), filepath.Base(abs)); err == nil && !ok {
		fv.Excluded = true
		return fv
	}

	syn, err := parser.ParseFile(g.fset, abs, src, parser.AllErrors|parser.SkipObjectResolution)
	fv.Syntax = syn
	var list scanner.ErrorList
	switch {
	case errors.As(err, &list):
		for _, e := range list {
			fv.Diags = append(fv.Diags, diag.NewError(diag.SynError, rel, e.Pos.Line, e.Pos.Column, e.Msg))
		}
	case err != nil:
		fv.Diags = append(fv.Diags, diag.NewError(diag.SynError, rel, 1, 1, err.Error()))
	}
	return fv
}

// syncPackages regroups the known files into packages. It returns the dirs
// whose content changed and the dirs that appeared or disappeared.
func (g *Go) syncPackages(dirtyDirs map[string]bool) (changed, presence []string) {
	byDir := make(map[string][]string)
	for f, fv := range g.files {
		if fv.Excluded {
			continue
		}
		dir := project.PackageDir(f)
		byDir[dir] = append(byDir[dir], f)
	}

	for dir := range g.pkgs {
		if _, ok := byDir[dir]; !ok {
			delete(g.pkgs, dir)
			presence = append(presence, dir)
		}
	}

	for dir, files := range byDir {
		slices.Sort(files)
		st, known := g.pkgs[dir]
		if known && !dirtyDirs[dir] && slices.Equal(st.Files, files) {
			continue
		}
		if !known {
			st = &pkgState{Dir: dir, Path: g.layout.ImportPath(dir)}
			g.pkgs[dir] = st
			presence = append(presence, dir)
		}
		st.Files = files
		st.Digest = g.packageDigest(files)
		st.Imports = g.projectImports(files)
		changed = append(changed, dir)
	}
	slices.Sort(changed)
	slices.Sort(presence)
	return changed, presence
}

func (g *Go) packageDigest(files []string) project.Digest {
	deps := make([]project.Digest, len(files))
	for i, f := range files {
		deps[i] = g.files[f].Digest
	}
	return project.Combine(project.DigestBytes([]byte(strings.Join(files, "\n"))), deps...)
}

// projectImports returns the dirs of project packages imported by files.
func (g *Go) projectImports(files []string) []string {
	var out []string
	for _, f := range files {
		syn := g.files[f].Syntax
		if syn == nil {
			continue
		}
		for _, spec := range syn.Imports {
			path, err := unquoteImport(spec)
			if err != nil {
				continue
			}
			if dir, ok := g.layout.Dir(path); ok {
				out = append(out, dir)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func unquoteImport(spec *ast.ImportSpec) (string, error) {
	if spec.Path == nil {
		return "", errors.New("import without path")
	}
	return strconv.Unquote(spec.Path.Value)
}
