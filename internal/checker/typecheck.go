package checker

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"

	"sidecheck/internal/diag"
	"sidecheck/internal/trace"
)

var errImportCycle = errors.New("import cycle not allowed")

// checkPackage parses nothing: syntax trees were produced by refresh. It
// type-checks st against the current types of its project dependencies
// and replaces st's diagnostics.
func (g *Go) checkPackage(ctx context.Context, pl *plan, st *pkgState) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopePackage, "pkg:"+st.Path, trace.ParentFromContext(ctx))
	defer span.End("")

	var (
		out       []diag.Diagnostic
		syntax    []*ast.File
		syntaxErr bool
	)
	importSpecs := make(map[token.Pos]string)
	for _, f := range st.Files {
		fv := g.files[f]
		if len(fv.Diags) > 0 {
			syntaxErr = true
			out = append(out, fv.Diags...)
		}
		if fv.Syntax == nil {
			continue
		}
		syntax = append(syntax, fv.Syntax)
		for _, spec := range fv.Syntax.Imports {
			if path, err := unquoteImport(spec); err == nil {
				importSpecs[spec.Path.Pos()] = path
			}
		}
	}

	imp := &projectImporter{g: g, pl: pl, from: st, failed: make(map[string]string)}
	var typeErrs []types.Error
	conf := types.Config{
		Importer:    imp,
		Sizes:       g.sizes,
		GoVersion:   g.goVersion(),
		FakeImportC: true,
		Error: func(err error) {
			var te types.Error
			if errors.As(err, &te) {
				typeErrs = append(typeErrs, te)
			}
		},
	}
	info := &types.Info{
		Types:        make(map[ast.Expr]types.TypeAndValue),
		Defs:         make(map[*ast.Ident]types.Object),
		Uses:         make(map[*ast.Ident]types.Object),
		Implicits:    make(map[ast.Node]types.Object),
		Selections:   make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:       make(map[ast.Node]*types.Scope),
		Instances:    make(map[*ast.Ident]types.Instance),
		FileVersions: make(map[*ast.File]string),
	}
	// the error is already collected through conf.Error
	pkg, _ := conf.Check(st.Path, g.fset, syntax, info)
	st.Types = pkg

	// follow-up type errors on a broken syntax tree are noise; the go tool
	// stops after syntax errors as well
	if !syntaxErr {
		for _, te := range typeErrs {
			out = append(out, g.typeDiagnostic(pl, st, imp, importSpecs, te))
		}
	}

	if g.opts.EnableLint && !syntaxErr && len(typeErrs) == 0 && pkg != nil {
		findings, err := runLint(g.fset, syntax, pkg, info, g.sizes)
		if err != nil {
			out = append(out, diag.NewError(diag.EngineCheckerFault, st.Files[0], 1, 1, FaultPrefix+err.Error()).
				WithSource(diag.SourceLint))
		}
		for _, f := range findings {
			pos := g.fset.Position(f.pos)
			out = append(out, diag.New(diag.SevWarning, diag.LintFinding, g.rel(pos.Filename), pos.Line, pos.Column,
				f.analyzer+": "+f.message).WithSource(diag.SourceLint))
		}
	}

	st.Diagnostics = out
	st.valid = true
	span.WithExtra("errors", fmt.Sprint(len(typeErrs)))
}

func (g *Go) typeDiagnostic(pl *plan, st *pkgState, imp *projectImporter, specs map[token.Pos]string, te types.Error) diag.Diagnostic {
	code := diag.TypeError
	if te.Soft {
		code = diag.TypeSoftError
	}
	msg := te.Msg
	if path, ok := specs[te.Pos]; ok {
		if dir, inProject := g.layout.Dir(path); inProject && pl.sameCycle(st.Dir, dir) {
			code = diag.TypeImportCycle
			msg = g.cycleMessage(pl, st.Dir, dir)
		} else if reason, failed := imp.failed[path]; failed {
			code = diag.TypeMissingImport
			msg = fmt.Sprintf("could not import %s: %s", path, reason)
		}
	}

	pos := te.Fset.Position(te.Pos)
	if !pos.IsValid() {
		// attach to the first file so exactly one owner reports it
		return diag.NewError(code, st.Files[0], 1, 1, msg)
	}
	return diag.NewError(code, g.rel(pos.Filename), pos.Line, pos.Column, msg)
}

func (g *Go) cycleMessage(pl *plan, from, to string) string {
	dirs := pl.cyclePath(from, to)
	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = g.layout.ImportPath(d)
	}
	return "import cycle not allowed: " + strings.Join(paths, " -> ")
}

// projectImporter resolves project imports to already checked packages and
// everything else through the source importer.
type projectImporter struct {
	g      *Go
	pl     *plan
	from   *pkgState
	failed map[string]string // import path -> reason
}

func (imp *projectImporter) Import(path string) (*types.Package, error) {
	return imp.ImportFrom(path, imp.g.layout.Abs(imp.from.Dir), 0)
}

// ImportFrom resolves non-project imports relative to the importing
// package's directory so module lookup does not depend on the process cwd.
func (imp *projectImporter) ImportFrom(path, srcDir string, mode types.ImportMode) (*types.Package, error) {
	if dir, ok := imp.g.layout.Dir(path); ok {
		if imp.pl.sameCycle(imp.from.Dir, dir) {
			return nil, errImportCycle
		}
		st, ok := imp.g.pkgs[dir]
		if !ok {
			imp.failed[path] = "no buildable Go files in " + dir
			return nil, errors.New(imp.failed[path])
		}
		if st.Types == nil {
			return nil, fmt.Errorf("package %s has not been checked", path)
		}
		return st.Types, nil
	}
	if !filepath.IsAbs(srcDir) {
		srcDir = imp.g.layout.Abs(imp.from.Dir)
	}
	var (
		pkg *types.Package
		err error
	)
	if from, ok := imp.g.std.(types.ImporterFrom); ok {
		pkg, err = from.ImportFrom(path, srcDir, mode)
	} else {
		pkg, err = imp.g.std.Import(path)
	}
	if err != nil {
		reason, _, _ := strings.Cut(err.Error(), "\n")
		imp.failed[path] = reason
		return nil, err
	}
	return pkg, nil
}
