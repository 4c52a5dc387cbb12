package checker

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"os"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/assign"
	"golang.org/x/tools/go/analysis/passes/atomic"
	"golang.org/x/tools/go/analysis/passes/bools"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/nilfunc"
	"golang.org/x/tools/go/analysis/passes/shift"
	"golang.org/x/tools/go/analysis/passes/stringintconv"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
)

// Analyzers is the lint suite. None of them exchange facts across
// packages, so every package can be linted on its own.
var Analyzers = []*analysis.Analyzer{
	assign.Analyzer,
	atomic.Analyzer,
	bools.Analyzer,
	copylock.Analyzer,
	nilfunc.Analyzer,
	shift.Analyzer,
	stringintconv.Analyzer,
	unreachable.Analyzer,
	unusedresult.Analyzer,
}

type lintFinding struct {
	analyzer string
	pos      token.Pos
	message  string
}

type lintRunner struct {
	pass    analysis.Pass // template
	results map[*analysis.Analyzer]any
	out     []lintFinding
}

// runLint runs Analyzers over one type-checked package.
func runLint(fset *token.FileSet, files []*ast.File, pkg *types.Package, info *types.Info, sizes types.Sizes) ([]lintFinding, error) {
	r := &lintRunner{
		pass: analysis.Pass{
			Fset:       fset,
			Files:      files,
			Pkg:        pkg,
			TypesInfo:  info,
			TypesSizes: sizes,
			ReadFile:   os.ReadFile,

			ImportObjectFact:  func(types.Object, analysis.Fact) bool { return false },
			ImportPackageFact: func(*types.Package, analysis.Fact) bool { return false },
			ExportObjectFact:  func(types.Object, analysis.Fact) {},
			ExportPackageFact: func(analysis.Fact) {},
			AllObjectFacts:    func() []analysis.ObjectFact { return nil },
			AllPackageFacts:   func() []analysis.PackageFact { return nil },
		},
		results: make(map[*analysis.Analyzer]any),
	}
	for _, a := range Analyzers {
		if _, err := r.run(a); err != nil {
			return r.out, err
		}
	}
	return r.out, nil
}

func (r *lintRunner) run(a *analysis.Analyzer) (any, error) {
	if res, ok := r.results[a]; ok {
		return res, nil
	}
	resultOf := make(map[*analysis.Analyzer]any, len(a.Requires))
	for _, req := range a.Requires {
		res, err := r.run(req)
		if err != nil {
			return nil, err
		}
		resultOf[req] = res
	}

	pass := r.pass
	pass.Analyzer = a
	pass.ResultOf = resultOf
	pass.Report = func(d analysis.Diagnostic) {
		r.out = append(r.out, lintFinding{analyzer: a.Name, pos: d.Pos, message: d.Message})
	}
	res, err := a.Run(&pass)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w", a.Name, err)
	}
	r.results[a] = res
	return res, nil
}
