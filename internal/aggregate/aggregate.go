// Package aggregate merges the results of all workers for one request into
// the final, canonically ordered diagnostic list.
package aggregate

import (
	"sidecheck/internal/checker"
	"sidecheck/internal/diag"
	"sidecheck/internal/wire"
)

// Aggregate concatenates completed results, turns faulted results into a
// CheckerFault diagnostic, applies the reportFiles allow-list, drops
// duplicates and sorts. The output does not depend on the order of results
// or on how files were spread over workers.
//
// Results that are neither completed nor faulted carry no information and
// are skipped.
func Aggregate(results []wire.CheckResult, filter *diag.FileFilter) []diag.Diagnostic {
	bag := diag.NewBag()
	for _, r := range results {
		switch {
		case r.Completed:
			bag.AddAll(r.Diagnostics)
		case r.Fault != "":
			bag.Add(checker.FaultDiagnostic(r.Fault))
		}
	}
	bag.Filter(func(d diag.Diagnostic) bool { return filter.Allows(d.File) })
	bag.Sort()
	bag.Dedup()
	return bag.Items()
}

// HasBlockingErrors reports whether any diagnostic is an error.
func HasBlockingErrors(ds []diag.Diagnostic) bool {
	for _, d := range ds {
		if d.IsError() {
			return true
		}
	}
	return false
}
