// Package checker defines the contract every type-check backend implements
// and ships the Go backend built on go/types.
//
// A Service is owned by exactly one worker. It keeps whatever incremental
// state it needs between calls; callers only describe what changed.
package checker

import (
	"context"
	"errors"
	"fmt"

	"sidecheck/internal/diag"
)

// Request describes one check round from the point of view of a worker.
type Request struct {
	// Files is the report scope: only diagnostics located in these
	// root-relative files are returned.
	Files []string
	// Changed lists files modified since the previous request. Unknown
	// files are picked up regardless.
	Changed []string
	// FullRebuild drops all incremental state before checking.
	FullRebuild bool
}

// Service type-checks a project and returns diagnostics for req.Files.
type Service interface {
	Check(ctx context.Context, req Request) ([]diag.Diagnostic, error)
}

// FaultPrefix starts the message of every diagnostic produced from a
// checker failure.
const FaultPrefix = "checker fault: "

// FaultDiagnostic turns an internal checker failure into a project-level
// error diagnostic.
func FaultDiagnostic(text string) diag.Diagnostic {
	return diag.NewEngineError(diag.EngineCheckerFault, FaultPrefix+text)
}

// Safe converts panics and errors of the wrapped service into a single
// CheckerFault diagnostic, so a faulty backend still yields a well-formed
// result. Context cancellation is returned as an error unchanged.
type Safe struct {
	Inner Service
}

func (s Safe) Check(ctx context.Context, req Request) (out []diag.Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = []diag.Diagnostic{FaultDiagnostic(fmt.Sprint(r))}
			err = nil
		}
	}()
	out, err = s.Inner.Check(ctx, req)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return []diag.Diagnostic{FaultDiagnostic(err.Error())}, nil
}

// Faulty is a Service that always panics with Message. Workers install it
// when fault injection is requested.
type Faulty struct {
	Message string
}

func (f Faulty) Check(context.Context, Request) ([]diag.Diagnostic, error) {
	panic(f.Message)
}
