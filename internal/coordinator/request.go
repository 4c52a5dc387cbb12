package coordinator

import (
	"context"
	"errors"
	"time"

	"sidecheck/internal/diag"
	"sidecheck/internal/observ"
	"sidecheck/internal/trace"
	"sidecheck/internal/wire"
)

var (
	// ErrSuperseded resolves a request replaced by a newer Check.
	ErrSuperseded = errors.New("check superseded by a newer request")
	// ErrClosed is returned once the coordinator is closed.
	ErrClosed = errors.New("coordinator closed")
	// ErrBusy is returned by Restart while a request or a restart is running.
	ErrBusy = errors.New("coordinator busy")
)

// Report is the outcome of one request.
type Report struct {
	RequestID   uint64
	Diagnostics []diag.Diagnostic
	// HasBlockingErrors is true when any diagnostic is an error. A failed
	// request always has one.
	HasBlockingErrors bool
	// Failed is set when the request could not complete (worker lost,
	// timeout); Diagnostics then describe the failure.
	Failed  bool
	Timings observ.Report
}

// Future resolves once its request completes, fails or is superseded.
type Future struct {
	done   chan struct{}
	report Report
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(r Report, err error) {
	f.report = r
	f.err = err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the request resolves or ctx ends. Cancelling ctx does
// not cancel the request.
func (f *Future) Wait(ctx context.Context) (Report, error) {
	select {
	case <-f.done:
		return f.report, f.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

type reqState uint8

const (
	stateAwaiting reqState = iota + 1
	stateComplete
	stateFailed
	stateSuperseded
)

// request is one dispatch round: dispatched -> awaiting(n) -> complete | failed.
type request struct {
	id       uint64
	fut      *Future
	state    reqState
	awaiting int
	replied  map[int]bool
	results  []wire.CheckResult
	timer    *time.Timer
	tm       *observ.Timer
	total    int // timer phase covering the whole request
	span     *trace.Span
}

func (r *request) timeout() <-chan time.Time {
	if r == nil || r.state != stateAwaiting || r.timer == nil {
		return nil
	}
	return r.timer.C
}

func (r *request) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
}
