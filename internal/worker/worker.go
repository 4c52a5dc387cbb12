// Package worker hosts one checker.Service behind a wire.Conn. A worker
// answers every CheckRequest with exactly one CheckResult, whatever the
// checker does.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"sidecheck/internal/checker"
	"sidecheck/internal/trace"
	"sidecheck/internal/wire"
)

// FaultEnv makes ServiceFromEnv install a checker that always panics with
// the variable's value.
const FaultEnv = "SIDECHECK_INJECT_FAULT"

type Options struct {
	WorkerID int
	PID      int // reported in Ready; defaults to os.Getpid()
	Version  string
}

// Serve runs the worker protocol over conn until Shutdown, end of input or
// ctx cancellation. newService is called once before Ready is sent. If it
// fails the worker still comes up and answers each request with a fault,
// so the coordinator reports the failure instead of waiting forever.
func Serve(ctx context.Context, conn io.ReadWriter, newService func() (checker.Service, error), opts Options) error {
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	tr := trace.FromContext(ctx)
	wc := wire.NewConn(conn, conn)
	id := strconv.Itoa(opts.WorkerID)

	svc, initErr := newService()
	if initErr != nil {
		trace.Errorf(tr, trace.ScopeWorker, "init", "worker %d: %v", opts.WorkerID, initErr)
	} else {
		svc = checker.Safe{Inner: svc}
	}
	if err := wc.Send(wire.ReadyMsg(wire.Ready{WorkerID: opts.WorkerID, PID: opts.PID, Version: opts.Version})); err != nil {
		return err
	}
	trace.Point(tr, trace.ScopeWorker, "ready", "", "worker", id, "pid", strconv.Itoa(opts.PID))

	msgs := make(chan received, 1)
	done := make(chan struct{})
	defer close(done)
	go readLoop(wc, msgs, done)

	for {
		var in received
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in = <-msgs:
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				trace.Point(tr, trace.ScopeWorker, "eof", "coordinator closed the stream", "worker", id)
				return nil
			}
			return fmt.Errorf("worker %d: receive: %w", opts.WorkerID, in.err)
		}

		switch in.env.Kind {
		case wire.KindShutdown:
			trace.Point(tr, trace.ScopeWorker, "shutdown", "", "worker", id)
			return nil
		case wire.KindCheckRequest:
			res := handle(ctx, svc, initErr, *in.env.Request, opts.WorkerID)
			if err := wc.Send(wire.ResultMsg(res)); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		default:
			trace.Errorf(tr, trace.ScopeWorker, "unexpected", "worker %d: ignoring %s", opts.WorkerID, in.env.Kind)
		}
	}
}

type received struct {
	env wire.Envelope
	err error
}

func readLoop(wc *wire.Conn, out chan<- received, done <-chan struct{}) {
	for {
		env, err := wc.Receive()
		select {
		case out <- received{env: env, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func handle(ctx context.Context, svc checker.Service, initErr error, req wire.CheckRequest, workerID int) wire.CheckResult {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeWorker, "request", 0).
		WithExtra("id", strconv.FormatUint(req.RequestID, 10)).
		WithExtra("worker", strconv.Itoa(workerID)).
		WithExtra("files", strconv.Itoa(len(req.Files)))
	ctx = trace.WithSpan(ctx, span)
	started := time.Now()

	res := wire.CheckResult{RequestID: req.RequestID, WorkerID: workerID}
	if initErr != nil {
		res.Fault = "initialisation failed: " + initErr.Error()
		span.End("init failed")
		return res
	}
	diags, err := svc.Check(ctx, checker.Request{Files: req.Files, Changed: req.Changed, FullRebuild: req.FullRebuild})
	res.Elapsed = time.Since(started)
	if err != nil {
		res.Fault = err.Error()
		span.End("fault")
		return res
	}
	res.Completed = true
	res.Diagnostics = diags
	span.WithExtra("diagnostics", strconv.Itoa(len(diags))).End("")
	return res
}

// ServiceFromEnv returns build unless FaultEnv is set, in which case the
// worker gets a checker.Faulty.
func ServiceFromEnv(build func() (checker.Service, error)) func() (checker.Service, error) {
	if msg, ok := os.LookupEnv(FaultEnv); ok && msg != "" {
		return func() (checker.Service, error) { return checker.Faulty{Message: msg}, nil }
	}
	return build
}
