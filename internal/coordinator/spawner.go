package coordinator

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"sidecheck/internal/checker"
	"sidecheck/internal/worker"
)

// WorkerSpec is everything a worker needs to build its checker.
type WorkerSpec struct {
	ID                int
	Root              string
	EnableLint        bool
	CacheDir          string
	FullRebuildOnInit bool
}

func (s WorkerSpec) CheckerOptions() checker.Options {
	return checker.Options{
		Root:              s.Root,
		EnableLint:        s.EnableLint,
		CacheDir:          s.CacheDir,
		FullRebuildOnInit: s.FullRebuildOnInit,
	}
}

// NewGoService builds the default checker for spec.
func NewGoService(spec WorkerSpec) (checker.Service, error) {
	return checker.New(spec.CheckerOptions())
}

// Process is a running worker seen from the coordinator.
type Process interface {
	io.Reader // messages from the worker
	io.Writer // messages to the worker

	// CloseInput signals end of input; the worker exits after draining it.
	CloseInput() error
	// Wait blocks until the worker has exited.
	Wait() error
	Kill() error
	PID() int
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, spec WorkerSpec) (Process, error)
}

// InProcessSpawner runs each worker on goroutines inside the current
// process, connected through io.Pipe. Workers still share nothing.
type InProcessSpawner struct {
	// NewService builds a worker's checker; nil means NewGoService.
	NewService func(spec WorkerSpec) (checker.Service, error)
	Version    string
}

var errKilled = errors.New("worker killed")

func (s InProcessSpawner) Spawn(ctx context.Context, spec WorkerSpec) (Process, error) {
	toWorkerR, toWorkerW := io.Pipe()
	fromWorkerR, fromWorkerW := io.Pipe()

	// the worker outlives the spawn call but keeps its tracer
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &inProcess{
		r:      fromWorkerR,
		w:      toWorkerW,
		toR:    toWorkerR,
		fromW:  fromWorkerW,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	build := s.NewService
	if build == nil {
		build = NewGoService
	}
	newService := func() (checker.Service, error) { return build(spec) }

	go func() {
		defer close(p.done)
		p.err = worker.Serve(wctx, duplex{toWorkerR, fromWorkerW}, newService, worker.Options{
			WorkerID: spec.ID,
			Version:  s.Version,
		})
		_ = fromWorkerW.Close()
		_ = toWorkerR.Close()
	}()
	return p, nil
}

type duplex struct {
	io.Reader
	io.Writer
}

type inProcess struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	toR    *io.PipeReader
	fromW  *io.PipeWriter
	cancel context.CancelFunc

	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (p *inProcess) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *inProcess) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *inProcess) CloseInput() error           { return p.w.Close() }
func (p *inProcess) PID() int                    { return os.Getpid() }

func (p *inProcess) Wait() error {
	<-p.done
	if errors.Is(p.err, context.Canceled) {
		return errKilled
	}
	return p.err
}

func (p *inProcess) Kill() error {
	p.killOnce.Do(func() {
		p.cancel()
		_ = p.toR.CloseWithError(errKilled)
		_ = p.fromW.CloseWithError(errKilled)
	})
	return nil
}
