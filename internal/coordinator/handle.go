package coordinator

import (
	"slices"

	"sidecheck/internal/wire"
)

type Status uint8

const (
	StatusStarting Status = iota + 1
	StatusReady
	StatusChecking
	StatusCrashed
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusChecking:
		return "checking"
	case StatusCrashed:
		return "crashed"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// WorkerHandle is a snapshot of one worker.
type WorkerHandle struct {
	ID       int
	PID      int
	Status   Status
	Assigned []string // partition of the most recent request
	InFlight uint64   // request the worker is busy with, 0 when idle
}

// handle is the loop-owned state of a worker slot. Only the reader and
// sender goroutines touch conn and proc.
type handle struct {
	WorkerHandle
	proc    Process
	conn    *wire.Conn
	outbox  chan wire.Envelope
	pending *wire.CheckRequest // next request, sent when the worker is idle
	carry   carry              // changes the worker has not been told about
	lostMsg string
}

// carry collects changes of requests that never reached a worker.
type carry struct {
	changed []string
	rebuild bool
}

func (c *carry) add(changed []string, rebuild bool) {
	c.changed = mergeSorted(c.changed, changed)
	c.rebuild = c.rebuild || rebuild
}

func (c *carry) take() carry {
	out := *c
	*c = carry{}
	return out
}

func mergeSorted(a, b []string) []string {
	if len(a) == 0 {
		return slices.Clone(b)
	}
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func newHandle(id int, proc Process) *handle {
	return &handle{
		WorkerHandle: WorkerHandle{ID: id, PID: proc.PID(), Status: StatusStarting},
		proc:         proc,
		conn:         wire.NewConn(proc, proc),
		outbox:       make(chan wire.Envelope, 2),
	}
}

func (h *handle) snapshot() WorkerHandle {
	s := h.WorkerHandle
	s.Assigned = slices.Clone(h.Assigned)
	return s
}

func (h *handle) alive() bool {
	return h.Status != StatusCrashed && h.Status != StatusExited
}

// idle reports whether a request can be sent right away.
func (h *handle) idle() bool {
	return h.Status == StatusReady && h.InFlight == 0
}
