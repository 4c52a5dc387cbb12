package trace

import (
	"sync/atomic"
	"time"
)

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat // periodic liveness signal
	KindError     // passes every level except off
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
	KindError:     "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope indicates the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeSession Scope = iota + 1 // CLI command, coordinator lifetime
	ScopeRequest                  // one check request across the pool
	ScopeWorker                   // per-worker messages
	ScopePackage                  // per-package type checking
)

var scopeNames = [...]string{
	ScopeSession: "session",
	ScopeRequest: "request",
	ScopeWorker:  "worker",
	ScopePackage: "package",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // stamped by the sink, monotonic per process
	Kind     Kind
	Scope    Scope
	Origin   string // process that emitted the event, "" for the coordinator
	SpanID   uint64
	ParentID uint64 // 0 for root spans
	Name     string // e.g. "request", "pool_start", "pkg:example.com/m/a"
	Detail   string
	Extra    map[string]string
}

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func nextSeq() uint64 { return seqCounter.Add(1) }

func nextSpanID() uint64 { return spanCounter.Add(1) }
