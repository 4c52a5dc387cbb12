// Package wire defines the messages exchanged between the coordinator and
// its workers and the framing used to send them over a byte stream.
package wire

import (
	"time"

	"sidecheck/internal/diag"
)

type Kind uint8

const (
	KindReady Kind = iota + 1
	KindCheckRequest
	KindCheckResult
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "Ready"
	case KindCheckRequest:
		return "CheckRequest"
	case KindCheckResult:
		return "CheckResult"
	case KindShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Ready is the first message of a worker, sent once its checker is
// initialised.
type Ready struct {
	WorkerID int    `msgpack:"worker"`
	PID      int    `msgpack:"pid"`
	Version  string `msgpack:"version,omitempty"`
}

// CheckRequest asks one worker to check its partition.
type CheckRequest struct {
	RequestID   uint64   `msgpack:"id"`
	Files       []string `msgpack:"files"`
	Changed     []string `msgpack:"changed,omitempty"`
	FullRebuild bool     `msgpack:"rebuild,omitempty"`
}

// CheckResult answers exactly one CheckRequest. Completed is false when the
// worker could not run its checker at all; Fault then says why.
type CheckResult struct {
	RequestID   uint64            `msgpack:"id"`
	WorkerID    int               `msgpack:"worker"`
	Diagnostics []diag.Diagnostic `msgpack:"diags,omitempty"`
	Completed   bool              `msgpack:"completed"`
	Fault       string            `msgpack:"fault,omitempty"`
	Elapsed     time.Duration     `msgpack:"elapsed"`
}

// Envelope carries one message. Exactly the field matching Kind is set;
// Shutdown has no payload.
type Envelope struct {
	Kind    Kind          `msgpack:"kind"`
	Ready   *Ready        `msgpack:"ready,omitempty"`
	Request *CheckRequest `msgpack:"req,omitempty"`
	Result  *CheckResult  `msgpack:"res,omitempty"`
}

func ReadyMsg(r Ready) Envelope { return Envelope{Kind: KindReady, Ready: &r} }

func RequestMsg(r CheckRequest) Envelope { return Envelope{Kind: KindCheckRequest, Request: &r} }

func ResultMsg(r CheckResult) Envelope { return Envelope{Kind: KindCheckResult, Result: &r} }

func ShutdownMsg() Envelope { return Envelope{Kind: KindShutdown} }
