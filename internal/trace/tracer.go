package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Tracer receives events. Implementations are safe for concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	// Enabled is false when Level is LevelOff.
	Enabled() bool
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards everything.
var Nop Tracer = nopTracer{}

// tagged stamps an origin on events that do not carry one yet.
type tagged struct {
	Tracer
	origin string
}

// Tagged returns a tracer that labels every event with origin, so the
// trace lines of several worker processes sharing one stderr stay apart.
func Tagged(t Tracer, origin string) Tracer {
	if t == nil || !t.Enabled() || origin == "" {
		return t
	}
	return tagged{Tracer: t, origin: origin}
}

func (t tagged) Emit(ev *Event) {
	if ev.Origin == "" {
		ev.Origin = t.origin
	}
	t.Tracer.Emit(ev)
}

func (t tagged) Ring() *RingTracer { return RingOf(t.Tracer) }

// RingOf digs the ring buffer out of t, or returns nil.
func RingOf(t Tracer) *RingTracer {
	if r, ok := t.(interface{ Ring() *RingTracer }); ok {
		return r.Ring()
	}
	return nil
}

// StorageMode determines where events are kept.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as they happen
	ModeRing                          // last N kept in memory
	ModeBoth
)

var modeNames = map[string]StorageMode{"stream": ModeStream, "ring": ModeRing, "both": ModeBoth}

func (m StorageMode) String() string {
	for name, v := range modeNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

// ParseMode converts a flag value to a StorageMode.
func ParseMode(s string) (StorageMode, error) {
	if m, ok := modeNames[strings.ToLower(s)]; ok {
		return m, nil
	}
	return ModeRing, fmt.Errorf("invalid storage mode: %q (expected: stream|ring|both)", s)
}

// Config holds tracer configuration.
type Config struct {
	Level      Level
	Mode       StorageMode
	Format     Format
	Output     io.Writer // takes precedence over OutputPath
	OutputPath string    // "-" or "" for stderr
	RingSize   int       // default 4096
	Heartbeat  time.Duration
	Origin     string // see Tagged
}

// New builds the tracer described by cfg.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	var stream, ring Tracer
	if cfg.Mode == ModeStream || cfg.Mode == ModeBoth {
		w, err := openOutput(cfg)
		if err != nil {
			return nil, err
		}
		stream = NewStreamTracer(w, cfg.Level, formatFor(cfg.OutputPath, cfg.Format))
	}
	if cfg.Mode == ModeRing || cfg.Mode == ModeBoth {
		ring = NewRingTracer(cfg.RingSize, cfg.Level)
	}
	var t Tracer
	switch {
	case stream != nil && ring != nil:
		t = NewMultiTracer(cfg.Level, stream, ring)
	case stream != nil:
		t = stream
	case ring != nil:
		t = ring
	default:
		return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
	}
	return Tagged(t, cfg.Origin), nil
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}
	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	return f, nil
}
