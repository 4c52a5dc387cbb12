package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"sidecheck/internal/trace"
)

func addTraceFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("trace", "", "trace output file (\"-\" for stderr)")
	f.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	f.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	f.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	f.Int("trace-ring-size", 4096, "events kept by the ring buffer")
	f.Duration("trace-heartbeat", 0, "heartbeat interval (0 = disabled)")
}

// activeTracer is dumped on panic when it keeps a ring buffer.
var activeTracer trace.Tracer = trace.Nop

// setupTracing inspects trace-related flags and initializes the tracer.
// It returns a cleanup function and an error if initialization fails.
func setupTracing(cmd *cobra.Command) (func(), error) {
	root := cmd.Root()

	traceOutput, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := root.PersistentFlags().GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	formatStr, err := root.PersistentFlags().GetString("trace-format")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	ringSize, err := root.PersistentFlags().GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeatInterval, err := root.PersistentFlags().GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace level: %w", err)
	}
	// --trace alone means phase-level tracing
	if level == trace.LevelOff && traceOutput != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace mode: %w", err)
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace format: %w", err)
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: traceOutput,
		RingSize:   ringSize,
		Heartbeat:  heartbeatInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	activeTracer = tracer

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	var heartbeat *trace.Heartbeat
	if heartbeatInterval > 0 {
		heartbeat = trace.StartHeartbeat(tracer, heartbeatInterval)
	}

	cleanup := func() {
		if heartbeat != nil {
			heartbeat.Stop()
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
		activeTracer = trace.Nop
	}
	return cleanup, nil
}

// workerTraceArgs forwards the tracing setup to worker processes. Workers
// always trace to stderr: their stdout is the message stream.
func workerTraceArgs(cmd *cobra.Command) []string {
	f := cmd.Root().PersistentFlags()
	level, _ := f.GetString("trace-level")
	out, _ := f.GetString("trace")
	if level == "off" && out == "" {
		return nil
	}
	if level == "off" {
		level = trace.LevelPhase.String()
	}
	format, _ := f.GetString("trace-format")
	ring, _ := f.GetInt("trace-ring-size")
	heartbeat, _ := f.GetDuration("trace-heartbeat")
	return []string{
		"--trace", "-",
		"--trace-level", level,
		"--trace-mode", "stream",
		"--trace-format", format,
		"--trace-ring-size", strconv.Itoa(ring),
		"--trace-heartbeat", heartbeat.String(),
	}
}

// dumpTraceOnPanic writes the ring buffer to stderr before re-panicking.
func dumpTraceOnPanic() {
	r := recover()
	if r == nil {
		return
	}
	if ring := trace.RingOf(activeTracer); ring != nil {
		fmt.Fprintln(os.Stderr, "--- trace ring ---")
		_ = ring.Dump(os.Stderr, trace.FormatText)
	}
	panic(r)
}
