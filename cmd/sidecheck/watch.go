package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sidecheck/internal/coordinator"
	"sidecheck/internal/diag"
	"sidecheck/internal/diagfmt"
	"sidecheck/internal/trigger"
	"sidecheck/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-check a Go project whenever its files change",
	Long: `Start a worker pool for the Go project containing [dir], check it once, then
re-check on every change. An edit that lands while a check is running supersedes
it. A crashed worker is restarted after its failure has been reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addSessionFlags(watchCmd)
	addOutputFlags(watchCmd)
	watchCmd.Flags().Duration("interval", 500*time.Millisecond, "file polling interval")
	watchCmd.Flags().String("ui", "auto", "interactive dashboard (auto|on|off)")
}

type outcome struct {
	seq uint64
	rep coordinator.Report
	err error
}

// watchSink presents watch progress.
type watchSink interface {
	checking(seq uint64, changed int, ws []coordinator.WorkerHandle)
	report(seq uint64, rep coordinator.Report, ws []coordinator.WorkerHandle)
	note(msg string)
	close()
}

func runWatch(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	root, cfg, err := resolveSession(cmd, args)
	if err != nil {
		return err
	}
	ro, err := readRenderOpts(cmd, root, os.Args[1:])
	if err != nil {
		return err
	}
	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return fmt.Errorf("failed to get interval flag: %w", err)
	}
	uiStr, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	uiState, err := parseTristate("ui", uiStr)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

	sigCtx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	pool, err := startPool(cmd, root, cfg)
	if err != nil {
		return err
	}
	defer closePool(pool)

	trig := trigger.NewPollTrigger(root, interval)
	if err := trig.Prime(); err != nil {
		return fmt.Errorf("scan project: %w", err)
	}
	events := make(chan trigger.Event, 4)
	go func() {
		for {
			ev, err := trig.Next(ctx)
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var sink watchSink
	if uiState.enabled(os.Stdout) {
		sink = newTUISink(cancel, events)
	} else {
		sink = &plainSink{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), ro: ro, quiet: quiet}
	}
	defer sink.close()

	return watchLoop(ctx, pool, events, sink)
}

func watchLoop(ctx context.Context, pool *coordinator.Coordinator, events <-chan trigger.Event, sink watchSink) error {
	results := make(chan outcome)
	var seq uint64
	inFlight := 0

	workers := func() []coordinator.WorkerHandle {
		ws, _ := pool.Workers(ctx)
		return ws
	}
	submit := func(ev trigger.Event) {
		seq++
		id := seq
		fut := pool.Check(ctx, ev.Changed, ev.Rebuild)
		inFlight++
		sink.checking(id, len(ev.Changed), workers())
		go func() {
			rep, err := fut.Wait(ctx)
			select {
			case results <- outcome{seq: id, rep: rep, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	submit(trigger.Event{})
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			submit(ev)
		case out := <-results:
			inFlight--
			if errors.Is(out.err, coordinator.ErrSuperseded) {
				continue
			}
			if out.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return out.err
			}
			ws := workers()
			sink.report(out.seq, out.rep, ws)
			if out.rep.Failed && coordinator.Degraded(ws) {
				sink.note("restarting crashed workers")
				if err := pool.Restart(ctx); err != nil && !errors.Is(err, coordinator.ErrBusy) {
					sink.note("restart failed: " + err.Error())
				}
			}
		case <-ticker.C:
			if inFlight > 0 {
				sink.checking(seq, -1, workers())
			}
		}
	}
}

// plainSink prints every report in full.
type plainSink struct {
	out, errOut io.Writer
	ro          renderOpts
	quiet       bool
}

func (s *plainSink) checking(seq uint64, changed int, _ []coordinator.WorkerHandle) {
	if s.quiet || changed < 0 {
		return
	}
	fmt.Fprintf(s.errOut, "[%s] check %d (%d changed)\n", time.Now().Format("15:04:05"), seq, changed)
}

func (s *plainSink) report(_ uint64, rep coordinator.Report, _ []coordinator.WorkerHandle) {
	if err := renderReport(s.out, rep, s.ro); err != nil {
		fmt.Fprintf(s.errOut, "render: %v\n", err)
	}
	if s.ro.timings && s.ro.format != "json" {
		printTimings(s.errOut, rep.Timings)
	}
}

func (s *plainSink) note(msg string) {
	fmt.Fprintf(s.errOut, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
}

func (s *plainSink) close() {}

// tuiSink feeds the bubbletea dashboard.
type tuiSink struct {
	ch   chan ui.Event
	done chan struct{}
	last ui.Event
}

func newTUISink(cancel context.CancelFunc, events chan<- trigger.Event) *tuiSink {
	s := &tuiSink{ch: make(chan ui.Event, 16), done: make(chan struct{})}
	rebuild := func() {
		select {
		case events <- trigger.Event{Rebuild: true}:
		default:
		}
	}
	program := tea.NewProgram(ui.NewWatchModel("sidecheck", s.ch, rebuild), tea.WithOutput(os.Stdout))
	go func() {
		defer close(s.done)
		_, _ = program.Run()
		// quitting the dashboard ends the session
		cancel()
	}()
	return s
}

func (s *tuiSink) send(ev ui.Event) {
	s.last = ev
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

func (s *tuiSink) checking(seq uint64, changed int, ws []coordinator.WorkerHandle) {
	if changed < 0 {
		changed = s.last.Changed
	}
	s.send(ui.Event{Phase: ui.PhaseChecking, RequestID: seq, Changed: changed, Workers: rows(ws)})
}

func (s *tuiSink) report(seq uint64, rep coordinator.Report, ws []coordinator.WorkerHandle) {
	ev := ui.Event{Phase: ui.PhaseDone, RequestID: seq, Workers: rows(ws), Lines: shortLines(rep.Diagnostics)}
	if rep.Failed {
		ev.Phase = ui.PhaseFailed
	}
	for _, d := range rep.Diagnostics {
		if d.IsError() {
			ev.Errors++
		} else {
			ev.Warnings++
		}
	}
	s.send(ev)
}

func (s *tuiSink) note(msg string) {
	ev := s.last
	ev.Note = msg
	s.send(ev)
}

func (s *tuiSink) close() {
	close(s.ch)
	<-s.done
}

func rows(ws []coordinator.WorkerHandle) []ui.WorkerRow {
	out := make([]ui.WorkerRow, len(ws))
	for i, w := range ws {
		out[i] = ui.WorkerRow{ID: w.ID, PID: w.PID, Status: w.Status.String(), Files: len(w.Assigned)}
	}
	return out
}

func shortLines(ds []diag.Diagnostic) []string {
	var buf bytes.Buffer
	_ = diagfmt.Short(&buf, ds, diagfmt.PrettyOpts{})
	text := strings.TrimRight(buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
