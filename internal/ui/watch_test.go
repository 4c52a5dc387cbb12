package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestWatchModelRendersReport(t *testing.T) {
	m := NewWatchModel("sidecheck", nil, nil)
	m, _ = m.Update(eventMsg(Event{
		Phase:     PhaseDone,
		RequestID: 3,
		Errors:    1,
		Lines:     []string{"a.go:1:1: error: boom [SC3001]"},
		Workers:   []WorkerRow{{ID: 0, PID: 10, Status: "ready", Files: 4}},
	}))
	view := m.View()
	for _, want := range []string{"request 3, 1 errors, 0 warnings", "worker 0", "a.go:1:1: error: boom"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestWatchModelKeepsLinesWhileChecking(t *testing.T) {
	m := NewWatchModel("sidecheck", nil, nil)
	m, _ = m.Update(eventMsg(Event{Phase: PhaseDone, RequestID: 1, Lines: []string{"old finding"}}))
	m, _ = m.Update(eventMsg(Event{Phase: PhaseChecking, RequestID: 2, Changed: 1}))
	view := m.View()
	if !strings.Contains(view, "checking request 2") || !strings.Contains(view, "old finding") {
		t.Errorf("unexpected view:\n%s", view)
	}
}

func TestWatchModelRebuildKey(t *testing.T) {
	calls := 0
	m := NewWatchModel("sidecheck", nil, func() { calls++ })
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if calls != 1 {
		t.Fatalf("expected one rebuild, got %d", calls)
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("q must quit")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
