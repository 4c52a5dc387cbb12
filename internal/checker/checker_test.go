package checker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sidecheck/internal/diag"
)

type errService struct{ err error }

func (s errService) Check(context.Context, Request) ([]diag.Diagnostic, error) {
	return nil, s.err
}

func TestSafeTurnsPanicIntoOneDiagnostic(t *testing.T) {
	out, err := Safe{Inner: Faulty{Message: "I'm an error!"}}.Check(context.Background(), Request{Files: []string{"a.go"}})
	if err != nil {
		t.Fatalf("Safe must swallow panics, got %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %v", out)
	}
	d := out[0]
	if !strings.Contains(d.Message, "I'm an error!") || d.Code != diag.EngineCheckerFault {
		t.Fatalf("unexpected fault diagnostic: %+v", d)
	}
	if d.File != "" || d.Line != 0 || d.Column != 0 || !d.IsError() {
		t.Fatalf("fault must be a file-less error: %+v", d)
	}
}

func TestSafeTurnsErrorIntoDiagnostic(t *testing.T) {
	out, err := Safe{Inner: errService{err: errors.New("disk on fire")}}.Check(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Message != FaultPrefix+"disk on fire" {
		t.Fatalf("unexpected diagnostics: %v", out)
	}
}

func TestSafePropagatesCancellation(t *testing.T) {
	_, err := Safe{Inner: errService{err: context.Canceled}}.Check(context.Background(), Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
