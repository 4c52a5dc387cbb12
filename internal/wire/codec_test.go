package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"sidecheck/internal/diag"
)

func TestConnRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConn(&buf, &buf)

	msgs := []Envelope{
		ReadyMsg(Ready{WorkerID: 2, PID: 4242, Version: "dev"}),
		RequestMsg(CheckRequest{RequestID: 7, Files: []string{"a.go", "b/b.go"}, Changed: []string{"a.go"}, FullRebuild: true}),
		ResultMsg(CheckResult{
			RequestID: 7,
			WorkerID:  2,
			Completed: true,
			Elapsed:   150 * time.Millisecond,
			Diagnostics: []diag.Diagnostic{
				diag.NewError(diag.TypeError, "a.go", 3, 5, "undefined: x"),
				diag.New(diag.SevWarning, diag.LintFinding, "b/b.go", 1, 1, "bools: redundant or").WithSource(diag.SourceLint),
			},
		}),
		ShutdownMsg(),
	}
	for _, m := range msgs {
		if err := conn.Send(m); err != nil {
			t.Fatalf("Send(%s): %v", m.Kind, err)
		}
	}
	for _, want := range msgs {
		got, err := conn.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	}
	if _, err := conn.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReceiveTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConn(nil, &buf).Send(ShutdownMsg()); err != nil {
		t.Fatal(err)
	}
	cut := buf.Bytes()[:buf.Len()-1]
	_, err := NewConn(bytes.NewReader(cut), io.Discard).Receive()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReceiveRejectsOversizedFrame(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrame+1)
	_, err := NewConn(bytes.NewReader(hdr[:]), io.Discard).Receive()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestSendRejectsMismatchedPayload(t *testing.T) {
	err := NewConn(nil, io.Discard).Send(Envelope{Kind: KindCheckRequest})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
