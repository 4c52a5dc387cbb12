package diag

import (
	"cmp"
	"fmt"
)

type Diagnostic struct {
	File     string   `msgpack:"file"`
	Line     int      `msgpack:"line"`
	Column   int      `msgpack:"col"`
	Severity Severity `msgpack:"sev"`
	Source   Source   `msgpack:"src"`
	Code     Code     `msgpack:"code"`
	Message  string   `msgpack:"msg"`
}

// Key identifies a finding independently of its severity and code.
type Key struct {
	File    string
	Line    int
	Column  int
	Message string
	Source  Source
}

func New(sev Severity, code Code, file string, line, col int, msg string) Diagnostic {
	return Diagnostic{
		File:     file,
		Line:     line,
		Column:   col,
		Severity: sev,
		Source:   SourceTypeCheck,
		Code:     code,
		Message:  msg,
	}
}

func NewError(code Code, file string, line, col int, msg string) Diagnostic {
	return New(SevError, code, file, line, col, msg)
}

// NewEngineError builds a file-less error diagnostic at the sentinel location.
func NewEngineError(code Code, msg string) Diagnostic {
	return New(SevError, code, "", 0, 0, msg)
}

func (d Diagnostic) WithSource(src Source) Diagnostic {
	d.Source = src
	return d
}

func (d Diagnostic) Key() Key {
	return Key{File: d.File, Line: d.Line, Column: d.Column, Message: d.Message, Source: d.Source}
}

func (d Diagnostic) IsError() bool {
	return d.Severity >= SevError
}

// String renders "file:line:col: SEV message", used by tests and traces.
func (d Diagnostic) String() string {
	loc := d.File
	if loc == "" {
		loc = "<project>"
	}
	return fmt.Sprintf("%s:%d:%d: %s %s", loc, d.Line, d.Column, d.Severity, d.Message)
}

// Compare orders diagnostics by file, line, column, severity (errors
// first), message, source and code. It is a total order over every field.
func Compare(a, b Diagnostic) int {
	if c := cmp.Compare(a.File, b.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Column, b.Column); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Message, b.Message); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	return cmp.Compare(a.Code, b.Code)
}
