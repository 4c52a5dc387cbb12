package diagfmt

import (
	"encoding/json"
	"io"
	"strings"

	"sidecheck/internal/diag"
	"sidecheck/internal/observ"
)

// DiagnosticJSON представляет диагностику в JSON формате.
// Line и Column опускаются для диагностик уровня проекта.
type DiagnosticJSON struct {
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
	Code     string `json:"code"`
}

// DiagnosticsOutput представляет корневую структуру JSON вывода
type DiagnosticsOutput struct {
	Diagnostics       []DiagnosticJSON `json:"diagnostics"`
	Count             int              `json:"count"`
	HasBlockingErrors bool             `json:"hasBlockingErrors"`
	Failed            bool             `json:"failed,omitempty"`
	Timings           *observ.Report   `json:"timings,omitempty"`
}

// Result is what a check produced, in the shape JSON needs.
type Result struct {
	Diagnostics       []diag.Diagnostic
	HasBlockingErrors bool
	Failed            bool
	Timings           observ.Report
}

// BuildDiagnosticsOutput формирует структуру JSON-вывода без сериализации.
// HasBlockingErrors is taken from res and is not affected by Max.
func BuildDiagnosticsOutput(res Result, opts JSONOpts) DiagnosticsOutput {
	items := limit(res.Diagnostics, opts.Max)
	out := DiagnosticsOutput{
		Diagnostics:       make([]DiagnosticJSON, 0, len(items)),
		HasBlockingErrors: res.HasBlockingErrors,
		Failed:            res.Failed,
	}
	for _, d := range items {
		dj := DiagnosticJSON{
			File:     displayPath(d.File, opts.Root, opts.PathMode),
			Message:  d.Message,
			Severity: strings.ToLower(d.Severity.String()),
			Source:   d.Source.String(),
			Code:     d.Code.ID(),
		}
		if d.File != "" && d.Line > 0 {
			dj.Line = d.Line
			dj.Column = d.Column
		}
		out.Diagnostics = append(out.Diagnostics, dj)
	}
	out.Count = len(out.Diagnostics)
	if opts.Timings {
		t := res.Timings
		out.Timings = &t
	}
	return out
}

// JSON форматирует результат проверки в JSON.
func JSON(w io.Writer, res Result, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(res, opts))
}
