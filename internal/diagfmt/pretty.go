package diagfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"sidecheck/internal/diag"
)

type palette struct {
	err, warn, code, path, gutter, caret *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		code:   color.New(color.FgCyan),
		path:   color.New(color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.code, p.path, p.gutter, p.caret} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	if s >= diag.SevError {
		return p.err
	}
	return p.warn
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Ожидается канонический порядок (как отдаёт агрегатор).
// Для каждой диагностики печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем строку исходника с ^ под колонкой.
func Pretty(w io.Writer, ds []diag.Diagnostic, opts PrettyOpts) error {
	pal := newPalette(opts.Color)
	src := newSourceCache(opts.Root)
	shown := limit(ds, opts.Max)

	for i, d := range shown {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		var b strings.Builder
		b.WriteString(pal.path.Sprint(location(d, opts.Root, opts.PathMode)))
		b.WriteString(": ")
		b.WriteString(pal.severity(d.Severity).Sprint(d.Severity.String()))
		b.WriteString(" ")
		b.WriteString(pal.code.Sprint(d.Code.ID()))
		b.WriteString(": ")
		b.WriteString(d.Message)
		b.WriteString("\n")
		if opts.Context >= 0 && d.File != "" && d.Line > 0 {
			writeContext(&b, src.lines(d.File), d, opts.Context, pal)
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	if len(shown) < len(ds) {
		if _, err := fmt.Fprintf(w, "... %d more diagnostics not shown\n", len(ds)-len(shown)); err != nil {
			return err
		}
	}
	if opts.Summary {
		return writeSummary(w, ds, pal)
	}
	return nil
}

func location(d diag.Diagnostic, root string, mode PathMode) string {
	if d.File == "" {
		return "<project>"
	}
	p := displayPath(d.File, root, mode)
	if d.Line <= 0 {
		return p
	}
	return p + ":" + strconv.Itoa(d.Line) + ":" + strconv.Itoa(d.Column)
}

func writeContext(b *strings.Builder, lines []string, d diag.Diagnostic, around int, pal palette) {
	if d.Line > len(lines) {
		return
	}
	first := max(1, d.Line-around)
	last := min(len(lines), d.Line+around)
	width := len(strconv.Itoa(last))
	for n := first; n <= last; n++ {
		fmt.Fprintf(b, " %s %s\n", pal.gutter.Sprintf("%*d |", width, n), lines[n-1])
		if n == d.Line && d.Column > 0 {
			fmt.Fprintf(b, " %s %s%s\n", pal.gutter.Sprintf("%*s |", width, ""), caretPad(lines[n-1], d.Column), pal.caret.Sprint("^"))
		}
	}
}

// caretPad returns the blank prefix that puts a caret under the byte
// column col, keeping tabs and wide runes aligned.
func caretPad(line string, col int) string {
	end := min(col-1, len(line))
	var b strings.Builder
	for _, r := range line[:end] {
		if r == '\t' {
			b.WriteByte('\t')
			continue
		}
		b.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return b.String()
}

func writeSummary(w io.Writer, ds []diag.Diagnostic, pal palette) error {
	var errs, warns int
	for _, d := range ds {
		if d.IsError() {
			errs++
		} else {
			warns++
		}
	}
	if errs == 0 && warns == 0 {
		_, err := fmt.Fprintln(w, "no diagnostics")
		return err
	}
	_, err := fmt.Fprintf(w, "%s, %s\n",
		pal.err.Sprint(plural(errs, "error")), pal.warn.Sprint(plural(warns, "warning")))
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

func limit(ds []diag.Diagnostic, n int) []diag.Diagnostic {
	if n > 0 && n < len(ds) {
		return ds[:n]
	}
	return ds
}

// sourceCache reads each file once per Pretty call.
type sourceCache struct {
	root  string
	files map[string][]string
}

func newSourceCache(root string) *sourceCache {
	return &sourceCache{root: root, files: make(map[string][]string)}
}

func (c *sourceCache) lines(file string) []string {
	if ls, ok := c.files[file]; ok {
		return ls
	}
	var ls []string
	if c.root != "" {
		if data, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(file))); err == nil {
			ls = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		}
	}
	c.files[file] = ls
	return ls
}
