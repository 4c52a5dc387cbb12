package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"sidecheck/internal/diag"
)

// Short prints one line per diagnostic:
// <path>:<line>:<col>: <severity>: <message> [<code>]
func Short(w io.Writer, ds []diag.Diagnostic, opts PrettyOpts) error {
	for _, d := range limit(ds, opts.Max) {
		_, err := fmt.Fprintf(w, "%s: %s: %s [%s]\n",
			location(d, opts.Root, opts.PathMode), strings.ToLower(d.Severity.String()), d.Message, d.Code.ID())
		if err != nil {
			return err
		}
	}
	return nil
}
