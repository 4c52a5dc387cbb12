package main

import (
	"fmt"
	"io"

	"sidecheck/internal/observ"
)

func printTimings(out io.Writer, rep observ.Report) {
	if out == nil {
		return
	}
	for _, p := range rep.Phases {
		indent := ""
		if p.Worker {
			indent = "  "
		}
		fmt.Fprintf(out, "%s%-12s %8.1f ms", indent, p.Name, p.DurationMS)
		if p.Note != "" {
			fmt.Fprintf(out, "  %s", p.Note)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%-12s %8.1f ms\n", "total", rep.TotalMS)
	if rep.Slowest != "" && rep.FastestMS > 0 {
		fmt.Fprintf(out, "slowest %s, %.1fx the fastest worker\n", rep.Slowest, rep.SlowestMS/rep.FastestMS)
	}
}
