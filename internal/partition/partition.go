// Package partition assigns project files to worker slots.
//
// The assignment is a pure function of the file path and the worker count:
// slot = fingerprint(normalised path) mod workers. Re-runs with the same
// inputs always produce the same partition, which keeps multi-worker runs
// reproducible and debuggable.
package partition

import (
	"fmt"
	"path"
	"slices"
	"strings"

	farm "github.com/dgryski/go-farm"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the form of p that is hashed: slash separated, cleaned,
// without a leading "./", Unicode NFC.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(path.Clean(p), "./")
	return norm.NFC.String(p)
}

// Slot returns the worker slot owning file.
func Slot(file string, workers int) int {
	if workers <= 1 {
		return 0
	}
	return int(farm.Fingerprint64([]byte(Normalize(file))) % uint64(workers))
}

// Partition splits files into exactly workers disjoint, sorted slots whose
// union is the (deduplicated) input. workers == 1 returns the whole set as
// a single slot.
func Partition(files []string, workers int) [][]string {
	if workers < 1 {
		panic(fmt.Sprintf("partition: worker count must be >= 1, got %d", workers))
	}
	out := make([][]string, workers)
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		s := Slot(f, workers)
		out[s] = append(out[s], f)
	}
	for i := range out {
		if out[i] == nil {
			out[i] = []string{}
		}
		slices.Sort(out[i])
	}
	return out
}
