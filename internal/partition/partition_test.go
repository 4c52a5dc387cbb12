package partition

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSet(n int) []string {
	files := make([]string, 0, n)
	for i := range n {
		files = append(files, fmt.Sprintf("pkg%d/file%d.go", i%7, i))
	}
	return files
}

func TestPartitionIsDisjointCover(t *testing.T) {
	for _, n := range []int{0, 1, 2, 17, 250} {
		files := fileSet(n)
		for k := 1; k <= 9; k++ {
			parts := Partition(files, k)
			require.Len(t, parts, k)

			seen := make(map[string]int, n)
			for slot, part := range parts {
				for _, f := range part {
					prev, dup := seen[f]
					require.False(t, dup, "file %s in slots %d and %d", f, prev, slot)
					seen[f] = slot
				}
			}
			assert.Len(t, seen, n, "union must equal the input (n=%d k=%d)", n, k)
		}
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	files := fileSet(100)
	want := Partition(files, 4)

	rng := rand.New(rand.NewSource(3))
	for range 10 {
		shuffled := slices.Clone(files)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Partition(shuffled, 4))
	}
}

func TestPartitionSingleWorkerTakesEverything(t *testing.T) {
	files := []string{"b.go", "a.go", "a.go"}
	parts := Partition(files, 1)
	require.Len(t, parts, 1)
	assert.Equal(t, []string{"a.go", "b.go"}, parts[0])
}

func TestPartitionSpreadsWork(t *testing.T) {
	parts := Partition(fileSet(400), 4)
	for i, p := range parts {
		assert.NotEmpty(t, p, "slot %d received no files", i)
	}
}

func TestSlotUsesNormalisedPath(t *testing.T) {
	// "é" precomposed vs. decomposed must land in the same slot.
	composed := "pkg/caf\u00e9.go"
	decomposed := "pkg/cafe\u0301.go"
	for k := 2; k <= 8; k++ {
		assert.Equal(t, Slot(composed, k), Slot(decomposed, k))
		assert.Equal(t, Slot("pkg/a.go", k), Slot("./pkg//a.go", k))
	}
}

func TestPartitionRejectsZeroWorkers(t *testing.T) {
	assert.Panics(t, func() { Partition([]string{"a.go"}, 0) })
}
