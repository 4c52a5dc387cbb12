// Package trigger produces build-cycle events for the watch loop.
package trigger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"sidecheck/internal/project"
)

// Event is one build cycle: the files that changed since the previous
// event and whether incremental state must be dropped.
type Event struct {
	Changed []string // root-relative slash paths, sorted
	Rebuild bool
}

// Trigger yields events until ctx ends.
type Trigger interface {
	Next(ctx context.Context) (Event, error)
}

// Manual emits whatever is sent on its channel. Closing the channel ends
// the stream with ErrStopped.
type Manual chan Event

// ErrStopped is returned once a trigger has no more events.
var ErrStopped = errors.New("trigger stopped")

func (m Manual) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-m:
		if !ok {
			return Event{}, ErrStopped
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

type stamp struct {
	size    int64
	modTime int64
}

// PollTrigger walks the project every Interval and reports Go files whose
// size or modification time changed, appeared or disappeared. A change to
// go.mod asks for a full rebuild. Changes are collected until the tree has
// been quiet for Settle, so one editor save produces one event.
type PollTrigger struct {
	Root     string
	Interval time.Duration // default 500ms
	Settle   time.Duration // default Interval

	seen map[string]stamp
}

func NewPollTrigger(root string, interval time.Duration) *PollTrigger {
	return &PollTrigger{Root: root, Interval: interval}
}

func (p *PollTrigger) interval() time.Duration {
	if p.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return p.Interval
}

// Prime records the current tree without emitting an event. Next calls it
// implicitly the first time.
func (p *PollTrigger) Prime() error {
	snap, err := p.scan()
	if err != nil {
		return err
	}
	p.seen = snap
	return nil
}

func (p *PollTrigger) Next(ctx context.Context) (Event, error) {
	if p.seen == nil {
		if err := p.Prime(); err != nil {
			return Event{}, err
		}
	}
	settle := p.Settle
	if settle <= 0 {
		settle = p.interval()
	}
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	var (
		pending  Event
		lastSeen time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case now := <-ticker.C:
			snap, err := p.scan()
			if err != nil {
				return Event{}, err
			}
			changed, rebuild := diff(p.seen, snap)
			p.seen = snap
			if len(changed) > 0 || rebuild {
				pending.Changed = append(pending.Changed, changed...)
				pending.Rebuild = pending.Rebuild || rebuild
				lastSeen = now
				continue
			}
			if !lastSeen.IsZero() && now.Sub(lastSeen) >= settle {
				slices.Sort(pending.Changed)
				pending.Changed = slices.Compact(pending.Changed)
				return pending, nil
			}
		}
	}
}

func (p *PollTrigger) scan() (map[string]stamp, error) {
	files, err := project.ListGoFiles(p.Root)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]stamp, len(files)+1)
	for _, rel := range append(files, "go.mod") {
		fi, err := os.Stat(filepath.Join(p.Root, filepath.FromSlash(rel)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // removed between the walk and the stat
			}
			return nil, err
		}
		snap[rel] = stamp{size: fi.Size(), modTime: fi.ModTime().UnixNano()}
	}
	return snap, nil
}

// diff returns the Go files that differ between two snapshots and whether
// go.mod changed.
func diff(prev, cur map[string]stamp) ([]string, bool) {
	var changed []string
	rebuild := false
	note := func(rel string) {
		if rel == "go.mod" {
			rebuild = true
			return
		}
		changed = append(changed, rel)
	}
	for rel, st := range cur {
		if old, ok := prev[rel]; !ok || old != st {
			note(rel)
		}
	}
	for rel := range prev {
		if _, ok := cur[rel]; !ok {
			note(rel)
		}
	}
	slices.Sort(changed)
	return changed, rebuild
}
