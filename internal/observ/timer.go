// Package observ measures the phases of a check request.
package observ

import "time"

type phase struct {
	name   string
	start  time.Time
	dur    time.Duration
	note   string
	remote bool // measured by a worker, overlaps local phases
}

// Timer collects the phases of one request. The coordinator loop owns it,
// so it is not goroutine-safe.
type Timer struct {
	phases []phase
}

func NewTimer() *Timer { return &Timer{phases: make([]phase, 0, 8)} }

// Begin starts a local phase and returns its index for End.
func (t *Timer) Begin(name string) int {
	t.phases = append(t.phases, phase{name: name, start: time.Now()})
	return len(t.phases) - 1
}

func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.dur = time.Since(p.start)
	p.note = note
}

// Add records a phase a worker measured on its side.
func (t *Timer) Add(name string, dur time.Duration, note string) {
	t.phases = append(t.phases, phase{name: name, dur: dur, note: note, remote: true})
}

type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
	Worker     bool    `json:"worker,omitempty"`
}

// Report is the serialisable timing breakdown. TotalMS sums local phases
// only. Slowest names the worker phase that bounded the request, the
// difference to FastestMS shows how uneven the partition was.
type Report struct {
	TotalMS   float64       `json:"total_ms"`
	Phases    []PhaseReport `json:"phases"`
	Slowest   string        `json:"slowest,omitempty"`
	SlowestMS float64       `json:"slowest_ms,omitempty"`
	FastestMS float64       `json:"fastest_ms,omitempty"`
}

func (t *Timer) Report() Report {
	if t == nil || len(t.phases) == 0 {
		return Report{}
	}
	rep := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	var slow, fast time.Duration = -1, -1
	for i, p := range t.phases {
		rep.Phases[i] = PhaseReport{Name: p.name, DurationMS: millis(p.dur), Note: p.note, Worker: p.remote}
		if !p.remote {
			total += p.dur
			continue
		}
		if p.dur > slow {
			slow = p.dur
			rep.Slowest = p.name
		}
		if fast < 0 || p.dur < fast {
			fast = p.dur
		}
	}
	rep.TotalMS = millis(total)
	if slow >= 0 {
		rep.SlowestMS = millis(slow)
		rep.FastestMS = millis(fast)
	}
	return rep
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
