// Package trace records pin and interrupt line activity on simulated ports
// and renders it as a waveform.
package trace

import (
	"strconv"
	"sync"

	"golang.org/x/exp/slices"

	"gpiosim/core"
)

// DefaultLimit caps a recorder created with a zero limit
const DefaultLimit = 4096

// Sample is one recorded change
type Sample struct {
	Tick   uint64
	Signal string
	Level  bool
}

// Signal names the trace row an event belongs to: "port:pin" for inputs,
// "port:pin/out" for driven outputs and the line name for interrupts.
func Signal(ev core.Event) string {
	switch ev.Kind {
	case core.EventLine:
		return ev.Line
	case core.EventOutput:
		return ev.Port + ":" + strconv.Itoa(ev.Pin) + "/out"
	default:
		return ev.Port + ":" + strconv.Itoa(ev.Pin)
	}
}

// Recorder collects samples from watched ports. Every event advances the
// tick by one so simultaneous changes stay ordered.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
	tick    uint64
	limit   int
	dropped int
}

// NewRecorder keeps at most limit samples, dropping the oldest
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{limit: limit}
}

// Attach starts recording ports
func (r *Recorder) Attach(ports ...*core.Port) {
	for _, p := range ports {
		p.Watch(r.record)
	}
}

func (r *Recorder) record(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tick++
	if len(r.samples) == r.limit {
		r.samples = slices.Delete(r.samples, 0, 1)
		r.dropped++
	}
	r.samples = append(r.samples, Sample{Tick: r.tick, Signal: Signal(ev), Level: ev.Level})
}

// Samples returns a copy of the recorded samples in order
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.samples)
}

// Dropped returns how many samples fell out of the window
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear forgets every sample
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
	r.dropped = 0
}

// Signals returns the distinct signal names in samples, sorted
func Signals(samples []Sample) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range samples {
		if !seen[s.Signal] {
			seen[s.Signal] = true
			out = append(out, s.Signal)
		}
	}
	slices.Sort(out)
	return out
}
