package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// MemMeter keeps counters and histogram sums in memory. Series are keyed by
// name plus sorted labels, e.g. `requests_total{method="GET"}`.
// The zero value is ready to use.
type MemMeter struct {
	mu       sync.Mutex
	counters map[string]float64
	hist     map[string]histo
}

type histo struct {
	count int
	sum   float64
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[k] += value
	m.mu.Unlock()
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	if m.hist == nil {
		m.hist = make(map[string]histo)
	}
	h := m.hist[k]
	h.count++
	h.sum += value
	m.hist[k] = h
	m.mu.Unlock()
}

// Value returns the counter for name, summed across all label sets.
func (m *MemMeter) Value(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for k, v := range m.counters {
		if k == name || strings.HasPrefix(k, name+"{") {
			total += v
		}
	}
	return total
}

// Snapshot returns a copy of all counter series.
func (m *MemMeter) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters)+len(m.hist))
	for k, v := range m.counters {
		out[k] = v
	}
	for k, h := range m.hist {
		out[k+"_count"] = float64(h.count)
		out[k+"_sum"] = h.sum
	}
	return out
}

func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := make([]Label, len(labels))
	copy(ls, labels)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key < ls[j].Key })
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Key)
		b.WriteString(`="`)
		b.WriteString(l.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
