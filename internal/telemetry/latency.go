package telemetry

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

const relativeAccuracy = 0.01

// Latency tracks per-operation duration quantiles with DDSketch. Operation
// names are free-form ("retrieve", "store_disk", "download", ...).
type Latency struct {
	mu       sync.Mutex
	sketches map[string]*ddsketch.DDSketch
}

func NewLatency() *Latency {
	return &Latency{sketches: make(map[string]*ddsketch.DDSketch)}
}

// Record adds a duration sample, in milliseconds, for operation.
func (l *Latency) Record(operation string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sketch, ok := l.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(relativeAccuracy)
		if err != nil {
			return
		}
		l.sketches[operation] = sketch
	}
	_ = sketch.Add(float64(d.Microseconds()) / 1000.0)
}

// Observe wraps fn and records its duration under operation.
func (l *Latency) Observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	l.Record(operation, time.Since(start))
	return err
}

// Quantile reports the q-quantile (0..1) in milliseconds for operation.
func (l *Latency) Quantile(operation string, q float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sketch, ok := l.sketches[operation]
	if !ok || sketch.GetCount() == 0 {
		return 0, false
	}
	v, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Operations lists the operation names seen so far.
func (l *Latency) Operations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := make([]string, 0, len(l.sketches))
	for op := range l.sketches {
		ops = append(ops, op)
	}
	return ops
}
