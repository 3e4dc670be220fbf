package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu      sync.Mutex
	once    sync.Once
	pending []prometheus.Collector
)

// register enqueues collectors from each subsystem file's init.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	pending = append(pending, cs...)
	mu.Unlock()
}

// MustRegister registers every enqueued collector with the default registry.
// Safe to call more than once; only the first call does anything.
func MustRegister() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if len(pending) > 0 {
			prometheus.MustRegister(pending...)
		}
	})
}

// norm keeps label values lowercase so outcome strings from different call
// sites land in one series.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
