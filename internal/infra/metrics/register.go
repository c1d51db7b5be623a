package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds every queued collector to the default registry, once.
// The /metrics handler serves that registry.
func MustRegister() {
	once.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith adds the collectors to reg; tests pass a fresh registry.
func MustRegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(collectors...)
}

// norm keeps label values stable regardless of caller casing.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
