package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(kvOpsTotal, kvPostgresConns) }

var kvOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kv_ops_total",
		Help: "Key-value store operations by backend, op and result.",
	},
	[]string{"backend", "op", "result"}, // result: ok, not_found, error
)

// kvPostgresConns mirrors pgxpool.Stat for the postgres backend.
var kvPostgresConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "kv_postgres_pool_conns",
		Help: "Connections of the postgres pool behind the key-value store.",
	},
	[]string{"state"}, // total, idle, acquired, max
)

func IncKVOp(backend, op, result string) {
	kvOpsTotal.WithLabelValues(norm(backend), norm(op), norm(result)).Inc()
}

func SetPostgresPool(total, idle, acquired, maxConns int32) {
	kvPostgresConns.WithLabelValues("total").Set(float64(total))
	kvPostgresConns.WithLabelValues("idle").Set(float64(idle))
	kvPostgresConns.WithLabelValues("acquired").Set(float64(acquired))
	kvPostgresConns.WithLabelValues("max").Set(float64(maxConns))
}
