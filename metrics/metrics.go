// Package metrics 金库的 prometheus 指标：操作计数与耗时、存储访问、事件。
package metrics

import (
	"net/http"
	"sync"
	"time"

	"custody/db"
	"custody/vault"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VaultMetrics 实现 vault.OpObserver 和 db.StoreObserver
type VaultMetrics struct {
	operations   *prometheus.CounterVec
	latencies    *prometheus.HistogramVec
	storeOps     *prometheus.CounterVec
	storeWrites  *prometheus.CounterVec
	cacheReads   *prometheus.CounterVec
	events       *prometheus.CounterVec
	pending      *prometheus.CounterVec
	lastEventSeq prometheus.Gauge
	gatherer     prometheus.Gatherer

	seqMu   sync.Mutex
	lastSeq uint64
}

var (
	_ vault.OpObserver = (*VaultMetrics)(nil)
	_ db.StoreObserver = (*VaultMetrics)(nil)
)

// NewDefaultVaultMetrics 注册到 prometheus 默认 registry
func NewDefaultVaultMetrics() *VaultMetrics {
	return NewVaultMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewVaultMetrics 注册到指定 registry（测试用独立的 registry）
func NewVaultMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *VaultMetrics {
	m := &VaultMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "How many vault operations ran, partitioned by operation and result.",
			},
			[]string{"op", "status"},
		),
		latencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vault_operation_seconds",
				Help:    "How long vault operations take, including the external ledger call.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_store_operations_total",
				Help: "Store accesses, partitioned by operation and status.",
			},
			[]string{"operation", "status"},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_store_writes_total",
				Help: "Committed key writes, partitioned by data category and put or delete.",
			},
			[]string{"category", "op"},
		),
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_store_cache_reads_total",
				Help: "Store read cache lookups, partitioned by hit or miss.",
			},
			[]string{"status"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_events_total",
				Help: "Committed vault events, partitioned by kind.",
			},
			[]string{"kind"},
		),
		pending: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_pending_transfers_total",
				Help: "Committed events whose external transfer outcome still needs reconciliation.",
			},
			[]string{"kind"},
		),
		lastEventSeq: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vault_last_event_seq",
				Help: "Sequence number of the last committed event.",
			},
		),
		gatherer: gatherer,
	}
	m.operations = registerOnce(reg, m.operations).(*prometheus.CounterVec)
	m.latencies = registerOnce(reg, m.latencies).(*prometheus.HistogramVec)
	m.storeOps = registerOnce(reg, m.storeOps).(*prometheus.CounterVec)
	m.storeWrites = registerOnce(reg, m.storeWrites).(*prometheus.CounterVec)
	m.cacheReads = registerOnce(reg, m.cacheReads).(*prometheus.CounterVec)
	m.events = registerOnce(reg, m.events).(*prometheus.CounterVec)
	m.pending = registerOnce(reg, m.pending).(*prometheus.CounterVec)
	m.lastEventSeq = registerOnce(reg, m.lastEventSeq).(prometheus.Gauge)
	return m
}

// ObserveOp 记录一次操作；status 为错误类别或 "ok"
func (m *VaultMetrics) ObserveOp(kind vault.OpKind, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(string(kind), vault.ErrorKind(err)).Inc()
	m.latencies.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *VaultMetrics) ObserveStore(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOps.WithLabelValues(operation, status).Inc()
}

func (m *VaultMetrics) ObserveWrite(category string, del bool) {
	op := "put"
	if del {
		op = "delete"
	}
	m.storeWrites.WithLabelValues(category, op).Inc()
}

func (m *VaultMetrics) ObserveCache(hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	m.cacheReads.WithLabelValues(status).Inc()
}

// ObserveEvent 作为事件总线订阅者。
// 并发操作的事件可能乱序到达，序号只前进不后退。
func (m *VaultMetrics) ObserveEvent(ev vault.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Pending {
		m.pending.WithLabelValues(string(ev.Kind)).Inc()
	}

	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	if ev.Seq > m.lastSeq {
		m.lastSeq = ev.Seq
		m.lastEventSeq.Set(float64(ev.Seq))
	}
}

// Handler /metrics 端点
func (m *VaultMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
