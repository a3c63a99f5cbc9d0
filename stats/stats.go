// Package stats 进程内的 API 调用统计：每个路由的调用次数、失败次数和延迟分位。
package stats

import (
	"sort"
	"sync"
	"time"
)

// RouteSummary 单个路由的统计
type RouteSummary struct {
	Calls  uint64        `json:"calls"`
	Errors uint64        `json:"errors"` // 状态码 >= 400
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Max    time.Duration `json:"max"`
}

type route struct {
	samples []int64 // 纳秒，环形缓冲区
	next    int
	filled  bool
	calls   uint64
	errors  uint64
	maxNs   int64
}

// Stats 固定容量的路由统计
type Stats struct {
	mu       sync.Mutex
	capacity int
	routes   map[string]*route
}

// NewStats capacity 是每个路由保留的延迟样本数
func NewStats(capacity int) *Stats {
	if capacity <= 0 {
		capacity = 2048
	}
	return &Stats{
		capacity: capacity,
		routes:   make(map[string]*route),
	}
}

// Record 记录一次调用
func (s *Stats) Record(name string, status int, d time.Duration) {
	if s == nil || name == "" {
		return
	}
	ns := d.Nanoseconds()
	if ns < 0 {
		ns = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[name]
	if !ok {
		r = &route{samples: make([]int64, s.capacity)}
		s.routes[name] = r
	}
	r.samples[r.next] = ns
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.filled = true
	}
	r.calls++
	if status >= 400 {
		r.errors++
	}
	if ns > r.maxNs {
		r.maxNs = ns
	}
}

// Snapshot 当前统计的副本
func (s *Stats) Snapshot() map[string]RouteSummary {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]RouteSummary, len(s.routes))
	for name, r := range s.routes {
		n := r.next
		if r.filled {
			n = len(r.samples)
		}
		values := make([]int64, n)
		copy(values, r.samples[:n])
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		out[name] = RouteSummary{
			Calls:  r.calls,
			Errors: r.errors,
			P50:    time.Duration(percentile(values, 0.50)),
			P95:    time.Duration(percentile(values, 0.95)),
			P99:    time.Duration(percentile(values, 0.99)),
			Max:    time.Duration(r.maxNs),
		}
	}
	return out
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
