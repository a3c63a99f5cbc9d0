package handlers

import (
	"net/http"
	"time"

	"custody/identity"
	"custody/stats"
	"custody/vault"
)

// HandlerManager 管理所有HTTP处理器及其依赖
type HandlerManager struct {
	vault    *vault.Vault
	verifier *identity.Verifier
	metrics  http.Handler // 可为 nil

	maxBodySize int64
	// 统计相关字段
	Stats *stats.Stats
}

// NewHandlerManager 创建新的处理器管理器
func NewHandlerManager(v *vault.Vault, verifier *identity.Verifier, metrics http.Handler, maxBodySize int64) *HandlerManager {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &HandlerManager{
		vault:       v,
		verifier:    verifier,
		metrics:     metrics,
		maxBodySize: maxBodySize,
		Stats:       stats.NewStats(2048),
	}
}

// RegisterRoutes 注册所有路由
func (hm *HandlerManager) RegisterRoutes(mux *http.ServeMux) {
	// 变更操作（签名请求）
	mux.HandleFunc("/deposit", hm.track("/deposit", hm.HandleDeposit))
	mux.HandleFunc("/withdraw", hm.track("/withdraw", hm.HandleWithdraw))
	mux.HandleFunc("/admin/register_token", hm.track("/admin/register_token", hm.HandleRegisterToken))
	mux.HandleFunc("/admin/pause", hm.track("/admin/pause", hm.HandlePause))
	mux.HandleFunc("/admin/unpause", hm.track("/admin/unpause", hm.HandleUnpause))
	mux.HandleFunc("/admin/transfer", hm.track("/admin/transfer", hm.HandleTransferAdmin))
	// 只读查询
	mux.HandleFunc("/status", hm.track("/status", hm.HandleStatus))
	mux.HandleFunc("/admin", hm.track("/admin", hm.HandleAdmin))
	mux.HandleFunc("/balance", hm.track("/balance", hm.HandleBalance))
	mux.HandleFunc("/balances", hm.track("/balances", hm.HandleBalances))
	mux.HandleFunc("/whitelist", hm.track("/whitelist", hm.HandleWhitelist))
	mux.HandleFunc("/events", hm.track("/events", hm.HandleEvents))
	mux.HandleFunc("/stats", hm.HandleStats)
	if hm.metrics != nil {
		mux.Handle("/metrics", hm.metrics)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// track 记录路由的调用次数和耗时
func (hm *HandlerManager) track(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		hm.Stats.Record(name, rec.status, time.Since(start))
	}
}
