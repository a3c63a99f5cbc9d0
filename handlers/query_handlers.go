package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"custody/types"
	"custody/vault"
)

const (
	// 单次 /events 最多返回的条数
	maxEventsPage = 500
	maxDecimals   = 77
)

func (hm *HandlerManager) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := hm.vault.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	admin, err := hm.vault.Admin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := StatusResponse{Status: status.String(), Admin: string(admin)}
	for _, kind := range hm.vault.Ops() {
		resp.Ops = append(resp.Ops, string(kind))
	}
	writeJSON(w, http.StatusOK, resp)
}

// decimalsParam 读取可选的 decimals 参数
func decimalsParam(r *http.Request) (int32, bool, error) {
	s := r.URL.Query().Get("decimals")
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v > maxDecimals {
		return 0, false, fmt.Errorf("%w: invalid decimals %q", errBadRequest, s)
	}
	return int32(v), true, nil
}

func (hm *HandlerManager) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := hm.vault.Admin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminResponse{Admin: string(admin)})
}

// HandleBalance /balance?caller=&asset=[&decimals=]
func (hm *HandlerManager) HandleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caller, asset := q.Get("caller"), q.Get("asset")
	if caller == "" || asset == "" {
		writeError(w, fmt.Errorf("%w: missing caller or asset", errBadRequest))
		return
	}
	decimals, format, err := decimalsParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bal, err := hm.vault.BalanceOf(r.Context(), types.Address(caller), types.AssetID(asset))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := BalanceResponse{Caller: caller, Asset: asset, Balance: bal.String()}
	if format {
		resp.Formatted = vault.FormatAmount(bal, decimals)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleBalances /balances?caller=[&decimals=]
func (hm *HandlerManager) HandleBalances(w http.ResponseWriter, r *http.Request) {
	caller := r.URL.Query().Get("caller")
	if caller == "" {
		writeError(w, fmt.Errorf("%w: missing caller", errBadRequest))
		return
	}
	decimals, format, err := decimalsParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	all, err := hm.vault.BalancesOf(r.Context(), types.Address(caller))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := BalancesResponse{Caller: caller, Balances: make(map[string]string, len(all))}
	if format {
		resp.Formatted = make(map[string]string, len(all))
	}
	for asset, bal := range all {
		resp.Balances[string(asset)] = bal.String()
		if format {
			resp.Formatted[string(asset)] = vault.FormatAmount(bal, decimals)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleWhitelist /whitelist 列出全部；/whitelist?asset= 查询单个
func (hm *HandlerManager) HandleWhitelist(w http.ResponseWriter, r *http.Request) {
	if asset := r.URL.Query().Get("asset"); asset != "" {
		ok, err := hm.vault.IsWhitelisted(r.Context(), types.AssetID(asset))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, WhitelistedResponse{Asset: asset, Whitelisted: ok})
		return
	}

	assets, err := hm.vault.Whitelist(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := WhitelistResponse{Assets: make([]string, 0, len(assets))}
	for _, a := range assets {
		resp.Assets = append(resp.Assets, string(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleEvents /events?from=&limit=
func (hm *HandlerManager) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := uint64(1)
	if s := q.Get("from"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid from: %v", errBadRequest, err))
			return
		}
		from = v
	}
	limit := 100
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, s))
			return
		}
		limit = v
	}
	if limit > maxEventsPage {
		limit = maxEventsPage
	}

	evs, err := hm.vault.Events(r.Context(), from, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := EventsResponse{Events: make([]EventResponse, 0, len(evs)), Next: from}
	for i := range evs {
		resp.Events = append(resp.Events, toEventResponse(&evs[i]))
		resp.Next = evs[i].Seq + 1
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStats 各路由的调用统计
func (hm *HandlerManager) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hm.Stats.Snapshot())
}
