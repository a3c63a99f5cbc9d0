package handlers

import (
	"time"

	"custody/vault"
)

// EventResponse 事件的 JSON 形式，金额用十进制字符串
type EventResponse struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	OpID      string `json:"op_id"`
	Kind      string `json:"kind"`
	Caller    string `json:"caller,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Previous  string `json:"previous_admin,omitempty"`
	NewAdmin  string `json:"new_admin,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ReceiptResponse 变更操作的回执
type ReceiptResponse struct {
	OpID   string         `json:"op_id"`
	Kind   string         `json:"kind"`
	Status string         `json:"status"`
	Event  *EventResponse `json:"event,omitempty"`
}

type StatusResponse struct {
	Status string   `json:"status"`
	Admin  string   `json:"admin"`
	Ops    []string `json:"ops"`
}

type AdminResponse struct {
	Admin string `json:"admin"`
}

// BalanceResponse 带 decimals 参数时 Formatted 是按精度换算后的金额
type BalanceResponse struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted,omitempty"`
}

type BalancesResponse struct {
	Caller    string            `json:"caller"`
	Balances  map[string]string `json:"balances"`
	Formatted map[string]string `json:"formatted,omitempty"`
}

type WhitelistResponse struct {
	Assets []string `json:"assets"`
}

type WhitelistedResponse struct {
	Asset       string `json:"asset"`
	Whitelisted bool   `json:"whitelisted"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
	Next   uint64          `json:"next"`
}

func toEventResponse(ev *vault.Event) EventResponse {
	out := EventResponse{
		Seq:       ev.Seq,
		ID:        ev.ID,
		OpID:      ev.OpID,
		Kind:      string(ev.Kind),
		Caller:    string(ev.Caller),
		Asset:     string(ev.Asset),
		Previous:  string(ev.Previous),
		NewAdmin:  string(ev.NewAdmin),
		Pending:   ev.Pending,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if ev.Amount != nil {
		out.Amount = ev.Amount.String()
	}
	return out
}

func toReceiptResponse(r *vault.Receipt) ReceiptResponse {
	out := ReceiptResponse{
		OpID:   r.OpID,
		Kind:   string(r.Kind),
		Status: r.Status,
	}
	if r.Event != nil {
		ev := toEventResponse(r.Event)
		out.Event = &ev
	}
	return out
}
