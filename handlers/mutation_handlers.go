package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"custody/identity"
	"custody/logs"
	"custody/types"
	"custody/vault"
)

func (hm *HandlerManager) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpDeposit)
}

func (hm *HandlerManager) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpWithdraw)
}

func (hm *HandlerManager) HandleRegisterToken(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpRegisterToken)
}

func (hm *HandlerManager) HandlePause(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpPause)
}

func (hm *HandlerManager) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpUnpause)
}

func (hm *HandlerManager) HandleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	hm.handleMutation(w, r, vault.OpTransferAdmin)
}

// handleMutation 解析签名请求 -> 校验身份 -> 执行操作 -> 返回回执
func (hm *HandlerManager) handleMutation(w http.ResponseWriter, r *http.Request, kind vault.OpKind) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req identity.Request
	body := http.MaxBytesReader(w, r.Body, hm.maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	if req.Op != string(kind) {
		writeError(w, fmt.Errorf("%w: op %q does not match endpoint %q", errBadRequest, req.Op, kind))
		return
	}

	caller, err := hm.verifier.Verify(&req)
	if err != nil {
		logs.Debug("[API] %s rejected: %v", kind, err)
		writeError(w, err)
		return
	}

	op, err := buildOp(kind, caller, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := hm.vault.Execute(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if receipt.Event != nil && receipt.Event.Pending {
		// 已记账，外部转账结果待对账
		status = http.StatusAccepted
	}
	writeJSON(w, status, toReceiptResponse(receipt))
}

func buildOp(kind vault.OpKind, caller types.Address, req *identity.Request) (vault.Op, error) {
	// 操作 ID 由金库分配；nonce 只在签名者范围内唯一
	op := vault.Op{
		Kind:   kind,
		Caller: caller,
		Asset:  types.AssetID(req.Asset),
	}
	switch kind {
	case vault.OpDeposit, vault.OpWithdraw:
		amount, err := vault.ParseAmount(req.Amount)
		if err != nil {
			return op, err
		}
		op.Amount = amount
	case vault.OpTransferAdmin:
		op.NewAdmin = types.Address(req.NewAdmin)
	}
	return op, nil
}
