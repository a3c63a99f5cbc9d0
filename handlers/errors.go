package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"custody/identity"
	"custody/ledger"
	"custody/vault"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Caller    string `json:"caller,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Requested string `json:"requested,omitempty"`
	Available string `json:"available,omitempty"`
}

var errBadRequest = errors.New("bad request")

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	var lerr *ledger.Error
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrReplayCacheFull):
		return http.StatusServiceUnavailable
	case isAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrUnauthorizedCaller), errors.Is(err, vault.ErrUnauthorizedToken):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrActionWhenPaused),
		errors.Is(err, vault.ErrAlreadyPaused),
		errors.Is(err, vault.ErrAlreadyRunning),
		errors.Is(err, vault.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, vault.ErrNotEnoughBalance), errors.Is(err, vault.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidAddress),
		errors.Is(err, vault.ErrInvalidAsset),
		errors.Is(err, vault.ErrUnknownOp):
		return http.StatusBadRequest
	case errors.As(err, &lerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func isAuthError(err error) bool {
	for _, target := range []error{
		identity.ErrExpired,
		identity.ErrReplayed,
		identity.ErrSignature,
		identity.ErrBadPublicKey,
		identity.ErrBadSignature,
		identity.ErrMissingFields,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "bad_request"
	case errors.Is(err, identity.ErrReplayCacheFull):
		return "overloaded"
	case isAuthError(err):
		return "unauthenticated"
	}
	return vault.ErrorKind(err)
}

// writeError 输出结构化错误
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error(), Kind: errorKind(err)}

	var uc *vault.UnauthorizedCallerError
	var ut *vault.UnauthorizedTokenError
	var nb *vault.NotEnoughBalanceError
	switch {
	case errors.As(err, &uc):
		resp.Caller = string(uc.Caller)
	case errors.As(err, &ut):
		resp.Asset = string(ut.Asset)
	case errors.As(err, &nb):
		resp.Caller = string(nb.Caller)
		resp.Asset = string(nb.Asset)
		resp.Requested = nb.Requested.String()
		resp.Available = nb.Available.String()
	}

	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
