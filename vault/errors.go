package vault

import (
	"errors"
	"fmt"
	"math/big"

	"custody/ledger"
	"custody/types"
)

// ========== 错误定义 ==========
// 每种错误都是所在操作的终止性失败，操作内的全部写入被丢弃

var (
	ErrUnauthorizedCaller = errors.New("unauthorized caller")
	ErrUnauthorizedToken  = errors.New("unauthorized token")
	ErrActionWhenPaused   = errors.New("action when paused")
	ErrAlreadyPaused      = errors.New("already paused")
	ErrAlreadyRunning     = errors.New("already running")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrNotEnoughBalance   = errors.New("not enough balance")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrUnknownOp          = errors.New("unknown operation")
	ErrCommitFailed       = errors.New("state commit failed")
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrInvalidSnapshot    = errors.New("invalid snapshot index")
	ErrNilHandler         = errors.New("nil handler")
)

// UnauthorizedCallerError 非管理员调用特权操作
type UnauthorizedCallerError struct {
	Caller types.Address
}

func (e *UnauthorizedCallerError) Error() string {
	return fmt.Sprintf("unauthorized caller: %s", e.Caller)
}

func (e *UnauthorizedCallerError) Is(target error) bool {
	return target == ErrUnauthorizedCaller
}

// UnauthorizedTokenError 资产不在白名单
type UnauthorizedTokenError struct {
	Asset types.AssetID
}

func (e *UnauthorizedTokenError) Error() string {
	return fmt.Sprintf("unauthorized token: %s", e.Asset)
}

func (e *UnauthorizedTokenError) Is(target error) bool {
	return target == ErrUnauthorizedToken
}

// NotEnoughBalanceError 提现金额超过记账余额
type NotEnoughBalanceError struct {
	Caller    types.Address
	Asset     types.AssetID
	Requested *big.Int
	Available *big.Int
}

func (e *NotEnoughBalanceError) Error() string {
	return fmt.Sprintf("not enough balance: caller=%s asset=%s requested=%s available=%s",
		e.Caller, e.Asset, e.Requested, e.Available)
}

func (e *NotEnoughBalanceError) Is(target error) bool {
	return target == ErrNotEnoughBalance
}

// ErrorKind 把错误归到一个稳定的类别名，用于 API 响应和指标标签
func ErrorKind(err error) string {
	var lerr *ledger.Error
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorizedCaller):
		return "unauthorized_caller"
	case errors.Is(err, ErrUnauthorizedToken):
		return "unauthorized_token"
	case errors.Is(err, ErrActionWhenPaused):
		return "action_when_paused"
	case errors.Is(err, ErrAlreadyPaused):
		return "already_paused"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotEnoughBalance):
		return "not_enough_balance"
	case errors.Is(err, ErrCommitFailed):
		return "commit_failed"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, ErrUnknownOp):
		return "unknown_op"
	case errors.As(err, &lerr):
		return "ledger"
	}
	return "internal"
}
