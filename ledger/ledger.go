// Package ledger 定义金库依赖的外部资产账本端口。
//
// 实现需要绑定金库的托管身份：TransferFrom 以托管地址作为 spender 把资产从
// 调用方拉进托管，Transfer 把托管中的资产推给接收方。失败会被金库视为
// 整个操作失败，唯一例外是 ErrOutcomePending：资产移动已经发出但结果未知，
// 金库保留记账照常提交，由对账处理。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"custody/types"
)

var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrInvalidAccount        = errors.New("invalid account")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrTxReverted            = errors.New("transaction reverted")
	// ErrOutcomePending 交易已广播，但在等待期限内没有确认结果
	ErrOutcomePending = errors.New("transfer outcome pending")
)

// IsPending 账本调用是否处于结果未知状态
func IsPending(err error) bool {
	return errors.Is(err, ErrOutcomePending)
}

// AssetLedger 外部可替代资产账本
type AssetLedger interface {
	// TransferFrom 使用预先授予的额度，从 from 拉取 amount 到托管账户
	TransferFrom(ctx context.Context, asset types.AssetID, from types.Address, amount *big.Int) error
	// Transfer 从托管账户推送 amount 到 to
	Transfer(ctx context.Context, asset types.AssetID, to types.Address, amount *big.Int) error
}

// Error 带上下文的账本失败
type Error struct {
	Op      string // "transferFrom" / "transfer"
	Asset   types.AssetID
	Account types.Address
	Amount  *big.Int
	Err     error
}

func (e *Error) Error() string {
	amount := "<nil>"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return fmt.Sprintf("ledger %s asset=%s account=%s amount=%s: %v", e.Op, e.Asset, e.Account, amount, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap 把底层错误包装成 *Error；err 为 nil 时返回 nil
func Wrap(op string, asset types.AssetID, account types.Address, amount *big.Int, err error) error {
	if err == nil {
		return nil
	}
	var amt *big.Int
	if amount != nil {
		amt = new(big.Int).Set(amount)
	}
	return &Error{Op: op, Asset: asset, Account: account, Amount: amt, Err: err}
}
