package vault

import (
	"context"
	"math/big"
)

// WithdrawHandler 提取处理器
//
// 顺序固定为：检查 -> 扣减内部余额 -> 外部转账。
// 控制权离开金库时账目已经反映了这次提取，重入的调用只能看到扣减后的余额。
type WithdrawHandler struct{}

func (h *WithdrawHandler) Kind() OpKind {
	return OpWithdraw
}

func (h *WithdrawHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	if err := requireRunning(env.SV); err != nil {
		return nil, err
	}
	if err := requireWhitelisted(env.SV, op.Asset); err != nil {
		return nil, err
	}

	balance, err := GetBalance(env.SV, op.Caller, op.Asset)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(op.Amount) < 0 {
		return nil, &NotEnoughBalanceError{
			Caller:    op.Caller,
			Asset:     op.Asset,
			Requested: new(big.Int).Set(op.Amount),
			Available: balance,
		}
	}

	// balance >= amount 已在上面确认，MustSub 不会 panic
	SetBalance(env.SV, op.Caller, op.Asset, MustSub(balance, op.Amount))

	pending, err := settle(op, env.Ledger.Transfer(ctx, op.Asset, op.Caller, op.Amount))
	if err != nil {
		return nil, err
	}

	return &Event{
		Kind:    EventTokenWithdrawn,
		Caller:  op.Caller,
		Asset:   op.Asset,
		Amount:  new(big.Int).Set(op.Amount),
		Pending: pending,
	}, nil
}
