package vault

import (
	"context"
	"fmt"
	"math/big"
)

// DepositHandler 存入处理器
type DepositHandler struct{}

func (h *DepositHandler) Kind() OpKind {
	return OpDeposit
}

func (h *DepositHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	// 1. 守卫：活性在前，白名单在后
	if err := requireRunning(env.SV); err != nil {
		return nil, err
	}
	if err := requireWhitelisted(env.SV, op.Asset); err != nil {
		return nil, err
	}

	// 2. 先记账（带溢出检查）
	balance, err := GetBalance(env.SV, op.Caller, op.Asset)
	if err != nil {
		return nil, err
	}
	newBalance, err := SafeAdd(balance, op.Amount)
	if err != nil {
		return nil, fmt.Errorf("credit %s %s: %w", op.Caller, op.Asset, err)
	}
	SetBalance(env.SV, op.Caller, op.Asset, newBalance)

	// 3. 再从调用方拉取资产；失败时引擎回滚上面的记账
	pending, err := settle(op, env.Ledger.TransferFrom(ctx, op.Asset, op.Caller, op.Amount))
	if err != nil {
		return nil, err
	}

	return &Event{
		Kind:    EventTokenDeposited,
		Caller:  op.Caller,
		Asset:   op.Asset,
		Amount:  new(big.Int).Set(op.Amount),
		Pending: pending,
	}, nil
}
