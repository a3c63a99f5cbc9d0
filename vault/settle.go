package vault

import (
	"custody/ledger"
	"custody/logs"
)

// settle 处理外部转账的结果。
// 结果未知时资产可能已经移动，保留本操作的记账照常提交，并留下对账日志。
func settle(op *Op, err error) (pending bool, _ error) {
	if err == nil {
		return false, nil
	}
	if ledger.IsPending(err) {
		logs.Warn("[Vault] ledger outcome pending, committing op=%s id=%s caller=%s asset=%s amount=%s: %v",
			op.Kind, op.ID, op.Caller, op.Asset, op.Amount, err)
		return true, nil
	}
	return false, err
}
