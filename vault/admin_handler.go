package vault

import (
	"context"
	"fmt"
)

// TransferAdminHandler 所有权转移。没有“放弃所有权”，任何时刻恰好一个管理员。
type TransferAdminHandler struct{}

func (h *TransferAdminHandler) Kind() OpKind {
	return OpTransferAdmin
}

func (h *TransferAdminHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	if err := requireAdmin(env.SV, op.Caller); err != nil {
		return nil, err
	}
	if op.NewAdmin == op.Caller {
		return nil, fmt.Errorf("%w: new admin equals current admin", ErrInvalidAddress)
	}
	setAdmin(env.SV, op.NewAdmin)
	return &Event{
		Kind:     EventAdminTransferred,
		Caller:   op.Caller,
		Previous: op.Caller,
		NewAdmin: op.NewAdmin,
	}, nil
}
