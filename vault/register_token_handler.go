package vault

import (
	"context"
	"fmt"
)

// RegisterTokenHandler 白名单登记处理器（仅管理员，不受暂停影响）
type RegisterTokenHandler struct{}

func (h *RegisterTokenHandler) Kind() OpKind {
	return OpRegisterToken
}

func (h *RegisterTokenHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	if err := requireAdmin(env.SV, op.Caller); err != nil {
		return nil, err
	}

	exists, err := isWhitelisted(env.SV, op.Asset)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, op.Asset)
	}

	addToWhitelist(env.SV, op.Asset, env.Now())

	return &Event{
		Kind:  EventTokenWhitelisted,
		Asset: op.Asset,
	}, nil
}
