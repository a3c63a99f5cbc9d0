package vault

import "context"

// PauseHandler Running -> Paused
type PauseHandler struct{}

func (h *PauseHandler) Kind() OpKind {
	return OpPause
}

func (h *PauseHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	if err := requireAdmin(env.SV, op.Caller); err != nil {
		return nil, err
	}
	status, err := getStatus(env.SV)
	if err != nil {
		return nil, err
	}
	if status == StatusPaused {
		return nil, ErrAlreadyPaused
	}
	setStatus(env.SV, StatusPaused)
	return &Event{Kind: EventPaused}, nil
}

// UnpauseHandler Paused -> Running
type UnpauseHandler struct{}

func (h *UnpauseHandler) Kind() OpKind {
	return OpUnpause
}

func (h *UnpauseHandler) Execute(ctx context.Context, env *Env, op *Op) (*Event, error) {
	if err := requireAdmin(env.SV, op.Caller); err != nil {
		return nil, err
	}
	status, err := getStatus(env.SV)
	if err != nil {
		return nil, err
	}
	if status == StatusRunning {
		return nil, ErrAlreadyRunning
	}
	setStatus(env.SV, StatusRunning)
	return &Event{Kind: EventResumed}, nil
}
