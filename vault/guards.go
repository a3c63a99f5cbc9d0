package vault

import (
	"custody/types"
)

// 守卫：在任何状态变更之前调用，失败时返回结构化错误且没有副作用

// requireRunning 活性守卫
func requireRunning(sv StateView) error {
	status, err := getStatus(sv)
	if err != nil {
		return err
	}
	if status != StatusRunning {
		return ErrActionWhenPaused
	}
	return nil
}

// requireWhitelisted 白名单守卫
func requireWhitelisted(sv StateView, asset types.AssetID) error {
	ok, err := isWhitelisted(sv, asset)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedTokenError{Asset: asset}
	}
	return nil
}

// requireAdmin 所有权守卫
func requireAdmin(sv StateView, caller types.Address) error {
	admin, err := getAdmin(sv)
	if err != nil {
		return err
	}
	if caller != admin {
		return &UnauthorizedCallerError{Caller: caller}
	}
	return nil
}
