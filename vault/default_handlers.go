package vault

// RegisterDefaultHandlers 注册金库的全部操作处理器
func RegisterDefaultHandlers(reg *HandlerRegistry) error {
	handlers := []OpHandler{
		&DepositHandler{},
		&WithdrawHandler{},
		&RegisterTokenHandler{},
		&PauseHandler{},
		&UnpauseHandler{},
		&TransferAdminHandler{},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
