package types

// WriteOp “要怎么改状态”的清单，由状态视图导出，交给存储层一次性落库
type WriteOp struct {
	Key      string // 完整的 key（包括命名空间前缀）
	Value    []byte // 序列化后的值
	Del      bool   // true表示删除操作
	Category string // 数据分类：status, admin, whitelist, balance, event 等
}

// GetKey 获取 key
func (w *WriteOp) GetKey() string {
	return w.Key
}

// GetValue 获取 value
func (w *WriteOp) GetValue() []byte {
	return w.Value
}

// IsDel 是否删除操作
func (w *WriteOp) IsDel() bool {
	return w.Del
}
