package db

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
)

// NewReadOnlyManager 创建一个只读的 DBManager 实例
// 用于 vaultd inspect 在节点停机时直接读取金库数据库，不写入任何数据
func NewReadOnlyManager(path string) (*Manager, error) {
	opts := badger.DefaultOptions(path).WithReadOnly(true).WithLogger(nil)
	// 使用较小的缓存，作为只读不需要太多内存
	opts.IndexCacheSize = 16 << 20 // 16MB
	opts.BlockCacheSize = 32 << 20 // 32MB
	opts.NumCompactors = 0         // 不做压缩

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db read-only: %w", err)
	}
	return &Manager{Db: db, readOnly: true}, nil
}
