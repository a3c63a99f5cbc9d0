package db

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"custody/config"
	"custody/keys"
	"custody/logs"
	"custody/types"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	lru "github.com/hashicorp/golang-lru"
)

var (
	// ErrClosed 数据库已关闭
	ErrClosed = errors.New("database is not initialized or closed")
	// ErrAppendOnly 写集试图删除只追加的流水记录
	ErrAppendOnly = errors.New("append-only key cannot be deleted")
)

// StoreObserver 存储访问观测（由 metrics 包实现）
type StoreObserver interface {
	ObserveStore(operation string, err error)
	ObserveWrite(category string, del bool)
	ObserveCache(hit bool)
}

// Manager 封装 BadgerDB 的管理器
//
// 读：可变状态先查 LRU 缓存，未命中再读 badger；事件流水不进缓存。不存在的 key 返回 (nil, nil)。
// 写：Commit 把一个操作的整个写集放进同一个 badger 事务，要么全部可见，要么全部不可见。
// 流水记录只能追加，删除会让整个写集失败。
type Manager struct {
	Db       *badger.DB
	mu       sync.RWMutex
	cache    *lru.Cache // key -> []byte，只缓存存在的可变状态 key
	observer StoreObserver
	readOnly bool
}

// NewManager 在 path 上打开（或创建）数据库，使用默认参数
func NewManager(path string) (*Manager, error) {
	cfg := config.DefaultConfig().Database
	cfg.Path = path
	return NewManagerWithConfig(cfg)
}

// NewInMemoryManager 纯内存数据库，测试和开发模式使用
func NewInMemoryManager() (*Manager, error) {
	cfg := config.DefaultConfig().Database
	cfg.Path = ""
	cfg.InMemory = true
	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig 按配置打开数据库
func NewManagerWithConfig(cfg config.DatabaseConfig) (*Manager, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("empty database path")
		}
		// badger v2 不自动创建父目录，需要手动创建
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
		if cfg.ValueLogFileSize > 0 {
			opts.ValueLogFileSize = cfg.ValueLogFileSize
		}
		// 使用 FileIO 模式减少 mmap 内存占用
		opts.TableLoadingMode = options.FileIO
		opts.ValueLogLoadingMode = options.FileIO
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	m := &Manager{Db: db}
	if cfg.ReadCacheSize > 0 {
		cache, err := lru.New(cfg.ReadCacheSize)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create read cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// SetObserver 设置存储观测者（可为 nil）
func (manager *Manager) SetObserver(o StoreObserver) {
	manager.mu.Lock()
	manager.observer = o
	manager.mu.Unlock()
}

func (manager *Manager) handle() (*badger.DB, StoreObserver) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.Db, manager.observer
}

// Get 读取 key，不存在返回 (nil, nil)；存在但值为空时返回非 nil 的空切片
func (manager *Manager) Get(key string) ([]byte, error) {
	db, obs := manager.handle()
	if db == nil {
		return nil, ErrClosed
	}

	cacheable := manager.cache != nil && keys.IsStatefulKey(key)
	if cacheable {
		if v, ok := manager.cache.Get(key); ok {
			if obs != nil {
				obs.ObserveCache(true)
			}
			return copyBytes(v.([]byte)), nil
		}
		if obs != nil {
			obs.ObserveCache(false)
		}
	}

	var value []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		// 空值（例如 wrapperspb.UInt32(0) 的编码）也要和“不存在”区分开
		value, err = item.ValueCopy([]byte{})
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = nil
		value = nil
	}
	if obs != nil {
		obs.ObserveStore("get", err)
	}
	if err != nil {
		return nil, err
	}
	if value != nil && cacheable {
		manager.cache.Add(key, copyBytes(value))
	}
	return value, nil
}

// Scan 扫描指定前缀的所有键值对
func (manager *Manager) Scan(prefix string) (map[string][]byte, error) {
	db, obs := manager.handle()
	if db == nil {
		return nil, ErrClosed
	}

	result := make(map[string][]byte)
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy([]byte{})
			if err != nil {
				return err
			}
			result[string(k)] = v
		}
		return nil
	})
	if obs != nil {
		obs.ObserveStore("scan", err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Commit 在一个事务里原子地应用写集
func (manager *Manager) Commit(ops []types.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if manager.readOnly {
		return errors.New("commit on read-only database")
	}
	db, obs := manager.handle()
	if db == nil {
		return ErrClosed
	}
	for _, op := range ops {
		if op.IsDel() && keys.IsFlowKey(op.GetKey()) {
			return fmt.Errorf("%w: %s", ErrAppendOnly, op.GetKey())
		}
	}

	err := db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			if op.IsDel() {
				err = txn.Delete([]byte(op.GetKey()))
			} else {
				err = txn.Set([]byte(op.GetKey()), op.GetValue())
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", op.GetKey(), err)
			}
		}
		return nil
	})
	if obs != nil {
		obs.ObserveStore("commit", err)
	}
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			logs.Error("[db.Commit] write set of %d ops exceeds one transaction", len(ops))
		}
		return err
	}

	for _, op := range ops {
		if manager.cache != nil {
			manager.cache.Remove(op.GetKey())
		}
		if obs != nil {
			category := op.Category
			if category == "" {
				category = keys.Category(op.GetKey())
			}
			if category == "" {
				category = "other"
			}
			obs.ObserveWrite(category, op.IsDel())
		}
	}
	return nil
}

// Close 关闭数据库
func (manager *Manager) Close() {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.Db != nil {
		if err := manager.Db.Close(); err != nil {
			logs.Error("[db.Close] close badger: %v", err)
		}
		manager.Db = nil
	}
	if manager.cache != nil {
		manager.cache.Purge()
	}
}

// Dump 按前缀列出所有 key（排序由 badger 迭代顺序保证），供 inspect 使用
func (manager *Manager) Dump(prefix string, fn func(key string, value []byte) error) error {
	db, _ := manager.handle()
	if db == nil {
		return ErrClosed
	}
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy([]byte{})
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
