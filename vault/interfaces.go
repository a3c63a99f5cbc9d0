package vault

import (
	"context"
	"time"

	"custody/ledger"
	"custody/types"
)

// ========== 核心接口定义 ==========

// StateView 状态视图接口
type StateView interface {
	// 读/写/删某个 key 的状态；写入只写进这个视图，不直接落到底层存储。
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte)
	Del(key string)
	// 做一个快照点、必要时回滚到该点，失败的操作（包括重入的嵌套操作）据此撤销自己的写入。
	Snapshot() int
	Revert(snap int) error
	// 导出累积的写集，交给 Store.Commit 一次性落库。
	Diff() []types.WriteOp
	// 扫描指定前缀下的所有键值对（合并 overlay 与底层存储）
	Scan(prefix string) (map[string][]byte, error)
}

// Store 持久化存储。Commit 必须原子：要么全部写入，要么全部不写。
type Store interface {
	Get(key string) ([]byte, error)
	Scan(prefix string) (map[string][]byte, error)
	Commit(ops []types.WriteOp) error
}

// Env 操作执行环境
type Env struct {
	SV      StateView
	Ledger  ledger.AssetLedger
	Custody types.Address
	Now     func() time.Time
}

// OpHandler 操作处理器接口
type OpHandler interface {
	// 标识这个 Handler 处理哪种操作（比如 "deposit"）。
	Kind() OpKind
	// 在 env.SV 上执行；返回待追加的事件（Seq/ID 由引擎分配）。
	// 返回错误时引擎回滚本次操作的全部写入。
	Execute(ctx context.Context, env *Env, op *Op) (*Event, error)
}

// EventSink 已提交事件的订阅方
type EventSink interface {
	Publish(ev Event)
}

// OpObserver 操作结果观测（指标）
type OpObserver interface {
	ObserveOp(kind OpKind, err error, elapsed time.Duration)
}

// ReadThroughFn 当 StateView.Get 本地 overlay 没命中时，从底层存储读真实值
type ReadThroughFn func(key string) ([]byte, error)

// ScanFn 用于 StateView 从底层存储做前缀扫描
type ScanFn func(prefix string) (map[string][]byte, error)
