package vault

import (
	"math/big"
	"time"

	"custody/types"
)

// ========== 基础类型定义 ==========

// Status 金库运行状态
type Status uint32

const (
	StatusRunning Status = iota
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	}
	return "Unknown"
}

// OpKind 操作类型，也是 HandlerRegistry 的路由键
type OpKind string

const (
	OpDeposit       OpKind = "deposit"
	OpWithdraw      OpKind = "withdraw"
	OpRegisterToken OpKind = "register_token"
	OpPause         OpKind = "pause"
	OpUnpause       OpKind = "unpause"
	OpTransferAdmin OpKind = "transfer_admin"
)

// Op 一次操作请求
type Op struct {
	ID       string
	Kind     OpKind
	Caller   types.Address
	Asset    types.AssetID
	Amount   *big.Int
	NewAdmin types.Address
}

// EventKind 事件类型
type EventKind string

const (
	EventTokenDeposited   EventKind = "TokenDeposited"
	EventTokenWithdrawn   EventKind = "TokenWithdrawn"
	EventTokenWhitelisted EventKind = "TokenWhitelisted"
	EventPaused           EventKind = "Paused"
	EventResumed          EventKind = "Resumed"
	EventAdminTransferred EventKind = "AdminTransferred"
)

// Event 只追加的可观察日志条目，每个成功的变更操作恰好一条
type Event struct {
	Seq       uint64
	ID        string
	OpID      string
	Kind      EventKind
	Caller    types.Address
	Asset     types.AssetID
	Amount    *big.Int
	Previous  types.Address // AdminTransferred
	NewAdmin  types.Address // AdminTransferred
	Pending   bool          // 外部转账已发出但未确认，需要对账
	Timestamp time.Time
}

// 记录执行结果
type Receipt struct {
	OpID   string
	Kind   OpKind
	Status string // "SUCCEED" 或 "PENDING"
	Event  *Event
}

const (
	receiptSucceed = "SUCCEED"
	receiptPending = "PENDING"
)
