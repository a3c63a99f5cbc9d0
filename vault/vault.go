package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"custody/ledger"
	"custody/logs"
	"custody/types"

	"github.com/google/uuid"
)

// Options 创建 Vault 的参数
type Options struct {
	Admin    types.Address // 部署者；仅在空库上写入创世状态时使用
	Custody  types.Address // 金库在外部账本上的托管地址
	Registry *HandlerRegistry
	Sink     EventSink
	Observer OpObserver
	Now      func() time.Time
}

// Vault 托管金库
//
// 所有变更操作串行执行：每个操作在自己的 StateView 上运行，
// 守卫、记账、外部转账全部成功之后才把写集一次性提交到 Store。
type Vault struct {
	mu       sync.RWMutex
	store    Store
	ledger   ledger.AssetLedger
	registry *HandlerRegistry
	custody  types.Address
	sink     EventSink
	observer OpObserver
	now      func() time.Time
}

// frame 一个正在执行的外层操作。
// 外部账本回调金库时通过 ctx 携带它，嵌套操作在同一个视图上执行。
type frame struct {
	vault  *Vault
	sv     StateView
	events []Event
	closed atomic.Bool
}

type frameKey struct{}

// New 打开金库；空库时写入创世状态（Running、空白名单、admin = opts.Admin）
func New(store Store, l ledger.AssetLedger, opts Options) (*Vault, error) {
	if store == nil {
		return nil, errors.New("vault: nil store")
	}
	if l == nil {
		return nil, errors.New("vault: nil ledger")
	}
	if err := opts.Custody.Validate(); err != nil {
		return nil, fmt.Errorf("vault: custody: %w: %v", ErrInvalidAddress, err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = NewHandlerRegistry()
		if err := RegisterDefaultHandlers(reg); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	v := &Vault{
		store:    store,
		ledger:   l,
		registry: reg,
		custody:  opts.Custody,
		sink:     opts.Sink,
		observer: opts.Observer,
		now:      now,
	}
	if err := v.genesis(opts.Admin); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) genesis(admin types.Address) error {
	sv := NewStateView(v.store.Get, v.store.Scan)
	current, err := getAdmin(sv)
	switch {
	case err == nil:
		if admin != "" && admin != current {
			logs.Warn("[Vault] configured admin %s ignored, persisted admin is %s", admin, current)
		}
		status, err := getStatus(sv)
		if err != nil {
			return fmt.Errorf("vault: load status: %w", err)
		}
		logs.Info("[Vault] resumed: admin=%s status=%s", current, status)
		return nil
	case !errors.Is(err, ErrNotInitialized):
		return fmt.Errorf("vault: load admin: %w", err)
	}

	if err := admin.Validate(); err != nil {
		return fmt.Errorf("vault: admin: %w: %v", ErrInvalidAddress, err)
	}
	setStatus(sv, StatusRunning)
	setAdmin(sv, admin)
	if err := v.store.Commit(sv.Diff()); err != nil {
		return fmt.Errorf("vault: write genesis: %w", err)
	}
	logs.Info("[Vault] genesis written: admin=%s custody=%s", admin, v.custody)
	return nil
}

// Ops 已注册的操作类型
func (v *Vault) Ops() []OpKind {
	return v.registry.List()
}

// Custody 托管地址
func (v *Vault) Custody() types.Address {
	return v.custody
}

// activeFrame 返回 ctx 中属于本金库且仍在执行的外层操作
func (v *Vault) activeFrame(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, ok := ctx.Value(frameKey{}).(*frame)
	if !ok || f.vault != v || f.closed.Load() {
		return nil
	}
	return f
}

// Execute 执行一个变更操作
func (v *Vault) Execute(ctx context.Context, op Op) (*Receipt, error) {
	start := time.Now()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	ev, err := v.execute(ctx, &op)
	if v.observer != nil {
		v.observer.ObserveOp(op.Kind, err, time.Since(start))
	}
	if err != nil {
		logs.Debug("[Vault] op %s id=%s caller=%s failed: %v", op.Kind, op.ID, op.Caller, err)
		return nil, err
	}
	status := receiptSucceed
	if ev.Pending {
		status = receiptPending
	}
	return &Receipt{
		OpID:   op.ID,
		Kind:   op.Kind,
		Status: status,
		Event:  ev,
	}, nil
}

func (v *Vault) execute(ctx context.Context, op *Op) (*Event, error) {
	if err := validateOp(op); err != nil {
		return nil, fmt.Errorf("vault %s: %w", op.Kind, err)
	}
	h, ok := v.registry.Get(op.Kind)
	if !ok {
		return nil, fmt.Errorf("vault: %w: %s", ErrUnknownOp, op.Kind)
	}

	// 重入：嵌套在外层操作里执行，由外层统一提交
	if f := v.activeFrame(ctx); f != nil {
		return v.run(ctx, f, h, op)
	}

	ev, events, err := v.executeTop(ctx, h, op)
	if err != nil {
		return nil, err
	}
	// 写锁已释放后才发布，同步订阅者可以读写金库。
	// 并发操作之间的发布顺序不保证，订阅者按 Seq 排序。
	if v.sink != nil {
		for _, e := range events {
			v.sink.Publish(e)
		}
	}
	return ev, nil
}

// executeTop 持有写锁执行一个外层操作并提交，返回待发布的事件
func (v *Vault) executeTop(ctx context.Context, h OpHandler, op *Op) (*Event, []Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f := &frame{vault: v, sv: NewStateView(v.store.Get, v.store.Scan)}
	ev, err := v.run(context.WithValue(ctx, frameKey{}, f), f, h, op)
	f.closed.Store(true)
	if err != nil {
		return nil, nil, err
	}

	if err := v.store.Commit(f.sv.Diff()); err != nil {
		// 外部转账已经发生，金库无法撤销，只能留下对账所需的信息
		logs.Error("[Vault] commit failed after ledger call: op=%s id=%s caller=%s asset=%s amount=%s err=%v",
			op.Kind, op.ID, op.Caller, op.Asset, op.Amount, err)
		return nil, nil, fmt.Errorf("vault %s op=%s: %w: %w", op.Kind, op.ID, ErrCommitFailed, err)
	}

	return ev, f.events, nil
}

// run 在帧的视图上执行一个操作；失败时只回滚本操作（含其嵌套操作）的写入和事件
func (v *Vault) run(ctx context.Context, f *frame, h OpHandler, op *Op) (*Event, error) {
	snap := f.sv.Snapshot()
	mark := len(f.events)

	env := &Env{
		SV:      f.sv,
		Ledger:  v.ledger,
		Custody: v.custody,
		Now:     v.now,
	}
	ev, err := h.Execute(ctx, env, op)
	if err == nil {
		ev, err = appendEvent(f.sv, op, ev, v.now())
	}
	if err != nil {
		if rerr := f.sv.Revert(snap); rerr != nil {
			logs.Error("[Vault] revert op=%s id=%s: %v", op.Kind, op.ID, rerr)
		}
		f.events = f.events[:mark]
		return nil, fmt.Errorf("vault %s: %w", op.Kind, err)
	}
	f.events = append(f.events, *ev)
	return ev, nil
}

func validateOp(op *Op) error {
	if err := op.Caller.Validate(); err != nil {
		return fmt.Errorf("%w: caller: %v", ErrInvalidAddress, err)
	}
	switch op.Kind {
	case OpDeposit, OpWithdraw:
		if err := op.Asset.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
		return validateAmount(op.Amount)
	case OpRegisterToken:
		if err := op.Asset.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
	case OpTransferAdmin:
		if err := op.NewAdmin.Validate(); err != nil {
			return fmt.Errorf("%w: new admin: %v", ErrInvalidAddress, err)
		}
	}
	return nil
}

// ========== 变更操作 ==========

// Deposit 从调用方拉取 amount 记入其余额
func (v *Vault) Deposit(ctx context.Context, caller types.Address, asset types.AssetID, amount *big.Int) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpDeposit, Caller: caller, Asset: asset, Amount: amount})
}

// Withdraw 扣减余额后把 amount 转给调用方
func (v *Vault) Withdraw(ctx context.Context, caller types.Address, asset types.AssetID, amount *big.Int) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpWithdraw, Caller: caller, Asset: asset, Amount: amount})
}

func (v *Vault) RegisterToken(ctx context.Context, caller types.Address, asset types.AssetID) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpRegisterToken, Caller: caller, Asset: asset})
}

func (v *Vault) Pause(ctx context.Context, caller types.Address) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpPause, Caller: caller})
}

func (v *Vault) Unpause(ctx context.Context, caller types.Address) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpUnpause, Caller: caller})
}

func (v *Vault) TransferAdmin(ctx context.Context, caller, newAdmin types.Address) (*Receipt, error) {
	return v.Execute(ctx, Op{Kind: OpTransferAdmin, Caller: caller, NewAdmin: newAdmin})
}

// ========== 只读查询 ==========

// view 返回查询使用的视图。重入调用看到进行中的状态，其余只看已提交状态。
func (v *Vault) view(ctx context.Context) (StateView, func()) {
	if f := v.activeFrame(ctx); f != nil {
		return f.sv, func() {}
	}
	v.mu.RLock()
	return NewStateView(v.store.Get, v.store.Scan), v.mu.RUnlock
}

func (v *Vault) Status(ctx context.Context) (Status, error) {
	sv, done := v.view(ctx)
	defer done()
	return getStatus(sv)
}

func (v *Vault) Admin(ctx context.Context) (types.Address, error) {
	sv, done := v.view(ctx)
	defer done()
	return getAdmin(sv)
}

func (v *Vault) IsWhitelisted(ctx context.Context, asset types.AssetID) (bool, error) {
	sv, done := v.view(ctx)
	defer done()
	return isWhitelisted(sv, asset)
}

// Whitelist 所有已登记资产，按字典序
func (v *Vault) Whitelist(ctx context.Context) ([]types.AssetID, error) {
	sv, done := v.view(ctx)
	defer done()
	return listWhitelist(sv)
}

func (v *Vault) BalanceOf(ctx context.Context, caller types.Address, asset types.AssetID) (*big.Int, error) {
	sv, done := v.view(ctx)
	defer done()
	return GetBalance(sv, caller, asset)
}

// BalancesOf 调用方所有非零余额
func (v *Vault) BalancesOf(ctx context.Context, caller types.Address) (map[types.AssetID]*big.Int, error) {
	sv, done := v.view(ctx)
	defer done()
	return GetBalances(sv, caller)
}

// Events 从序号 from 开始最多 limit 条事件（limit <= 0 表示全部）
func (v *Vault) Events(ctx context.Context, from uint64, limit int) ([]Event, error) {
	sv, done := v.view(ctx)
	defer done()
	return readEvents(sv, from, limit)
}
