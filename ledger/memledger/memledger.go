// Package memledger 内存版 ERC-20 语义账本：余额 + 授权额度。
// 用于开发模式和测试。
package memledger

import (
	"context"
	"math/big"
	"sync"

	"custody/ledger"
	"custody/types"
)

// Movement 一次已经生效的账本移动，传给 Hook
type Movement struct {
	Op     string // "transferFrom" / "transfer"
	Asset  types.AssetID
	From   types.Address
	To     types.Address
	Amount *big.Int
}

// Hook 在资产移动之后、返回之前回调（类似 ERC-777 的接收回调）。
// 返回错误会撤销这次移动。调用时不持有账本锁。
type Hook func(ctx context.Context, mv Movement) error

// Ledger 多资产内存账本
type Ledger struct {
	mu         sync.Mutex
	balances   map[types.AssetID]map[types.Address]*big.Int
	allowances map[types.AssetID]map[types.Address]map[types.Address]*big.Int
	hook       Hook
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[types.AssetID]map[types.Address]*big.Int),
		allowances: make(map[types.AssetID]map[types.Address]map[types.Address]*big.Int),
	}
}

// CreateAsset 登记资产（Mint 会自动登记）
func (l *Ledger) CreateAsset(asset types.AssetID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureAsset(asset)
}

func (l *Ledger) ensureAsset(asset types.AssetID) {
	if _, ok := l.balances[asset]; !ok {
		l.balances[asset] = make(map[types.Address]*big.Int)
		l.allowances[asset] = make(map[types.Address]map[types.Address]*big.Int)
	}
}

// SetHook 设置移动回调，传 nil 取消
func (l *Ledger) SetHook(h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = h
}

// Mint 给 to 增发
func (l *Ledger) Mint(asset types.AssetID, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledger.Wrap("mint", asset, to, amount, ledger.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureAsset(asset)
	l.balances[asset][to] = new(big.Int).Add(l.balanceLocked(asset, to), amount)
	return nil
}

// Approve 设置 owner 给 spender 的额度（覆盖旧值）
func (l *Ledger) Approve(asset types.AssetID, owner, spender types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledger.Wrap("approve", asset, owner, amount, ledger.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[asset]; !ok {
		return ledger.Wrap("approve", asset, owner, amount, ledger.ErrUnknownAsset)
	}
	if l.allowances[asset][owner] == nil {
		l.allowances[asset][owner] = make(map[types.Address]*big.Int)
	}
	l.allowances[asset][owner][spender] = new(big.Int).Set(amount)
	return nil
}

// BalanceOf 查询余额（返回副本）
func (l *Ledger) BalanceOf(asset types.AssetID, addr types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(asset, addr))
}

// Allowance 查询额度（返回副本）
func (l *Ledger) Allowance(asset types.AssetID, owner, spender types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowanceLocked(asset, owner, spender))
}

func (l *Ledger) balanceLocked(asset types.AssetID, addr types.Address) *big.Int {
	if b, ok := l.balances[asset][addr]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) allowanceLocked(asset types.AssetID, owner, spender types.Address) *big.Int {
	if a, ok := l.allowances[asset][owner][spender]; ok {
		return a
	}
	return new(big.Int)
}

// move 在锁内做检查和移动；spender 非空时同时扣额度
func (l *Ledger) move(op string, asset types.AssetID, spender, from, to types.Address, amount *big.Int) (Hook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[asset]; !ok {
		return nil, ledger.ErrUnknownAsset
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if spender != "" {
		allowance := l.allowanceLocked(asset, from, spender)
		if allowance.Cmp(amount) < 0 {
			return nil, ledger.ErrInsufficientAllowance
		}
	}
	fromBal := l.balanceLocked(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}

	if spender != "" {
		if l.allowances[asset][from] == nil {
			l.allowances[asset][from] = make(map[types.Address]*big.Int)
		}
		l.allowances[asset][from][spender] = new(big.Int).Sub(l.allowanceLocked(asset, from, spender), amount)
	}
	l.balances[asset][from] = new(big.Int).Sub(fromBal, amount)
	l.balances[asset][to] = new(big.Int).Add(l.balanceLocked(asset, to), amount)
	return l.hook, nil
}

// undo 撤销 move（hook 失败时）
func (l *Ledger) undo(asset types.AssetID, spender, from, to types.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset][to] = new(big.Int).Sub(l.balanceLocked(asset, to), amount)
	l.balances[asset][from] = new(big.Int).Add(l.balanceLocked(asset, from), amount)
	if spender != "" {
		l.allowances[asset][from][spender] = new(big.Int).Add(l.allowanceLocked(asset, from, spender), amount)
	}
}

func (l *Ledger) transfer(ctx context.Context, op string, asset types.AssetID, spender, from, to types.Address, amount *big.Int) error {
	hook, err := l.move(op, asset, spender, from, to, amount)
	if err != nil {
		return err
	}
	if hook == nil {
		return nil
	}
	mv := Movement{Op: op, Asset: asset, From: from, To: to, Amount: new(big.Int).Set(amount)}
	if err := hook(ctx, mv); err != nil {
		l.undo(asset, spender, from, to, amount)
		return err
	}
	return nil
}

// ForCustodian 返回绑定到托管地址的 ledger.AssetLedger
func (l *Ledger) ForCustodian(custody types.Address) *Client {
	return &Client{l: l, custody: custody}
}

// Client 以托管身份操作内存账本
type Client struct {
	l       *Ledger
	custody types.Address
}

var _ ledger.AssetLedger = (*Client)(nil)

// Custody 托管地址
func (c *Client) Custody() types.Address {
	return c.custody
}

func (c *Client) TransferFrom(ctx context.Context, asset types.AssetID, from types.Address, amount *big.Int) error {
	err := c.l.transfer(ctx, "transferFrom", asset, c.custody, from, c.custody, amount)
	return ledger.Wrap("transferFrom", asset, from, amount, err)
}

func (c *Client) Transfer(ctx context.Context, asset types.AssetID, to types.Address, amount *big.Int) error {
	err := c.l.transfer(ctx, "transfer", asset, "", c.custody, to, amount)
	return ledger.Wrap("transfer", asset, to, amount, err)
}
