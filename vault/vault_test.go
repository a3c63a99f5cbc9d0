package vault_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"custody/db"
	"custody/ledger"
	"custody/ledger/memledger"
	"custody/types"
	"custody/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin   types.Address = "admin"
	custody types.Address = "vault-custody"
	alice   types.Address = "alice"
	bob     types.Address = "bob"
	usdt    types.AssetID = "USDT"
	wbtc    types.AssetID = "WBTC"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []vault.Event
}

func (s *recordingSink) Publish(ev vault.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []vault.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vault.Event(nil), s.events...)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[vault.OpKind][]error
}

func (o *recordingObserver) ObserveOp(kind vault.OpKind, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[vault.OpKind][]error)
	}
	o.calls[kind] = append(o.calls[kind], err)
}

type testEnv struct {
	v     *vault.Vault
	chain *memledger.Ledger
	store *db.Manager
	sink  *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.NewInMemoryManager()
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return newTestEnvWithStore(t, store)
}

func newTestEnvWithStore(t *testing.T, store vault.Store) *testEnv {
	t.Helper()
	chain := memledger.New()
	sink := &recordingSink{}
	v, err := vault.New(store, chain.ForCustodian(custody), vault.Options{
		Admin:   admin,
		Custody: custody,
		Sink:    sink,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	env := &testEnv{v: v, chain: chain, sink: sink}
	if m, ok := store.(*db.Manager); ok {
		env.store = m
	}
	return env
}

// fund 给 owner 铸币并授权托管地址
func (e *testEnv) fund(t *testing.T, asset types.AssetID, owner types.Address, amount int64) {
	t.Helper()
	require.NoError(t, e.chain.Mint(asset, owner, big.NewInt(amount)))
	require.NoError(t, e.chain.Approve(asset, owner, custody, big.NewInt(amount)))
}

func (e *testEnv) register(t *testing.T, asset types.AssetID) {
	t.Helper()
	_, err := e.v.RegisterToken(context.Background(), admin, asset)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, who types.Address, asset types.AssetID) int64 {
	t.Helper()
	bal, err := e.v.BalanceOf(context.Background(), who, asset)
	require.NoError(t, err)
	return bal.Int64()
}

func (e *testEnv) events(t *testing.T) []vault.Event {
	t.Helper()
	evs, err := e.v.Events(context.Background(), 0, 0)
	require.NoError(t, err)
	return evs
}

func TestGenesisState(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	status, err := e.v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.StatusRunning, status)

	got, err := e.v.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	wl, err := e.v.Whitelist(ctx)
	require.NoError(t, err)
	assert.Empty(t, wl)

	assert.Empty(t, e.events(t))
	assert.Equal(t, custody, e.v.Custody())
}

func TestNewRejectsInvalidAdmin(t *testing.T) {
	store, err := db.NewInMemoryManager()
	require.NoError(t, err)
	defer store.Close()

	_, err = vault.New(store, memledger.New().ForCustodian(custody), vault.Options{Admin: "", Custody: custody})
	assert.ErrorIs(t, err, vault.ErrInvalidAddress)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 100)

	rcpt, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(60))
	require.NoError(t, err)
	assert.Equal(t, "SUCCEED", rcpt.Status)
	assert.Equal(t, vault.OpDeposit, rcpt.Kind)
	require.NotNil(t, rcpt.Event)
	assert.Equal(t, vault.EventTokenDeposited, rcpt.Event.Kind)
	assert.Equal(t, rcpt.OpID, rcpt.Event.OpID)

	assert.Equal(t, int64(60), e.balance(t, alice, usdt))
	assert.Equal(t, int64(40), e.chain.BalanceOf(usdt, alice).Int64())
	assert.Equal(t, int64(60), e.chain.BalanceOf(usdt, custody).Int64())
	assert.Equal(t, int64(40), e.chain.Allowance(usdt, alice, custody).Int64())

	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, int64(35), e.balance(t, alice, usdt))
	assert.Equal(t, int64(65), e.chain.BalanceOf(usdt, alice).Int64())
	assert.Equal(t, int64(35), e.chain.BalanceOf(usdt, custody).Int64())

	evs := e.events(t)
	require.Len(t, evs, 3)
	assert.Equal(t, vault.EventTokenWhitelisted, evs[0].Kind)
	assert.Equal(t, vault.EventTokenDeposited, evs[1].Kind)
	assert.Equal(t, vault.EventTokenWithdrawn, evs[2].Kind)
	assert.Equal(t, alice, evs[2].Caller)
	assert.Equal(t, usdt, evs[2].Asset)
	assert.Equal(t, "25", evs[2].Amount.String())
}

func TestWithdrawFullBalanceClearsRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.register(t, wbtc)
	e.fund(t, usdt, alice, 10)
	e.fund(t, wbtc, alice, 3)

	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(10))
	require.NoError(t, err)
	_, err = e.v.Deposit(ctx, alice, wbtc, big.NewInt(3))
	require.NoError(t, err)
	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(10))
	require.NoError(t, err)

	all, err := e.v.BalancesOf(ctx, alice)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "3", all[wbtc].String())
	assert.Equal(t, int64(0), e.balance(t, alice, usdt))
}

func TestDepositUnwhitelistedAsset(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, usdt, alice, 10)

	_, err := e.v.Deposit(context.Background(), alice, usdt, big.NewInt(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrUnauthorizedToken)

	var tokErr *vault.UnauthorizedTokenError
	require.True(t, errors.As(err, &tokErr))
	assert.Equal(t, usdt, tokErr.Asset)

	assert.Equal(t, int64(0), e.balance(t, alice, usdt))
	assert.Equal(t, int64(10), e.chain.BalanceOf(usdt, alice).Int64())
	assert.Empty(t, e.events(t))
}

func TestWithdrawUnwhitelistedAsset(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.v.Withdraw(context.Background(), alice, usdt, big.NewInt(0))
	assert.ErrorIs(t, err, vault.ErrUnauthorizedToken)
}

func TestPausedBlocksDepositAndWithdraw(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 10)
	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(4))
	require.NoError(t, err)

	_, err = e.v.Pause(ctx, admin)
	require.NoError(t, err)

	_, err = e.v.Deposit(ctx, alice, usdt, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrActionWhenPaused)
	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrActionWhenPaused)

	// 活性守卫先于白名单守卫
	_, err = e.v.Deposit(ctx, alice, wbtc, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrActionWhenPaused)

	// 登记不受暂停影响
	_, err = e.v.RegisterToken(ctx, admin, wbtc)
	require.NoError(t, err)

	assert.Equal(t, int64(4), e.balance(t, alice, usdt))

	_, err = e.v.Unpause(ctx, admin)
	require.NoError(t, err)
	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, int64(10), e.chain.BalanceOf(usdt, alice).Int64())

	kinds := make([]vault.EventKind, 0)
	for _, ev := range e.events(t) {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []vault.EventKind{
		vault.EventTokenWhitelisted,
		vault.EventTokenDeposited,
		vault.EventPaused,
		vault.EventTokenWhitelisted,
		vault.EventResumed,
		vault.EventTokenWithdrawn,
	}, kinds)
}

func TestWithdrawNotEnoughBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 10)
	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(7))
	require.NoError(t, err)

	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(8))
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrNotEnoughBalance)

	var nb *vault.NotEnoughBalanceError
	require.True(t, errors.As(err, &nb))
	assert.Equal(t, alice, nb.Caller)
	assert.Equal(t, usdt, nb.Asset)
	assert.Equal(t, "8", nb.Requested.String())
	assert.Equal(t, "7", nb.Available.String())

	assert.Equal(t, int64(7), e.balance(t, alice, usdt))
	assert.Equal(t, int64(3), e.chain.BalanceOf(usdt, alice).Int64())
}

func TestWithdrawByNonDepositor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 10)
	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(10))
	require.NoError(t, err)

	_, err = e.v.Withdraw(ctx, bob, usdt, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrNotEnoughBalance)
	assert.Equal(t, int64(10), e.balance(t, alice, usdt))
}

func TestAdminOnlyOperations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	checks := map[string]func() error{
		"register_token": func() error { _, err := e.v.RegisterToken(ctx, alice, usdt); return err },
		"pause":          func() error { _, err := e.v.Pause(ctx, alice); return err },
		"unpause":        func() error { _, err := e.v.Unpause(ctx, alice); return err },
		"transfer_admin": func() error { _, err := e.v.TransferAdmin(ctx, alice, bob); return err },
	}
	for name, fn := range checks {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, vault.ErrUnauthorizedCaller)
			var uc *vault.UnauthorizedCallerError
			require.True(t, errors.As(err, &uc))
			assert.Equal(t, alice, uc.Caller)
		})
	}

	ok, err := e.v.IsWhitelisted(ctx, usdt)
	require.NoError(t, err)
	assert.False(t, ok)
	status, err := e.v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.StatusRunning, status)
	assert.Empty(t, e.events(t))
}

func TestRedundantStatusTransitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.v.Unpause(ctx, admin)
	assert.ErrorIs(t, err, vault.ErrAlreadyRunning)

	_, err = e.v.Pause(ctx, admin)
	require.NoError(t, err)
	_, err = e.v.Pause(ctx, admin)
	assert.ErrorIs(t, err, vault.ErrAlreadyPaused)

	status, err := e.v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.StatusPaused, status)
	assert.Len(t, e.events(t), 1)
}

func TestRegisterTokenTwice(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)

	_, err := e.v.RegisterToken(ctx, admin, usdt)
	assert.ErrorIs(t, err, vault.ErrAlreadyRegistered)

	wl, err := e.v.Whitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.AssetID{usdt}, wl)
	assert.Len(t, e.events(t), 1)
}

func TestWhitelistSorted(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, wbtc)
	e.register(t, "ETH")
	e.register(t, usdt)

	wl, err := e.v.Whitelist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.AssetID{"ETH", usdt, wbtc}, wl)
}

func TestDepositLedgerFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	require.NoError(t, e.chain.Mint(usdt, alice, big.NewInt(10)))

	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	var lerr *ledger.Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "transferFrom", lerr.Op)
	assert.Equal(t, alice, lerr.Account)

	assert.Equal(t, int64(0), e.balance(t, alice, usdt))
	assert.Len(t, e.events(t), 1)
	assert.Len(t, e.sink.snapshot(), 1)
}

func TestWithdrawLedgerFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 10)
	_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(10))
	require.NoError(t, err)

	refused := errors.New("receiver refused")
	e.chain.SetHook(func(ctx context.Context, mv memledger.Movement) error {
		if mv.Op == "transfer" {
			return refused
		}
		return nil
	})

	_, err = e.v.Withdraw(ctx, alice, usdt, big.NewInt(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, refused)

	assert.Equal(t, int64(10), e.balance(t, alice, usdt))
	assert.Equal(t, int64(10), e.chain.BalanceOf(usdt, custody).Int64())
	assert.Len(t, e.events(t), 2)
}

func TestDepositOverflowRollsBack(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)

	maxAmount := new(big.Int).Set(vault.MaxUint256)
	require.NoError(t, e.chain.Mint(usdt, alice, maxAmount))
	require.NoError(t, e.chain.Approve(usdt, alice, custody, maxAmount))
	_, err := e.v.Deposit(ctx, alice, usdt, maxAmount)
	require.NoError(t, err)

	e.fund(t, usdt, alice, 1)
	_, err = e.v.Deposit(ctx, alice, usdt, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrOverflow)

	bal, err := e.v.BalanceOf(ctx, alice, usdt)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(vault.MaxUint256))
	// 溢出发生在外部调用之前，账本未动
	assert.Equal(t, int64(1), e.chain.BalanceOf(usdt, alice).Int64())
}

func TestZeroAmountDepositEmitsEvent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.chain.CreateAsset(usdt)

	rcpt, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "0", rcpt.Event.Amount.String())
	assert.Equal(t, int64(0), e.balance(t, alice, usdt))
	assert.Len(t, e.events(t), 2)
}

func TestInvalidInputs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)

	_, err := e.v.Deposit(ctx, alice, usdt, nil)
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)

	_, err = e.v.Deposit(ctx, alice, usdt, big.NewInt(-1))
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)

	tooBig := new(big.Int).Add(vault.MaxUint256, big.NewInt(1))
	_, err = e.v.Withdraw(ctx, alice, usdt, tooBig)
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)

	_, err = e.v.Deposit(ctx, "al_ice", usdt, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrInvalidAddress)

	_, err = e.v.Deposit(ctx, alice, "", big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrInvalidAsset)

	_, err = e.v.RegisterToken(ctx, admin, "bad asset")
	assert.ErrorIs(t, err, vault.ErrInvalidAsset)

	_, err = e.v.TransferAdmin(ctx, admin, "")
	assert.ErrorIs(t, err, vault.ErrInvalidAddress)

	_, err = e.v.Execute(ctx, vault.Op{Kind: "mint", Caller: admin})
	assert.ErrorIs(t, err, vault.ErrUnknownOp)

	assert.Len(t, e.events(t), 1)
}

func TestTransferAdmin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.v.TransferAdmin(ctx, admin, admin)
	assert.ErrorIs(t, err, vault.ErrInvalidAddress)

	rcpt, err := e.v.TransferAdmin(ctx, admin, bob)
	require.NoError(t, err)
	assert.Equal(t, vault.EventAdminTransferred, rcpt.Event.Kind)
	assert.Equal(t, admin, rcpt.Event.Previous)
	assert.Equal(t, bob, rcpt.Event.NewAdmin)

	got, err := e.v.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob, got)

	_, err = e.v.Pause(ctx, admin)
	assert.ErrorIs(t, err, vault.ErrUnauthorizedCaller)
	_, err = e.v.Pause(ctx, bob)
	require.NoError(t, err)

	// 暂停期间仍可转移
	_, err = e.v.TransferAdmin(ctx, bob, admin)
	require.NoError(t, err)
}

func TestEventsSequenceAndPaging(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 100)

	var opIDs []string
	for i := 0; i < 5; i++ {
		rcpt, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(int64(i+1)))
		require.NoError(t, err)
		opIDs = append(opIDs, rcpt.OpID)
	}

	evs := e.events(t)
	require.Len(t, evs, 6)
	seen := make(map[string]bool)
	for i, ev := range evs {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, fixedNow, ev.Timestamp)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, seen[ev.ID])
		seen[ev.ID] = true
	}
	for i, id := range opIDs {
		assert.Equal(t, id, evs[i+1].OpID)
	}

	page, err := e.v.Events(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Seq)
	assert.Equal(t, uint64(4), page[1].Seq)

	tail, err := e.v.Events(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, tail)

	published := e.sink.snapshot()
	require.Len(t, published, 6)
	assert.Equal(t, evs, published)
}

func TestExecuteKeepsCallerOpID(t *testing.T) {
	e := newTestEnv(t)
	rcpt, err := e.v.Execute(context.Background(), vault.Op{ID: "op-1", Kind: vault.OpPause, Caller: admin})
	require.NoError(t, err)
	assert.Equal(t, "op-1", rcpt.OpID)
	assert.Equal(t, "op-1", rcpt.Event.OpID)
}

func TestObserverSeesEveryOperation(t *testing.T) {
	store, err := db.NewInMemoryManager()
	require.NoError(t, err)
	defer store.Close()

	obs := &recordingObserver{}
	v, err := vault.New(store, memledger.New().ForCustodian(custody), vault.Options{
		Admin: admin, Custody: custody, Observer: obs,
	})
	require.NoError(t, err)

	_, err = v.Pause(context.Background(), admin)
	require.NoError(t, err)
	_, err = v.Pause(context.Background(), admin)
	require.Error(t, err)

	require.Len(t, obs.calls[vault.OpPause], 2)
	assert.NoError(t, obs.calls[vault.OpPause][0])
	assert.ErrorIs(t, obs.calls[vault.OpPause][1], vault.ErrAlreadyPaused)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := db.NewManager(dir)
	require.NoError(t, err)
	e := newTestEnvWithStore(t, store)
	e.register(t, usdt)
	e.fund(t, usdt, alice, 50)
	_, err = e.v.Deposit(ctx, alice, usdt, big.NewInt(30))
	require.NoError(t, err)
	_, err = e.v.Pause(ctx, admin)
	require.NoError(t, err)
	store.Close()

	store, err = db.NewManager(dir)
	require.NoError(t, err)
	defer store.Close()
	// 重新打开时配置的管理员被忽略
	v, err := vault.New(store, e.chain.ForCustodian(custody), vault.Options{Admin: bob, Custody: custody})
	require.NoError(t, err)

	got, err := v.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	status, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.StatusPaused, status)

	bal, err := v.BalanceOf(ctx, alice, usdt)
	require.NoError(t, err)
	assert.Equal(t, "30", bal.String())

	ok, err := v.IsWhitelisted(ctx, usdt)
	require.NoError(t, err)
	assert.True(t, ok)

	evs, err := v.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)

	// 序号在重启后继续
	_, err = v.Unpause(ctx, admin)
	require.NoError(t, err)
	evs, err = v.Events(ctx, 4, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(4), evs[0].Seq)
	assert.Equal(t, vault.EventResumed, evs[0].Kind)
}

type failingStore struct {
	*db.Manager
	fail bool
}

func (s *failingStore) Commit(ops []types.WriteOp) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Manager.Commit(ops)
}

func TestCommitFailureAfterLedgerCall(t *testing.T) {
	mgr, err := db.NewInMemoryManager()
	require.NoError(t, err)
	defer mgr.Close()
	store := &failingStore{Manager: mgr}

	e := newTestEnvWithStore(t, store)
	e.register(t, usdt)
	e.fund(t, usdt, alice, 10)

	store.fail = true
	_, err = e.v.Deposit(context.Background(), alice, usdt, big.NewInt(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrCommitFailed)

	// 外部转账已发生，金库状态未写入
	assert.Equal(t, int64(10), e.chain.BalanceOf(usdt, custody).Int64())
	store.fail = false
	assert.Equal(t, int64(0), e.balance(t, alice, usdt))
	assert.Len(t, e.sink.snapshot(), 1)
}

func TestConcurrentDepositsSerialised(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), e.balance(t, alice, usdt))
	assert.Equal(t, int64(50), e.chain.BalanceOf(usdt, custody).Int64())
	assert.Len(t, e.events(t), 51)
}

func TestBalanceEqualsDepositsMinusWithdrawals(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, usdt)
	e.fund(t, usdt, alice, 1000)

	deposits := []int64{100, 250, 7, 0, 43}
	withdrawals := []int64{50, 300, 0, 1}
	var expected int64
	for i := range deposits {
		_, err := e.v.Deposit(ctx, alice, usdt, big.NewInt(deposits[i]))
		require.NoError(t, err)
		expected += deposits[i]
		if i < len(withdrawals) {
			_, err := e.v.Withdraw(ctx, alice, usdt, big.NewInt(withdrawals[i]))
			require.NoError(t, err)
			expected -= withdrawals[i]
		}
		assert.Equal(t, expected, e.balance(t, alice, usdt))
	}
	// 内部余额总和等于托管地址持有量
	assert.Equal(t, expected, e.chain.BalanceOf(usdt, custody).Int64())
}
