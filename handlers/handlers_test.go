package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody/db"
	"custody/identity"
	"custody/ledger"
	"custody/ledger/memledger"
	"custody/types"
	"custody/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	custodyAddr types.Address = "vault-custody"
	usdt        types.AssetID = "USDT"
)

type apiEnv struct {
	srv   *httptest.Server
	chain *memledger.Ledger
	admin *identity.Signer
	user  *identity.Signer
	hm    *HandlerManager
}

func newSigner(t *testing.T) *identity.Signer {
	t.Helper()
	priv, err := identity.GenerateKey()
	require.NoError(t, err)
	s, err := identity.NewSigner(identity.EncodePrivateKey(priv), identity.StyleETH)
	require.NoError(t, err)
	return s
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	return newAPIEnvWithLedger(t, func(c ledger.AssetLedger) ledger.AssetLedger { return c })
}

// pendingLedger 转账照常执行，但报告结果未知（例如等回执超时）
type pendingLedger struct {
	ledger.AssetLedger
}

func (p pendingLedger) Transfer(ctx context.Context, asset types.AssetID, to types.Address, amount *big.Int) error {
	if err := p.AssetLedger.Transfer(ctx, asset, to, amount); err != nil {
		return err
	}
	return ledger.Wrap("transfer", asset, to, amount, ledger.ErrOutcomePending)
}

func newAPIEnvWithLedger(t *testing.T, wrap func(ledger.AssetLedger) ledger.AssetLedger) *apiEnv {
	t.Helper()
	store, err := db.NewInMemoryManager()
	require.NoError(t, err)
	t.Cleanup(store.Close)

	admin := newSigner(t)
	user := newSigner(t)
	chain := memledger.New()

	v, err := vault.New(store, wrap(chain.ForCustodian(custodyAddr)), vault.Options{
		Admin:   admin.Address(),
		Custody: custodyAddr,
	})
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(identity.StyleETH, time.Minute, 1024)
	require.NoError(t, err)

	hm := NewHandlerManager(v, verifier, nil, 0)
	mux := http.NewServeMux()
	hm.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiEnv{srv: srv, chain: chain, admin: admin, user: user, hm: hm}
}

func (e *apiEnv) post(t *testing.T, path string, req *identity.Request) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *apiEnv) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *apiEnv) registerUSDT(t *testing.T) {
	t.Helper()
	req := e.admin.Sign(string(vault.OpRegisterToken), string(usdt), "", "", time.Now())
	resp := e.post(t, "/admin/register_token", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (e *apiEnv) fund(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, e.chain.Mint(usdt, e.user.Address(), big.NewInt(amount)))
	require.NoError(t, e.chain.Approve(usdt, e.user.Address(), custodyAddr, big.NewInt(amount)))
}

func TestDepositAndWithdrawOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 1000)

	resp := env.post(t, "/deposit", env.user.Sign("deposit", string(usdt), "600", "", time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[ReceiptResponse](t, resp)
	assert.Equal(t, "SUCCEED", receipt.Status)
	require.NotNil(t, receipt.Event)
	assert.Equal(t, "TokenDeposited", receipt.Event.Kind)
	assert.Equal(t, "600", receipt.Event.Amount)
	assert.Equal(t, string(env.user.Address()), receipt.Event.Caller)

	resp = env.post(t, "/withdraw", env.user.Sign("withdraw", string(usdt), "250", "", time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var bal BalanceResponse
	code := env.get(t, "/balance?caller="+string(env.user.Address())+"&asset=USDT", &bal)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "350", bal.Balance)

	var all BalancesResponse
	env.get(t, "/balances?caller="+string(env.user.Address()), &all)
	assert.Equal(t, map[string]string{"USDT": "350"}, all.Balances)

	assert.Equal(t, "650", env.chain.BalanceOf(usdt, env.user.Address()).String())
}

func TestPendingWithdrawAccepted(t *testing.T) {
	env := newAPIEnvWithLedger(t, func(c ledger.AssetLedger) ledger.AssetLedger { return pendingLedger{c} })
	env.registerUSDT(t)
	env.fund(t, 100)
	require.Equal(t, http.StatusOK, env.post(t, "/deposit", env.user.Sign("deposit", "USDT", "100", "", time.Now())).StatusCode)

	resp := env.post(t, "/withdraw", env.user.Sign("withdraw", "USDT", "40", "", time.Now()))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	receipt := decode[ReceiptResponse](t, resp)
	assert.Equal(t, "PENDING", receipt.Status)
	require.NotNil(t, receipt.Event)
	assert.True(t, receipt.Event.Pending)

	// 记账已保留，不能再用同一笔余额提现
	var bal BalanceResponse
	env.get(t, "/balance?caller="+string(env.user.Address())+"&asset=USDT", &bal)
	assert.Equal(t, "60", bal.Balance)
}

func TestSameNonceFromDifferentCallers(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.chain.CreateAsset(usdt)

	var opIDs []string
	for i := 0; i < 2; i++ {
		priv, err := identity.GenerateKey()
		require.NoError(t, err)
		req := identity.NewRequest("deposit", "USDT", "0", "", time.Now())
		req.Nonce = "nonce-1"
		req.Sign(priv)

		resp := env.post(t, "/deposit", req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		receipt := decode[ReceiptResponse](t, resp)
		require.NotNil(t, receipt.Event)
		assert.Equal(t, receipt.OpID, receipt.Event.OpID)
		opIDs = append(opIDs, receipt.OpID)
	}

	assert.NotEqual(t, "nonce-1", opIDs[0])
	assert.NotEqual(t, opIDs[0], opIDs[1])
}

func TestStatusListsOps(t *testing.T) {
	env := newAPIEnv(t)
	var st StatusResponse
	require.Equal(t, http.StatusOK, env.get(t, "/status", &st))
	assert.Equal(t, "Running", st.Status)
	assert.Contains(t, st.Ops, "deposit")
	assert.Contains(t, st.Ops, "transfer_admin")
}

func TestBalanceWithDecimals(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 1500000)
	require.Equal(t, http.StatusOK, env.post(t, "/deposit", env.user.Sign("deposit", "USDT", "1500000", "", time.Now())).StatusCode)

	base := "/balance?caller=" + string(env.user.Address()) + "&asset=USDT"
	var bal BalanceResponse
	require.Equal(t, http.StatusOK, env.get(t, base+"&decimals=6", &bal))
	assert.Equal(t, "1500000", bal.Balance)
	assert.Equal(t, "1.5", bal.Formatted)

	bal = BalanceResponse{}
	env.get(t, base, &bal)
	assert.Empty(t, bal.Formatted)

	var all BalancesResponse
	env.get(t, "/balances?caller="+string(env.user.Address())+"&decimals=6", &all)
	assert.Equal(t, map[string]string{"USDT": "1.5"}, all.Formatted)

	assert.Equal(t, http.StatusBadRequest, env.get(t, base+"&decimals=-1", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, base+"&decimals=200", nil))
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 100)
	require.Equal(t, http.StatusOK, env.post(t, "/deposit", env.user.Sign("deposit", "USDT", "100", "", time.Now())).StatusCode)

	resp := env.post(t, "/withdraw", env.user.Sign("withdraw", "USDT", "101", "", time.Now()))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "not_enough_balance", body.Kind)
	assert.Equal(t, "101", body.Requested)
	assert.Equal(t, "100", body.Available)
	assert.Equal(t, "USDT", body.Asset)
}

func TestReplayedRequestRejected(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 1000)

	req := env.user.Sign("deposit", "USDT", "10", "", time.Now())
	require.Equal(t, http.StatusOK, env.post(t, "/deposit", req).StatusCode)

	resp := env.post(t, "/deposit", req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, resp).Kind)

	var bal BalanceResponse
	env.get(t, "/balance?caller="+string(env.user.Address())+"&asset=USDT", &bal)
	assert.Equal(t, "10", bal.Balance)
}

func TestTamperedRequestRejected(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 1000)

	req := env.user.Sign("deposit", "USDT", "10", "", time.Now())
	req.Amount = "900"
	resp := env.post(t, "/deposit", req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpiredRequestRejected(t *testing.T) {
	env := newAPIEnv(t)
	req := env.admin.Sign("pause", "", "", "", time.Now().Add(-time.Hour))
	resp := env.post(t, "/admin/pause", req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOpMustMatchEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.post(t, "/admin/unpause", env.admin.Sign("pause", "", "", "", time.Now()))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", decode[ErrorResponse](t, resp).Kind)
}

func TestMutationRequiresPost(t *testing.T) {
	env := newAPIEnv(t)
	resp, err := http.Get(env.srv.URL + "/deposit")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminOpsByNonAdminForbidden(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.post(t, "/admin/register_token", env.user.Sign("register_token", "USDT", "", "", time.Now()))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "unauthorized_caller", body.Kind)
	assert.Equal(t, string(env.user.Address()), body.Caller)
}

func TestUnwhitelistedAssetForbidden(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.post(t, "/deposit", env.user.Sign("deposit", "DAI", "1", "", time.Now()))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "unauthorized_token", body.Kind)
	assert.Equal(t, "DAI", body.Asset)
}

func TestPauseBlocksDeposits(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 10)

	require.Equal(t, http.StatusOK, env.post(t, "/admin/pause", env.admin.Sign("pause", "", "", "", time.Now())).StatusCode)

	var status StatusResponse
	env.get(t, "/status", &status)
	assert.Equal(t, "Paused", status.Status)

	resp := env.post(t, "/deposit", env.user.Sign("deposit", "USDT", "1", "", time.Now()))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "action_when_paused", decode[ErrorResponse](t, resp).Kind)

	resp = env.post(t, "/admin/pause", env.admin.Sign("pause", "", "", "", time.Now()))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Equal(t, http.StatusOK, env.post(t, "/admin/unpause", env.admin.Sign("unpause", "", "", "", time.Now())).StatusCode)
	env.get(t, "/status", &status)
	assert.Equal(t, "Running", status.Status)
}

func TestTransferAdminOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	newAdmin := string(env.user.Address())
	resp := env.post(t, "/admin/transfer", env.admin.Sign("transfer_admin", "", "", newAdmin, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var admin AdminResponse
	env.get(t, "/admin", &admin)
	assert.Equal(t, newAdmin, admin.Admin)

	resp = env.post(t, "/admin/pause", env.admin.Sign("pause", "", "", "", time.Now()))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInvalidAmount(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	for _, amount := range []string{"abc", "-1", "1.5"} {
		resp := env.post(t, "/deposit", env.user.Sign("deposit", "USDT", amount, "", time.Now()))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, amount)
	}
}

func TestMalformedBody(t *testing.T) {
	env := newAPIEnv(t)
	resp, err := http.Post(env.srv.URL+"/deposit", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWhitelistAndEvents(t *testing.T) {
	env := newAPIEnv(t)
	env.registerUSDT(t)
	env.fund(t, 5)
	require.Equal(t, http.StatusOK, env.post(t, "/deposit", env.user.Sign("deposit", "USDT", "5", "", time.Now())).StatusCode)

	var wl WhitelistResponse
	env.get(t, "/whitelist", &wl)
	assert.Equal(t, []string{"USDT"}, wl.Assets)

	var one WhitelistedResponse
	env.get(t, "/whitelist?asset=DAI", &one)
	assert.False(t, one.Whitelisted)

	var evs EventsResponse
	require.Equal(t, http.StatusOK, env.get(t, "/events?from=1&limit=1", &evs))
	require.Len(t, evs.Events, 1)
	assert.Equal(t, "TokenWhitelisted", evs.Events[0].Kind)
	assert.Equal(t, uint64(2), evs.Next)

	env.get(t, "/events?from=2", &evs)
	require.Len(t, evs.Events, 1)
	assert.Equal(t, "TokenDeposited", evs.Events[0].Kind)
	assert.Equal(t, "5", evs.Events[0].Amount)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/events?limit=0", nil))
}

func TestQueryParamsRequired(t *testing.T) {
	env := newAPIEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/balance?caller=x", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/balances", nil))
}

func TestStatsRecordsRoutes(t *testing.T) {
	env := newAPIEnv(t)
	env.get(t, "/status", nil)
	env.get(t, "/balances", nil)

	snap := env.hm.Stats.Snapshot()
	assert.Equal(t, uint64(1), snap["/status"].Calls)
	assert.Equal(t, uint64(1), snap["/balances"].Errors)
}

func TestStatusForMapping(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusConflict, statusFor(vault.ErrAlreadyRegistered))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(identity.ErrReplayCacheFull))
	assert.Equal(t, "overloaded", errorKind(identity.ErrReplayCacheFull))
}
