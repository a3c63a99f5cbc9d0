package memledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"custody/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdt    = "USDT"
	alice   = "alice"
	vaultID = "vault"
)

func setup(t *testing.T) (*Ledger, *Client) {
	t.Helper()
	l := New()
	require.NoError(t, l.Mint(usdt, alice, big.NewInt(1000)))
	return l, l.ForCustodian(vaultID)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l, c := setup(t)
	require.NoError(t, l.Approve(usdt, alice, vaultID, big.NewInt(300)))

	require.NoError(t, c.TransferFrom(context.Background(), usdt, alice, big.NewInt(100)))

	assert.Equal(t, "900", l.BalanceOf(usdt, alice).String())
	assert.Equal(t, "100", l.BalanceOf(usdt, vaultID).String())
	assert.Equal(t, "200", l.Allowance(usdt, alice, vaultID).String())
}

func TestTransferFromInsufficientAllowance(t *testing.T) {
	l, c := setup(t)
	require.NoError(t, l.Approve(usdt, alice, vaultID, big.NewInt(10)))

	err := c.TransferFrom(context.Background(), usdt, alice, big.NewInt(11))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	var lerr *ledger.Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "transferFrom", lerr.Op)
	assert.Equal(t, "1000", l.BalanceOf(usdt, alice).String())
	assert.Equal(t, "10", l.Allowance(usdt, alice, vaultID).String())
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	l, c := setup(t)
	require.NoError(t, l.Approve(usdt, alice, vaultID, big.NewInt(5000)))

	err := c.TransferFrom(context.Background(), usdt, alice, big.NewInt(1001))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, "5000", l.Allowance(usdt, alice, vaultID).String())
}

func TestTransferFromCustody(t *testing.T) {
	l, c := setup(t)
	require.NoError(t, l.Mint(usdt, vaultID, big.NewInt(50)))

	require.NoError(t, c.Transfer(context.Background(), usdt, alice, big.NewInt(50)))
	assert.Equal(t, "1050", l.BalanceOf(usdt, alice).String())
	assert.Equal(t, "0", l.BalanceOf(usdt, vaultID).String())

	err := c.Transfer(context.Background(), usdt, alice, big.NewInt(1))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestUnknownAsset(t *testing.T) {
	_, c := setup(t)
	err := c.Transfer(context.Background(), "DOGE", alice, big.NewInt(1))
	assert.ErrorIs(t, err, ledger.ErrUnknownAsset)
}

func TestHookFailureUndoesMovement(t *testing.T) {
	l, c := setup(t)
	require.NoError(t, l.Approve(usdt, alice, vaultID, big.NewInt(100)))

	boom := errors.New("receiver rejected")
	var seen Movement
	l.SetHook(func(ctx context.Context, mv Movement) error {
		seen = mv
		// 回调期间移动已经生效，且未持有账本锁
		assert.Equal(t, "60", l.BalanceOf(usdt, vaultID).String())
		return boom
	})

	err := c.TransferFrom(context.Background(), usdt, alice, big.NewInt(60))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "transferFrom", seen.Op)
	assert.Equal(t, "1000", l.BalanceOf(usdt, alice).String())
	assert.Equal(t, "0", l.BalanceOf(usdt, vaultID).String())
	assert.Equal(t, "100", l.Allowance(usdt, alice, vaultID).String())
}

func TestApproveRejectsInvalidAmount(t *testing.T) {
	l, _ := setup(t)

	err := l.Approve(usdt, alice, vaultID, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	err = l.Approve(usdt, alice, vaultID, big.NewInt(-1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Equal(t, "0", l.Allowance(usdt, alice, vaultID).String())
}
