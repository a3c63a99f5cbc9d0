// Package erc20 以太坊 ERC-20 合约上的 ledger.AssetLedger 实现。
// 资产 ID 是代币合约地址，账户是 0x 地址；金库托管地址即签名私钥对应的地址。
package erc20

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"custody/ledger"
	"custody/logs"
	"custody/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed erc20.abi.json
var erc20ABIJSON []byte

// ERC20 标准 ERC-20 ABI
var ERC20 = mustParseABI(erc20ABIJSON)

func mustParseABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend 客户端依赖的链上接口，*ethclient.Client 满足它
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config 交易参数
type Config struct {
	ReceiptTimeout time.Duration // 等待回执的上限
	PollInterval   time.Duration // 轮询回执的间隔
	GasLimit       uint64        // 0 表示每笔交易估算
}

func (c Config) withDefaults() Config {
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// Client 以托管私钥签名并发送 ERC-20 交易
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	cfg     Config

	// 串行化 nonce 分配和发送
	sendMu sync.Mutex
}

var _ ledger.AssetLedger = (*Client)(nil)

// New 创建客户端，ChainID 在这里查询一次
func New(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, cfg Config) (*Client, error) {
	if key == nil {
		return nil, errors.New("erc20: nil custody key")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("erc20: query chain id: %w", err)
	}
	return &Client{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		cfg:     cfg.withDefaults(),
	}, nil
}

// Dial 连接 RPC 节点
func Dial(ctx context.Context, rpcURL, keyHex string, cfg Config) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse custody key: %w", err)
	}
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("erc20: dial %s: %w", rpcURL, err)
	}
	c, err := New(ctx, ec, key, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	logs.Info("[ERC20] connected chain=%s custody=%s", c.chainID, c.from.Hex())
	return c, nil
}

// Custody 托管地址
func (c *Client) Custody() types.Address {
	return types.Address(c.from.Hex())
}

// TransferFrom transferFrom(from, custody, amount)
func (c *Client) TransferFrom(ctx context.Context, asset types.AssetID, from types.Address, amount *big.Int) error {
	err := c.transferFrom(ctx, asset, from, amount)
	return ledger.Wrap("transferFrom", asset, from, amount, err)
}

func (c *Client) transferFrom(ctx context.Context, asset types.AssetID, from types.Address, amount *big.Int) error {
	token, err := parseToken(asset)
	if err != nil {
		return err
	}
	owner, err := parseAccount(from)
	if err != nil {
		return err
	}
	data, err := ERC20.Pack("transferFrom", owner, c.from, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return c.send(ctx, token, data)
}

// Transfer transfer(to, amount)
func (c *Client) Transfer(ctx context.Context, asset types.AssetID, to types.Address, amount *big.Int) error {
	err := c.transfer(ctx, asset, to, amount)
	return ledger.Wrap("transfer", asset, to, amount, err)
}

func (c *Client) transfer(ctx context.Context, asset types.AssetID, to types.Address, amount *big.Int) error {
	token, err := parseToken(asset)
	if err != nil {
		return err
	}
	recipient, err := parseAccount(to)
	if err != nil {
		return err
	}
	data, err := ERC20.Pack("transfer", recipient, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return c.send(ctx, token, data)
}

// BalanceOf 链上余额
func (c *Client) BalanceOf(ctx context.Context, asset types.AssetID, account types.Address) (*big.Int, error) {
	token, err := parseToken(asset)
	if err != nil {
		return nil, err
	}
	who, err := parseAccount(account)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, token, "balanceOf", who)
}

// Allowance owner 授权给托管地址的额度
func (c *Client) Allowance(ctx context.Context, asset types.AssetID, owner types.Address) (*big.Int, error) {
	token, err := parseToken(asset)
	if err != nil {
		return nil, err
	}
	who, err := parseAccount(owner)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, token, "allowance", who, c.from)
}

func (c *Client) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := ERC20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// send 签名并发送交易，等到回执。
// 广播之后调用方取消不再生效：等待回执用脱离调用方的 ctx，
// 等不到结果时返回 ErrOutcomePending 而不是普通失败。
func (c *Client) send(ctx context.Context, token common.Address, data []byte) error {
	tx, err := c.signAndSend(ctx, token, data)
	if err != nil {
		return err
	}
	return c.waitReceipt(context.WithoutCancel(ctx), tx.Hash())
}

func (c *Client) signAndSend(ctx context.Context, token common.Address, data []byte) (*ethtypes.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gas := c.cfg.GasLimit
	if gas == 0 {
		gas, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &token, Data: data})
		if err != nil {
			// 估算失败通常意味着调用会 revert（额度或余额不足）
			return nil, fmt.Errorf("%w: estimate gas: %v", ledger.ErrTxReverted, err)
		}
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &token,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ReceiptTimeout)
	defer cancel()
	if err := c.backend.SendTransaction(sendCtx, signed); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// 节点可能已经收到交易
			logs.Warn("[ERC20] send tx=%s timed out, outcome unknown", signed.Hash().Hex())
			return nil, fmt.Errorf("%w: send tx %s: %v", ledger.ErrOutcomePending, signed.Hash().Hex(), err)
		}
		return nil, fmt.Errorf("send tx: %w", err)
	}
	logs.Debug("[ERC20] sent tx=%s nonce=%d token=%s", signed.Hash().Hex(), nonce, token.Hex())
	return signed, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s", ledger.ErrTxReverted, hash.Hex())
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			// 交易已经发出，查询失败不代表交易失败，继续轮询
			logs.Debug("[ERC20] receipt %s: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			logs.Warn("[ERC20] tx=%s not confirmed within %s", hash.Hex(), c.cfg.ReceiptTimeout)
			return fmt.Errorf("%w: tx %s: %v", ledger.ErrOutcomePending, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseToken(asset types.AssetID) (common.Address, error) {
	if !common.IsHexAddress(string(asset)) {
		return common.Address{}, fmt.Errorf("%w: %q is not a token address", ledger.ErrUnknownAsset, asset)
	}
	return common.HexToAddress(string(asset)), nil
}

func parseAccount(addr types.Address) (common.Address, error) {
	if !common.IsHexAddress(string(addr)) {
		return common.Address{}, fmt.Errorf("%w: %q", ledger.ErrInvalidAccount, addr)
	}
	return common.HexToAddress(string(addr)), nil
}
