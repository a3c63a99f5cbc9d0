package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"custody/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

var (
	ErrBadPublicKey  = errors.New("malformed public key")
	ErrBadSignature  = errors.New("malformed signature")
	ErrSignature     = errors.New("signature verification failed")
	ErrMissingFields = errors.New("missing request fields")
)

// Request 签名的变更请求。调用方身份由公钥推导，不由请求自报。
type Request struct {
	Op        string `json:"op"`
	Asset     string `json:"asset,omitempty"`
	Amount    string `json:"amount,omitempty"`
	NewAdmin  string `json:"new_admin,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix 秒
	Nonce     string `json:"nonce"`
	PubKey    string `json:"pubkey"`    // 压缩公钥 hex
	Signature string `json:"signature"` // DER 签名 hex
}

// NewRequest 带时间戳和随机 nonce 的未签名请求
func NewRequest(op, asset, amount, newAdmin string, now time.Time) *Request {
	return &Request{
		Op:        op,
		Asset:     asset,
		Amount:    amount,
		NewAdmin:  newAdmin,
		Timestamp: now.Unix(),
		Nonce:     uuid.NewString(),
	}
}

// SigningPayload 被签名的规范化文本
func (r *Request) SigningPayload() string {
	return strings.Join([]string{
		r.Op,
		r.Asset,
		r.Amount,
		r.NewAdmin,
		strconv.FormatInt(r.Timestamp, 10),
		r.Nonce,
	}, "|")
}

// Digest double-SHA256(payload)
func (r *Request) Digest() []byte {
	return chainhash.DoubleHashB([]byte(r.SigningPayload()))
}

// Sign 用私钥签名，写入 PubKey 和 Signature
func (r *Request) Sign(priv *btcec.PrivateKey) {
	sig := ecdsa.Sign(priv, r.Digest())
	r.PubKey = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	r.Signature = hex.EncodeToString(sig.Serialize())
}

// Verify 校验签名，返回公钥
func (r *Request) Verify() (*btcec.PublicKey, error) {
	if r.Op == "" || r.Nonce == "" || r.PubKey == "" || r.Signature == "" {
		return nil, ErrMissingFields
	}
	rawPub, err := hex.DecodeString(r.PubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	pub, err := btcec.ParsePubKey(rawPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	rawSig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(rawSig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(r.Digest(), pub) {
		return nil, ErrSignature
	}
	return pub, nil
}

// Signer 持有一把私钥，对请求签名
type Signer struct {
	priv    *btcec.PrivateKey
	address types.Address
}

// NewSigner 从 WIF 或 hex 私钥创建
func NewSigner(keyStr string, style AddressStyle) (*Signer, error) {
	priv, err := ParsePrivateKey(keyStr)
	if err != nil {
		return nil, err
	}
	addr, err := DeriveAddress(priv.PubKey(), style)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, address: addr}, nil
}

func (s *Signer) Address() types.Address {
	return s.address
}

// Sign 创建并签名一个请求
func (s *Signer) Sign(op, asset, amount, newAdmin string, now time.Time) *Request {
	req := NewRequest(op, asset, amount, newAdmin, now)
	req.Sign(s.priv)
	return req
}
