// Package identity 调用方身份：secp256k1 密钥、地址推导、签名请求。
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"custody/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// AddressStyle 地址风格
type AddressStyle string

const (
	StyleBTC AddressStyle = "btc" // bech32 P2WPKH（bc1q…）
	StyleETH AddressStyle = "eth" // keccak256(pub)[12:]，0x 前缀
)

var ErrUnknownStyle = errors.New("unknown address style")

// ParseStyle 解析配置中的地址风格
func ParseStyle(s string) (AddressStyle, error) {
	switch AddressStyle(s) {
	case StyleBTC, StyleETH:
		return AddressStyle(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// GenerateKey 生成新的 secp256k1 私钥
func GenerateKey() (*btcec.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// ParsePrivateKey 同时支持 WIF 或 16 进制的32字节私钥字符串
func ParsePrivateKey(keyStr string) (*btcec.PrivateKey, error) {
	// 1) 尝试当作WIF解析
	if wif, err := btcutil.DecodeWIF(keyStr); err == nil {
		return wif.PrivKey, nil
	}

	// 2) 如果不是WIF，则尝试按Hex进行解析
	raw, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, errors.New("invalid key (neither valid WIF nor valid hex): " + err.Error())
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid private key length in hex (must be 32 bytes)")
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// EncodePrivateKey 32 字节私钥的 hex 编码
func EncodePrivateKey(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(priv.Serialize())
}

// EncodeWIF 主网压缩公钥格式的 WIF
func EncodeWIF(priv *btcec.PrivateKey) (string, error) {
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

// DeriveAddress 按地址风格从公钥推导地址
func DeriveAddress(pub *btcec.PublicKey, style AddressStyle) (types.Address, error) {
	switch style {
	case StyleBTC:
		return deriveBtcBech32Address(pub)
	case StyleETH:
		return deriveEthereumAddress(pub), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, style)
}

// deriveEthereumAddress keccak256(pubUncompressed[1:]) 的最后20字节
func deriveEthereumAddress(pub *btcec.PublicKey) types.Address {
	// uncompressed 公钥：首字节0x04 + 32字节X + 32字节Y
	pubUncompressed := pub.SerializeUncompressed()

	hash := sha3.NewLegacyKeccak256()
	hash.Write(pubUncompressed[1:])
	digest := hash.Sum(nil)

	return types.Address("0x" + hex.EncodeToString(digest[12:]))
}

// deriveBtcBech32Address 生成 bc1q 地址
func deriveBtcBech32Address(pub *btcec.PublicKey) (types.Address, error) {
	// Hash160 == SHA-256 + RIPEMD-160
	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())

	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	return types.Address(addr.String()), nil
}
