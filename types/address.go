package types

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyIdentifier   = errors.New("empty identifier")
	ErrIdentifierTooLong = errors.New("identifier too long")
	ErrIdentifierChars   = errors.New("identifier contains illegal characters")
)

// MaxIdentifierLen 地址和资产标识的最大长度
const MaxIdentifierLen = 128

// Address 调用方身份（bech32 或 0x 十六进制地址）
type Address string

// AssetID 外部资产标识，例如 ERC-20 合约地址
type AssetID string

func (a Address) String() string { return string(a) }

func (a AssetID) String() string { return string(a) }

// Validate 地址会被拼进存储 key，只允许 [A-Za-z0-9.:-]
func (a Address) Validate() error {
	if err := validateIdentifier(string(a)); err != nil {
		return fmt.Errorf("address %q: %w", string(a), err)
	}
	return nil
}

// Validate 同 Address.Validate
func (a AssetID) Validate() error {
	if err := validateIdentifier(string(a)); err != nil {
		return fmt.Errorf("asset %q: %w", string(a), err)
	}
	return nil
}

func validateIdentifier(s string) error {
	if s == "" {
		return ErrEmptyIdentifier
	}
	if len(s) > MaxIdentifierLen {
		return ErrIdentifierTooLong
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == ':', c == '-':
		default:
			return ErrIdentifierChars
		}
	}
	return nil
}
