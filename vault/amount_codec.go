package vault

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount 解析外部输入的金额（API / CLI）。
// 接受 "100"、"100.0"、"1e3" 这类整数值，拒绝小数、负数和超过 MaxUint256 的值。
func ParseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return decimalToAmount(v)
}

func decimalToAmount(v decimal.Decimal) (*big.Int, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: must be non-negative, got %s", ErrInvalidAmount, v.String())
	}
	if !v.IsInteger() {
		return nil, fmt.Errorf("%w: must be integer, got %s", ErrInvalidAmount, v.String())
	}
	bi := v.BigInt()
	if bi.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, ErrOverflow)
	}
	return bi, nil
}

// FormatAmount 按资产精度输出可读金额，例如 decimals=6 时 1500000 -> "1.5"
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// validateAmount 操作入参检查：非空、非负、不超过 MaxUint256
func validateAmount(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing amount", ErrInvalidAmount)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: must be non-negative, got %s", ErrInvalidAmount, v.String())
	}
	if v.Cmp(MaxUint256) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, ErrOverflow)
	}
	return nil
}
