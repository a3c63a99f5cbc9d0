package vault

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"custody/keys"
	"custody/types"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ============================================
// 金库状态读写辅助函数
// 每个状态单元一个 key，值用 protobuf wrapper 编码
// ============================================

func getStatus(sv StateView) (Status, error) {
	data, exists, err := sv.Get(keys.KeyVaultStatus())
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotInitialized
	}
	var v wrapperspb.UInt32Value
	if err := proto.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode vault status: %w", err)
	}
	return Status(v.GetValue()), nil
}

func setStatus(sv StateView, s Status) {
	data, _ := proto.Marshal(wrapperspb.UInt32(uint32(s)))
	sv.Set(keys.KeyVaultStatus(), data)
}

func getAdmin(sv StateView) (types.Address, error) {
	data, exists, err := sv.Get(keys.KeyVaultAdmin())
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotInitialized
	}
	var v wrapperspb.StringValue
	if err := proto.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("decode vault admin: %w", err)
	}
	return types.Address(v.GetValue()), nil
}

func setAdmin(sv StateView, admin types.Address) {
	data, _ := proto.Marshal(wrapperspb.String(string(admin)))
	sv.Set(keys.KeyVaultAdmin(), data)
}

func isWhitelisted(sv StateView, asset types.AssetID) (bool, error) {
	_, exists, err := sv.Get(keys.KeyWhitelist(string(asset)))
	if err != nil {
		return false, err
	}
	return exists, nil
}

// addToWhitelist 白名单只增不减，没有对应的删除函数
func addToWhitelist(sv StateView, asset types.AssetID, at time.Time) {
	data, _ := proto.Marshal(wrapperspb.Int64(at.Unix()))
	sv.Set(keys.KeyWhitelist(string(asset)), data)
}

func listWhitelist(sv StateView) ([]types.AssetID, error) {
	entries, err := sv.Scan(keys.KeyWhitelistPrefix())
	if err != nil {
		return nil, err
	}
	assets := make([]types.AssetID, 0, len(entries))
	for k := range entries {
		if asset, ok := keys.AssetFromWhitelistKey(k); ok {
			assets = append(assets, types.AssetID(asset))
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
	return assets, nil
}

func decodeBalance(data []byte) (*big.Int, error) {
	var v wrapperspb.StringValue
	if err := proto.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return ParseBalance(v.GetValue())
}

// GetBalance 获取 (地址, 资产) 余额，不存在视为 0
func GetBalance(sv StateView, addr types.Address, asset types.AssetID) (*big.Int, error) {
	data, exists, err := sv.Get(keys.KeyBalance(string(addr), string(asset)))
	if err != nil {
		return nil, err
	}
	if !exists || len(data) == 0 {
		return big.NewInt(0), nil
	}
	return decodeBalance(data)
}

// SetBalance 设置余额；归零时删除记录，保持“缺省即 0”
func SetBalance(sv StateView, addr types.Address, asset types.AssetID, balance *big.Int) {
	key := keys.KeyBalance(string(addr), string(asset))
	if balance.Sign() == 0 {
		sv.Del(key)
		return
	}
	data, _ := proto.Marshal(wrapperspb.String(balance.String()))
	sv.Set(key, data)
}

// GetBalances 列出某地址所有非零余额
func GetBalances(sv StateView, addr types.Address) (map[types.AssetID]*big.Int, error) {
	entries, err := sv.Scan(keys.KeyBalancePrefix(string(addr)))
	if err != nil {
		return nil, err
	}
	out := make(map[types.AssetID]*big.Int, len(entries))
	for k, data := range entries {
		asset, ok := keys.AssetFromBalanceKey(string(addr), k)
		if !ok {
			continue
		}
		bal, err := decodeBalance(data)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", k, err)
		}
		out[types.AssetID(asset)] = bal
	}
	return out, nil
}

func getEventSeq(sv StateView) (uint64, error) {
	data, exists, err := sv.Get(keys.KeyEventSeq())
	if err != nil || !exists {
		return 0, err
	}
	var v wrapperspb.UInt64Value
	if err := proto.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode event seq: %w", err)
	}
	return v.GetValue(), nil
}

func setEventSeq(sv StateView, seq uint64) {
	data, _ := proto.Marshal(wrapperspb.UInt64(seq))
	sv.Set(keys.KeyEventSeq(), data)
}
