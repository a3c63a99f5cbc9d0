// keys/keys.go
// 统一的 Key 定义包，供 vault 和 db 模块共同使用
package keys

import (
	"fmt"
	"strings"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 把带版本的键去掉版本前缀
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	return strings.TrimPrefix(prefixed, KeyVersion+"_")
}

// ===================== 金库全局状态 =====================

// KeyVaultStatus 运行状态（Running / Paused）
// 例：v1_vault_status
func KeyVaultStatus() string {
	return withVer("vault_status")
}

// KeyVaultAdmin 当前管理员
// 例：v1_vault_admin
func KeyVaultAdmin() string {
	return withVer("vault_admin")
}

// ===================== 白名单 =====================

// KeyWhitelist 白名单条目
// 例：v1_whitelist_<asset>
func KeyWhitelist(asset string) string {
	return withVer("whitelist_" + asset)
}

// KeyWhitelistPrefix 白名单前缀，用于列举
func KeyWhitelistPrefix() string {
	return withVer("whitelist_")
}

// AssetFromWhitelistKey 从白名单 key 还原资产标识
func AssetFromWhitelistKey(key string) (string, bool) {
	p := KeyWhitelistPrefix()
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	return key[len(p):], true
}

// ===================== 余额 =====================

// KeyBalance 单个 (地址, 资产) 余额
// 例：v1_balance_<address>_<asset>
func KeyBalance(addr, asset string) string {
	return withVer(fmt.Sprintf("balance_%s_%s", addr, asset))
}

// KeyBalancePrefix 某地址的全部余额前缀
// 例：v1_balance_<address>_
func KeyBalancePrefix(addr string) string {
	return withVer(fmt.Sprintf("balance_%s_", addr))
}

// AssetFromBalanceKey 从余额 key 还原资产标识（地址不含下划线）
func AssetFromBalanceKey(addr, key string) (string, bool) {
	p := KeyBalancePrefix(addr)
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	return key[len(p):], true
}

// ===================== 事件日志 =====================

// KeyEventSeq 最新事件序号
// 例：v1_event_seq
func KeyEventSeq() string {
	return withVer("event_seq")
}

// KeyEvent 事件记录，序号补零保证字典序 == 数值序
// 例：v1_event_00000000000000000042
func KeyEvent(seq uint64) string {
	return withVer(fmt.Sprintf("event_%020d", seq))
}

// KeyEventPrefix 事件记录前缀（不会匹配 v1_event_seq）
func KeyEventPrefix() string {
	return withVer("event_0")
}
