// keys/category.go
// Key 分类模块：区分可变状态与只追加的流水
package keys

import "strings"

// KeyCategory 定义 Key 的存储归属
type KeyCategory int

const (
	CategoryKV    KeyCategory = iota // 只追加的流水（事件）
	CategoryState                    // 可变状态
)

// ========== 可变状态数据前缀 ==========
var statePrefixes = []string{
	"v1_vault_status",
	"v1_vault_admin",
	"v1_whitelist_",
	"v1_balance_",
	"v1_event_seq",
}

// CategorizeKey 判断 key 属于可变状态还是流水
func CategorizeKey(key string) KeyCategory {
	for _, prefix := range statePrefixes {
		if strings.HasPrefix(key, prefix) {
			return CategoryState
		}
	}
	return CategoryKV
}

// IsStatefulKey 判断 key 是否属于可变状态（便捷方法）
func IsStatefulKey(key string) bool {
	return CategorizeKey(key) == CategoryState
}

// IsFlowKey 判断 key 是否属于流水（便捷方法）
func IsFlowKey(key string) bool {
	return CategorizeKey(key) == CategoryKV
}

// IsBalanceKey 判断是否为余额数据
func IsBalanceKey(key string) bool {
	return strings.HasPrefix(key, "v1_balance_")
}

// IsWhitelistKey 判断是否为白名单条目
func IsWhitelistKey(key string) bool {
	return strings.HasPrefix(key, "v1_whitelist_")
}

// IsEventKey 判断是否为事件记录
func IsEventKey(key string) bool {
	return strings.HasPrefix(key, KeyEventPrefix())
}

// Category 返回写集里使用的数据分类名
func Category(key string) string {
	switch {
	case IsBalanceKey(key):
		return "balance"
	case IsWhitelistKey(key):
		return "whitelist"
	case IsEventKey(key):
		return "event"
	case key == KeyEventSeq():
		return "meta"
	case key == KeyVaultAdmin():
		return "admin"
	case key == KeyVaultStatus():
		return "status"
	}
	return ""
}
