// config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// EnvPrefix 环境变量前缀，`__` 作为层级分隔符，例如 VAULT_SERVER__ADDR
const EnvPrefix = "VAULT_"

// Config 主配置结构
type Config struct {
	Vault    VaultConfig    `koanf:"vault"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Ledger   LedgerConfig   `koanf:"ledger"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// VaultConfig 金库本身的参数
type VaultConfig struct {
	// 创世管理员（部署者），只在空库初始化时生效
	Admin string `koanf:"admin"`
	// 托管地址：外部账本上金库自己的账户
	Custody string `koanf:"custody"`
	// 调用方地址风格："btc"（bech32）或 "eth"（0x 十六进制）
	AddressStyle string `koanf:"address_style"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path             string `koanf:"path"`
	InMemory         bool   `koanf:"in_memory"`
	ValueLogFileSize int64  `koanf:"value_log_file_size"` // 64 << 20 (64MB)
	ReadCacheSize    int    `koanf:"read_cache_size"`     // 4096
}

// ServerConfig HTTP/3服务器配置
type ServerConfig struct {
	Addr     string `koanf:"addr"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// QUIC配置
	QUICKeepAlivePeriod time.Duration `koanf:"quic_keep_alive_period"` // 10 * time.Second
	QUICMaxIdleTimeout  time.Duration `koanf:"quic_max_idle_timeout"`  // 5 * time.Minute

	// HTTP配置
	HTTPTimeout        time.Duration `koanf:"http_timeout"`          // 30 * time.Second
	MaxRequestBodySize int64         `koanf:"max_request_body_size"` // 1 << 20

	// 签名请求的有效期与防重放缓存
	RequestMaxAge   time.Duration `koanf:"request_max_age"`   // 2 * time.Minute
	ReplayCacheSize int           `koanf:"replay_cache_size"` // 100000

	// 每个 IP 每秒最多请求数，0 表示不限
	RateLimitPerIP int `koanf:"rate_limit_per_ip"` // 200
}

// LedgerConfig 外部资产账本配置
type LedgerConfig struct {
	// "memory"（开发用）或 "erc20"
	Kind           string        `koanf:"kind"`
	RPCURL         string        `koanf:"rpc_url"`
	CustodyKeyHex  string        `koanf:"custody_key_hex"`
	ReceiptTimeout time.Duration `koanf:"receipt_timeout"` // 2 * time.Minute
	PollInterval   time.Duration `koanf:"poll_interval"`   // 2 * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `koanf:"level"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Console    bool   `koanf:"console"`
}

// MetricsConfig prometheus 暴露配置
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			AddressStyle: "btc",
		},
		Database: DatabaseConfig{
			Path:             "data/vault",
			ValueLogFileSize: 64 << 20,
			ReadCacheSize:    4096,
		},
		Server: ServerConfig{
			Addr:                ":6443",
			CertFile:            "server.crt",
			KeyFile:             "server.key",
			QUICKeepAlivePeriod: 10 * time.Second,
			QUICMaxIdleTimeout:  5 * time.Minute,
			HTTPTimeout:         30 * time.Second,
			MaxRequestBodySize:  1 << 20,
			RequestMaxAge:       2 * time.Minute,
			ReplayCacheSize:     100000,
			RateLimitPerIP:      200,
		},
		Ledger: LedgerConfig{
			Kind:           "memory",
			ReceiptTimeout: 2 * time.Minute,
			PollInterval:   2 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Console:    true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9464",
		},
	}
}

// LoadFromFile 默认值 <- yaml 文件（path 为空时跳过）<- VAULT_ 环境变量
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c.Vault.Admin == "" {
		return fmt.Errorf("vault.admin is required")
	}
	if c.Vault.Custody == "" {
		return fmt.Errorf("vault.custody is required")
	}
	switch c.Vault.AddressStyle {
	case "btc", "eth":
	default:
		return fmt.Errorf("vault.address_style must be btc or eth, got %q", c.Vault.AddressStyle)
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.in_memory is set")
	}
	if c.Database.ReadCacheSize < 0 {
		return fmt.Errorf("database.read_cache_size must not be negative")
	}
	if c.Server.RequestMaxAge <= 0 {
		return fmt.Errorf("server.request_max_age must be positive")
	}
	if c.Server.ReplayCacheSize <= 0 {
		return fmt.Errorf("server.replay_cache_size must be positive")
	}
	switch c.Ledger.Kind {
	case "memory":
	case "erc20":
		if c.Ledger.RPCURL == "" || c.Ledger.CustodyKeyHex == "" {
			return fmt.Errorf("ledger.rpc_url and ledger.custody_key_hex are required for erc20 ledger")
		}
		if c.Vault.AddressStyle != "eth" {
			return fmt.Errorf("erc20 ledger requires vault.address_style eth")
		}
	default:
		return fmt.Errorf("unknown ledger.kind %q", c.Ledger.Kind)
	}
	return nil
}
