package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"custody/config"
	"custody/crt"
	"custody/db"
	"custody/eventbus"
	"custody/handlers"
	"custody/identity"
	"custody/ledger"
	"custody/ledger/erc20"
	"custody/ledger/memledger"
	"custody/logs"
	"custody/metrics"
	"custody/middleware"
	"custody/types"
	"custody/vault"

	"github.com/spf13/cobra"
)

var cfgFile string

func registerServe(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault API over HTTP/3 with a TLS fallback",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "yaml config file (env VAULT_* overrides)")
	parent.AddCommand(cmd)
}

// node 一个运行中的金库节点持有的全部资源
type node struct {
	store   *db.Manager
	bus     *eventbus.Bus
	vault   *vault.Vault
	metrics *metrics.VaultMetrics
	handler http.Handler
	servers *servers
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := logs.Init(logs.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    cfg.Log.Console,
	}); err != nil {
		return fmt.Errorf("init logs: %w", err)
	}
	defer logs.Sync()

	n, err := buildNode(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.close()

	if _, err := crt.EnsureCert(cfg.Server.CertFile, cfg.Server.KeyFile, string(n.vault.Custody()), nil); err != nil {
		return fmt.Errorf("prepare certificate: %w", err)
	}

	var metricsHandler http.Handler
	if n.metrics != nil && cfg.Metrics.Addr != "" {
		metricsHandler = n.metrics.Handler()
	}
	n.servers, err = startServers(cfg, n.handler, metricsHandler)
	if err != nil {
		return err
	}

	status, _ := n.vault.Status(ctx)
	admin, _ := n.vault.Admin(ctx)
	logs.Info("[Vault] serving addr=%s status=%s admin=%s custody=%s", cfg.Server.Addr, status, admin, n.vault.Custody())

	select {
	case <-ctx.Done():
		logs.Info("[Vault] shutting down")
	case err := <-n.servers.errc:
		logs.Error("[Vault] server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n.servers.shutdown(shutdownCtx)
	return nil
}

// buildNode 按配置组装存储、账本、事件总线、金库和 HTTP 处理器
func buildNode(ctx context.Context, cfg *config.Config) (*node, error) {
	n := &node{}

	var observer vault.OpObserver
	if cfg.Metrics.Enabled {
		n.metrics = metrics.NewDefaultVaultMetrics()
		observer = n.metrics
	}

	store, err := db.NewManagerWithConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n.store = store
	if n.metrics != nil {
		store.SetObserver(n.metrics)
	}

	l, err := openLedger(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	custody := types.Address(cfg.Vault.Custody)
	if l.Custody() != custody {
		logs.Warn("[Vault] vault.custody=%s differs from ledger account %s, using the ledger account", custody, l.Custody())
		custody = l.Custody()
	}

	n.bus = eventbus.New()
	if err := n.bus.LogEvents(); err != nil {
		store.Close()
		return nil, err
	}
	if n.metrics != nil {
		if err := n.bus.SubscribeAsync("", n.metrics.ObserveEvent); err != nil {
			store.Close()
			return nil, err
		}
	}

	n.vault, err = vault.New(store, l, vault.Options{
		Admin:    types.Address(cfg.Vault.Admin),
		Custody:  custody,
		Sink:     n.bus,
		Observer: observer,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open vault: %w", err)
	}

	style, err := identity.ParseStyle(cfg.Vault.AddressStyle)
	if err != nil {
		store.Close()
		return nil, err
	}
	verifier, err := identity.NewVerifier(style, cfg.Server.RequestMaxAge, cfg.Server.ReplayCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	// 没有独立 metrics 端口时挂在主路由上
	var inline http.Handler
	if n.metrics != nil && cfg.Metrics.Addr == "" {
		inline = n.metrics.Handler()
	}
	hm := handlers.NewHandlerManager(n.vault, verifier, inline, cfg.Server.MaxRequestBodySize)
	mux := http.NewServeMux()
	hm.RegisterRoutes(mux)

	rl := middleware.NewRateLimiter(cfg.Server.RateLimitPerIP, time.Second)
	rl.StartCleanup(ctx, 2*time.Minute)
	n.handler = rl.Wrap(mux)
	return n, nil
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.AssetLedger, error) {
	switch cfg.Ledger.Kind {
	case "erc20":
		c, err := erc20.Dial(ctx, cfg.Ledger.RPCURL, cfg.Ledger.CustodyKeyHex, erc20.Config{
			ReceiptTimeout: cfg.Ledger.ReceiptTimeout,
			PollInterval:   cfg.Ledger.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		logs.Warn("[Vault] using in-memory ledger, balances on the external side are not persisted")
		return memledger.New().ForCustodian(types.Address(cfg.Vault.Custody)), nil
	}
}

func (n *node) close() {
	if n.bus != nil {
		n.bus.WaitAsync()
	}
	if n.store != nil {
		n.store.Close()
	}
}
