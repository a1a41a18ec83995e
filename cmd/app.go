package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/internal/database"
	"consolidation-guard/internal/engine"
	"consolidation-guard/internal/fetcher"
	"consolidation-guard/internal/monitor"
	"consolidation-guard/internal/notifier"
	"consolidation-guard/internal/storage"
	"consolidation-guard/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp 创建应用程序实例
func NewApp(config *types.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 Consolidation Guard 启动中...")

	app.wg.Add(1)
	go app.runStrategy()

	return nil
}

// runStrategy 启动盘整突破决策系统
func (app *App) runStrategy() {
	defer app.wg.Done()

	strategyCfg := app.config.Strategy.Consolidation
	if !strategyCfg.Enabled {
		zap.L().Info("🚫 盘整突破策略未启用")
		return
	}

	wsConfig := types.WebSocketConfig{
		OKXEndpoint:          "wss://ws.okx.com:8443/ws/v5/public",
		ReconnectInterval:    5 * time.Second,
		PingInterval:         20 * time.Second,
		MaxReconnectAttempts: 10,
	}

	// 实时价格状态（Redis热备份，可降级为纯内存）
	stateManager := storage.NewStateManager(app.config.Redis)

	// 数据库连接失败时降级为无持久化运行
	dbManager, err := database.NewManager(app.config.Database.MySQL)
	if err != nil {
		zap.L().Warn("⚠️ 数据库连接失败，以无持久化模式运行", zap.Error(err))
		dbManager = nil
	}

	notifyService := notifier.NewDingTalkNotifier(
		app.config.DingTalk.WebhookURL, app.config.DingTalk.Secret)

	consolidationEngine := engine.NewConsolidationEngine(
		strategyCfg, wsConfig, app.config.Network,
		stateManager, dbManager, notifyService)

	if err := consolidationEngine.Start(); err != nil {
		zap.L().Error("❌ 决策引擎启动失败", zap.Error(err))
		return
	}

	// 实时价格轮询供退出检查使用
	priceFetcher := fetcher.NewPriceFetcher(stateManager, strategyCfg.Symbols, app.config.Network)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		priceFetcher.Start(app.ctx)
	}()

	performanceMonitor := monitor.NewPerformanceMonitor(dbManager, consolidationEngine, strategyCfg)
	performanceMonitor.Start()

	zap.L().Info("✅ 盘整突破决策系统已启动")

	<-app.ctx.Done()

	performanceMonitor.Stop()
	consolidationEngine.Stop()
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 正在停止 Consolidation Guard...")

	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ Consolidation Guard 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 关闭超时，强制退出")
	}
}

// WaitForShutdown 等待停止信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	zap.L().Info("📴 收到停止信号")
}
