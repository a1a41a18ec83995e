package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/internal/breakout"
	"consolidation-guard/internal/database"
	"consolidation-guard/internal/detector"
	"consolidation-guard/internal/fetcher"
	"consolidation-guard/internal/hunter"
	"consolidation-guard/internal/notifier"
	"consolidation-guard/internal/rangecache"
	"consolidation-guard/internal/stops"
	"consolidation-guard/internal/storage"
	"consolidation-guard/internal/websocket"
	"consolidation-guard/pkg/types"
)

const klineBufferSize = 200

// ConsolidationEngine 盘整突破决策引擎
//
// 串联整条决策链路：WebSocket K线 -> 盘整检测 -> 突破分析 -> 区间缓存，
// 并对已缓存区间持续执行止损退出检查与流动性猎杀识别。
type ConsolidationEngine struct {
	config  types.ConsolidationStrategyConfig
	wsCfg   types.WebSocketConfig
	netCfg  types.NetworkConfig

	wsClient       *websocket.Client
	rangeDetector  *detector.ConsolidationDetector
	breakoutEngine *breakout.BreakoutAnalyzer
	cacheManager   *rangecache.RangeCacheManager
	stopController *stops.DynamicStopController
	hunterDetector *hunter.LiquidityHunterDetector
	historyFetcher *fetcher.HistoryKlineFetcher
	stateManager   *storage.StateManager
	dbManager      *database.Manager
	notify         notifier.Interface

	// K线滑动缓冲区
	klineBuffer map[string][]*types.KLine
	bufferMutex sync.RWMutex

	klineChan  chan *types.KLine
	signalChan chan *types.CachedRange

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 统计
	processedKlines    int64
	detectedRanges     int64
	confirmedBreakouts int64
	exitSignals        int64
	huntSignals        int64
	statsMutex         sync.RWMutex
}

// NewConsolidationEngine 创建决策引擎
func NewConsolidationEngine(
	config types.ConsolidationStrategyConfig,
	wsCfg types.WebSocketConfig,
	netCfg types.NetworkConfig,
	stateManager *storage.StateManager,
	dbManager *database.Manager,
	notify notifier.Interface,
) *ConsolidationEngine {
	ctx, cancel := context.WithCancel(context.Background())

	if notify == nil {
		notify = notifier.NewConsoleNotifier()
	}

	return &ConsolidationEngine{
		config:         config,
		wsCfg:          wsCfg,
		netCfg:         netCfg,
		wsClient:       websocket.NewClient(wsCfg.OKXEndpoint, netCfg.Proxy, wsCfg),
		rangeDetector:  detector.NewConsolidationDetector(config.Detector),
		breakoutEngine: breakout.NewBreakoutAnalyzer(config.Breakout),
		cacheManager:   rangecache.NewRangeCacheManager(config.Cache),
		stopController: stops.NewDynamicStopController(config.Stop),
		hunterDetector: hunter.NewLiquidityHunterDetector(config.Hunter),
		historyFetcher: fetcher.NewHistoryKlineFetcher(netCfg),
		stateManager:   stateManager,
		dbManager:      dbManager,
		notify:         notify,
		klineBuffer:    make(map[string][]*types.KLine),
		klineChan:      make(chan *types.KLine, 10000),
		signalChan:     make(chan *types.CachedRange, 1000),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start 启动决策引擎
func (e *ConsolidationEngine) Start() error {
	if !e.config.Enabled {
		zap.L().Info("🚫 盘整突破策略未启用")
		return nil
	}

	zap.L().Info("🚀 盘整突破决策引擎启动",
		zap.Strings("symbols", e.config.Symbols),
		zap.String("interval", e.config.Interval))

	// 回填历史K线
	if err := e.initializeHistoryData(); err != nil {
		zap.L().Warn("⚠️ 历史K线回填失败，仅依赖实时数据", zap.Error(err))
	}

	if err := e.wsClient.Connect(); err != nil {
		return fmt.Errorf("连接行情WebSocket失败: %v", err)
	}

	if err := e.wsClient.Subscribe(e.config.Symbols, e.config.Interval); err != nil {
		return fmt.Errorf("订阅K线失败: %v", err)
	}

	e.startWorkers()

	zap.L().Info("✅ 决策引擎全部协程已启动")
	return nil
}

func (e *ConsolidationEngine) startWorkers() {
	e.wsClient.StartReading()

	e.wg.Add(1)
	go e.klineCollector()

	for i := 0; i < 5; i++ {
		e.wg.Add(1)
		go e.klineProcessor(i)
	}

	e.wg.Add(1)
	go e.signalProcessor()

	e.wg.Add(1)
	go e.exitMonitor()

	e.wg.Add(1)
	go e.databasePersister()

	e.wg.Add(1)
	go e.performanceReporter()
}

// initializeHistoryData 启动时回填历史K线并落库
func (e *ConsolidationEngine) initializeHistoryData() error {
	history, err := e.historyFetcher.FetchMultipleSymbolsHistory(
		e.config.Symbols, e.config.Interval, klineBufferSize)
	if err != nil {
		return err
	}

	e.bufferMutex.Lock()
	for symbol, klines := range history {
		e.klineBuffer[symbol] = klines
	}
	e.bufferMutex.Unlock()

	if e.dbManager != nil {
		for _, klines := range history {
			if err := e.dbManager.BatchSaveKlines(klines); err != nil {
				zap.L().Warn("历史K线落库失败", zap.Error(err))
			}
		}
	}

	zap.L().Info("📂 历史K线回填完成", zap.Int("symbols", len(history)))
	return nil
}

// klineCollector 从WebSocket收集K线转入处理通道
func (e *ConsolidationEngine) klineCollector() {
	defer e.wg.Done()

	klineChannel := e.wsClient.GetKlineChannel()

	for {
		select {
		case <-e.ctx.Done():
			return
		case kline, ok := <-klineChannel:
			if !ok {
				return
			}
			select {
			case e.klineChan <- kline:
			default:
				zap.L().Warn("K线处理通道满，丢弃数据", zap.String("symbol", kline.Symbol))
			}
		}
	}
}

// klineProcessor K线处理工作协程
func (e *ConsolidationEngine) klineProcessor(workerID int) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case kline, ok := <-e.klineChan:
			if !ok {
				return
			}
			e.processKline(kline)
		}
	}
}

// processKline 单根K线的完整决策流程
func (e *ConsolidationEngine) processKline(kline *types.KLine) {
	e.updateKlineBuffer(kline)

	e.statsMutex.Lock()
	e.processedKlines++
	e.statsMutex.Unlock()

	klines := e.getKlineHistory(kline.Symbol)
	if len(klines) < e.config.Detector.MinConsolidationBars {
		return
	}

	cached := e.cacheManager.GetActiveRangeForSymbol(kline.Symbol)
	if cached == nil {
		e.detectAndAnalyze(kline.Symbol, klines, kline.Close)
		return
	}

	// 已有活跃区间：持续检测猎杀行为
	e.detectHunting(klines, cached)
}

// detectAndAnalyze 盘整检测与突破分析
func (e *ConsolidationEngine) detectAndAnalyze(symbol string, klines []*types.KLine, currentPrice float64) {
	cr := e.rangeDetector.DetectRange(symbol, klines)
	if cr == nil {
		return
	}

	e.statsMutex.Lock()
	e.detectedRanges++
	e.statsMutex.Unlock()

	signal := e.breakoutEngine.AnalyzeBreakout(klines, cr, currentPrice)
	if signal == nil || !signal.IsConfirmed() {
		return
	}

	cached := e.cacheManager.CacheRange(cr, signal, types.UsageStopLoss, e.config.Cache.CacheExpiryHours)
	if cached == nil {
		return
	}

	e.stopController.CalculateStopLevels(cached, currentPrice, signal.BreakoutPrice, klines)

	e.statsMutex.Lock()
	e.confirmedBreakouts++
	e.statsMutex.Unlock()

	zap.L().Info("🎯 突破确认，区间已缓存",
		zap.String("symbol", symbol),
		zap.String("cache_id", cached.CacheID),
		zap.String("direction", string(signal.Direction)),
		zap.Float64("breakout_price", signal.BreakoutPrice),
		zap.Float64("quality", signal.QualityScore))

	select {
	case e.signalChan <- cached:
	default:
		zap.L().Warn("信号通道满，丢弃突破信号", zap.String("symbol", symbol))
	}
}

// detectHunting 对活跃区间执行猎杀检测
func (e *ConsolidationEngine) detectHunting(klines []*types.KLine, cached *types.CachedRange) {
	hunting := e.hunterDetector.DetectHunting(klines, cached, &cached.Signal)
	if hunting == nil {
		return
	}

	e.statsMutex.Lock()
	e.huntSignals++
	e.statsMutex.Unlock()

	if err := e.notify.SendHuntingAlert(hunting); err != nil {
		zap.L().Warn("猎杀通知发送失败", zap.Error(err))
	}

	if e.dbManager != nil {
		go func() {
			if err := e.dbManager.SaveHuntingSignal(hunting); err != nil {
				zap.L().Warn("猎杀信号落库失败", zap.Error(err))
			}
			if err := e.dbManager.UpdateSymbolPerformance(hunting.Symbol, database.EventHuntDetected, hunting.SignalQuality); err != nil {
				zap.L().Warn("性能统计更新失败", zap.Error(err))
			}
		}()
	}
}

// signalProcessor 突破信号的通知与持久化
func (e *ConsolidationEngine) signalProcessor() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case cached, ok := <-e.signalChan:
			if !ok {
				return
			}
			e.processSignal(cached)
		}
	}
}

func (e *ConsolidationEngine) processSignal(cached *types.CachedRange) {
	if err := e.notify.SendBreakoutAlert(cached); err != nil {
		zap.L().Warn("突破通知发送失败", zap.Error(err))
	}

	if e.dbManager == nil {
		return
	}

	go func() {
		if err := e.dbManager.SaveConsolidationRange(&cached.Range); err != nil {
			zap.L().Warn("盘整区间落库失败", zap.Error(err))
		}
		if err := e.dbManager.SaveBreakoutSignal(cached.CacheID, &cached.Signal); err != nil {
			zap.L().Warn("突破信号落库失败", zap.Error(err))
		}

		event := database.EventBreakoutUp
		if cached.Signal.Direction == types.BreakoutDown {
			event = database.EventBreakoutDown
		}
		if err := e.dbManager.UpdateSymbolPerformance(cached.Symbol, event, cached.Signal.QualityScore); err != nil {
			zap.L().Warn("性能统计更新失败", zap.Error(err))
		}
	}()
}

// exitMonitor 周期性退出条件检查
func (e *ConsolidationEngine) exitMonitor() {
	defer e.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range e.config.Symbols {
				e.checkExitForSymbol(symbol)
			}
			e.stopController.CleanupInactiveStops()
			e.cacheManager.CleanupExpired()
		}
	}
}

// checkExitForSymbol 对单交易对的活跃区间执行退出仲裁
func (e *ConsolidationEngine) checkExitForSymbol(symbol string) {
	cached := e.cacheManager.GetActiveRangeForSymbol(symbol)
	if cached == nil {
		return
	}

	currentPrice := e.currentPrice(symbol)
	if currentPrice <= 0 {
		return
	}

	exitSignal := e.stopController.ShouldExit(cached, currentPrice, time.Now())
	if exitSignal == nil {
		return
	}

	if !exitSignal.ShouldExit {
		// 未触发退出时顺势上移跟踪止损
		e.stopController.UpdateTrailingStop(cached.CacheID, currentPrice, cached.Signal.Direction)
		return
	}

	e.statsMutex.Lock()
	e.exitSignals++
	e.statsMutex.Unlock()

	zap.L().Info("🛑 退出信号触发",
		zap.String("symbol", symbol),
		zap.String("cache_id", cached.CacheID),
		zap.String("reason", string(exitSignal.ExitReason)),
		zap.Float64("exit_price", exitSignal.ExitPrice),
		zap.Int("urgency", exitSignal.Urgency))

	if err := e.notify.SendExitAlert(exitSignal); err != nil {
		zap.L().Warn("退出通知发送失败", zap.Error(err))
	}

	// 以突破价为基准回写本次区间的实际表现
	priceReturn := (exitSignal.ExitPrice - cached.Signal.BreakoutPrice) / cached.Signal.BreakoutPrice
	if cached.Signal.Direction == types.BreakoutDown {
		priceReturn = -priceReturn
	}
	holdingMinutes := int(time.Since(cached.CachedAt).Minutes())
	e.cacheManager.UpdateRangePerformance(cached.CacheID, priceReturn, holdingMinutes, priceReturn > 0)

	e.cacheManager.InvalidateRange(cached.CacheID, string(exitSignal.ExitReason))
	e.stopController.RemoveStops(cached.CacheID)

	if e.dbManager != nil {
		go func() {
			if err := e.dbManager.SaveExitSignal(exitSignal); err != nil {
				zap.L().Warn("退出信号落库失败", zap.Error(err))
			}
			if err := e.dbManager.UpdateSymbolPerformance(symbol, database.EventExitTriggered, exitSignal.Confidence*100); err != nil {
				zap.L().Warn("性能统计更新失败", zap.Error(err))
			}
		}()
	}
}

// currentPrice 优先取实时ticker价格，缺失时退回最新K线收盘价
func (e *ConsolidationEngine) currentPrice(symbol string) float64 {
	if e.stateManager != nil {
		if price, ok := e.stateManager.GetLatestPrice(symbol); ok {
			return price
		}
	}

	e.bufferMutex.RLock()
	defer e.bufferMutex.RUnlock()

	buffer := e.klineBuffer[symbol]
	if len(buffer) == 0 {
		return 0
	}
	return buffer[len(buffer)-1].Close
}

// databasePersister 周期性K线落库
func (e *ConsolidationEngine) databasePersister() {
	defer e.wg.Done()

	if e.dbManager == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.persistRecentKlines()
		}
	}
}

func (e *ConsolidationEngine) persistRecentKlines() {
	e.bufferMutex.RLock()
	recent := make(map[string][]*types.KLine, len(e.klineBuffer))
	for symbol, klines := range e.klineBuffer {
		n := len(klines)
		if n == 0 {
			continue
		}
		start := n - 5
		if start < 0 {
			start = 0
		}
		recent[symbol] = append([]*types.KLine(nil), klines[start:]...)
	}
	e.bufferMutex.RUnlock()

	for symbol, klines := range recent {
		go func(symbol string, klines []*types.KLine) {
			if err := e.dbManager.BatchSaveKlines(klines); err != nil {
				zap.L().Warn("K线落库失败", zap.String("symbol", symbol), zap.Error(err))
			}
		}(symbol, klines)
	}
}

// performanceReporter 周期性输出引擎运行统计
func (e *ConsolidationEngine) performanceReporter() {
	defer e.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			stats := e.GetStats()
			zap.L().Info("📊 决策引擎运行统计",
				zap.Any("processed_klines", stats["processed_klines"]),
				zap.Any("detected_ranges", stats["detected_ranges"]),
				zap.Any("confirmed_breakouts", stats["confirmed_breakouts"]),
				zap.Any("exit_signals", stats["exit_signals"]),
				zap.Any("hunt_signals", stats["hunt_signals"]),
				zap.Int("cached_ranges", e.cacheManager.Size()))
		}
	}
}

// updateKlineBuffer 更新K线滑动缓冲区
func (e *ConsolidationEngine) updateKlineBuffer(kline *types.KLine) {
	e.bufferMutex.Lock()
	defer e.bufferMutex.Unlock()

	buffer := e.klineBuffer[kline.Symbol]

	// 同一根K线重复推送时覆盖最后一根
	if n := len(buffer); n > 0 && buffer[n-1].OpenTime.Equal(kline.OpenTime) {
		buffer[n-1] = kline
		return
	}

	buffer = append(buffer, kline)
	if len(buffer) > klineBufferSize {
		buffer = buffer[len(buffer)-klineBufferSize:]
	}
	e.klineBuffer[kline.Symbol] = buffer
}

// getKlineHistory 获取K线缓冲区拷贝
func (e *ConsolidationEngine) getKlineHistory(symbol string) []*types.KLine {
	e.bufferMutex.RLock()
	defer e.bufferMutex.RUnlock()

	buffer := e.klineBuffer[symbol]
	out := make([]*types.KLine, len(buffer))
	copy(out, buffer)
	return out
}

// GetStats 获取引擎运行统计
func (e *ConsolidationEngine) GetStats() map[string]interface{} {
	e.statsMutex.RLock()
	defer e.statsMutex.RUnlock()

	return map[string]interface{}{
		"processed_klines":    e.processedKlines,
		"detected_ranges":     e.detectedRanges,
		"confirmed_breakouts": e.confirmedBreakouts,
		"exit_signals":        e.exitSignals,
		"hunt_signals":        e.huntSignals,
	}
}

// GetSystemStatus 汇总各组件的运行状态
func (e *ConsolidationEngine) GetSystemStatus() map[string]interface{} {
	return map[string]interface{}{
		"engine":   e.GetStats(),
		"detector": e.rangeDetector.GetDetectionStats(),
		"breakout": e.breakoutEngine.GetAnalysisStats(),
		"cache":    e.cacheManager.GetCacheStatistics(),
		"stops":    e.stopController.GetControllerStats(),
		"hunter":   e.hunterDetector.GetDetectionStatistics(),
	}
}

// CacheManager 暴露缓存管理器供监控模块使用
func (e *ConsolidationEngine) CacheManager() *rangecache.RangeCacheManager {
	return e.cacheManager
}

// Stop 停止决策引擎
func (e *ConsolidationEngine) Stop() {
	zap.L().Info("🛑 正在停止决策引擎...")

	e.cancel()

	if err := e.wsClient.Close(); err != nil {
		zap.L().Warn("关闭WebSocket失败", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ 决策引擎已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 决策引擎停止超时")
	}

	if e.dbManager != nil {
		if err := e.dbManager.Close(); err != nil {
			zap.L().Warn("关闭数据库连接失败", zap.Error(err))
		}
	}
}
