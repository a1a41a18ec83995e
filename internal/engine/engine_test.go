package engine

import (
	"testing"
	"time"

	"consolidation-guard/internal/notifier"
	"consolidation-guard/internal/storage"
	"consolidation-guard/pkg/types"
)

func testEngine() *ConsolidationEngine {
	cfg := types.ConsolidationStrategyConfig{
		Enabled:  true,
		Symbols:  []string{"BTC-USDT"},
		Interval: "15m",
		Cache:    types.CacheConfig{CacheExpiryHours: 168},
	}
	wsCfg := types.WebSocketConfig{
		OKXEndpoint:          "wss://ws.okx.com:8443/ws/v5/public",
		ReconnectInterval:    5 * time.Second,
		PingInterval:         20 * time.Second,
		MaxReconnectAttempts: 10,
	}

	return NewConsolidationEngine(cfg, wsCfg, types.NetworkConfig{},
		storage.NewStateManager(types.RedisConfig{}), nil, notifier.NewConsoleNotifier())
}

func bar(i int, close float64) *types.KLine {
	open := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute)
	return &types.KLine{
		Symbol:    "BTC-USDT",
		OpenTime:  open,
		CloseTime: open.Add(15 * time.Minute),
		Open:      close,
		High:      close + 50,
		Low:       close - 50,
		Close:     close,
		Volume:    1000,
		Interval:  "15m",
	}
}

func testRangeAndSignal() (*types.ConsolidationRange, *types.BreakoutSignal) {
	cr := &types.ConsolidationRange{
		Symbol:          "BTC-USDT",
		StartTime:       time.Now().Add(-5 * time.Hour),
		EndTime:         time.Now(),
		DurationBars:    20,
		UpperBoundary:   50500,
		LowerBoundary:   49500,
		RangeSize:       1000,
		RangePercentage: 2.0,
		AvgPrice:        50000,
		QualityScore:    70,
		Confidence:      0.8,
		CreatedAt:       time.Now(),
	}
	signal := &types.BreakoutSignal{
		Symbol:        "BTC-USDT",
		BreakoutTime:  time.Now(),
		Direction:     types.BreakoutUp,
		BreakoutType:  types.BreakoutGenuine,
		BreakoutPrice: 50800,
		QualityScore:  72,
		Confidence:    0.8,
		CreatedAt:     time.Now(),
	}
	return cr, signal
}

func TestUpdateKlineBufferCapped(t *testing.T) {
	e := testEngine()

	for i := 0; i < klineBufferSize+50; i++ {
		e.updateKlineBuffer(bar(i, 50000))
	}

	history := e.getKlineHistory("BTC-USDT")
	if len(history) != klineBufferSize {
		t.Errorf("缓冲区应限制在%d根，实际 = %d", klineBufferSize, len(history))
	}

	// 最旧的50根应被淘汰
	expectedFirst := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(50 * 15 * time.Minute)
	if !history[0].OpenTime.Equal(expectedFirst) {
		t.Errorf("缓冲区起始K线错误: %v", history[0].OpenTime)
	}
}

func TestUpdateKlineBufferOverwritesDuplicate(t *testing.T) {
	e := testEngine()

	e.updateKlineBuffer(bar(0, 50000))
	updated := bar(0, 50100)
	e.updateKlineBuffer(updated)

	history := e.getKlineHistory("BTC-USDT")
	if len(history) != 1 {
		t.Fatalf("相同开盘时间应覆盖而非追加，长度 = %d", len(history))
	}
	if history[0].Close != 50100 {
		t.Errorf("覆盖后收盘价应为50100，实际 = %f", history[0].Close)
	}
}

func TestCurrentPriceFallback(t *testing.T) {
	e := testEngine()

	if price := e.currentPrice("BTC-USDT"); price != 0 {
		t.Errorf("无任何数据时应返回0，实际 = %f", price)
	}

	// 只有K线缓冲区时退回收盘价
	e.updateKlineBuffer(bar(0, 50200))
	if price := e.currentPrice("BTC-USDT"); price != 50200 {
		t.Errorf("应退回K线收盘价50200，实际 = %f", price)
	}

	// 有实时价格时优先使用
	e.stateManager.Store("BTC-USDT", 50350, time.Now())
	if price := e.currentPrice("BTC-USDT"); price != 50350 {
		t.Errorf("应优先使用实时价格50350，实际 = %f", price)
	}
}

func TestCheckExitInvalidatesRange(t *testing.T) {
	e := testEngine()

	cr, signal := testRangeAndSignal()
	cached := e.cacheManager.CacheRange(cr, signal, types.UsageStopLoss, 168)
	if cached == nil {
		t.Fatal("缓存区间失败")
	}

	// 价格跌回区间下方，应触发退出并使区间失效
	e.stateManager.Store("BTC-USDT", 49300, time.Now())
	e.checkExitForSymbol("BTC-USDT")

	if e.cacheManager.GetActiveRangeForSymbol("BTC-USDT") != nil {
		t.Error("退出触发后活跃区间应已失效")
	}

	stats := e.GetStats()
	if stats["exit_signals"].(int64) != 1 {
		t.Errorf("退出信号计数应为1，实际 = %v", stats["exit_signals"])
	}

	// 退出时应回写区间表现：亏损离场记为一次失败命中
	if len(cached.PriceReturns) != 1 || cached.PriceReturns[0] >= 0 {
		t.Errorf("应回写一次亏损收益，实际 = %v", cached.PriceReturns)
	}
	if cached.HitCount != 1 || cached.SuccessCount != 0 {
		t.Errorf("命中统计错误: hit=%d success=%d", cached.HitCount, cached.SuccessCount)
	}
}

func TestCheckExitKeepsHealthyPosition(t *testing.T) {
	e := testEngine()

	cr, signal := testRangeAndSignal()
	cached := e.cacheManager.CacheRange(cr, signal, types.UsageStopLoss, 168)
	if cached == nil {
		t.Fatal("缓存区间失败")
	}

	// 价格在突破方向上方，持仓健康
	e.stateManager.Store("BTC-USDT", 51200, time.Now())
	e.checkExitForSymbol("BTC-USDT")

	if e.cacheManager.GetActiveRangeForSymbol("BTC-USDT") == nil {
		t.Error("健康持仓不应被失效")
	}

	stats := e.GetStats()
	if stats["exit_signals"].(int64) != 0 {
		t.Errorf("不应产生退出信号，实际 = %v", stats["exit_signals"])
	}
}

func TestGetStatsSnapshot(t *testing.T) {
	e := testEngine()

	for i := 0; i < 3; i++ {
		e.processKline(bar(i, 50000))
	}

	stats := e.GetStats()
	if stats["processed_klines"].(int64) != 3 {
		t.Errorf("处理K线计数应为3，实际 = %v", stats["processed_klines"])
	}
	if stats["confirmed_breakouts"].(int64) != 0 {
		t.Errorf("无突破时计数应为0，实际 = %v", stats["confirmed_breakouts"])
	}
}
