package stops

import (
	"testing"
	"time"

	"consolidation-guard/pkg/types"
)

func testCachedRange(direction types.BreakoutDirection) *types.CachedRange {
	now := time.Now()
	return &types.CachedRange{
		CacheID: "stop-test-1",
		Symbol:  "BTC-USDT",
		Range: types.ConsolidationRange{
			Symbol:        "BTC-USDT",
			UpperBoundary: 50500,
			LowerBoundary: 49500,
			RangeSize:     1000,
			AvgPrice:      50000,
			DurationBars:  20,
			QualityScore:  70,
			Confidence:    0.8,
			CreatedAt:     now,
		},
		Signal: types.BreakoutSignal{
			Symbol:        "BTC-USDT",
			Direction:     direction,
			BreakoutType:  types.BreakoutGenuine,
			BreakoutPrice: 50800,
			QualityScore:  70,
			Confidence:    0.8,
			CreatedAt:     now,
		},
		Status:    types.CacheActive,
		CachedAt:  now,
		ExpiresAt: now.Add(168 * time.Hour),
	}
}

func testConfig() types.StopConfig {
	return types.StopConfig{
		RangeStopBuffer:          0.001,
		MaxStopLoss:              0.05,
		TimeStopHours:            168,
		TrailingStopDistance:     0.02,
		TrailingActivationProfit: 0.01,
		VolatilityMultiplier:     2.0,
		EmergencyStopThreshold:   0.08,
	}
}

func TestCalculateStopLevelsUp(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)

	levels := dc.CalculateStopLevels(cached, 51000, 50800, nil)

	rangeStop, ok := levels[types.StopRangeBoundary]
	if !ok {
		t.Fatal("应生成盘整带止损")
	}
	expected := 49500 * (1 - 0.001)
	if diff := rangeStop.Price - expected; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("盘整带止损价格错误: got %.4f, want %.4f", rangeStop.Price, expected)
	}
	if rangeStop.Priority != 1 || !rangeStop.IsActive {
		t.Error("盘整带止损应为优先级1且活跃")
	}

	fixed, ok := levels[types.StopFixedPercentage]
	if !ok {
		t.Fatal("应生成固定比例止损")
	}
	// 质量70分 -> 0.05 * (1.5 - 0.7*0.5) = 0.0575
	wantFixed := 50800 * (1 - 0.05*(1.5-0.35))
	if diff := fixed.Price - wantFixed; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("固定止损价格错误: got %.4f, want %.4f", fixed.Price, wantFixed)
	}

	// 盈利仅0.39%，未达1%激活线，不应有跟踪止损
	if _, ok := levels[types.StopTrailing]; ok {
		t.Error("盈利未达激活线时不应生成跟踪止损")
	}

	if timeStop, ok := levels[types.StopTimeBased]; !ok {
		t.Error("应生成时间止损")
	} else if timeStop.IsActive {
		t.Error("刚开仓的时间止损不应活跃")
	}

	if vol, ok := levels[types.StopVolatilityBased]; !ok {
		t.Error("应生成波动率止损")
	} else {
		// 无K线数据时使用2%默认波动率
		wantVol := 51000 * (1 - 0.02*2.0)
		if diff := vol.Price - wantVol; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("波动率止损价格错误: got %.4f, want %.4f", vol.Price, wantVol)
		}
	}

	if em, ok := levels[types.StopEmergency]; !ok {
		t.Error("应生成紧急止损线")
	} else if em.IsActive {
		t.Error("未达紧急亏损阈值时紧急止损不应活跃")
	}
}

func TestCalculateStopLevelsTrailingActivation(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)

	// 盈利超过1%激活线
	levels := dc.CalculateStopLevels(cached, 52000, 50800, nil)

	trailing, ok := levels[types.StopTrailing]
	if !ok {
		t.Fatal("盈利达标后应生成跟踪止损")
	}
	want := 52000 * (1 - 0.02)
	if diff := trailing.Price - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("跟踪止损价格错误: got %.4f, want %.4f", trailing.Price, want)
	}
}

func TestCalculateStopLevelsDown(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutDown)
	cached.Signal.BreakoutPrice = 49200

	levels := dc.CalculateStopLevels(cached, 49000, 49200, nil)

	rangeStop := levels[types.StopRangeBoundary]
	if rangeStop == nil {
		t.Fatal("应生成盘整带止损")
	}
	want := 50500 * (1 + 0.001)
	if diff := rangeStop.Price - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("向下突破止损应在上边界上方: got %.4f, want %.4f", rangeStop.Price, want)
	}
}

func TestRangeStopClampedToMaxLoss(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)

	// 当前价远离下边界，止损距离超过5%上限
	levels := dc.CalculateStopLevels(cached, 60000, 50800, nil)

	rangeStop := levels[types.StopRangeBoundary]
	want := 60000 * (1 - 0.05)
	if diff := rangeStop.Price - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("超限止损应收紧至最大比例: got %.4f, want %.4f", rangeStop.Price, want)
	}
	if rangeStop.DistancePct > 5.0001 {
		t.Errorf("止损距离不应超过5%%: got %.4f", rangeStop.DistancePct)
	}
}

func TestShouldExitRangeReturn(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	// 价格跌回下边界以下
	exit := dc.ShouldExit(cached, 49400, time.Now())
	if !exit.ShouldExit {
		t.Fatal("价格跌回区间应触发退出")
	}
	if exit.ExitReason != types.ExitRangeReturn {
		t.Errorf("退出原因错误: got %s", exit.ExitReason)
	}
	if exit.ExitPrice != 49400 {
		t.Errorf("退出价格应为当前价: got %.4f", exit.ExitPrice)
	}
	if exit.Symbol != "BTC-USDT" || exit.CacheID != "stop-test-1" {
		t.Error("退出信号应带有仓位标识")
	}
}

func TestShouldExitNoTrigger(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	exit := dc.ShouldExit(cached, 51200, time.Now())
	if exit.ShouldExit {
		t.Errorf("价格健康时不应退出: %s", exit.Detail)
	}
	if exit.ExitReason != types.ExitNone {
		t.Errorf("无触发时原因应为none: got %s", exit.ExitReason)
	}
}

func TestShouldExitTimeStop(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	cached.CachedAt = time.Now().Add(-200 * time.Hour)

	// 价格远离所有价格止损，只有时间止损到期
	exit := dc.ShouldExit(cached, 55000, time.Now())
	if !exit.ShouldExit {
		t.Fatal("持仓超时应触发退出")
	}
	if exit.ExitReason != types.ExitTimeStopHit {
		t.Errorf("应为时间止损: got %s", exit.ExitReason)
	}
	if exit.ExitPrice != 55000 {
		t.Errorf("时间止损退出价格应为当前价: got %.4f", exit.ExitPrice)
	}
}

func TestShouldExitPicksHighestUrgency(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	// 价格跌破下边界但亏损仅4.5%：区间止损水平（紧急度4）
	// 与区间回归检查（紧急度3）同时触发，应选择前者
	exit := dc.ShouldExit(cached, 48500, time.Now())
	if !exit.ShouldExit {
		t.Fatal("跌破下边界应触发退出")
	}
	if exit.ExitReason != types.ExitRangeReturn {
		t.Errorf("退出原因错误: got %s", exit.ExitReason)
	}
	if exit.Urgency != 4 {
		t.Errorf("多重触发时应选择高紧急度信号: got %d", exit.Urgency)
	}
}

func TestShouldExitEmergencyLossOverridesRangeReturn(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)

	// 建仓时亏损未达紧急阈值
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	// 此后亏损9.4%（>8%阈值），且价格已跌回区间内：
	// 紧急止损必须以紧急度5胜出，而非区间回归
	exit := dc.ShouldExit(cached, 46000, time.Now())
	if !exit.ShouldExit {
		t.Fatal("达到紧急亏损阈值应触发退出")
	}
	if exit.ExitReason != types.ExitEmergencyStop {
		t.Errorf("紧急亏损应优先于区间回归: got %s", exit.ExitReason)
	}
	if exit.Urgency != 5 {
		t.Errorf("紧急止损紧急度应为5: got %d", exit.Urgency)
	}

	stats := dc.GetControllerStats()
	if stats["emergency_stops_triggered"].(int) != 1 {
		t.Errorf("紧急止损触发计数错误: %v", stats["emergency_stops_triggered"])
	}
}

func TestShouldExitFailSafe(t *testing.T) {
	dc := NewDynamicStopController(testConfig())

	exit := dc.ShouldExit(nil, 50000, time.Now())
	if !exit.ShouldExit {
		t.Fatal("输入异常应保守退出")
	}
	if exit.ExitReason != types.ExitEmergencyStop || exit.Urgency != 5 {
		t.Error("保守退出应为最高紧急度的紧急止损")
	}

	cached := testCachedRange(types.BreakoutUp)
	exit = dc.ShouldExit(cached, 0, time.Now())
	if !exit.ShouldExit {
		t.Error("价格非法应保守退出")
	}
}

func TestShouldExitRecalculatesMissingStops(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)

	// 未预先计算止损，ShouldExit应自行补算
	exit := dc.ShouldExit(cached, 49400, time.Now())
	if !exit.ShouldExit {
		t.Error("补算止损后仍应识别出区间回归")
	}
}

func TestUpdateTrailingStopRatchet(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	levels := dc.CalculateStopLevels(cached, 52000, 50800, nil)

	trailing := levels[types.StopTrailing]
	if trailing == nil {
		t.Fatal("前置条件：跟踪止损存在")
	}
	initial := trailing.Price

	// 价格上涨，止损上移
	dc.UpdateTrailingStop(cached.CacheID, 53000, types.BreakoutUp)
	if trailing.Price <= initial {
		t.Errorf("价格上涨后跟踪止损应上移: %.4f -> %.4f", initial, trailing.Price)
	}
	raised := trailing.Price

	// 价格回落，止损保持不变
	dc.UpdateTrailingStop(cached.CacheID, 52000, types.BreakoutUp)
	if trailing.Price != raised {
		t.Errorf("价格回落时跟踪止损不应下移: %.4f -> %.4f", raised, trailing.Price)
	}
}

func TestGetStopSummary(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	summary := dc.GetStopSummary(cached.CacheID)
	if summary["total_stops"].(int) < 4 {
		t.Errorf("止损水平数量不足: %v", summary["total_stops"])
	}
	if summary["active_stops"].(int) < 3 {
		t.Errorf("活跃止损数量不足: %v", summary["active_stops"])
	}
	critical, ok := summary["most_critical_stop"].(map[string]interface{})
	if !ok {
		t.Fatal("应包含最关键止损")
	}
	// 活跃水平中优先级最高的是盘整带止损
	if critical["type"].(string) != string(types.StopRangeBoundary) {
		t.Errorf("最关键止损应为盘整带止损: got %v", critical["type"])
	}

	empty := dc.GetStopSummary("unknown")
	if empty["total_stops"].(int) != 0 {
		t.Error("未知仓位的摘要应为空")
	}
}

func TestControllerStats(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	dc.ShouldExit(cached, 49400, time.Now())

	stats := dc.GetControllerStats()
	if stats["total_exit_signals"].(int) != 1 {
		t.Errorf("退出信号计数错误: %v", stats["total_exit_signals"])
	}
	if stats["range_stops_triggered"].(int) != 1 {
		t.Errorf("区间止损触发计数错误: %v", stats["range_stops_triggered"])
	}
	if stats["range_stop_ratio"].(float64) != 1.0 {
		t.Errorf("区间止损比例错误: %v", stats["range_stop_ratio"])
	}

	dc.ResetStats()
	stats = dc.GetControllerStats()
	if stats["total_exit_signals"].(int) != 0 {
		t.Error("重置后退出历史应清空")
	}
}

func TestCleanupInactiveStops(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	// 将全部水平置为非活跃
	dc.mu.Lock()
	for _, level := range dc.activeStops[cached.CacheID] {
		level.IsActive = false
	}
	dc.mu.Unlock()

	if cleaned := dc.CleanupInactiveStops(); cleaned != 1 {
		t.Errorf("应清理1个仓位: got %d", cleaned)
	}
	if len(dc.GetStopSummary(cached.CacheID)) != 2 {
		t.Error("清理后摘要应为空")
	}
}

func TestRemoveStops(t *testing.T) {
	dc := NewDynamicStopController(testConfig())
	cached := testCachedRange(types.BreakoutUp)
	dc.CalculateStopLevels(cached, 51000, 50800, nil)

	dc.RemoveStops(cached.CacheID)
	summary := dc.GetStopSummary(cached.CacheID)
	if summary["total_stops"].(int) != 0 {
		t.Error("移除后不应残留止损水平")
	}
}

func TestReturnsStd(t *testing.T) {
	if v := returnsStd([]float64{100, 100, 100, 100}); v != 0 {
		t.Errorf("恒定价格的波动率应为0: got %f", v)
	}
	if v := returnsStd([]float64{100}); v != 0 {
		t.Errorf("数据不足应返回0: got %f", v)
	}
	if v := returnsStd([]float64{100, 102, 99, 103, 98}); v <= 0 {
		t.Errorf("波动价格的波动率应为正: got %f", v)
	}
}
