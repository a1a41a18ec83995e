package hunter

import (
	"testing"
	"time"

	"consolidation-guard/pkg/types"
)

func testConfig() types.HunterConfig {
	return types.HunterConfig{
		VolumeSpikeThreshold:   2.0,
		MinHuntDistance:        0.005,
		ZoneTouchMin:           2,
		ZoneExpiryHours:        168,
		PsychologicalLevels:    true,
		RoundNumberSensitivity: 100,
		MinSignalQuality:       50,
		MaxFalseSignalRisk:     0.4,
	}
}

func testCachedRange() *types.CachedRange {
	now := time.Now()
	return &types.CachedRange{
		CacheID: "hunt-test-1",
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
		},
		Status:   types.CacheActive,
		CachedAt: now,
	}
}

func upSignal(breakoutPrice, breakoutPct float64) *types.BreakoutSignal {
	return &types.BreakoutSignal{
		Symbol:             "BTC-USDT",
		Direction:          types.BreakoutUp,
		BreakoutType:       types.BreakoutGenuine,
		BreakoutPrice:      breakoutPrice,
		BreakoutPercentage: breakoutPct,
		QualityScore:       70,
		Confidence:         0.8,
	}
}

// bar 构造一根K线，时间按15分钟递增
func bar(i int, open, high, low, close, volume float64) *types.KLine {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &types.KLine{
		Symbol:    "BTC-USDT",
		OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute),
		CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Interval:  "15m",
	}
}

// rangeKlines 构造n根在盘整区间内震荡的K线
func rangeKlines(n int) []*types.KLine {
	klines := make([]*types.KLine, 0, n)
	for i := 0; i < n; i++ {
		klines = append(klines, bar(i, 50000, 50400, 49600, 50000, 1000))
	}
	return klines
}

func TestDetectStopHunt(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 插针刺穿上边界1%以上后收回区间下方：典型止损猎杀
	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50400, 51200, 50300, 51000, 3000), // 猎杀K线，放量上影
		bar(15, 51000, 51050, 50200, 50300, 1500),
		bar(16, 50300, 50400, 49900, 49950, 1200),
		bar(17, 49950, 50100, 49800, 49900, 1000),
		bar(18, 49900, 50000, 49800, 49900, 1000),
		bar(19, 49900, 50000, 49800, 49950, 1000),
	)

	signal := hd.DetectHunting(klines, cached, upSignal(50800, 0.6))
	if signal == nil {
		t.Fatal("应检测到止损猎杀")
	}
	if signal.HuntingType != types.HuntStopHunt {
		t.Errorf("猎杀类型错误: got %s", signal.HuntingType)
	}
	if signal.HuntPrice != 51200 {
		t.Errorf("猎杀价格应为插针高点: got %.4f", signal.HuntPrice)
	}
	if !signal.IsConfirmed {
		t.Error("放量插针应被确认")
	}
	if signal.RecommendedAction != types.ActionReenter {
		t.Errorf("止损猎杀应建议重新入场: got %s", signal.RecommendedAction)
	}
	if !signal.EntryOpportunity {
		t.Error("止损猎杀应标记为入场机会")
	}
	if signal.Symbol != "BTC-USDT" || signal.CacheID != "hunt-test-1" {
		t.Error("信号应带有交易对与缓存标识")
	}
	if signal.TargetZone == nil {
		t.Error("信号应带有目标流动性区域")
	}
}

func TestDetectFakeBreakout(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 突破后未能维持，收回区间内，且未触及猎杀阈值
	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50400, 50900, 50300, 50700, 2500), // 突破但高点低于猎杀线
		bar(15, 50700, 50800, 50400, 50600, 1200),
		bar(16, 50600, 50700, 50100, 50200, 1100),
		bar(17, 50200, 50300, 49900, 50000, 1000),
		bar(18, 50000, 50100, 49900, 50000, 1000),
		bar(19, 50000, 50100, 49900, 50000, 1000),
	)

	signal := hd.DetectHunting(klines, cached, upSignal(50700, 0.8))
	if signal == nil {
		t.Fatal("应检测到假突破")
	}
	if signal.HuntingType != types.HuntFakeBreakout {
		t.Errorf("猎杀类型错误: got %s", signal.HuntingType)
	}
	if signal.RecommendedAction != types.ActionHold {
		t.Errorf("假突破应建议继续持有: got %s", signal.RecommendedAction)
	}
	if !signal.HoldSuggestion {
		t.Error("假突破应建议持有")
	}
}

func TestDetectWashout(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 突破后13%回撤配合缩量：洗盘而非反转
	klines := rangeKlines(10)
	klines = append(klines,
		bar(10, 55000, 60000, 54500, 58000, 3000), // 高点伴随最大成交量
		bar(11, 58000, 58500, 56500, 57000, 1400),
		bar(12, 57000, 57200, 55500, 56000, 1350),
		bar(13, 56000, 56200, 54800, 55000, 1300),
		bar(14, 55000, 55200, 54000, 54500, 1250),
		bar(15, 54500, 54800, 53800, 54000, 1200),
		bar(16, 54000, 54200, 53200, 53500, 1150),
		bar(17, 53500, 53800, 52800, 53000, 1100),
		bar(18, 53000, 53200, 52200, 52500, 1050),
		bar(19, 52500, 52800, 51800, 52000, 1000),
	)

	signal := hd.DetectHunting(klines, cached, upSignal(51000, 2.0))
	if signal == nil {
		t.Fatal("应检测到洗盘")
	}
	if signal.HuntingType != types.HuntWashout {
		t.Errorf("猎杀类型错误: got %s", signal.HuntingType)
	}
	if signal.HuntPrice != 60000 {
		t.Errorf("猎杀价格应为回撤前高点: got %.4f", signal.HuntPrice)
	}
	if signal.RecommendedAction != types.ActionHold {
		t.Errorf("洗盘应建议继续持有: got %s", signal.RecommendedAction)
	}
}

func TestDetectLiquidityGrab(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 异常放量长上影K线：大单扫过流动性后快速回撤
	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50800, 50900, 50700, 50850, 1000),
		bar(15, 50850, 52000, 50750, 50900, 4000), // 放量长上影
		bar(16, 50900, 51000, 50800, 50900, 1000),
		bar(17, 50900, 51100, 50850, 51000, 1000),
		bar(18, 51000, 51300, 50950, 51200, 1000),
		bar(19, 51200, 51700, 51100, 51600, 1000),
	)

	signal := hd.DetectHunting(klines, cached, upSignal(50800, 0.6))
	if signal == nil {
		t.Fatal("应检测到流动性抓取")
	}
	if signal.HuntingType != types.HuntLiquidityGrab {
		t.Errorf("猎杀类型错误: got %s", signal.HuntingType)
	}
	if signal.HuntPrice != 52000 {
		t.Errorf("猎杀价格应为长影线端点: got %.4f", signal.HuntPrice)
	}
	if !signal.AbsorptionDetect {
		t.Error("3倍以上放量应标记吸筹")
	}
	if signal.RecommendedAction != types.ActionObserve {
		t.Errorf("流动性抓取应建议观察: got %s", signal.RecommendedAction)
	}
}

func TestDetectHuntingNoSignal(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 平稳运行的市场不应产生猎杀信号
	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50600, 50800, 50550, 50700, 1050),
		bar(15, 50700, 50900, 50650, 50800, 1000),
		bar(16, 50800, 51000, 50750, 50900, 1050),
		bar(17, 50900, 51100, 50850, 51000, 1000),
		bar(18, 51000, 51200, 50950, 51100, 1050),
		bar(19, 51100, 51300, 51050, 51200, 1000),
	)

	if signal := hd.DetectHunting(klines, cached, upSignal(50800, 0.6)); signal != nil {
		t.Errorf("健康突破不应产生猎杀信号: %s", signal.HuntingType)
	}
}

func TestDetectHuntingInsufficientData(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	if signal := hd.DetectHunting(rangeKlines(10), cached, upSignal(50800, 0.6)); signal != nil {
		t.Error("数据不足时不应产生信号")
	}
}

func TestWeakSignalRejected(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	// 回到区间内但猎杀距离极小且无放量：应被质量校验拒绝
	klines := rangeKlines(19)
	klines = append(klines, bar(19, 50450, 50550, 50400, 50450, 1000))

	if signal := hd.DetectHunting(klines, cached, upSignal(50500, 0.6)); signal != nil {
		t.Errorf("低质量信号应被拒绝: quality=%.1f", signal.SignalQuality)
	}
}

func TestLiquidityZoneLifecycle(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()
	klines := rangeKlines(30)

	hd.DetectHunting(klines, cached, upSignal(50800, 0.6))

	zones := hd.GetLiquidityZones("BTC-USDT")
	if len(zones) == 0 {
		t.Fatal("应识别出流动性区域")
	}

	var stopZones, psychZones, techZones int
	for _, zone := range zones {
		switch zone.ZoneType {
		case types.ZoneStopLossCluster:
			stopZones++
		case types.ZonePsychologicalLevel:
			psychZones++
		case types.ZoneTechnicalLevel:
			techZones++
		}
	}
	if stopZones != 2 {
		t.Errorf("盘整边界应产生2个止损聚集区: got %d", stopZones)
	}
	if psychZones == 0 {
		t.Error("50000附近应识别出心理价位")
	}
	if techZones == 0 {
		t.Error("应识别出MA技术位")
	}

	// 再次检测：区域应被合并且触碰数增加
	before := len(zones)
	hd.DetectHunting(klines, cached, upSignal(50800, 0.6))
	after := hd.GetLiquidityZones("BTC-USDT")
	if len(after) != before {
		t.Errorf("重复检测不应新增区域: %d -> %d", before, len(after))
	}

	var touched bool
	for _, zone := range after {
		if zone.TouchCount > 0 && zone.ZoneType == types.ZoneStopLossCluster {
			touched = true
		}
	}
	if !touched {
		t.Error("重复识别的区域触碰数应增加")
	}
}

func TestSupportResistanceClusters(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())

	// 两个等高局部高点形成阻力聚集区
	klines := make([]*types.KLine, 0, 20)
	for i := 0; i < 20; i++ {
		high := 50400.0
		if i == 5 || i == 12 {
			high = 51000
		}
		klines = append(klines, bar(i, 50000, high, 49600, 50000, 1000))
	}

	zones := hd.detectSupportResistanceClusters(klines)

	var resistance *types.LiquidityZone
	for _, zone := range zones {
		if zone.ZoneType == types.ZoneResistanceCluster {
			resistance = zone
		}
	}
	if resistance == nil {
		t.Fatal("应识别出阻力聚集区")
	}
	if resistance.TouchCount != 2 {
		t.Errorf("触碰次数错误: got %d", resistance.TouchCount)
	}
	if resistance.PriceLevel != 51000 {
		t.Errorf("聚集区价格错误: got %.4f", resistance.PriceLevel)
	}
	if resistance.Strength != 40 {
		t.Errorf("2次触碰的强度应为40: got %.1f", resistance.Strength)
	}
}

func TestGetRecentHuntingSignals(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50400, 51200, 50300, 51000, 3000),
		bar(15, 51000, 51050, 50200, 50300, 1500),
		bar(16, 50300, 50400, 49900, 49950, 1200),
		bar(17, 49950, 50100, 49800, 49900, 1000),
		bar(18, 49900, 50000, 49800, 49900, 1000),
		bar(19, 49900, 50000, 49800, 49950, 1000),
	)

	if hd.DetectHunting(klines, cached, upSignal(50800, 0.6)) == nil {
		t.Fatal("前置条件：应产生猎杀信号")
	}

	recent := hd.GetRecentHuntingSignals(24)
	if len(recent) != 1 {
		t.Errorf("最近信号数量错误: got %d", len(recent))
	}
	if len(hd.GetRecentHuntingSignals(0)) != 0 {
		t.Error("0小时窗口不应返回信号")
	}
}

func TestDetectionStatisticsAndReset(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()

	klines := rangeKlines(14)
	klines = append(klines,
		bar(14, 50400, 51200, 50300, 51000, 3000),
		bar(15, 51000, 51050, 50200, 50300, 1500),
		bar(16, 50300, 50400, 49900, 49950, 1200),
		bar(17, 49950, 50100, 49800, 49900, 1000),
		bar(18, 49900, 50000, 49800, 49900, 1000),
		bar(19, 49900, 50000, 49800, 49950, 1000),
	)
	hd.DetectHunting(klines, cached, upSignal(50800, 0.6))

	stats := hd.GetDetectionStatistics()
	if stats["total_hunts_detected"].(int) != 1 {
		t.Errorf("检测计数错误: %v", stats["total_hunts_detected"])
	}
	if stats["confirmed_hunts"].(int) != 1 {
		t.Errorf("确认计数错误: %v", stats["confirmed_hunts"])
	}
	if stats["zones_identified"].(int) == 0 {
		t.Error("应统计识别的区域数")
	}

	hd.ResetDetector()
	stats = hd.GetDetectionStatistics()
	if stats["total_hunts_detected"].(int) != 0 {
		t.Error("重置后统计应清零")
	}
	if len(hd.GetLiquidityZones("BTC-USDT")) != 0 {
		t.Error("重置后区域应清空")
	}
}

func TestExportZonesData(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())
	cached := testCachedRange()
	hd.DetectHunting(rangeKlines(30), cached, upSignal(50800, 0.6))

	export := hd.ExportZonesData("BTC-USDT")
	zonesData := export["zones_data"].(map[string][]*types.LiquidityZone)
	if len(zonesData["BTC-USDT"]) == 0 {
		t.Error("导出数据应包含指定交易对的区域")
	}
	if export["export_time"].(string) == "" {
		t.Error("导出数据应带时间戳")
	}

	all := hd.ExportZonesData("")
	if len(all["zones_data"].(map[string][]*types.LiquidityZone)) != 1 {
		t.Error("全量导出应包含全部交易对")
	}
}

func TestSingleEvidenceNotConfirmed(t *testing.T) {
	hd := NewLiquidityHunterDetector(testConfig())

	// 放量明显但猎杀距离仅0.3%：只有成交量一项证据，不足以确认
	klines := rangeKlines(9)
	klines = append(klines, bar(9, 50000, 50150, 49950, 50000, 3000))

	signal := hd.buildHuntingSignal(types.HuntStopHunt, 50150, 50000, klines)
	if got := len(signal.ConfirmationSignals); got != 1 {
		t.Errorf("应只有成交量一项证据: got %v", signal.ConfirmationSignals)
	}
	if signal.IsConfirmed {
		t.Error("单一证据不应确认猎杀信号")
	}
}

func TestFastReversal(t *testing.T) {
	// 触及猎杀价位后下一根K线即拉回1.7%
	klines := rangeKlines(6)
	klines = append(klines,
		bar(6, 50400, 51200, 50300, 51000, 3000),
		bar(7, 51000, 51050, 50200, 50300, 1500),
	)
	if !fastReversal(klines, 51200, 1.8) {
		t.Error("触及后快速拉回应视为快速反转")
	}

	// 触及后价格始终停留在猎杀价位附近
	flat := rangeKlines(6)
	flat = append(flat,
		bar(6, 50400, 51200, 50300, 51150, 3000),
		bar(7, 51150, 51250, 51100, 51200, 1000),
		bar(8, 51200, 51260, 51120, 51180, 1000),
		bar(9, 51180, 51240, 51100, 51150, 1000),
		bar(10, 51150, 51230, 51050, 51100, 1000),
	)
	if fastReversal(flat, 51200, 1.0) {
		t.Error("未及时拉回不应视为快速反转")
	}

	// 反转幅度不足0.5%直接排除
	if fastReversal(klines, 50150, 0.3) {
		t.Error("反转幅度不足不应确认")
	}
}

func TestVolumeTrend(t *testing.T) {
	declining := []*types.KLine{
		bar(0, 50000, 50100, 49900, 50000, 3000),
		bar(1, 50000, 50100, 49900, 50000, 2000),
		bar(2, 50000, 50100, 49900, 50000, 1000),
	}
	if v := volumeTrend(declining); v >= 0 {
		t.Errorf("递减成交量的趋势应为负: got %f", v)
	}

	rising := []*types.KLine{
		bar(0, 50000, 50100, 49900, 50000, 1000),
		bar(1, 50000, 50100, 49900, 50000, 2000),
		bar(2, 50000, 50100, 49900, 50000, 3000),
	}
	if v := volumeTrend(rising); v <= 0 {
		t.Errorf("递增成交量的趋势应为正: got %f", v)
	}

	if v := volumeTrend(rising[:2]); v != 0 {
		t.Errorf("数据不足应返回0: got %f", v)
	}
}
