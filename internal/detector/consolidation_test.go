package detector

import (
	"math"
	"testing"
	"time"

	"consolidation-guard/pkg/types"
)

func defaultDetectorConfig() types.DetectorConfig {
	return types.DetectorConfig{
		MinConsolidationBars:    10,
		MaxConsolidationBars:    100,
		RangeTolerance:          0.02,
		VolumeConfirm:           true,
		MinQualityScore:         30,
		SupportResistanceBuffer: 0.005,
		VolumeSpikeThreshold:    1.5,
	}
}

// makeFlatKlines 构造在固定区间内震荡的K线
func makeFlatKlines(n int, center, amplitude float64) []*types.KLine {
	klines := make([]*types.KLine, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		offset := amplitude * math.Sin(float64(i)*0.8)
		open := center + offset
		close := center + amplitude*math.Sin(float64(i)*0.8+0.4)
		high := math.Max(open, close) + amplitude*0.2
		low := math.Min(open, close) - amplitude*0.2
		klines[i] = &types.KLine{
			Symbol:    "BTC-USDT",
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + 50*math.Sin(float64(i)),
			Interval:  "15m",
		}
	}
	return klines
}

// makeTrendKlines 构造单边上涨的K线
func makeTrendKlines(n int, start, step float64) []*types.KLine {
	klines := make([]*types.KLine, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := start + float64(i)*step
		close := open + step
		klines[i] = &types.KLine{
			Symbol:    "BTC-USDT",
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      open,
			High:      close + step*0.2,
			Low:       open - step*0.2,
			Close:     close,
			Volume:    1000,
			Interval:  "15m",
		}
	}
	return klines
}

func TestDetectRangeFlatMarket(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())
	klines := makeFlatKlines(40, 50000, 100)

	result := cd.DetectRange("BTC-USDT", klines)
	if result == nil {
		t.Fatal("横盘行情应检测到盘整区间")
	}

	if result.UpperBoundary <= result.LowerBoundary {
		t.Errorf("上边界 %.2f 应大于下边界 %.2f", result.UpperBoundary, result.LowerBoundary)
	}
	if result.DurationBars < 10 {
		t.Errorf("持续K线数 %d 应不小于10", result.DurationBars)
	}
	if result.StabilityRatio < 0.7 {
		t.Errorf("稳定性 %.2f 应不小于0.7", result.StabilityRatio)
	}
	if !result.IsValid() {
		t.Errorf("横盘区间应有效: quality=%.1f confidence=%.2f", result.QualityScore, result.Confidence)
	}
	if result.Symbol != "BTC-USDT" {
		t.Errorf("symbol = %s", result.Symbol)
	}
	if result.ConsolidationType != types.ConsolidationHorizontal {
		t.Errorf("横盘行情形态 = %s, 期望 %s", result.ConsolidationType, types.ConsolidationHorizontal)
	}
}

func TestDetectRangeInsufficientData(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())
	klines := makeFlatKlines(5, 50000, 100)

	if result := cd.DetectRange("BTC-USDT", klines); result != nil {
		t.Error("数据不足时应返回nil")
	}
}

func TestDetectRangeTrendingMarket(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())
	// 每根上涨1%，远超区间容忍度
	klines := makeTrendKlines(60, 50000, 500)

	if result := cd.DetectRange("BTC-USDT", klines); result != nil {
		t.Errorf("单边行情不应检测到盘整: range_pct=%.2f", result.RangePercentage)
	}
}

func TestDetectRangeContainsPrice(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())
	klines := makeFlatKlines(40, 50000, 100)

	result := cd.DetectRange("BTC-USDT", klines)
	if result == nil {
		t.Fatal("应检测到盘整区间")
	}

	mid := (result.UpperBoundary + result.LowerBoundary) / 2
	if !result.ContainsPrice(mid, 0) {
		t.Error("区间中点应在区间内")
	}
	if result.ContainsPrice(result.UpperBoundary*1.1, 0) {
		t.Error("远离区间的价格不应在区间内")
	}

	dist := result.DistanceToBoundary(mid)
	if dist.ToUpper <= 0 || dist.ToLower <= 0 {
		t.Errorf("中点到边界距离应为正: to_upper=%.2f to_lower=%.2f", dist.ToUpper, dist.ToLower)
	}
}

func TestValidateRange(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())

	bad := &types.ConsolidationRange{
		Symbol:        "BTC-USDT",
		UpperBoundary: 100,
		LowerBoundary: 200, // 边界反转
		DurationBars:  3,
	}
	ok, errors, _ := cd.ValidateRange(bad)
	if ok {
		t.Error("边界反转的区间应验证失败")
	}
	if len(errors) < 2 {
		t.Errorf("应同时报告边界与持续时间错误，得到 %v", errors)
	}

	good := &types.ConsolidationRange{
		Symbol:          "BTC-USDT",
		UpperBoundary:   50100,
		LowerBoundary:   49900,
		DurationBars:    20,
		QualityScore:    60,
		Confidence:      0.8,
		RangePercentage: 0.4,
	}
	ok, errors, warnings := cd.ValidateRange(good)
	if !ok || len(errors) != 0 {
		t.Errorf("正常区间应验证通过: %v", errors)
	}
	if len(warnings) != 0 {
		t.Errorf("正常区间不应有警告: %v", warnings)
	}
}

func TestDetectionStats(t *testing.T) {
	cd := NewConsolidationDetector(defaultDetectorConfig())
	klines := makeFlatKlines(40, 50000, 100)

	cd.DetectRange("BTC-USDT", klines)
	cd.DetectRange("BTC-USDT", klines)

	stats := cd.GetDetectionStats()
	if stats["total_detections"].(int) != 2 {
		t.Errorf("total_detections = %v", stats["total_detections"])
	}
	if stats["avg_quality_score"].(float64) <= 0 {
		t.Error("平均质量评分应大于0")
	}

	cd.ResetStats()
	stats = cd.GetDetectionStats()
	if stats["total_detections"].(int) != 0 {
		t.Error("重置后统计应清零")
	}
}

func TestMeanStdAndMedian(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	mean, std := meanStd(values)
	if mean != 3 {
		t.Errorf("mean = %.2f", mean)
	}
	if math.Abs(std-math.Sqrt(2)) > 1e-9 {
		t.Errorf("std = %.6f", std)
	}
	if median(values) != 3 {
		t.Errorf("median = %.2f", median(values))
	}
	if median([]float64{1, 2, 3, 4}) != 2.5 {
		t.Error("偶数长度中位数应取均值")
	}
}
