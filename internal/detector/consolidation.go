package detector

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// ConsolidationDetector 盘整带识别器
// 使用滑动窗口统计分析识别价格数据中的盘整区间
type ConsolidationDetector struct {
	cfg types.DetectorConfig

	mu    sync.Mutex
	stats detectionStats
}

type detectionStats struct {
	totalDetections   int
	validDetections   int
	invalidDetections int
	avgQualityScore   float64
}

// basicConsolidation 基础盘整检测的中间结果
type basicConsolidation struct {
	startIdx       int
	endIdx         int
	duration       int
	upperBoundary  float64
	lowerBoundary  float64
	stabilityRatio float64
	rangeRatio     float64
	score          float64
}

// NewConsolidationDetector 创建盘整带识别器
func NewConsolidationDetector(cfg types.DetectorConfig) *ConsolidationDetector {
	if cfg.MinConsolidationBars <= 0 {
		cfg.MinConsolidationBars = 10
	}
	if cfg.MaxConsolidationBars <= 0 {
		cfg.MaxConsolidationBars = 100
	}
	if cfg.RangeTolerance <= 0 {
		cfg.RangeTolerance = 0.02
	}
	if cfg.MinQualityScore <= 0 {
		cfg.MinQualityScore = 30
	}
	if cfg.SupportResistanceBuffer <= 0 {
		cfg.SupportResistanceBuffer = 0.005
	}
	if cfg.VolumeSpikeThreshold <= 0 {
		cfg.VolumeSpikeThreshold = 1.5
	}
	return &ConsolidationDetector{cfg: cfg}
}

// DetectRange 检测盘整区间
// 数据不足或未找到符合条件的区间时返回nil
func (cd *ConsolidationDetector) DetectRange(symbol string, klines []*types.KLine) *types.ConsolidationRange {
	if len(klines) < cd.cfg.MinConsolidationBars {
		zap.L().Debug("⚠️ 数据长度不足，跳过盘整检测",
			zap.String("symbol", symbol),
			zap.Int("bars", len(klines)),
			zap.Int("required", cd.cfg.MinConsolidationBars))
		return nil
	}

	// 取最近的数据进行分析
	if len(klines) > cd.cfg.MaxConsolidationBars {
		klines = klines[len(klines)-cd.cfg.MaxConsolidationBars:]
	}

	// 1. 基础盘整检测
	basic := cd.detectBasicConsolidation(klines)
	if basic == nil {
		return nil
	}

	window := klines[basic.startIdx : basic.endIdx+1]

	// 2. 计算详细统计信息
	stats := cd.calculateStatistics(window)

	// 3. 识别盘整类型
	consolidationType := cd.identifyConsolidationType(window, basic)

	// 4. 评估盘整强度
	strength := cd.assessStrength(window, basic)

	// 5. 计算质量评分与置信度
	qualityScore := cd.calculateQualityScore(window, basic)
	confidence := cd.calculateConfidence(len(klines), window, basic)

	// 6. 分析支撑阻力测试
	tests := cd.analyzeSupportResistanceTests(window, basic)

	now := time.Now()
	result := &types.ConsolidationRange{
		Symbol:            symbol,
		StartTime:         window[0].OpenTime,
		EndTime:           window[len(window)-1].CloseTime,
		DurationBars:      basic.duration,
		UpperBoundary:     basic.upperBoundary,
		LowerBoundary:     basic.lowerBoundary,
		RangeSize:         basic.upperBoundary - basic.lowerBoundary,
		RangePercentage:   (basic.upperBoundary - basic.lowerBoundary) / stats.avgPrice * 100,
		AvgPrice:          stats.avgPrice,
		MedianPrice:       stats.medianPrice,
		PriceStd:          stats.priceStd,
		AvgVolume:         stats.avgVolume,
		VolumeStd:         stats.volumeStd,
		VolumeTrend:       stats.volumeTrend,
		ConsolidationType: consolidationType,
		Strength:          strength,
		QualityScore:      qualityScore,
		Confidence:        confidence,
		StabilityRatio:    basic.stabilityRatio,
		SupportTests:      tests.supportTests,
		ResistanceTests:   tests.resistanceTests,
		FalseBreakouts:    tests.falseBreakouts,
		VolumeSpikes:      tests.volumeSpikes,
		CreatedAt:         now,
	}

	cd.mu.Lock()
	cd.stats.totalDetections++
	if result.IsValid() {
		cd.stats.validDetections++
	} else {
		cd.stats.invalidDetections++
	}
	total := cd.stats.totalDetections
	cd.stats.avgQualityScore = (cd.stats.avgQualityScore*float64(total-1) + qualityScore) / float64(total)
	cd.mu.Unlock()

	zap.L().Info("📊 检测到盘整区间",
		zap.String("symbol", symbol),
		zap.Float64("upper", result.UpperBoundary),
		zap.Float64("lower", result.LowerBoundary),
		zap.Int("duration", result.DurationBars),
		zap.Float64("quality", qualityScore),
		zap.Float64("confidence", confidence))

	return result
}

// detectBasicConsolidation 滑动窗口寻找最佳盘整区间
func (cd *ConsolidationDetector) detectBasicConsolidation(klines []*types.KLine) *basicConsolidation {
	var best *basicConsolidation
	bestScore := 0.0

	maxWindow := len(klines)
	if maxWindow > cd.cfg.MaxConsolidationBars {
		maxWindow = cd.cfg.MaxConsolidationBars
	}

	for windowSize := cd.cfg.MinConsolidationBars; windowSize <= maxWindow; windowSize++ {
		for startIdx := 0; startIdx+windowSize <= len(klines); startIdx++ {
			endIdx := startIdx + windowSize - 1
			window := klines[startIdx : endIdx+1]

			upperBoundary := window[0].High
			lowerBoundary := window[0].Low
			sumClose := 0.0
			for _, k := range window {
				if k.High > upperBoundary {
					upperBoundary = k.High
				}
				if k.Low < lowerBoundary {
					lowerBoundary = k.Low
				}
				sumClose += k.Close
			}
			avgPrice := sumClose / float64(len(window))

			rangeRatio := (upperBoundary - lowerBoundary) / avgPrice
			if rangeRatio > cd.cfg.RangeTolerance*3 {
				// 范围太大，不是盘整
				continue
			}

			// 计算价格在区间内的稳定性
			pricesInRange := 0.0
			for _, k := range window {
				if k.Low >= lowerBoundary && k.High <= upperBoundary {
					pricesInRange += 1
				} else if k.Low <= upperBoundary && k.High >= lowerBoundary {
					pricesInRange += 0.5 // 部分在区间内
				}
			}
			stabilityRatio := pricesInRange / float64(len(window))

			score := stabilityRatio*40 +
				(1-rangeRatio/cd.cfg.RangeTolerance)*30 +
				math.Min(float64(windowSize)/float64(cd.cfg.MaxConsolidationBars), 1.0)*20 +
				cd.volumeConsistencyScore(window)*10

			if score > bestScore && stabilityRatio >= 0.7 {
				bestScore = score
				best = &basicConsolidation{
					startIdx:       startIdx,
					endIdx:         endIdx,
					duration:       windowSize,
					upperBoundary:  upperBoundary,
					lowerBoundary:  lowerBoundary,
					stabilityRatio: stabilityRatio,
					rangeRatio:     rangeRatio,
					score:          score,
				}
			}
		}
	}

	return best
}

// volumeConsistencyScore 计算成交量一致性评分（0-1）
// 基于变异系数，波动越小一致性越好
func (cd *ConsolidationDetector) volumeConsistencyScore(window []*types.KLine) float64 {
	if !cd.cfg.VolumeConfirm || len(window) < 3 {
		return 0.5
	}

	avg, std := meanStd(types.Volumes(window))
	if avg == 0 {
		return 0.0
	}

	cv := std / avg
	score := 1.0 - cv
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

type windowStatistics struct {
	avgPrice    float64
	medianPrice float64
	priceStd    float64
	avgVolume   float64
	volumeStd   float64
	volumeTrend float64
}

// calculateStatistics 计算窗口内的价格与成交量统计
func (cd *ConsolidationDetector) calculateStatistics(window []*types.KLine) windowStatistics {
	closes := types.Closes(window)
	volumes := types.Volumes(window)

	avgPrice, priceStd := meanStd(closes)
	avgVolume, volumeStd := meanStd(volumes)

	// 成交量趋势：线性回归斜率按均量标准化
	volumeTrend := 0.0
	if len(volumes) > 2 && avgVolume > 0 {
		volumeTrend = linearSlope(volumes) / avgVolume
	}

	return windowStatistics{
		avgPrice:    avgPrice,
		medianPrice: median(closes),
		priceStd:    priceStd,
		avgVolume:   avgVolume,
		volumeStd:   volumeStd,
		volumeTrend: volumeTrend,
	}
}

// identifyConsolidationType 根据上下轨斜率识别盘整形态
func (cd *ConsolidationDetector) identifyConsolidationType(window []*types.KLine, basic *basicConsolidation) types.ConsolidationType {
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, k := range window {
		highs[i] = k.High
		lows[i] = k.Low
	}

	var upperTrend, lowerTrend float64
	if len(window) > 2 {
		upperTrend = linearSlope(highs)
		lowerTrend = linearSlope(lows)
	}

	trendThreshold := basic.upperBoundary * 0.001

	switch {
	case math.Abs(upperTrend) < trendThreshold && math.Abs(lowerTrend) < trendThreshold:
		return types.ConsolidationHorizontal
	case upperTrend > trendThreshold && lowerTrend > trendThreshold:
		return types.ConsolidationAscending
	case upperTrend < -trendThreshold && lowerTrend < -trendThreshold:
		return types.ConsolidationDescending
	case upperTrend < -trendThreshold && lowerTrend > trendThreshold:
		return types.ConsolidationTriangle
	default:
		return types.ConsolidationRectangle
	}
}

// assessStrength 评估盘整强度等级
func (cd *ConsolidationDetector) assessStrength(window []*types.KLine, basic *basicConsolidation) types.ConsolidationStrength {
	durationScore := math.Min(float64(basic.duration)/float64(cd.cfg.MaxConsolidationBars), 1.0)
	stabilityScore := basic.stabilityRatio
	volumeScore := cd.volumeConsistencyScore(window)
	rangeScore := math.Max(0, 1-basic.rangeRatio/cd.cfg.RangeTolerance)

	totalScore := durationScore*30 + stabilityScore*40 + volumeScore*20 + rangeScore*10

	switch {
	case totalScore >= 80:
		return types.StrengthVeryStrong
	case totalScore >= 65:
		return types.StrengthStrong
	case totalScore >= 45:
		return types.StrengthModerate
	default:
		return types.StrengthWeak
	}
}

// calculateQualityScore 计算质量评分（0-100）
func (cd *ConsolidationDetector) calculateQualityScore(window []*types.KLine, basic *basicConsolidation) float64 {
	score := basic.score

	// 持续时间加分
	if basic.duration >= 20 {
		score += 10
	} else if basic.duration >= 15 {
		score += 5
	}

	// 稳定性加分
	if basic.stabilityRatio >= 0.9 {
		score += 15
	} else if basic.stabilityRatio >= 0.8 {
		score += 10
	}

	// 成交量确认加分
	if cd.cfg.VolumeConfirm {
		volumeScore := cd.volumeConsistencyScore(window)
		if volumeScore >= 0.7 {
			score += 8
		} else if volumeScore >= 0.5 {
			score += 4
		}
	}

	// 区间紧密度加分
	if basic.rangeRatio <= cd.cfg.RangeTolerance*0.5 {
		score += 10
	} else if basic.rangeRatio <= cd.cfg.RangeTolerance {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// calculateConfidence 计算置信度（0-1）
func (cd *ConsolidationDetector) calculateConfidence(totalBars int, window []*types.KLine, basic *basicConsolidation) float64 {
	dataAdequacy := math.Min(float64(totalBars)/float64(cd.cfg.MinConsolidationBars*2), 1.0)
	durationConfidence := math.Min(float64(basic.duration)/30, 1.0)
	volumeConfidence := cd.volumeConsistencyScore(window)

	confidence := dataAdequacy*0.2 +
		basic.stabilityRatio*0.4 +
		durationConfidence*0.2 +
		volumeConfidence*0.2

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

type boundaryTests struct {
	supportTests    int
	resistanceTests int
	falseBreakouts  int
	volumeSpikes    int
}

// analyzeSupportResistanceTests 统计边界测试、假突破与成交量异常
func (cd *ConsolidationDetector) analyzeSupportResistanceTests(window []*types.KLine, basic *basicConsolidation) boundaryTests {
	buffer := (basic.upperBoundary - basic.lowerBoundary) * cd.cfg.SupportResistanceBuffer

	avgVolume, _ := meanStd(types.Volumes(window))
	volumeThreshold := avgVolume * cd.cfg.VolumeSpikeThreshold

	var tests boundaryTests
	for _, k := range window {
		// 支撑测试
		if k.Low <= basic.lowerBoundary+buffer {
			tests.supportTests++
			if k.Close < basic.lowerBoundary-buffer {
				tests.falseBreakouts++
			}
		}

		// 阻力测试
		if k.High >= basic.upperBoundary-buffer {
			tests.resistanceTests++
			if k.Close > basic.upperBoundary+buffer {
				tests.falseBreakouts++
			}
		}

		// 成交量异常
		if k.Volume > volumeThreshold {
			tests.volumeSpikes++
		}
	}
	return tests
}

// ValidateRange 验证盘整区间的有效性，返回错误与警告列表
func (cd *ConsolidationDetector) ValidateRange(cr *types.ConsolidationRange) (bool, []string, []string) {
	var errors, warnings []string

	if cr.UpperBoundary <= cr.LowerBoundary {
		errors = append(errors, "上边界必须大于下边界")
	}
	if cr.DurationBars < cd.cfg.MinConsolidationBars {
		errors = append(errors, "持续时间过短")
	}
	if cr.QualityScore < cd.cfg.MinQualityScore {
		warnings = append(warnings, "质量评分偏低")
	}
	if cr.Confidence < 0.5 {
		warnings = append(warnings, "置信度偏低")
	}
	if cr.RangePercentage > 5.0 {
		warnings = append(warnings, "价格区间过大")
	}

	return len(errors) == 0, errors, warnings
}

// GetDetectionStats 获取检测统计信息
func (cd *ConsolidationDetector) GetDetectionStats() map[string]interface{} {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return map[string]interface{}{
		"total_detections":   cd.stats.totalDetections,
		"valid_detections":   cd.stats.validDetections,
		"invalid_detections": cd.stats.invalidDetections,
		"avg_quality_score":  cd.stats.avgQualityScore,
	}
}

// ResetStats 重置统计信息
func (cd *ConsolidationDetector) ResetStats() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.stats = detectionStats{}
}

// linearSlope 计算序列的线性回归斜率
func linearSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	slopes := talib.LinearRegSlope(values, len(values))
	return slopes[len(slopes)-1]
}

// meanStd 计算均值与总体标准差
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// median 计算中位数
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
