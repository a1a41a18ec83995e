package hunter

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// 常见心理价位，加密货币价格容易在这些位置聚集挂单
var psychologicalLevels = []float64{
	50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000, 25000, 30000, 50000,
}

// LiquidityHunterDetector 流动性猎杀检测器
// 大资金需要流动性来建仓平仓，散户止损集中在明显技术位，
// 突破后的快速回撤往往是洗盘而非趋势反转
type LiquidityHunterDetector struct {
	cfg types.HunterConfig

	mu      sync.Mutex
	zones   map[string][]*types.LiquidityZone // symbol -> 流动性区域
	signals []*types.HuntingSignal

	stats detectionStats
}

type detectionStats struct {
	totalHuntsDetected int
	confirmedHunts     int
	falseSignals       int
	zonesIdentified    int
	avgHuntAccuracy    float64
}

// NewLiquidityHunterDetector 创建流动性猎杀检测器
func NewLiquidityHunterDetector(cfg types.HunterConfig) *LiquidityHunterDetector {
	if cfg.VolumeSpikeThreshold <= 0 {
		cfg.VolumeSpikeThreshold = 2.0
	}
	if cfg.MinHuntDistance <= 0 {
		cfg.MinHuntDistance = 0.005
	}
	if cfg.ZoneTouchMin <= 0 {
		cfg.ZoneTouchMin = 2
	}
	if cfg.ZoneExpiryHours <= 0 {
		cfg.ZoneExpiryHours = 24 * 7
	}
	if cfg.RoundNumberSensitivity <= 0 {
		cfg.RoundNumberSensitivity = 100
	}
	if cfg.MinSignalQuality <= 0 {
		cfg.MinSignalQuality = 50
	}
	if cfg.MaxFalseSignalRisk <= 0 {
		cfg.MaxFalseSignalRisk = 0.4
	}
	return &LiquidityHunterDetector{
		cfg:   cfg,
		zones: make(map[string][]*types.LiquidityZone),
	}
}

// DetectHunting 检测流动性猎杀行为
// 依次检查止损猎杀、假突破、洗盘、流动性抓取四种模式
func (hd *LiquidityHunterDetector) DetectHunting(klines []*types.KLine, cached *types.CachedRange, signal *types.BreakoutSignal) *types.HuntingSignal {
	if len(klines) < 20 {
		return nil
	}

	symbol := cached.Symbol

	hd.updateLiquidityZones(symbol, klines, cached)

	hunting := hd.detectCurrentHunting(klines, cached, signal)
	if hunting == nil {
		return nil
	}

	hunting.Symbol = symbol
	hunting.CacheID = cached.CacheID

	if !hd.validateHuntingSignal(hunting, cached) {
		return nil
	}

	hd.mu.Lock()
	hd.signals = append(hd.signals, hunting)
	hd.updateStatsLocked(hunting)
	hd.mu.Unlock()

	zap.L().Info("🎯 检测到流动性猎杀",
		zap.String("symbol", symbol),
		zap.String("type", string(hunting.HuntingType)),
		zap.Int("strength", int(hunting.Strength)),
		zap.Float64("quality", hunting.SignalQuality))

	return hunting
}

// updateLiquidityZones 刷新流动性区域：支撑阻力聚集、止损聚集、心理价位与技术位
func (hd *LiquidityHunterDetector) updateLiquidityZones(symbol string, klines []*types.KLine, cached *types.CachedRange) {
	now := time.Now()

	newZones := hd.detectSupportResistanceClusters(klines)
	newZones = append(newZones, hd.detectStopLossClusters(&cached.Range)...)
	if hd.cfg.PsychologicalLevels {
		newZones = append(newZones, hd.detectPsychologicalLevels(klines)...)
	}
	newZones = append(newZones, hd.detectTechnicalLevels(klines)...)

	hd.mu.Lock()
	defer hd.mu.Unlock()

	for _, zone := range newZones {
		if existing := hd.findExistingZoneLocked(symbol, zone); existing != nil {
			// 重复触碰让区域更可信
			existing.TouchCount++
			existing.LastTouch = now
			existing.Strength = math.Min(existing.Strength+10, 100)
			existing.HuntProbability = math.Min(float64(existing.TouchCount)/10, 0.9)
			existing.Confidence = math.Min(existing.Confidence+0.1, 1.0)
		} else {
			hd.zones[symbol] = append(hd.zones[symbol], zone)
			hd.stats.zonesIdentified++
		}
	}

	hd.cleanupExpiredZonesLocked(symbol, now)
}

// detectSupportResistanceClusters 通过局部极值聚类找到支撑阻力聚集区
func (hd *LiquidityHunterDetector) detectSupportResistanceClusters(klines []*types.KLine) []*types.LiquidityZone {
	lookback := 50
	if len(klines) < lookback {
		lookback = len(klines)
	}
	recent := klines[len(klines)-lookback:]

	type pivot struct {
		price  float64
		tm     time.Time
		volume float64
	}
	var highs, lows []pivot

	// 前后各2根K线确认的局部极值
	for i := 2; i < len(recent)-2; i++ {
		k := recent[i]
		if k.High > recent[i-2].High && k.High > recent[i-1].High &&
			k.High > recent[i+1].High && k.High > recent[i+2].High {
			highs = append(highs, pivot{price: k.High, tm: k.OpenTime, volume: k.Volume})
		}
		if k.Low < recent[i-2].Low && k.Low < recent[i-1].Low &&
			k.Low < recent[i+1].Low && k.Low < recent[i+2].Low {
			lows = append(lows, pivot{price: k.Low, tm: k.OpenTime, volume: k.Volume})
		}
	}

	// 1%容差内的极值归入同一聚集
	clusterLevels := func(pivots []pivot) [][]pivot {
		if len(pivots) == 0 {
			return nil
		}
		sorted := make([]pivot, len(pivots))
		copy(sorted, pivots)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

		var clusters [][]pivot
		current := []pivot{sorted[0]}
		for _, p := range sorted[1:] {
			last := current[len(current)-1]
			if math.Abs(p.price-last.price)/last.price <= 0.01 {
				current = append(current, p)
			} else {
				if len(current) >= hd.cfg.ZoneTouchMin {
					clusters = append(clusters, current)
				}
				current = []pivot{p}
			}
		}
		if len(current) >= hd.cfg.ZoneTouchMin {
			clusters = append(clusters, current)
		}
		return clusters
	}

	buildZone := func(cluster []pivot, zoneType types.LiquidityZoneType, label string) *types.LiquidityZone {
		sumPrice, sumVolume := 0.0, 0.0
		low, high := cluster[0].price, cluster[0].price
		for _, p := range cluster {
			sumPrice += p.price
			sumVolume += p.volume
			if p.price < low {
				low = p.price
			}
			if p.price > high {
				high = p.price
			}
		}
		touchCount := len(cluster)
		return &types.LiquidityZone{
			ZoneType:            zoneType,
			PriceLevel:          sumPrice / float64(touchCount),
			PriceLow:            low,
			PriceHigh:           high,
			Strength:            math.Min(float64(touchCount)*20, 100),
			TouchCount:          touchCount,
			VolumeConcentration: sumVolume / float64(touchCount),
			FirstTouch:          cluster[0].tm,
			LastTouch:           cluster[len(cluster)-1].tm,
			FormationPeriod:     touchCount,
			HuntProbability:     math.Min(float64(touchCount)/10, 0.8),
			TargetDistance:      0.002,
			CreatedAt:           time.Now(),
			Confidence:          math.Min(float64(touchCount)/5, 1.0),
			Notes:               fmt.Sprintf("%s，%d次触碰", label, touchCount),
		}
	}

	var zones []*types.LiquidityZone
	for _, cluster := range clusterLevels(highs) {
		zones = append(zones, buildZone(cluster, types.ZoneResistanceCluster, "阻力聚集区"))
	}
	for _, cluster := range clusterLevels(lows) {
		zones = append(zones, buildZone(cluster, types.ZoneSupportCluster, "支撑聚集区"))
	}
	return zones
}

// detectStopLossClusters 盘整区间边界外侧是天然的止损单聚集区
func (hd *LiquidityHunterDetector) detectStopLossClusters(cr *types.ConsolidationRange) []*types.LiquidityZone {
	now := time.Now()
	return []*types.LiquidityZone{
		{
			ZoneType:        types.ZoneStopLossCluster,
			PriceLevel:      cr.UpperBoundary * 1.005,
			PriceLow:        cr.UpperBoundary * 1.001,
			PriceHigh:       cr.UpperBoundary * 1.01,
			Strength:        70,
			FirstTouch:      now,
			LastTouch:       now,
			FormationPeriod: 1,
			HuntProbability: 0.7,
			TargetDistance:  0.01,
			CreatedAt:       now,
			Confidence:      0.8,
			Notes:           "盘整上边界止损聚集区",
		},
		{
			ZoneType:        types.ZoneStopLossCluster,
			PriceLevel:      cr.LowerBoundary * 0.995,
			PriceLow:        cr.LowerBoundary * 0.99,
			PriceHigh:       cr.LowerBoundary * 0.999,
			Strength:        70,
			FirstTouch:      now,
			LastTouch:       now,
			FormationPeriod: 1,
			HuntProbability: 0.7,
			TargetDistance:  0.01,
			CreatedAt:       now,
			Confidence:      0.8,
			Notes:           "盘整下边界止损聚集区",
		},
	}
}

// detectPsychologicalLevels 检测当前价格附近的心理价位与整数位
func (hd *LiquidityHunterDetector) detectPsychologicalLevels(klines []*types.KLine) []*types.LiquidityZone {
	currentPrice := klines[len(klines)-1].Close
	if currentPrice <= 0 {
		return nil
	}
	now := time.Now()

	var zones []*types.LiquidityZone
	for _, level := range psychologicalLevels {
		if math.Abs(currentPrice-level)/currentPrice <= 0.1 {
			zones = append(zones, &types.LiquidityZone{
				ZoneType:        types.ZonePsychologicalLevel,
				PriceLevel:      level,
				PriceLow:        level * 0.999,
				PriceHigh:       level * 1.001,
				Strength:        60,
				TouchCount:      1,
				FirstTouch:      now,
				LastTouch:       now,
				FormationPeriod: 1,
				HuntProbability: 0.6,
				TargetDistance:  0.005,
				CreatedAt:       now,
				Confidence:      0.7,
				Notes:           fmt.Sprintf("心理价位 %.0f", level),
			})
		}
	}

	// 当前价格最近的整数位
	rounded := math.Round(currentPrice/hd.cfg.RoundNumberSensitivity) * hd.cfg.RoundNumberSensitivity
	if rounded > 0 && math.Abs(currentPrice-rounded)/currentPrice <= 0.02 {
		zones = append(zones, &types.LiquidityZone{
			ZoneType:        types.ZonePsychologicalLevel,
			PriceLevel:      rounded,
			PriceLow:        rounded * 0.998,
			PriceHigh:       rounded * 1.002,
			Strength:        50,
			TouchCount:      1,
			FirstTouch:      now,
			LastTouch:       now,
			FormationPeriod: 1,
			HuntProbability: 0.5,
			TargetDistance:  0.003,
			CreatedAt:       now,
			Confidence:      0.6,
			Notes:           fmt.Sprintf("整数价位 %.0f", rounded),
		})
	}

	return zones
}

// detectTechnicalLevels 均线位置的流动性区域
func (hd *LiquidityHunterDetector) detectTechnicalLevels(klines []*types.KLine) []*types.LiquidityZone {
	if len(klines) < 20 {
		return nil
	}
	now := time.Now()

	var zones []*types.LiquidityZone
	for _, period := range []int{20, 50, 200} {
		if len(klines) < period {
			continue
		}
		sum := 0.0
		for _, k := range klines[len(klines)-period:] {
			sum += k.Close
		}
		maValue := sum / float64(period)

		zones = append(zones, &types.LiquidityZone{
			ZoneType:        types.ZoneTechnicalLevel,
			PriceLevel:      maValue,
			PriceLow:        maValue * 0.999,
			PriceHigh:       maValue * 1.001,
			Strength:        40,
			TouchCount:      1,
			FirstTouch:      now,
			LastTouch:       now,
			FormationPeriod: period,
			HuntProbability: 0.4,
			TargetDistance:  0.002,
			CreatedAt:       now,
			Confidence:      0.5,
			Notes:           fmt.Sprintf("MA%d 技术位", period),
		})
	}
	return zones
}

// detectCurrentHunting 按优先级检测最近K线中的猎杀模式
func (hd *LiquidityHunterDetector) detectCurrentHunting(klines []*types.KLine, cached *types.CachedRange, signal *types.BreakoutSignal) *types.HuntingSignal {
	start := len(klines) - 10
	if start < 0 {
		start = 0
	}
	recent := klines[start:]
	if len(recent) < 5 {
		return nil
	}

	if s := hd.detectStopHunt(recent, &cached.Range, signal); s != nil {
		return s
	}
	if s := hd.detectFakeBreakout(recent, &cached.Range, signal); s != nil {
		return s
	}
	if s := hd.detectWashout(recent, &cached.Range, signal); s != nil {
		return s
	}
	return hd.detectLiquidityGrab(recent, &cached.Range)
}

// detectStopHunt 价格快速穿越边界1%以上后又收回边界内侧
func (hd *LiquidityHunterDetector) detectStopHunt(recent []*types.KLine, cr *types.ConsolidationRange, signal *types.BreakoutSignal) *types.HuntingSignal {
	if signal.Direction == types.BreakoutUp {
		huntThreshold := cr.UpperBoundary * 1.01
		for i, bar := range recent {
			if bar.High <= huntThreshold {
				continue
			}
			minCloseAfter := math.Inf(1)
			for _, after := range recent[i+1:] {
				if after.Close < minCloseAfter {
					minCloseAfter = after.Close
				}
			}
			if minCloseAfter < cr.UpperBoundary {
				return hd.buildHuntingSignal(types.HuntStopHunt, bar.High, minCloseAfter, recent)
			}
		}
		return nil
	}

	huntThreshold := cr.LowerBoundary * 0.99
	for i, bar := range recent {
		if bar.Low >= huntThreshold {
			continue
		}
		maxCloseAfter := math.Inf(-1)
		for _, after := range recent[i+1:] {
			if after.Close > maxCloseAfter {
				maxCloseAfter = after.Close
			}
		}
		if maxCloseAfter > cr.LowerBoundary {
			return hd.buildHuntingSignal(types.HuntStopHunt, bar.Low, maxCloseAfter, recent)
		}
	}
	return nil
}

// detectFakeBreakout 有明显突破距离却又收回盘整区间内
func (hd *LiquidityHunterDetector) detectFakeBreakout(recent []*types.KLine, cr *types.ConsolidationRange, signal *types.BreakoutSignal) *types.HuntingSignal {
	currentPrice := recent[len(recent)-1].Close
	if !cr.ContainsPrice(currentPrice, 0.001) {
		return nil
	}
	if signal.BreakoutPercentage <= 0.5 {
		return nil
	}
	return hd.buildHuntingSignal(types.HuntFakeBreakout, signal.BreakoutPrice, currentPrice, recent)
}

// detectWashout 突破后10%-30%的浅回撤配合成交量递减
func (hd *LiquidityHunterDetector) detectWashout(recent []*types.KLine, cr *types.ConsolidationRange, signal *types.BreakoutSignal) *types.HuntingSignal {
	if len(recent) < 3 {
		return nil
	}
	currentPrice := recent[len(recent)-1].Close

	var extremePrice, retracement float64
	if signal.Direction == types.BreakoutUp {
		extremePrice = recent[0].High
		for _, k := range recent[1:] {
			if k.High > extremePrice {
				extremePrice = k.High
			}
		}
		retracement = (extremePrice - currentPrice) / extremePrice
	} else {
		extremePrice = recent[0].Low
		for _, k := range recent[1:] {
			if k.Low < extremePrice {
				extremePrice = k.Low
			}
		}
		retracement = (currentPrice - extremePrice) / extremePrice
	}

	if retracement < 0.1 || retracement > 0.3 {
		return nil
	}
	if volumeTrend(recent) >= 0 {
		return nil
	}
	return hd.buildHuntingSignal(types.HuntWashout, extremePrice, currentPrice, recent)
}

// detectLiquidityGrab 异常放量K线带长影线，代表大单扫过流动性后快速回撤
func (hd *LiquidityHunterDetector) detectLiquidityGrab(recent []*types.KLine, cr *types.ConsolidationRange) *types.HuntingSignal {
	avgVolume := 0.0
	var maxVolumeBar *types.KLine
	for _, k := range recent {
		avgVolume += k.Volume
		if maxVolumeBar == nil || k.Volume > maxVolumeBar.Volume {
			maxVolumeBar = k
		}
	}
	avgVolume /= float64(len(recent))

	if avgVolume <= 0 || maxVolumeBar.Volume <= avgVolume*hd.cfg.VolumeSpikeThreshold {
		return nil
	}

	totalRange := maxVolumeBar.Range()
	if totalRange <= 0 {
		return nil
	}
	upperShadow := maxVolumeBar.UpperShadow()
	lowerShadow := maxVolumeBar.LowerShadow()

	if upperShadow/totalRange <= 0.4 && lowerShadow/totalRange <= 0.4 {
		return nil
	}

	huntPrice := maxVolumeBar.Low
	if upperShadow > lowerShadow {
		huntPrice = maxVolumeBar.High
	}
	return hd.buildHuntingSignal(types.HuntLiquidityGrab, huntPrice, maxVolumeBar.Close, recent)
}

// buildHuntingSignal 构建带强度、确认与操作建议的完整猎杀信号
func (hd *LiquidityHunterDetector) buildHuntingSignal(huntingType types.HuntingType, huntPrice, reversalPrice float64, recent []*types.KLine) *types.HuntingSignal {
	distanceHunted := math.Abs(huntPrice - reversalPrice)
	huntPercentage := 0.0
	if huntPrice > 0 {
		huntPercentage = distanceHunted / huntPrice * 100
	}

	avgVolume, maxVolume := 0.0, 0.0
	for _, k := range recent {
		avgVolume += k.Volume
		if k.Volume > maxVolume {
			maxVolume = k.Volume
		}
	}
	avgVolume /= float64(len(recent))
	volumeSpike := 1.0
	if avgVolume > 0 {
		volumeSpike = maxVolume / avgVolume
	}

	var strength types.HuntingStrength
	switch {
	case huntPercentage >= 2.0 && volumeSpike >= 3.0:
		strength = types.HuntExtreme
	case huntPercentage >= 1.0 && volumeSpike >= 2.0:
		strength = types.HuntStrong
	case huntPercentage >= 0.5 || volumeSpike >= 1.5:
		strength = types.HuntModerate
	default:
		strength = types.HuntWeak
	}

	now := time.Now()
	targetZone := &types.LiquidityZone{
		ZoneType:            types.ZoneStopLossCluster,
		PriceLevel:          huntPrice,
		PriceLow:            huntPrice * 0.999,
		PriceHigh:           huntPrice * 1.001,
		Strength:            70,
		TouchCount:          1,
		VolumeConcentration: maxVolume,
		FirstTouch:          now,
		LastTouch:           now,
		FormationPeriod:     1,
		HuntProbability:     0.8,
		TargetDistance:      distanceHunted,
		CreatedAt:           now,
		Confidence:          0.8,
		Notes:               fmt.Sprintf("%s目标区域", huntingType),
	}

	var confirmations []string
	if volumeSpike >= 2.0 {
		confirmations = append(confirmations, "异常成交量")
	}
	if huntPercentage >= 1.0 {
		confirmations = append(confirmations, "显著价格移动")
	}
	if fastReversal(recent, huntPrice, huntPercentage) {
		confirmations = append(confirmations, "快速反转")
	}

	var action types.RecommendedAction
	var holdSuggestion, entryOpportunity bool
	switch huntingType {
	case types.HuntWashout, types.HuntFakeBreakout:
		action = types.ActionHold
		holdSuggestion = true
	case types.HuntStopHunt:
		action = types.ActionReenter
		holdSuggestion = true
		entryOpportunity = true
	default:
		action = types.ActionObserve
	}

	quality := math.Min(huntPercentage*20+volumeSpike*20+float64(len(confirmations))*20, 100)

	confidence := quality / 100 * 0.6
	if volumeSpike >= 2.0 {
		confidence += 0.3
	}
	if huntPercentage >= 1.0 {
		confidence += 0.1
	}
	confidence = math.Min(confidence, 1.0)

	return &types.HuntingSignal{
		HuntingType:         huntingType,
		Strength:            strength,
		TargetZone:          targetZone,
		HuntPrice:           huntPrice,
		ReversalPrice:       reversalPrice,
		DistanceHunted:      distanceHunted,
		VolumeSpike:         volumeSpike,
		AbsorptionDetect:    volumeSpike >= 3.0,
		IsConfirmed:         len(confirmations) >= 2,
		ConfirmationSignals: confirmations,
		FalseSignalRisk:     math.Max(0, 0.5-confidence),
		RecommendedAction:   action,
		HoldSuggestion:      holdSuggestion,
		EntryOpportunity:    entryOpportunity,
		SignalQuality:       quality,
		Confidence:          confidence,
		DetectedAt:          now,
	}
}

// fastReversal 触及猎杀价位后3根K线内收盘拉回0.5%以上视为快速反转
func fastReversal(recent []*types.KLine, huntPrice, huntPercentage float64) bool {
	if huntPrice <= 0 || huntPercentage < 0.5 {
		return false
	}
	touchIdx := -1
	for i, k := range recent {
		if k.Low <= huntPrice && huntPrice <= k.High {
			touchIdx = i
		}
	}
	if touchIdx < 0 {
		return false
	}
	for i := touchIdx + 1; i < len(recent) && i <= touchIdx+3; i++ {
		if math.Abs(recent[i].Close-huntPrice)/huntPrice*100 >= 0.5 {
			return true
		}
	}
	return false
}

// validateHuntingSignal 验证信号质量，不达标的降权或拒绝
func (hd *LiquidityHunterDetector) validateHuntingSignal(hunting *types.HuntingSignal, cached *types.CachedRange) bool {
	if hunting.SignalQuality < hd.cfg.MinSignalQuality {
		return false
	}
	if hunting.FalseSignalRisk > hd.cfg.MaxFalseSignalRisk {
		return false
	}

	// 猎杀距离不足区间的10%，可能只是正常波动
	if hunting.DistanceHunted < cached.Range.RangeSize*0.1 {
		hunting.Confidence *= 0.7
		hunting.SignalQuality *= 0.8
	}

	// 成交量增长不明显的信号不可信
	if hunting.VolumeSpike < 1.5 {
		hunting.Confidence *= 0.6
		hunting.IsConfirmed = false
	}

	return hunting.IsValidHuntingSignal()
}

func (hd *LiquidityHunterDetector) findExistingZoneLocked(symbol string, zone *types.LiquidityZone) *types.LiquidityZone {
	for _, existing := range hd.zones[symbol] {
		if existing.ZoneType != zone.ZoneType || existing.PriceLevel <= 0 {
			continue
		}
		if math.Abs(existing.PriceLevel-zone.PriceLevel)/existing.PriceLevel <= 0.01 {
			return existing
		}
	}
	return nil
}

func (hd *LiquidityHunterDetector) cleanupExpiredZonesLocked(symbol string, now time.Time) {
	zones := hd.zones[symbol]
	expiry := now.Add(-time.Duration(hd.cfg.ZoneExpiryHours) * time.Hour)

	valid := zones[:0]
	for _, zone := range zones {
		if zone.CreatedAt.After(expiry) && zone.Confidence > 0.3 {
			valid = append(valid, zone)
		}
	}

	if removed := len(zones) - len(valid); removed > 0 {
		zap.L().Debug("清理过期流动性区域",
			zap.String("symbol", symbol),
			zap.Int("removed", removed))
	}
	hd.zones[symbol] = valid
}

func (hd *LiquidityHunterDetector) updateStatsLocked(hunting *types.HuntingSignal) {
	hd.stats.totalHuntsDetected++
	if hunting.IsConfirmed {
		hd.stats.confirmedHunts++
	}
	if hunting.FalseSignalRisk > 0.5 {
		hd.stats.falseSignals++
	}
	if hd.stats.totalHuntsDetected > 0 {
		accuracy := float64(hd.stats.confirmedHunts-hd.stats.falseSignals) / float64(hd.stats.totalHuntsDetected)
		hd.stats.avgHuntAccuracy = math.Max(accuracy, 0)
	}
}

// GetLiquidityZones 获取指定交易对的流动性区域
func (hd *LiquidityHunterDetector) GetLiquidityZones(symbol string) []*types.LiquidityZone {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	zones := make([]*types.LiquidityZone, len(hd.zones[symbol]))
	copy(zones, hd.zones[symbol])
	return zones
}

// GetRecentHuntingSignals 获取最近指定小时数内的猎杀信号
func (hd *LiquidityHunterDetector) GetRecentHuntingSignals(hours int) []*types.HuntingSignal {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	var recent []*types.HuntingSignal
	for _, s := range hd.signals {
		if s.DetectedAt.After(cutoff) {
			recent = append(recent, s)
		}
	}
	return recent
}

// GetDetectionStatistics 获取检测统计信息
func (hd *LiquidityHunterDetector) GetDetectionStatistics() map[string]interface{} {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return map[string]interface{}{
		"total_hunts_detected": hd.stats.totalHuntsDetected,
		"confirmed_hunts":      hd.stats.confirmedHunts,
		"false_signals":        hd.stats.falseSignals,
		"zones_identified":     hd.stats.zonesIdentified,
		"avg_hunt_accuracy":    hd.stats.avgHuntAccuracy,
	}
}

// ResetDetector 重置检测器状态
func (hd *LiquidityHunterDetector) ResetDetector() {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	hd.zones = make(map[string][]*types.LiquidityZone)
	hd.signals = nil
	hd.stats = detectionStats{}
	zap.L().Info("流动性猎杀检测器已重置")
}

// ExportZonesData 导出区域数据，symbol为空时导出全部
func (hd *LiquidityHunterDetector) ExportZonesData(symbol string) map[string]interface{} {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	zonesData := make(map[string][]*types.LiquidityZone)
	if symbol != "" {
		zonesData[symbol] = hd.zones[symbol]
	} else {
		for sym, zones := range hd.zones {
			zonesData[sym] = zones
		}
	}

	return map[string]interface{}{
		"export_time": time.Now().Format(time.RFC3339),
		"zones_data":  zonesData,
		"statistics": map[string]interface{}{
			"total_hunts_detected": hd.stats.totalHuntsDetected,
			"confirmed_hunts":      hd.stats.confirmedHunts,
			"false_signals":        hd.stats.falseSignals,
			"zones_identified":     hd.stats.zonesIdentified,
			"avg_hunt_accuracy":    hd.stats.avgHuntAccuracy,
		},
	}
}

// volumeTrend 成交量线性趋势的标准化斜率
func volumeTrend(klines []*types.KLine) float64 {
	if len(klines) < 3 {
		return 0
	}

	n := float64(len(klines))
	var sumX, sumY, sumXY, sumXX float64
	for i, k := range klines {
		x := float64(i)
		sumX += x
		sumY += k.Volume
		sumXY += x * k.Volume
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom

	avg := sumY / n
	if avg <= 0 {
		return 0
	}
	return slope / avg
}
