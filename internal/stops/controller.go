package stops

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// DynamicStopController 动态止损控制器
// 双重止损机制：盘整带止损（主）+ 传统止损（保底），
// 另有跟踪、时间、波动率与紧急止损组成风险梯度
type DynamicStopController struct {
	cfg types.StopConfig

	mu          sync.Mutex
	activeStops map[string][]*types.StopLossLevel // cache_id -> 止损水平
	stopHistory []*types.ExitSignal

	stats stopStats
}

type stopStats struct {
	totalStopsCreated      int
	rangeStopsTriggered    int
	fixedStopsTriggered    int
	trailingStopsTriggered int
	timeStopsTriggered     int
	emergencyStops         int
	falseTriggers          int
}

// NewDynamicStopController 创建动态止损控制器
func NewDynamicStopController(cfg types.StopConfig) *DynamicStopController {
	if cfg.RangeStopBuffer <= 0 {
		cfg.RangeStopBuffer = 0.001
	}
	if cfg.MaxStopLoss <= 0 {
		cfg.MaxStopLoss = 0.05
	}
	if cfg.TimeStopHours <= 0 {
		cfg.TimeStopHours = 24 * 7
	}
	if cfg.TrailingStopDistance <= 0 {
		cfg.TrailingStopDistance = 0.02
	}
	if cfg.TrailingActivationProfit <= 0 {
		cfg.TrailingActivationProfit = 0.01
	}
	if cfg.VolatilityMultiplier <= 0 {
		cfg.VolatilityMultiplier = 2.0
	}
	if cfg.EmergencyStopThreshold <= 0 {
		cfg.EmergencyStopThreshold = 0.08
	}
	return &DynamicStopController{
		cfg:         cfg,
		activeStops: make(map[string][]*types.StopLossLevel),
	}
}

// CalculateStopLevels 计算全部止损水平并缓存
// entryPrice<=0时使用突破价格；klines用于波动率估算，可为nil
func (dc *DynamicStopController) CalculateStopLevels(cached *types.CachedRange, currentPrice, entryPrice float64, klines []*types.KLine) map[types.StopLossType]*types.StopLossLevel {
	if entryPrice <= 0 {
		entryPrice = cached.Signal.BreakoutPrice
	}

	levels := make(map[types.StopLossType]*types.StopLossLevel)

	// 1. 盘整带边界止损（主要止损）
	if level := dc.rangeBoundaryStop(cached, currentPrice); level != nil {
		levels[types.StopRangeBoundary] = level
	}

	// 2. 固定比例止损（保底止损）
	if level := dc.fixedPercentageStop(&cached.Signal, currentPrice, entryPrice); level != nil {
		levels[types.StopFixedPercentage] = level
	}

	// 3. 跟踪止损：盈利达到激活线后才生效
	if level := dc.trailingStop(&cached.Signal, currentPrice, entryPrice); level != nil {
		levels[types.StopTrailing] = level
	}

	// 4. 时间止损
	if level := dc.timeBasedStop(cached, currentPrice); level != nil {
		levels[types.StopTimeBased] = level
	}

	// 5. 波动率止损
	if level := dc.volatilityBasedStop(&cached.Signal, currentPrice, klines); level != nil {
		levels[types.StopVolatilityBased] = level
	}

	// 6. 紧急止损
	if level := dc.emergencyStop(&cached.Signal, currentPrice, entryPrice); level != nil {
		levels[types.StopEmergency] = level
	}

	flat := make([]*types.StopLossLevel, 0, len(levels))
	for _, level := range levels {
		flat = append(flat, level)
	}

	dc.mu.Lock()
	dc.activeStops[cached.CacheID] = flat
	dc.stats.totalStopsCreated += len(flat)
	dc.mu.Unlock()

	zap.L().Info("🛡️ 止损水平计算完成",
		zap.String("cache_id", cached.CacheID),
		zap.Int("levels", len(flat)))

	return levels
}

// rangeBoundaryStop 盘整带边界止损，距离超限时退化为最大比例止损
func (dc *DynamicStopController) rangeBoundaryStop(cached *types.CachedRange, currentPrice float64) *types.StopLossLevel {
	var stopPrice float64
	var boundaryName string

	if cached.Signal.Direction == types.BreakoutUp {
		// 向上突破，止损设在下边界
		stopPrice = cached.Range.LowerBoundary * (1 - dc.cfg.RangeStopBuffer)
		boundaryName = "下边界"
	} else {
		// 向下突破，止损设在上边界
		stopPrice = cached.Range.UpperBoundary * (1 + dc.cfg.RangeStopBuffer)
		boundaryName = "上边界"
	}

	distance := math.Abs(currentPrice - stopPrice)
	distancePct := distance / currentPrice * 100

	if distancePct > dc.cfg.MaxStopLoss*100 {
		zap.L().Warn("⚠️ 盘整带止损距离过大，使用最大止损",
			zap.Float64("distance_pct", distancePct))
		if cached.Signal.Direction == types.BreakoutUp {
			stopPrice = currentPrice * (1 - dc.cfg.MaxStopLoss)
		} else {
			stopPrice = currentPrice * (1 + dc.cfg.MaxStopLoss)
		}
		distance = math.Abs(currentPrice - stopPrice)
		distancePct = distance / currentPrice * 100
	}

	return &types.StopLossLevel{
		LevelType:   types.StopRangeBoundary,
		Price:       stopPrice,
		Distance:    distance,
		DistancePct: distancePct,
		Priority:    1,
		IsActive:    true,
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("盘整带%s止损，缓冲%.1f%%", boundaryName, dc.cfg.RangeStopBuffer*100),
	}
}

// fixedPercentageStop 固定比例止损，突破质量越高止损越宽松
func (dc *DynamicStopController) fixedPercentageStop(signal *types.BreakoutSignal, currentPrice, entryPrice float64) *types.StopLossLevel {
	qualityFactor := signal.QualityScore / 100
	adjustedStopPct := dc.cfg.MaxStopLoss * (1.5 - qualityFactor*0.5)

	var stopPrice float64
	if signal.Direction == types.BreakoutUp {
		stopPrice = entryPrice * (1 - adjustedStopPct)
	} else {
		stopPrice = entryPrice * (1 + adjustedStopPct)
	}

	distance := math.Abs(currentPrice - stopPrice)

	return &types.StopLossLevel{
		LevelType:   types.StopFixedPercentage,
		Price:       stopPrice,
		Distance:    distance,
		DistancePct: distance / currentPrice * 100,
		Priority:    2,
		IsActive:    true,
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("固定比例止损 %.1f%%", adjustedStopPct*100),
	}
}

// trailingStop 跟踪止损，盈利不足激活线时返回nil
func (dc *DynamicStopController) trailingStop(signal *types.BreakoutSignal, currentPrice, entryPrice float64) *types.StopLossLevel {
	var profitPct, stopPrice float64

	if signal.Direction == types.BreakoutUp {
		profitPct = (currentPrice - entryPrice) / entryPrice
		if profitPct < dc.cfg.TrailingActivationProfit {
			return nil
		}
		stopPrice = currentPrice * (1 - dc.cfg.TrailingStopDistance)
	} else {
		profitPct = (entryPrice - currentPrice) / entryPrice
		if profitPct < dc.cfg.TrailingActivationProfit {
			return nil
		}
		stopPrice = currentPrice * (1 + dc.cfg.TrailingStopDistance)
	}

	distance := math.Abs(currentPrice - stopPrice)

	return &types.StopLossLevel{
		LevelType:   types.StopTrailing,
		Price:       stopPrice,
		Distance:    distance,
		DistancePct: distance / currentPrice * 100,
		Priority:    3,
		IsActive:    true,
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("跟踪止损，距离%.1f%%", dc.cfg.TrailingStopDistance*100),
	}
}

// timeBasedStop 时间止损，未到期时作为待触发水平返回
func (dc *DynamicStopController) timeBasedStop(cached *types.CachedRange, currentPrice float64) *types.StopLossLevel {
	holding := time.Since(cached.CachedAt)
	maxHolding := time.Duration(dc.cfg.TimeStopHours) * time.Hour

	level := &types.StopLossLevel{
		LevelType: types.StopTimeBased,
		Price:     currentPrice,
		Priority:  4,
		CreatedAt: time.Now(),
	}

	if holding >= maxHolding {
		level.IsActive = true
		level.Description = fmt.Sprintf("时间止损，持仓超过%d小时", dc.cfg.TimeStopHours)
	} else {
		level.IsActive = false
		level.Description = fmt.Sprintf("时间止损，剩余%.1f小时", (maxHolding - holding).Hours())
	}

	return level
}

// volatilityBasedStop 波动率止损
// 有K线数据时按收益率标准差估算波动率，否则使用2%的保守默认值
func (dc *DynamicStopController) volatilityBasedStop(signal *types.BreakoutSignal, currentPrice float64, klines []*types.KLine) *types.StopLossLevel {
	volatility := 0.02
	if len(klines) >= 3 {
		if estimated := returnsStd(types.Closes(klines)); estimated > 0 {
			volatility = estimated
		}
	}

	stopDistance := volatility * dc.cfg.VolatilityMultiplier

	var stopPrice float64
	if signal.Direction == types.BreakoutUp {
		stopPrice = currentPrice * (1 - stopDistance)
	} else {
		stopPrice = currentPrice * (1 + stopDistance)
	}

	return &types.StopLossLevel{
		LevelType:   types.StopVolatilityBased,
		Price:       stopPrice,
		Distance:    math.Abs(currentPrice - stopPrice),
		DistancePct: stopDistance * 100,
		Priority:    3,
		IsActive:    true,
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("波动率止损，%.1f倍波动", dc.cfg.VolatilityMultiplier),
	}
}

// emergencyStop 紧急止损：亏损达到阈值立即激活，否则设为待触发的止损线
func (dc *DynamicStopController) emergencyStop(signal *types.BreakoutSignal, currentPrice, entryPrice float64) *types.StopLossLevel {
	var lossPct float64
	if signal.Direction == types.BreakoutUp {
		lossPct = (entryPrice - currentPrice) / entryPrice
	} else {
		lossPct = (currentPrice - entryPrice) / entryPrice
	}

	if lossPct >= dc.cfg.EmergencyStopThreshold {
		return &types.StopLossLevel{
			LevelType:   types.StopEmergency,
			Price:       currentPrice,
			Priority:    0,
			IsActive:    true,
			CreatedAt:   time.Now(),
			Description: fmt.Sprintf("紧急止损，亏损%.1f%%", lossPct*100),
		}
	}

	var stopPrice float64
	if signal.Direction == types.BreakoutUp {
		stopPrice = entryPrice * (1 - dc.cfg.EmergencyStopThreshold)
	} else {
		stopPrice = entryPrice * (1 + dc.cfg.EmergencyStopThreshold)
	}

	distance := math.Abs(currentPrice - stopPrice)

	return &types.StopLossLevel{
		LevelType:   types.StopEmergency,
		Price:       stopPrice,
		Distance:    distance,
		DistancePct: distance / currentPrice * 100,
		Priority:    0,
		IsActive:    false,
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("紧急止损线，%.1f%%", dc.cfg.EmergencyStopThreshold*100),
	}
}

// ShouldExit 判断是否应该退出
// 汇总全部触发的止损后取紧急程度最高者；输入异常时保守退出
func (dc *DynamicStopController) ShouldExit(cached *types.CachedRange, currentPrice float64, now time.Time) *types.ExitSignal {
	if now.IsZero() {
		now = time.Now()
	}

	// 输入异常时保守退出，保护资金优先
	if cached == nil || currentPrice <= 0 {
		return &types.ExitSignal{
			ShouldExit: true,
			ExitReason: types.ExitEmergencyStop,
			ExitPrice:  currentPrice,
			Urgency:    5,
			Confidence: 1.0,
			Detail:     "输入异常，保守退出",
			Timestamp:  now,
		}
	}

	stopLevels := dc.evaluateStopLevels(cached, currentPrice)

	var exitSignals []*types.ExitSignal

	// 1. 盘整带退出检查（最重要）
	if rangeExit := dc.checkRangeBoundaryExit(cached, currentPrice, now); rangeExit != nil {
		exitSignals = append(exitSignals, rangeExit)
	}

	// 2. 各止损水平触发检查
	for _, level := range stopLevels {
		if !level.IsActive {
			continue
		}
		if exit := dc.checkStopLevelTriggered(level, cached, currentPrice, now); exit != nil {
			exitSignals = append(exitSignals, exit)
		}
	}

	// 3. 时间止损检查
	if timeExit := dc.checkTimeBasedExit(cached, currentPrice, now); timeExit != nil {
		exitSignals = append(exitSignals, timeExit)
	}

	if len(exitSignals) == 0 {
		return &types.ExitSignal{
			ShouldExit: false,
			ExitReason: types.ExitNone,
			ExitPrice:  currentPrice,
			Symbol:     cached.Symbol,
			CacheID:    cached.CacheID,
			Timestamp:  now,
		}
	}

	// 按紧急程度优先、置信度次之选择最终信号
	sort.Slice(exitSignals, func(i, j int) bool {
		if exitSignals[i].Urgency != exitSignals[j].Urgency {
			return exitSignals[i].Urgency > exitSignals[j].Urgency
		}
		return exitSignals[i].Confidence > exitSignals[j].Confidence
	})
	final := exitSignals[0]

	dc.mu.Lock()
	dc.stopHistory = append(dc.stopHistory, final)
	dc.updateStatsLocked(final)
	dc.mu.Unlock()

	zap.L().Info("🚨 触发退出信号",
		zap.String("symbol", final.Symbol),
		zap.String("reason", string(final.ExitReason)),
		zap.Int("urgency", final.Urgency),
		zap.Float64("exit_price", final.ExitPrice))

	return final
}

// evaluateStopLevels 组装本次决策使用的止损水平
// 区间、固定与紧急止损每次按当前价格重新计算；
// 跟踪止损沿用棘轮后的价格，波动率止损沿用建仓时的锚定价格
func (dc *DynamicStopController) evaluateStopLevels(cached *types.CachedRange, currentPrice float64) []*types.StopLossLevel {
	entryPrice := cached.Signal.BreakoutPrice

	levels := make([]*types.StopLossLevel, 0, 5)
	if level := dc.rangeBoundaryStop(cached, currentPrice); level != nil {
		levels = append(levels, level)
	}
	if level := dc.fixedPercentageStop(&cached.Signal, currentPrice, entryPrice); level != nil {
		levels = append(levels, level)
	}
	if level := dc.emergencyStop(&cached.Signal, currentPrice, entryPrice); level != nil {
		levels = append(levels, level)
	}

	dc.mu.Lock()
	stored, ok := dc.activeStops[cached.CacheID]
	dc.mu.Unlock()
	if !ok {
		// 未预先计算过止损时补算一次，建立跟踪与波动率止损的状态
		dc.CalculateStopLevels(cached, currentPrice, entryPrice, nil)
		dc.mu.Lock()
		stored = dc.activeStops[cached.CacheID]
		dc.mu.Unlock()
	}
	for _, level := range stored {
		switch level.LevelType {
		case types.StopTrailing, types.StopVolatilityBased:
			levels = append(levels, level)
		}
	}

	return levels
}

// checkRangeBoundaryExit 检查价格是否回到盘整区间内
func (dc *DynamicStopController) checkRangeBoundaryExit(cached *types.CachedRange, currentPrice float64, now time.Time) *types.ExitSignal {
	buffer := cached.Range.RangeSize * dc.cfg.RangeStopBuffer

	if cached.Signal.Direction == types.BreakoutUp {
		// 向上突破后，跌破下边界触发
		triggerPrice := cached.Range.LowerBoundary + buffer
		if currentPrice <= triggerPrice {
			return &types.ExitSignal{
				ShouldExit: true,
				ExitReason: types.ExitRangeReturn,
				ExitPrice:  currentPrice,
				Urgency:    3,
				Confidence: 0.8,
				Symbol:     cached.Symbol,
				CacheID:    cached.CacheID,
				Detail:     fmt.Sprintf("跌破下边界%.4f", cached.Range.LowerBoundary),
				Timestamp:  now,
			}
		}
	} else {
		// 向下突破后，升破上边界触发
		triggerPrice := cached.Range.UpperBoundary - buffer
		if currentPrice >= triggerPrice {
			return &types.ExitSignal{
				ShouldExit: true,
				ExitReason: types.ExitRangeReturn,
				ExitPrice:  currentPrice,
				Urgency:    3,
				Confidence: 0.8,
				Symbol:     cached.Symbol,
				CacheID:    cached.CacheID,
				Detail:     fmt.Sprintf("升破上边界%.4f", cached.Range.UpperBoundary),
				Timestamp:  now,
			}
		}
	}

	return nil
}

// checkStopLevelTriggered 检查单个止损水平是否触发
func (dc *DynamicStopController) checkStopLevelTriggered(level *types.StopLossLevel, cached *types.CachedRange, currentPrice float64, now time.Time) *types.ExitSignal {
	var triggered bool
	if cached.Signal.Direction == types.BreakoutUp {
		triggered = currentPrice <= level.Price
	} else {
		triggered = currentPrice >= level.Price
	}
	if !triggered {
		return nil
	}

	var reason types.ExitReason
	switch level.LevelType {
	case types.StopRangeBoundary:
		reason = types.ExitRangeReturn
	case types.StopTrailing:
		reason = types.ExitTrailingStopHit
	case types.StopTimeBased:
		reason = types.ExitTimeStopHit
	case types.StopEmergency:
		reason = types.ExitEmergencyStop
	default:
		reason = types.ExitFixedStopHit
	}

	urgency := 5 - level.Priority
	if level.LevelType == types.StopEmergency {
		urgency = 5
	}

	return &types.ExitSignal{
		ShouldExit:    true,
		ExitReason:    reason,
		TriggeredStop: level,
		ExitPrice:     currentPrice,
		Urgency:       urgency,
		Confidence:    0.9,
		Symbol:        cached.Symbol,
		CacheID:       cached.CacheID,
		Detail:        level.Description,
		Timestamp:     now,
	}
}

// checkTimeBasedExit 检查持仓时间是否超限
func (dc *DynamicStopController) checkTimeBasedExit(cached *types.CachedRange, currentPrice float64, now time.Time) *types.ExitSignal {
	holding := now.Sub(cached.CachedAt)
	maxHolding := time.Duration(dc.cfg.TimeStopHours) * time.Hour

	if holding < maxHolding {
		return nil
	}

	return &types.ExitSignal{
		ShouldExit: true,
		ExitReason: types.ExitTimeStopHit,
		ExitPrice:  currentPrice,
		Urgency:    2,
		Confidence: 0.7,
		Symbol:     cached.Symbol,
		CacheID:    cached.CacheID,
		Detail:     fmt.Sprintf("持仓%.1f小时，超过%d小时上限", holding.Hours(), dc.cfg.TimeStopHours),
		Timestamp:  now,
	}
}

// UpdateTrailingStop 更新跟踪止损，只向有利方向棘轮式调整
func (dc *DynamicStopController) UpdateTrailingStop(cacheID string, currentPrice float64, direction types.BreakoutDirection) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, level := range dc.activeStops[cacheID] {
		if level.LevelType != types.StopTrailing || !level.IsActive {
			continue
		}

		if direction == types.BreakoutUp {
			newStopPrice := currentPrice * (1 - dc.cfg.TrailingStopDistance)
			if newStopPrice > level.Price {
				level.Price = newStopPrice
				level.Distance = currentPrice - newStopPrice
				level.DistancePct = level.Distance / currentPrice * 100
				zap.L().Debug("跟踪止损上调", zap.Float64("price", newStopPrice))
			}
		} else {
			newStopPrice := currentPrice * (1 + dc.cfg.TrailingStopDistance)
			if newStopPrice < level.Price {
				level.Price = newStopPrice
				level.Distance = newStopPrice - currentPrice
				level.DistancePct = level.Distance / currentPrice * 100
				zap.L().Debug("跟踪止损下调", zap.Float64("price", newStopPrice))
			}
		}
		break
	}
}

// GetStopSummary 获取指定仓位的止损摘要
func (dc *DynamicStopController) GetStopSummary(cacheID string) map[string]interface{} {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stopLevels := dc.activeStops[cacheID]

	summary := map[string]interface{}{
		"total_stops":  len(stopLevels),
		"active_stops": 0,
	}
	if len(stopLevels) == 0 {
		return summary
	}

	byType := make(map[string]int)
	activeCount := 0
	var nearest, mostCritical *types.StopLossLevel

	for _, level := range stopLevels {
		byType[string(level.LevelType)]++
		if !level.IsActive {
			continue
		}
		activeCount++
		if nearest == nil || level.Distance < nearest.Distance {
			nearest = level
		}
		if mostCritical == nil || level.Priority < mostCritical.Priority {
			mostCritical = level
		}
	}

	summary["active_stops"] = activeCount
	summary["stops_by_type"] = byType
	if nearest != nil {
		summary["nearest_stop"] = map[string]interface{}{
			"type":         string(nearest.LevelType),
			"price":        nearest.Price,
			"distance":     nearest.Distance,
			"distance_pct": nearest.DistancePct,
		}
	}
	if mostCritical != nil {
		summary["most_critical_stop"] = map[string]interface{}{
			"type":        string(mostCritical.LevelType),
			"price":       mostCritical.Price,
			"priority":    mostCritical.Priority,
			"description": mostCritical.Description,
		}
	}

	return summary
}

func (dc *DynamicStopController) updateStatsLocked(exit *types.ExitSignal) {
	switch exit.ExitReason {
	case types.ExitRangeReturn:
		dc.stats.rangeStopsTriggered++
	case types.ExitFixedStopHit:
		dc.stats.fixedStopsTriggered++
	case types.ExitTrailingStopHit:
		dc.stats.trailingStopsTriggered++
	case types.ExitTimeStopHit:
		dc.stats.timeStopsTriggered++
	case types.ExitEmergencyStop:
		dc.stats.emergencyStops++
	}
	if exit.Confidence < 0.5 {
		dc.stats.falseTriggers++
	}
}

// GetControllerStats 获取控制器统计信息
func (dc *DynamicStopController) GetControllerStats() map[string]interface{} {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	totalTriggers := dc.stats.rangeStopsTriggered +
		dc.stats.fixedStopsTriggered +
		dc.stats.trailingStopsTriggered +
		dc.stats.timeStopsTriggered +
		dc.stats.emergencyStops

	stats := map[string]interface{}{
		"total_stops_created":       dc.stats.totalStopsCreated,
		"range_stops_triggered":     dc.stats.rangeStopsTriggered,
		"fixed_stops_triggered":     dc.stats.fixedStopsTriggered,
		"trailing_stops_triggered":  dc.stats.trailingStopsTriggered,
		"time_stops_triggered":      dc.stats.timeStopsTriggered,
		"emergency_stops_triggered": dc.stats.emergencyStops,
		"false_triggers":            dc.stats.falseTriggers,
		"active_positions":          len(dc.activeStops),
		"total_exit_signals":        len(dc.stopHistory),
	}

	if totalTriggers > 0 {
		stats["range_stop_ratio"] = float64(dc.stats.rangeStopsTriggered) / float64(totalTriggers)
		stats["fixed_stop_ratio"] = float64(dc.stats.fixedStopsTriggered) / float64(totalTriggers)
		stats["time_stop_ratio"] = float64(dc.stats.timeStopsTriggered) / float64(totalTriggers)
		stats["emergency_stop_ratio"] = float64(dc.stats.emergencyStops) / float64(totalTriggers)
		stats["false_trigger_ratio"] = float64(dc.stats.falseTriggers) / float64(totalTriggers)
	} else {
		stats["range_stop_ratio"] = 0.0
		stats["fixed_stop_ratio"] = 0.0
		stats["time_stop_ratio"] = 0.0
		stats["emergency_stop_ratio"] = 0.0
		stats["false_trigger_ratio"] = 0.0
	}

	return stats
}

// ResetStats 重置统计信息与退出历史
func (dc *DynamicStopController) ResetStats() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.stats = stopStats{}
	dc.stopHistory = nil
	zap.L().Info("止损控制器统计已重置")
}

// RemoveStops 仓位关闭后移除对应的止损水平
func (dc *DynamicStopController) RemoveStops(cacheID string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	delete(dc.activeStops, cacheID)
}

// CleanupInactiveStops 清理全部水平均非活跃的仓位，返回清理数量
func (dc *DynamicStopController) CleanupInactiveStops() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	cleaned := 0
	for cacheID, levels := range dc.activeStops {
		active := levels[:0]
		for _, level := range levels {
			if level.IsActive {
				active = append(active, level)
			}
		}
		if len(active) == 0 {
			delete(dc.activeStops, cacheID)
			cleaned++
		} else {
			dc.activeStops[cacheID] = active
		}
	}

	if cleaned > 0 {
		zap.L().Info("🧹 清理非活跃止损", zap.Int("count", cleaned))
	}
	return cleaned
}

// returnsStd 计算收益率序列的标准差
func returnsStd(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
