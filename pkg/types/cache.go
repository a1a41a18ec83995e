package types

import "time"

// CacheStatus 缓存状态枚举
type CacheStatus string

const (
	CacheActive      CacheStatus = "active"      // 活跃状态
	CacheInactive    CacheStatus = "inactive"    // 非活跃状态
	CacheExpired     CacheStatus = "expired"     // 已过期
	CacheInvalidated CacheStatus = "invalidated" // 已失效
)

// RangeUsageType 区间使用类型枚举
type RangeUsageType string

const (
	UsageStopLoss    RangeUsageType = "stop_loss"    // 用于止损
	UsageEntrySignal RangeUsageType = "entry_signal" // 用于入场信号
	UsageExitSignal  RangeUsageType = "exit_signal"  // 用于出场信号
	UsageReference   RangeUsageType = "reference"    // 仅作参考
)

// CachedRange 缓存的盘整区间数据结构
//
// 持有盘整区间与突破信号的值拷贝，缓存管理器是唯一的生命周期所有者，
// 其他组件只通过CacheID弱引用。
type CachedRange struct {
	// 唯一标识
	CacheID string `json:"cache_id"`
	Symbol  string `json:"symbol"`

	// 核心数据（值拷贝，不共享指针）
	Range  ConsolidationRange `json:"consolidation_range"`
	Signal BreakoutSignal     `json:"breakout_signal"`

	// 缓存状态
	Status    CacheStatus    `json:"status"`
	UsageType RangeUsageType `json:"usage_type"`

	// 时间信息
	CachedAt     time.Time `json:"cached_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`

	// 使用统计
	AccessCount  int `json:"access_count"`
	HitCount     int `json:"hit_count"`
	SuccessCount int `json:"success_count"`

	// 性能指标
	PriceReturns       []float64 `json:"price_returns"`
	HoldingPeriods     []int     `json:"holding_periods"`
	EffectivenessScore float64   `json:"effectiveness_score"`

	// 元数据
	Notes string `json:"notes"`
}

// IsExpired 检查是否已过期
func (c *CachedRange) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsable 检查缓存条目当前是否可用
func (c *CachedRange) IsUsable(now time.Time) bool {
	return (c.Status == CacheActive || c.Status == CacheInactive) &&
		!c.IsExpired(now) &&
		c.Range.IsValid() &&
		c.Signal.IsValid()
}

// UpdateAccess 更新访问信息
func (c *CachedRange) UpdateAccess(now time.Time) {
	c.AccessCount++
	c.LastAccessed = now
}

// RecordHit 记录命中
func (c *CachedRange) RecordHit(success bool, now time.Time) {
	c.HitCount++
	if success {
		c.SuccessCount++
	}
	c.UpdateAccess(now)
}

// AddPerformanceData 添加性能数据并刷新有效性评分
func (c *CachedRange) AddPerformanceData(priceReturn float64, holdingPeriod int) {
	c.PriceReturns = append(c.PriceReturns, priceReturn)
	c.HoldingPeriods = append(c.HoldingPeriods, holdingPeriod)
	c.updateEffectivenessScore()
}

// updateEffectivenessScore 有效性评分 = 平均收益与成功率各占一半
func (c *CachedRange) updateEffectivenessScore() {
	if len(c.PriceReturns) == 0 {
		c.EffectivenessScore = 0
		return
	}

	sum := 0.0
	for _, r := range c.PriceReturns {
		sum += r
	}
	avgReturn := sum / float64(len(c.PriceReturns))

	hits := c.HitCount
	if hits == 0 {
		hits = 1
	}
	successRate := float64(c.SuccessCount) / float64(hits)

	c.EffectivenessScore = avgReturn*50 + successRate*50
}

// PerformanceSummary 区间性能摘要
type PerformanceSummary struct {
	TotalTrades        int     `json:"total_trades"`
	AvgReturn          float64 `json:"avg_return"`
	SuccessRate        float64 `json:"success_rate"`
	AvgHoldingPeriod   float64 `json:"avg_holding_period"`
	EffectivenessScore float64 `json:"effectiveness_score"`
	MaxReturn          float64 `json:"max_return"`
	MinReturn          float64 `json:"min_return"`
	TotalAccess        int     `json:"total_access"`
}

// GetPerformanceSummary 获取性能摘要
func (c *CachedRange) GetPerformanceSummary() PerformanceSummary {
	summary := PerformanceSummary{
		TotalTrades:        len(c.PriceReturns),
		EffectivenessScore: c.EffectivenessScore,
		TotalAccess:        c.AccessCount,
	}
	if len(c.PriceReturns) == 0 {
		return summary
	}

	sum := 0.0
	summary.MaxReturn = c.PriceReturns[0]
	summary.MinReturn = c.PriceReturns[0]
	for _, r := range c.PriceReturns {
		sum += r
		if r > summary.MaxReturn {
			summary.MaxReturn = r
		}
		if r < summary.MinReturn {
			summary.MinReturn = r
		}
	}
	summary.AvgReturn = sum / float64(len(c.PriceReturns))

	hits := c.HitCount
	if hits == 0 {
		hits = 1
	}
	summary.SuccessRate = float64(c.SuccessCount) / float64(hits)

	if len(c.HoldingPeriods) > 0 {
		periodSum := 0
		for _, p := range c.HoldingPeriods {
			periodSum += p
		}
		summary.AvgHoldingPeriod = float64(periodSum) / float64(len(c.HoldingPeriods))
	}

	return summary
}
