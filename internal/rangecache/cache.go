package rangecache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// RangeCacheManager 区间缓存管理器
// 管理盘整区间和突破信号的缓存，LRU淘汰加TTL过期
type RangeCacheManager struct {
	cfg types.CacheConfig

	mu           sync.Mutex
	order        *list.List               // LRU顺序，队首最旧
	entries      map[string]*list.Element // cache_id -> 链表节点
	symbolIndex  map[string][]string      // symbol -> cache_id列表
	activeRanges map[string]string        // symbol -> 活跃区间cache_id

	stats cacheStats
}

type cacheStats struct {
	totalCached      int
	totalHits        int
	totalMisses      int
	totalExpired     int
	totalInvalidated int
}

// NewRangeCacheManager 创建缓存管理器
// 配置了快照路径时尝试恢复上次的缓存内容，文件缺失或损坏则从空缓存启动
func NewRangeCacheManager(cfg types.CacheConfig) *RangeCacheManager {
	if cfg.MaxCachedRanges <= 0 {
		cfg.MaxCachedRanges = 100
	}
	if cfg.CacheExpiryHours <= 0 {
		cfg.CacheExpiryHours = 24 * 7
	}

	m := &RangeCacheManager{
		cfg:          cfg,
		order:        list.New(),
		entries:      make(map[string]*list.Element),
		symbolIndex:  make(map[string][]string),
		activeRanges: make(map[string]string),
	}

	if cfg.SnapshotPath != "" {
		m.loadSnapshot()
	}
	if cfg.AutoCleanup {
		m.CleanupExpired()
	}

	zap.L().Info("✅ 区间缓存管理器初始化完成",
		zap.Int("cached", m.Size()),
		zap.Int("max_capacity", cfg.MaxCachedRanges))

	return m
}

// CacheRange 缓存盘整区间与对应的突破信号
// expiryHours<=0时使用默认有效期；止损用途的区间会成为该币种的活跃区间
func (m *RangeCacheManager) CacheRange(cr *types.ConsolidationRange, signal *types.BreakoutSignal, usage types.RangeUsageType, expiryHours int) *types.CachedRange {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureCapacityLocked()

	if expiryHours <= 0 {
		expiryHours = m.cfg.CacheExpiryHours
	}
	now := time.Now()

	entry := &types.CachedRange{
		CacheID:      uuid.NewString(),
		Symbol:       cr.Symbol,
		Range:        *cr,
		Signal:       *signal,
		Status:       types.CacheActive,
		UsageType:    usage,
		CachedAt:     now,
		LastAccessed: now,
		ExpiresAt:    now.Add(time.Duration(expiryHours) * time.Hour),
	}

	m.entries[entry.CacheID] = m.order.PushBack(entry)
	m.symbolIndex[entry.Symbol] = append(m.symbolIndex[entry.Symbol], entry.CacheID)

	if usage == types.UsageStopLoss {
		m.activeRanges[entry.Symbol] = entry.CacheID
	}

	m.stats.totalCached++

	if m.cfg.SnapshotPath != "" {
		m.saveSnapshotLocked()
	}

	zap.L().Info("✅ 成功缓存区间",
		zap.String("cache_id", entry.CacheID),
		zap.String("symbol", entry.Symbol),
		zap.String("usage", string(usage)))

	return entry
}

// GetCachedRange 获取缓存的区间
// 命中的条目更新访问信息并移到LRU队尾；已过期条目标记失效并返回nil
func (m *RangeCacheManager) GetCachedRange(cacheID string) *types.CachedRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(cacheID)
}

func (m *RangeCacheManager) getLocked(cacheID string) *types.CachedRange {
	elem, ok := m.entries[cacheID]
	if !ok {
		m.stats.totalMisses++
		return nil
	}

	entry := elem.Value.(*types.CachedRange)
	now := time.Now()

	if entry.IsExpired(now) {
		m.invalidateLocked(cacheID, "expired")
		m.stats.totalExpired++
		return nil
	}

	entry.UpdateAccess(now)
	m.stats.totalHits++
	m.order.MoveToBack(elem)

	return entry
}

// GetActiveRangeForSymbol 获取指定币种的活跃区间
func (m *RangeCacheManager) GetActiveRangeForSymbol(symbol string) *types.CachedRange {
	m.mu.Lock()
	defer m.mu.Unlock()

	activeID, ok := m.activeRanges[symbol]
	if !ok {
		return nil
	}
	return m.getLocked(activeID)
}

// GetRangesBySymbol 获取指定币种的区间列表，按缓存时间倒序
func (m *RangeCacheManager) GetRangesBySymbol(symbol string, activeOnly bool, limit int) []*types.CachedRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rangesBySymbolLocked(symbol, activeOnly, limit)
}

func (m *RangeCacheManager) rangesBySymbolLocked(symbol string, activeOnly bool, limit int) []*types.CachedRange {
	cacheIDs := m.symbolIndex[symbol]
	ranges := make([]*types.CachedRange, 0, len(cacheIDs))

	// getLocked可能失效并移除条目，遍历副本
	ids := make([]string, len(cacheIDs))
	copy(ids, cacheIDs)

	for _, cacheID := range ids {
		entry := m.getLocked(cacheID)
		if entry == nil {
			continue
		}
		if activeOnly && entry.Status != types.CacheActive {
			continue
		}
		ranges = append(ranges, entry)
		if limit > 0 && len(ranges) >= limit {
			break
		}
	}

	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].CachedAt.After(ranges[j].CachedAt)
	})

	return ranges
}

// FindRangesByPrice 根据价格查找相关区间（区间内或接近边界）
func (m *RangeCacheManager) FindRangesByPrice(symbol string, price, tolerance float64) []*types.CachedRange {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranges := m.rangesBySymbolLocked(symbol, false, 0)
	matching := make([]*types.CachedRange, 0, len(ranges))

	for _, entry := range ranges {
		if entry.Range.ContainsPrice(price, tolerance) {
			matching = append(matching, entry)
			continue
		}

		dist := entry.Range.DistanceToBoundary(price)
		if dist.ToUpperPct <= tolerance*100 || dist.ToLowerPct <= tolerance*100 {
			matching = append(matching, entry)
		}
	}

	return matching
}

// UpdateRangePerformance 更新区间性能数据
func (m *RangeCacheManager) UpdateRangePerformance(cacheID string, priceReturn float64, holdingPeriod int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.getLocked(cacheID)
	if entry == nil {
		return
	}

	entry.AddPerformanceData(priceReturn, holdingPeriod)
	entry.RecordHit(success, time.Now())

	zap.L().Info("📊 更新区间性能",
		zap.String("cache_id", cacheID),
		zap.Float64("return", priceReturn),
		zap.Int("holding_period", holdingPeriod),
		zap.Bool("success", success))

	if m.cfg.SnapshotPath != "" {
		m.saveSnapshotLocked()
	}
}

// InvalidateRange 使区间失效
func (m *RangeCacheManager) InvalidateRange(cacheID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked(cacheID, reason)
}

func (m *RangeCacheManager) invalidateLocked(cacheID, reason string) {
	elem, ok := m.entries[cacheID]
	if !ok {
		return
	}

	entry := elem.Value.(*types.CachedRange)
	entry.Status = types.CacheInvalidated
	entry.Notes = "Invalidated: " + reason

	if m.activeRanges[entry.Symbol] == cacheID {
		delete(m.activeRanges, entry.Symbol)
	}

	m.stats.totalInvalidated++

	zap.L().Info("🛑 区间失效",
		zap.String("cache_id", cacheID),
		zap.String("reason", reason))
}

// ensureCapacityLocked 淘汰直到容量允许新条目
// 优先淘汰最旧的不可用条目，否则按LRU淘汰最旧条目
func (m *RangeCacheManager) ensureCapacityLocked() {
	now := time.Now()
	for m.order.Len() >= m.cfg.MaxCachedRanges {
		var victim string
		for elem := m.order.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*types.CachedRange)
			if !entry.IsUsable(now) {
				victim = entry.CacheID
				break
			}
		}
		if victim == "" {
			victim = m.order.Front().Value.(*types.CachedRange).CacheID
		}
		m.removeLocked(victim)
	}
}

func (m *RangeCacheManager) removeLocked(cacheID string) {
	elem, ok := m.entries[cacheID]
	if !ok {
		return
	}
	entry := elem.Value.(*types.CachedRange)

	// 从币种索引中移除
	ids := m.symbolIndex[entry.Symbol]
	for i, id := range ids {
		if id == cacheID {
			m.symbolIndex[entry.Symbol] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.symbolIndex[entry.Symbol]) == 0 {
		delete(m.symbolIndex, entry.Symbol)
	}

	if m.activeRanges[entry.Symbol] == cacheID {
		delete(m.activeRanges, entry.Symbol)
	}

	m.order.Remove(elem)
	delete(m.entries, cacheID)

	zap.L().Debug("移除区间", zap.String("cache_id", cacheID))
}

// CleanupExpired 清理过期区间，返回清理数量
func (m *RangeCacheManager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired []string
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*types.CachedRange)
		if entry.IsExpired(now) || entry.Status == types.CacheExpired {
			expired = append(expired, entry.CacheID)
		}
	}

	for _, cacheID := range expired {
		m.removeLocked(cacheID)
	}

	if len(expired) > 0 {
		zap.L().Info("🧹 清理过期区间", zap.Int("count", len(expired)))
	}

	return len(expired)
}

// Size 当前缓存条目数
func (m *RangeCacheManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// ClearCache 清空缓存与统计
func (m *RangeCacheManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order.Init()
	m.entries = make(map[string]*list.Element)
	m.symbolIndex = make(map[string][]string)
	m.activeRanges = make(map[string]string)
	m.stats = cacheStats{}

	zap.L().Info("🧹 缓存已清空")
}

// GetCacheStatistics 获取缓存统计信息
func (m *RangeCacheManager) GetCacheStatistics() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	hitRatio := 0.0
	totalRequests := m.stats.totalHits + m.stats.totalMisses
	if totalRequests > 0 {
		hitRatio = float64(m.stats.totalHits) / float64(totalRequests)
	}

	// 平均生存期 单位：小时
	avgLifetime := 0.0
	if m.order.Len() > 0 {
		now := time.Now()
		sum := 0.0
		for elem := m.order.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*types.CachedRange)
			sum += now.Sub(entry.CachedAt).Hours()
		}
		avgLifetime = sum / float64(m.order.Len())
	}

	return map[string]interface{}{
		"total_cached":        m.stats.totalCached,
		"total_hits":          m.stats.totalHits,
		"total_misses":        m.stats.totalMisses,
		"total_expired":       m.stats.totalExpired,
		"total_invalidated":   m.stats.totalInvalidated,
		"hit_ratio":           hitRatio,
		"avg_lifetime":        avgLifetime,
		"current_cache_size":  m.order.Len(),
		"active_ranges_count": len(m.activeRanges),
		"symbols_count":       len(m.symbolIndex),
		"max_capacity":        m.cfg.MaxCachedRanges,
		"capacity_usage":      float64(m.order.Len()) / float64(m.cfg.MaxCachedRanges) * 100,
	}
}

// SymbolPerformance 单币种的缓存性能统计
type SymbolPerformance struct {
	RangesCount      int     `json:"ranges_count"`
	ActiveCount      int     `json:"active_count"`
	AvgEffectiveness float64 `json:"avg_effectiveness"`
	TotalTrades      int     `json:"total_trades"`
	AvgReturn        float64 `json:"avg_return"`
	SuccessRate      float64 `json:"success_rate"`
}

// PerformanceReport 缓存整体性能报告
type PerformanceReport struct {
	TotalRanges        int                          `json:"total_ranges"`
	BySymbol           map[string]SymbolPerformance `json:"by_symbol"`
	HighEffectiveness  int                          `json:"high_effectiveness"`
	MedEffectiveness   int                          `json:"medium_effectiveness"`
	LowEffectiveness   int                          `json:"low_effectiveness"`
	AvgEffectiveness   float64                      `json:"avg_effectiveness"`
	TotalTrades        int                          `json:"total_trades"`
	AvgReturn          float64                      `json:"avg_return"`
	OverallSuccessRate float64                      `json:"overall_success_rate"`
}

// GetPerformanceReport 生成缓存性能报告
func (m *RangeCacheManager) GetPerformanceReport() PerformanceReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := PerformanceReport{
		TotalRanges: m.order.Len(),
		BySymbol:    make(map[string]SymbolPerformance),
	}

	now := time.Now()
	var allReturns, allEffectiveness []float64
	totalSuccess := 0

	for symbol, cacheIDs := range m.symbolIndex {
		perf := SymbolPerformance{RangesCount: len(cacheIDs)}

		var symbolReturns, symbolEffectiveness []float64
		symbolSuccess := 0

		for _, cacheID := range cacheIDs {
			elem, ok := m.entries[cacheID]
			if !ok {
				continue
			}
			entry := elem.Value.(*types.CachedRange)
			if !entry.IsUsable(now) {
				continue
			}
			if entry.Status == types.CacheActive {
				perf.ActiveCount++
			}
			if len(entry.PriceReturns) > 0 {
				symbolReturns = append(symbolReturns, entry.PriceReturns...)
				symbolSuccess += entry.SuccessCount
			}
			symbolEffectiveness = append(symbolEffectiveness, entry.EffectivenessScore)
		}

		if len(symbolReturns) > 0 {
			perf.AvgReturn = meanOf(symbolReturns)
			perf.TotalTrades = len(symbolReturns)
			perf.SuccessRate = float64(symbolSuccess) / float64(len(symbolReturns))

			allReturns = append(allReturns, symbolReturns...)
			totalSuccess += symbolSuccess
		}
		if len(symbolEffectiveness) > 0 {
			perf.AvgEffectiveness = meanOf(symbolEffectiveness)
			allEffectiveness = append(allEffectiveness, symbolEffectiveness...)
		}

		report.BySymbol[symbol] = perf
	}

	for _, effectiveness := range allEffectiveness {
		switch {
		case effectiveness >= 70:
			report.HighEffectiveness++
		case effectiveness >= 40:
			report.MedEffectiveness++
		default:
			report.LowEffectiveness++
		}
	}

	if len(allReturns) > 0 {
		report.AvgReturn = meanOf(allReturns)
		report.TotalTrades = len(allReturns)
		report.OverallSuccessRate = float64(totalSuccess) / float64(len(allReturns))
	}
	if len(allEffectiveness) > 0 {
		report.AvgEffectiveness = meanOf(allEffectiveness)
	}

	return report
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
