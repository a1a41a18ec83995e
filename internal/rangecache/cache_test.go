package rangecache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"consolidation-guard/pkg/types"
)

func testCacheConfig() types.CacheConfig {
	return types.CacheConfig{
		MaxCachedRanges:  100,
		CacheExpiryHours: 168,
		AutoCleanup:      true,
	}
}

func makeRange(symbol string) *types.ConsolidationRange {
	return &types.ConsolidationRange{
		Symbol:        symbol,
		UpperBoundary: 50500,
		LowerBoundary: 49500,
		RangeSize:     1000,
		AvgPrice:      50000,
		DurationBars:  30,
		QualityScore:  70,
		Confidence:    0.8,
	}
}

func makeSignal(symbol string) *types.BreakoutSignal {
	return &types.BreakoutSignal{
		Symbol:       symbol,
		Direction:    types.BreakoutUp,
		BreakoutType: types.BreakoutGenuine,
		Strength:     types.BreakoutStrong,
		QualityScore: 75,
		Confidence:   0.75,
	}
}

func TestCacheAndGet(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	if entry.CacheID == "" {
		t.Fatal("缓存条目应分配唯一ID")
	}
	if entry.Status != types.CacheActive {
		t.Errorf("新条目状态应为active, got %s", entry.Status)
	}

	got := m.GetCachedRange(entry.CacheID)
	if got == nil {
		t.Fatal("应能按ID取回缓存条目")
	}
	if got.AccessCount != 1 {
		t.Errorf("access_count = %d", got.AccessCount)
	}

	if m.GetCachedRange("missing-id") != nil {
		t.Error("不存在的ID应返回nil")
	}
}

func TestActiveRangeMapping(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	first := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	active := m.GetActiveRangeForSymbol("BTC-USDT")
	if active == nil || active.CacheID != first.CacheID {
		t.Fatal("止损用途的区间应成为活跃区间")
	}

	// 新的止损区间应替换活跃指针
	second := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	active = m.GetActiveRangeForSymbol("BTC-USDT")
	if active == nil || active.CacheID != second.CacheID {
		t.Error("最新止损区间应成为活跃区间")
	}

	// 参考用途不应改变活跃指针
	m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageReference, 0)
	active = m.GetActiveRangeForSymbol("BTC-USDT")
	if active == nil || active.CacheID != second.CacheID {
		t.Error("参考区间不应改变活跃指针")
	}

	if m.GetActiveRangeForSymbol("ETH-USDT") != nil {
		t.Error("未缓存的币种不应有活跃区间")
	}
}

func TestInvalidateRange(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	m.InvalidateRange(entry.CacheID, "manual")

	if entry.Status != types.CacheInvalidated {
		t.Errorf("status = %s", entry.Status)
	}
	if m.GetActiveRangeForSymbol("BTC-USDT") != nil {
		t.Error("失效后活跃指针应被清除")
	}

	// 失效条目仍可按ID读取，但不计入活跃查询
	if m.GetCachedRange(entry.CacheID) == nil {
		t.Error("失效条目未过期前仍应可读取")
	}
}

func TestExpiry(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	entry.ExpiresAt = time.Now().Add(-time.Hour)

	if m.GetCachedRange(entry.CacheID) != nil {
		t.Error("过期条目应返回nil")
	}
	if entry.Status != types.CacheInvalidated {
		t.Error("访问过期条目应将其标记为失效")
	}

	stats := m.GetCacheStatistics()
	if stats["total_expired"].(int) != 1 {
		t.Errorf("total_expired = %v", stats["total_expired"])
	}
}

func TestCleanupExpired(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	fresh := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	stale := m.CacheRange(makeRange("ETH-USDT"), makeSignal("ETH-USDT"), types.UsageStopLoss, 0)
	stale.ExpiresAt = time.Now().Add(-time.Hour)

	removed := m.CleanupExpired()
	if removed != 1 {
		t.Errorf("应清理1个过期条目, got %d", removed)
	}
	if m.Size() != 1 {
		t.Errorf("size = %d", m.Size())
	}
	if m.GetCachedRange(fresh.CacheID) == nil {
		t.Error("未过期条目不应被清理")
	}
}

func TestLRUEviction(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MaxCachedRanges = 3
	m := NewRangeCacheManager(cfg)

	a := m.CacheRange(makeRange("A-USDT"), makeSignal("A-USDT"), types.UsageReference, 0)
	b := m.CacheRange(makeRange("B-USDT"), makeSignal("B-USDT"), types.UsageReference, 0)
	c := m.CacheRange(makeRange("C-USDT"), makeSignal("C-USDT"), types.UsageReference, 0)

	// 访问a使其变为最近使用
	m.GetCachedRange(a.CacheID)

	// 第四个条目应淘汰最久未使用的b
	m.CacheRange(makeRange("D-USDT"), makeSignal("D-USDT"), types.UsageReference, 0)

	if m.Size() != 3 {
		t.Errorf("size = %d", m.Size())
	}
	if m.GetCachedRange(b.CacheID) != nil {
		t.Error("最久未使用的条目应被淘汰")
	}
	if m.GetCachedRange(a.CacheID) == nil || m.GetCachedRange(c.CacheID) == nil {
		t.Error("其余条目应保留")
	}
}

func TestEvictionPrefersUnusable(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MaxCachedRanges = 3
	m := NewRangeCacheManager(cfg)

	a := m.CacheRange(makeRange("A-USDT"), makeSignal("A-USDT"), types.UsageReference, 0)
	b := m.CacheRange(makeRange("B-USDT"), makeSignal("B-USDT"), types.UsageReference, 0)
	m.CacheRange(makeRange("C-USDT"), makeSignal("C-USDT"), types.UsageReference, 0)

	// b失效后应优先被淘汰，即使a更旧
	m.InvalidateRange(b.CacheID, "test")
	m.CacheRange(makeRange("D-USDT"), makeSignal("D-USDT"), types.UsageReference, 0)

	if m.GetCachedRange(a.CacheID) == nil {
		t.Error("可用条目不应在有不可用条目时被淘汰")
	}
	if m.GetCachedRange(b.CacheID) != nil {
		t.Error("不可用条目应优先被淘汰")
	}
}

func TestGetRangesBySymbol(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	for i := 0; i < 3; i++ {
		m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageReference, 0)
	}
	m.CacheRange(makeRange("ETH-USDT"), makeSignal("ETH-USDT"), types.UsageReference, 0)

	ranges := m.GetRangesBySymbol("BTC-USDT", false, 0)
	if len(ranges) != 3 {
		t.Errorf("BTC区间数 = %d", len(ranges))
	}
	for _, r := range ranges {
		if r.Symbol != "BTC-USDT" {
			t.Errorf("混入其他币种: %s", r.Symbol)
		}
	}

	limited := m.GetRangesBySymbol("BTC-USDT", false, 2)
	if len(limited) != 2 {
		t.Errorf("limit应生效: %d", len(limited))
	}
}

func TestFindRangesByPrice(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())
	m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)

	// 区间内的价格
	found := m.FindRangesByPrice("BTC-USDT", 50000, 0.01)
	if len(found) != 1 {
		t.Errorf("区间内价格应匹配: %d", len(found))
	}

	// 远离区间的价格
	found = m.FindRangesByPrice("BTC-USDT", 60000, 0.01)
	if len(found) != 0 {
		t.Errorf("远离区间的价格不应匹配: %d", len(found))
	}

	// 边界附近的价格
	found = m.FindRangesByPrice("BTC-USDT", 50900, 0.01)
	if len(found) != 1 {
		t.Errorf("边界附近的价格应匹配: %d", len(found))
	}
}

func TestUpdateRangePerformance(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())
	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)

	m.UpdateRangePerformance(entry.CacheID, 0.5, 10, true)
	m.UpdateRangePerformance(entry.CacheID, -0.2, 5, false)

	summary := entry.GetPerformanceSummary()
	if summary.TotalTrades != 2 {
		t.Errorf("total_trades = %d", summary.TotalTrades)
	}
	if summary.SuccessRate != 0.5 {
		t.Errorf("success_rate = %.2f", summary.SuccessRate)
	}
	if summary.MaxReturn != 0.5 || summary.MinReturn != -0.2 {
		t.Errorf("max/min = %.2f/%.2f", summary.MaxReturn, summary.MinReturn)
	}
	if entry.EffectivenessScore == 0 {
		t.Error("有效性评分应已更新")
	}
}

func TestCacheStatistics(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())
	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)

	m.GetCachedRange(entry.CacheID)
	m.GetCachedRange("missing")

	stats := m.GetCacheStatistics()
	if stats["total_cached"].(int) != 1 {
		t.Errorf("total_cached = %v", stats["total_cached"])
	}
	if stats["total_hits"].(int) != 1 || stats["total_misses"].(int) != 1 {
		t.Errorf("hits/misses = %v/%v", stats["total_hits"], stats["total_misses"])
	}
	if stats["hit_ratio"].(float64) != 0.5 {
		t.Errorf("hit_ratio = %v", stats["hit_ratio"])
	}
	if stats["current_cache_size"].(int) != 1 {
		t.Errorf("current_cache_size = %v", stats["current_cache_size"])
	}
}

func TestPerformanceReport(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())

	btc := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)
	m.CacheRange(makeRange("ETH-USDT"), makeSignal("ETH-USDT"), types.UsageStopLoss, 0)

	m.UpdateRangePerformance(btc.CacheID, 1.0, 10, true)

	report := m.GetPerformanceReport()
	if report.TotalRanges != 2 {
		t.Errorf("total_ranges = %d", report.TotalRanges)
	}
	if len(report.BySymbol) != 2 {
		t.Errorf("by_symbol数量 = %d", len(report.BySymbol))
	}
	if report.BySymbol["BTC-USDT"].TotalTrades != 1 {
		t.Errorf("BTC交易数 = %d", report.BySymbol["BTC-USDT"].TotalTrades)
	}
	if report.TotalTrades != 1 {
		t.Errorf("整体交易数 = %d", report.TotalTrades)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testCacheConfig()
	cfg.SnapshotPath = filepath.Join(dir, "cache", "range_cache.json")

	m := NewRangeCacheManager(cfg)
	entry := m.CacheRange(makeRange("BTC-USDT"), makeSignal("BTC-USDT"), types.UsageStopLoss, 0)

	// 新管理器应从快照恢复
	restored := NewRangeCacheManager(cfg)
	if restored.Size() != 1 {
		t.Fatalf("恢复后size = %d", restored.Size())
	}

	got := restored.GetCachedRange(entry.CacheID)
	if got == nil {
		t.Fatal("应按原ID恢复条目")
	}
	if got.Symbol != "BTC-USDT" {
		t.Errorf("symbol = %s", got.Symbol)
	}

	active := restored.GetActiveRangeForSymbol("BTC-USDT")
	if active == nil || active.CacheID != entry.CacheID {
		t.Error("活跃映射应随快照恢复")
	}
}

func TestSnapshotCorruptFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testCacheConfig()
	cfg.SnapshotPath = filepath.Join(dir, "range_cache.json")

	if err := os.WriteFile(cfg.SnapshotPath, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// 损坏的快照不应阻止启动
	m := NewRangeCacheManager(cfg)
	if m.Size() != 0 {
		t.Errorf("损坏快照应从空缓存启动: size=%d", m.Size())
	}
}

func TestClearCache(t *testing.T) {
	m := NewRangeCacheManager(testCacheConfig())
	for i := 0; i < 5; i++ {
		symbol := fmt.Sprintf("SYM%d-USDT", i)
		m.CacheRange(makeRange(symbol), makeSignal(symbol), types.UsageStopLoss, 0)
	}

	m.ClearCache()
	if m.Size() != 0 {
		t.Errorf("清空后size = %d", m.Size())
	}
	if m.GetCacheStatistics()["total_cached"].(int) != 0 {
		t.Error("清空后统计应重置")
	}
}
