package rangecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// cacheSnapshot 缓存快照文件结构
type cacheSnapshot struct {
	Timestamp    time.Time            `json:"timestamp"`
	Version      string               `json:"version"`
	Ranges       []*types.CachedRange `json:"ranges"`
	ActiveRanges map[string]string    `json:"active_ranges"`
}

// saveSnapshotLocked 保存缓存快照，调用方必须持有锁
// 按LRU顺序只保存可用条目
func (m *RangeCacheManager) saveSnapshotLocked() {
	now := time.Now()

	snapshot := cacheSnapshot{
		Timestamp:    now,
		Version:      "1.0",
		ActiveRanges: make(map[string]string),
	}

	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*types.CachedRange)
		if entry.IsUsable(now) {
			snapshot.Ranges = append(snapshot.Ranges, entry)
		}
	}
	for symbol, cacheID := range m.activeRanges {
		snapshot.ActiveRanges[symbol] = cacheID
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		zap.L().Error("❌ 序列化缓存快照失败", zap.Error(err))
		return
	}

	if dir := filepath.Dir(m.cfg.SnapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			zap.L().Error("❌ 创建快照目录失败", zap.Error(err))
			return
		}
	}

	// 先写临时文件再替换，避免写一半的快照
	tmpPath := m.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		zap.L().Error("❌ 写入缓存快照失败", zap.Error(err))
		return
	}
	if err := os.Rename(tmpPath, m.cfg.SnapshotPath); err != nil {
		zap.L().Error("❌ 替换缓存快照失败", zap.Error(err))
	}
}

// loadSnapshot 从快照文件恢复缓存
// 文件缺失或损坏时从空缓存启动，不视为错误
func (m *RangeCacheManager) loadSnapshot() {
	data, err := os.ReadFile(m.cfg.SnapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("⚠️ 读取缓存快照失败，从空缓存启动", zap.Error(err))
		}
		return
	}

	var snapshot cacheSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		zap.L().Warn("⚠️ 缓存快照损坏，从空缓存启动", zap.Error(err))
		return
	}

	now := time.Now()
	loaded := 0
	for _, entry := range snapshot.Ranges {
		if entry.CacheID == "" || !entry.IsUsable(now) {
			continue
		}
		if _, exists := m.entries[entry.CacheID]; exists {
			continue
		}
		m.entries[entry.CacheID] = m.order.PushBack(entry)
		m.symbolIndex[entry.Symbol] = append(m.symbolIndex[entry.Symbol], entry.CacheID)
		loaded++
	}

	// 只恢复仍指向有效条目的活跃映射
	for symbol, cacheID := range snapshot.ActiveRanges {
		if _, ok := m.entries[cacheID]; ok {
			m.activeRanges[symbol] = cacheID
		}
	}

	zap.L().Info("📂 从快照恢复缓存",
		zap.Int("loaded", loaded),
		zap.String("path", m.cfg.SnapshotPath))
}

// ExportData 导出缓存数据到指定文件
func (m *RangeCacheManager) ExportData(path string) error {
	stats := m.GetCacheStatistics()
	report := m.GetPerformanceReport()

	m.mu.Lock()
	ranges := make([]*types.CachedRange, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		ranges = append(ranges, elem.Value.(*types.CachedRange))
	}
	m.mu.Unlock()

	export := map[string]interface{}{
		"export_time":        time.Now(),
		"cache_stats":        stats,
		"performance_report": report,
		"ranges":             ranges,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	zap.L().Info("📤 缓存数据已导出", zap.String("path", path))
	return nil
}
