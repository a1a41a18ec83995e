package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/internal/database"
	"consolidation-guard/internal/engine"
	"consolidation-guard/pkg/types"
)

// PerformanceMonitor 策略性能监控器
type PerformanceMonitor struct {
	dbManager *database.Manager
	engine    *engine.ConsolidationEngine
	config    types.ConsolidationStrategyConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	metrics *PerformanceMetrics
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime          time.Time                 `json:"start_time"`
	ProcessedKlines    int64                     `json:"processed_klines"`
	DetectedRanges     int64                     `json:"detected_ranges"`
	ConfirmedBreakouts int64                     `json:"confirmed_breakouts"`
	ExitSignals        int64                     `json:"exit_signals"`
	HuntSignals        int64                     `json:"hunt_signals"`
	BreakoutFrequency  float64                   `json:"breakout_frequency"` // 突破/小时
	SymbolStats        map[string]*SymbolMetrics `json:"symbol_stats"`
	LastUpdateTime     time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单个交易对的性能指标
type SymbolMetrics struct {
	Symbol            string    `json:"symbol"`
	TotalBreakouts    int       `json:"total_breakouts"`
	UpBreakouts       int       `json:"up_breakouts"`
	DownBreakouts     int       `json:"down_breakouts"`
	TotalExits        int       `json:"total_exits"`
	AvgQualityScore   float64   `json:"avg_quality_score"`
	LastBreakoutTime  time.Time `json:"last_breakout_time"`
	LastBreakoutPrice float64   `json:"last_breakout_price"`
	LastExitReason    string    `json:"last_exit_reason"`
}

// NewPerformanceMonitor 创建性能监控器
func NewPerformanceMonitor(dbManager *database.Manager, eng *engine.ConsolidationEngine, config types.ConsolidationStrategyConfig) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &PerformanceMonitor{
		dbManager: dbManager,
		engine:    eng,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		metrics: &PerformanceMetrics{
			StartTime:   time.Now(),
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
}

// Start 启动性能监控
func (pm *PerformanceMonitor) Start() {
	if !pm.config.Enabled {
		return
	}

	zap.L().Info("📊 启动策略性能监控器")

	for _, symbol := range pm.config.Symbols {
		pm.metrics.SymbolStats[symbol] = &SymbolMetrics{
			Symbol: symbol,
		}
	}

	go pm.monitorLoop()
	go pm.reportLoop()
}

func (pm *PerformanceMonitor) monitorLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.updateMetrics()
		}
	}
}

func (pm *PerformanceMonitor) reportLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.generateReport()
		}
	}
}

// updateMetrics 从引擎与数据库刷新性能指标
func (pm *PerformanceMonitor) updateMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	engineStats := pm.engine.GetStats()

	if v, ok := engineStats["processed_klines"].(int64); ok {
		pm.metrics.ProcessedKlines = v
	}
	if v, ok := engineStats["detected_ranges"].(int64); ok {
		pm.metrics.DetectedRanges = v
	}
	if v, ok := engineStats["confirmed_breakouts"].(int64); ok {
		pm.metrics.ConfirmedBreakouts = v
	}
	if v, ok := engineStats["exit_signals"].(int64); ok {
		pm.metrics.ExitSignals = v
	}
	if v, ok := engineStats["hunt_signals"].(int64); ok {
		pm.metrics.HuntSignals = v
	}

	runTime := time.Since(pm.metrics.StartTime).Hours()
	if runTime > 0 {
		pm.metrics.BreakoutFrequency = float64(pm.metrics.ConfirmedBreakouts) / runTime
	}

	pm.updateSymbolMetricsLocked()

	pm.metrics.LastUpdateTime = time.Now()
}

// updateSymbolMetricsLocked 从数据库刷新各交易对的详细统计
func (pm *PerformanceMonitor) updateSymbolMetricsLocked() {
	if pm.dbManager == nil {
		zap.L().Debug("数据库管理器未初始化，跳过交易对指标更新")
		return
	}

	for _, symbol := range pm.config.Symbols {
		breakouts, err := pm.dbManager.GetBreakoutRecords(symbol, 100)
		if err != nil {
			zap.L().Warn("获取突破记录失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		symbolMetrics := pm.metrics.SymbolStats[symbol]
		if symbolMetrics == nil {
			symbolMetrics = &SymbolMetrics{Symbol: symbol}
			pm.metrics.SymbolStats[symbol] = symbolMetrics
		}

		symbolMetrics.TotalBreakouts = len(breakouts)
		symbolMetrics.UpBreakouts = 0
		symbolMetrics.DownBreakouts = 0

		var totalQuality float64
		for _, record := range breakouts {
			if record.Direction == "up" {
				symbolMetrics.UpBreakouts++
			} else if record.Direction == "down" {
				symbolMetrics.DownBreakouts++
			}
			totalQuality += record.QualityScore
		}

		if len(breakouts) > 0 {
			symbolMetrics.AvgQualityScore = totalQuality / float64(len(breakouts))

			// 按时间倒序排列，第一个是最新的
			latest := breakouts[0]
			symbolMetrics.LastBreakoutTime = time.Unix(latest.BreakoutTime, 0)
			symbolMetrics.LastBreakoutPrice = latest.BreakoutPrice
		}

		exits, err := pm.dbManager.GetExitRecords(symbol, 100)
		if err != nil {
			zap.L().Warn("获取退出记录失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		symbolMetrics.TotalExits = len(exits)
		if len(exits) > 0 {
			symbolMetrics.LastExitReason = exits[0].ExitReason
		}
	}
}

// generateReport 生成性能报告
func (pm *PerformanceMonitor) generateReport() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	runTime := time.Since(pm.metrics.StartTime)

	zap.L().Info("📈 策略性能报告",
		zap.Duration("run_time", runTime),
		zap.Int64("processed_klines", pm.metrics.ProcessedKlines),
		zap.Int64("detected_ranges", pm.metrics.DetectedRanges),
		zap.Int64("confirmed_breakouts", pm.metrics.ConfirmedBreakouts),
		zap.Int64("exit_signals", pm.metrics.ExitSignals),
		zap.Int64("hunt_signals", pm.metrics.HuntSignals),
		zap.Float64("breakout_frequency", pm.metrics.BreakoutFrequency))

	if status, err := json.Marshal(pm.engine.GetSystemStatus()); err == nil {
		zap.L().Debug("🔧 组件状态", zap.ByteString("status", status))
	}

	for symbol, metrics := range pm.metrics.SymbolStats {
		if metrics.TotalBreakouts > 0 {
			zap.L().Info("📊 交易对性能",
				zap.String("symbol", symbol),
				zap.Int("total_breakouts", metrics.TotalBreakouts),
				zap.Int("up_breakouts", metrics.UpBreakouts),
				zap.Int("down_breakouts", metrics.DownBreakouts),
				zap.Int("total_exits", metrics.TotalExits),
				zap.Float64("avg_quality", metrics.AvgQualityScore),
				zap.Time("last_breakout_time", metrics.LastBreakoutTime),
				zap.Float64("last_breakout_price", metrics.LastBreakoutPrice))
		}
	}
}

// GetMetrics 获取当前性能指标
func (pm *PerformanceMonitor) GetMetrics() *PerformanceMetrics {
	pm.updateMetrics()

	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.metrics
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON() (string, error) {
	metrics := pm.GetMetrics()
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DailyReport 日报告
type DailyReport struct {
	Symbol         string    `json:"symbol"`
	Date           time.Time `json:"date"`
	RangesDetected int       `json:"ranges_detected"`
	BreakoutsUp    int       `json:"breakouts_up"`
	BreakoutsDown  int       `json:"breakouts_down"`
	ExitsTriggered int       `json:"exits_triggered"`
	HuntsDetected  int       `json:"hunts_detected"`
	AvgQuality     float64   `json:"avg_quality"`
	UpRatio        float64   `json:"up_ratio"`
	DownRatio      float64   `json:"down_ratio"`
}

// GetDailyReport 获取单交易对的当日报告
func (pm *PerformanceMonitor) GetDailyReport(symbol string) (*DailyReport, error) {
	performances, err := pm.dbManager.GetSymbolPerformance(symbol, 1)
	if err != nil {
		return nil, err
	}

	if len(performances) == 0 {
		return &DailyReport{
			Symbol: symbol,
			Date:   time.Now().Truncate(24 * time.Hour),
		}, nil
	}

	perf := performances[0]

	report := &DailyReport{
		Symbol:         symbol,
		Date:           perf.Date,
		RangesDetected: perf.RangesDetected,
		BreakoutsUp:    perf.BreakoutsUp,
		BreakoutsDown:  perf.BreakoutsDown,
		ExitsTriggered: perf.ExitsTriggered,
		HuntsDetected:  perf.HuntsDetected,
	}

	if perf.AvgQualityScore != nil {
		report.AvgQuality = *perf.AvgQualityScore
	}

	totalBreakouts := report.BreakoutsUp + report.BreakoutsDown
	if totalBreakouts > 0 {
		report.UpRatio = float64(report.BreakoutsUp) / float64(totalBreakouts) * 100
		report.DownRatio = float64(report.BreakoutsDown) / float64(totalBreakouts) * 100
	}

	return report, nil
}

// PrintFormattedReport 打印格式化报告
func (pm *PerformanceMonitor) PrintFormattedReport() {
	metrics := pm.GetMetrics()
	runTime := time.Since(metrics.StartTime)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("📈 盘整突破策略性能报告")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("🕐 运行时间: %s\n", runTime.Truncate(time.Second))
	fmt.Printf("📊 处理K线: %d\n", metrics.ProcessedKlines)
	fmt.Printf("🔍 检出区间: %d\n", metrics.DetectedRanges)
	fmt.Printf("🎯 确认突破: %d\n", metrics.ConfirmedBreakouts)
	fmt.Printf("🛑 退出信号: %d\n", metrics.ExitSignals)
	fmt.Printf("🦈 猎杀信号: %d\n", metrics.HuntSignals)
	fmt.Printf("🔄 突破频率: %.2f次/小时\n", metrics.BreakoutFrequency)
	fmt.Println(strings.Repeat("-", 80))

	for symbol, symbolMetrics := range metrics.SymbolStats {
		if symbolMetrics.TotalBreakouts > 0 {
			fmt.Printf("💹 %s: %d次突破 (质量%.1f) 最近: %s\n",
				symbol,
				symbolMetrics.TotalBreakouts,
				symbolMetrics.AvgQualityScore,
				symbolMetrics.LastBreakoutTime.Format("01-02 15:04"))
		}
	}

	fmt.Println(strings.Repeat("=", 80) + "\n")
}

// Stop 停止性能监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止策略性能监控器")
	pm.cancel()
}
