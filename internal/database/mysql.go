package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"consolidation-guard/pkg/types"
)

// Manager 数据库管理器
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	OpenTime  int64     `gorm:"not null;index:idx_symbol_time" json:"open_time"`
	CloseTime int64     `gorm:"not null;index:idx_close_time" json:"close_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(20,8);not null" json:"volume"`
	Interval  string    `gorm:"type:varchar(10);not null;default:'15m'" json:"interval"`
	CreatedAt time.Time `json:"created_at"`
}

// ConsolidationRecord 盘整区间模型
type ConsolidationRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Symbol          string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	StartTime       int64     `gorm:"not null;index:idx_symbol_time" json:"start_time"`
	EndTime         int64     `gorm:"not null" json:"end_time"`
	DurationBars    int       `gorm:"default:0" json:"duration_bars"`
	UpperBoundary   float64   `gorm:"type:decimal(20,8);not null" json:"upper_boundary"`
	LowerBoundary   float64   `gorm:"type:decimal(20,8);not null" json:"lower_boundary"`
	RangeSize       float64   `gorm:"type:decimal(20,8)" json:"range_size"`
	RangePercentage float64   `gorm:"type:decimal(10,6)" json:"range_percentage"`
	Pattern         string    `gorm:"type:varchar(20)" json:"pattern"`
	QualityScore    float64   `gorm:"type:decimal(5,2)" json:"quality_score"`
	Confidence      float64   `gorm:"type:decimal(3,2)" json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

// BreakoutRecord 突破信号模型
type BreakoutRecord struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Symbol             string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	CacheID            string    `gorm:"type:varchar(64);index" json:"cache_id"`
	BreakoutTime       int64     `gorm:"not null;index:idx_symbol_time" json:"breakout_time"`
	Direction          string    `gorm:"type:enum('up','down','none');not null" json:"direction"`
	BreakoutType       string    `gorm:"type:varchar(20)" json:"breakout_type"`
	BreakoutPrice      float64   `gorm:"type:decimal(20,8);not null" json:"breakout_price"`
	BreakoutPercentage float64   `gorm:"type:decimal(10,6)" json:"breakout_percentage"`
	VolumeRatio        *float64  `gorm:"type:decimal(5,2)" json:"volume_ratio"`
	MomentumScore      *float64  `gorm:"type:decimal(3,2)" json:"momentum_score"`
	QualityScore       float64   `gorm:"type:decimal(5,2)" json:"quality_score"`
	Confidence         float64   `gorm:"type:decimal(3,2)" json:"confidence"`
	SuccessProbability float64   `gorm:"type:decimal(3,2)" json:"success_probability"`
	CreatedAt          time.Time `json:"created_at"`
}

// ExitRecord 退出信号模型
type ExitRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	CacheID    string    `gorm:"type:varchar(64);index" json:"cache_id"`
	ExitTime   int64     `gorm:"not null;index:idx_symbol_time" json:"exit_time"`
	ExitReason string    `gorm:"type:varchar(30);not null" json:"exit_reason"`
	ExitPrice  float64   `gorm:"type:decimal(20,8);not null" json:"exit_price"`
	Urgency    int       `gorm:"default:0" json:"urgency"`
	Confidence float64   `gorm:"type:decimal(3,2)" json:"confidence"`
	Detail     string    `gorm:"type:varchar(255)" json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// HuntingRecord 流动性猎杀信号模型
type HuntingRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	CacheID       string    `gorm:"type:varchar(64);index" json:"cache_id"`
	DetectedAt    int64     `gorm:"not null;index:idx_symbol_time" json:"detected_at"`
	HuntingType   string    `gorm:"type:varchar(20);not null" json:"hunting_type"`
	Strength      int       `gorm:"default:0" json:"strength"`
	HuntPrice     float64   `gorm:"type:decimal(20,8)" json:"hunt_price"`
	ReversalPrice float64   `gorm:"type:decimal(20,8)" json:"reversal_price"`
	VolumeSpike   float64   `gorm:"type:decimal(10,4)" json:"volume_spike"`
	IsConfirmed   bool      `gorm:"default:false" json:"is_confirmed"`
	SignalQuality float64   `gorm:"type:decimal(5,2)" json:"signal_quality"`
	Confidence    float64   `gorm:"type:decimal(3,2)" json:"confidence"`
	Action        string    `gorm:"type:varchar(20)" json:"action"`
	CreatedAt     time.Time `json:"created_at"`
}

// SymbolPerformance 交易对每日性能模型
type SymbolPerformance struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Symbol          string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_date" json:"symbol"`
	Date            time.Time `gorm:"type:date;not null;uniqueIndex:uk_symbol_date" json:"date"`
	RangesDetected  int       `gorm:"default:0" json:"ranges_detected"`
	BreakoutsUp     int       `gorm:"default:0" json:"breakouts_up"`
	BreakoutsDown   int       `gorm:"default:0" json:"breakouts_down"`
	ExitsTriggered  int       `gorm:"default:0" json:"exits_triggered"`
	HuntsDetected   int       `gorm:"default:0" json:"hunts_detected"`
	AvgQualityScore *float64  `gorm:"type:decimal(5,2)" json:"avg_quality_score"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&KLine{},
		&ConsolidationRecord{},
		&BreakoutRecord{},
		&ExitRecord{},
		&HuntingRecord{},
		&SymbolPerformance{},
	)
}

// SaveConsolidationRange 保存盘整区间
func (m *Manager) SaveConsolidationRange(cr *types.ConsolidationRange) error {
	record := &ConsolidationRecord{
		Symbol:          cr.Symbol,
		StartTime:       cr.StartTime.Unix(),
		EndTime:         cr.EndTime.Unix(),
		DurationBars:    cr.DurationBars,
		UpperBoundary:   cr.UpperBoundary,
		LowerBoundary:   cr.LowerBoundary,
		RangeSize:       cr.RangeSize,
		RangePercentage: cr.RangePercentage,
		Pattern:         string(cr.ConsolidationType),
		QualityScore:    cr.QualityScore,
		Confidence:      cr.Confidence,
		CreatedAt:       time.Now(),
	}

	return m.db.Create(record).Error
}

// SaveBreakoutSignal 保存突破信号
func (m *Manager) SaveBreakoutSignal(cacheID string, signal *types.BreakoutSignal) error {
	record := &BreakoutRecord{
		Symbol:             signal.Symbol,
		CacheID:            cacheID,
		BreakoutTime:       signal.BreakoutTime.Unix(),
		Direction:          string(signal.Direction),
		BreakoutType:       string(signal.BreakoutType),
		BreakoutPrice:      signal.BreakoutPrice,
		BreakoutPercentage: signal.BreakoutPercentage,
		VolumeRatio:        &signal.VolumeRatio,
		MomentumScore:      &signal.MomentumScore,
		QualityScore:       signal.QualityScore,
		Confidence:         signal.Confidence,
		SuccessProbability: signal.SuccessProbability,
		CreatedAt:          time.Now(),
	}

	return m.db.Create(record).Error
}

// SaveExitSignal 保存退出信号
func (m *Manager) SaveExitSignal(signal *types.ExitSignal) error {
	record := &ExitRecord{
		Symbol:     signal.Symbol,
		CacheID:    signal.CacheID,
		ExitTime:   signal.Timestamp.Unix(),
		ExitReason: string(signal.ExitReason),
		ExitPrice:  signal.ExitPrice,
		Urgency:    signal.Urgency,
		Confidence: signal.Confidence,
		Detail:     signal.Detail,
		CreatedAt:  time.Now(),
	}

	return m.db.Create(record).Error
}

// SaveHuntingSignal 保存猎杀信号
func (m *Manager) SaveHuntingSignal(signal *types.HuntingSignal) error {
	record := &HuntingRecord{
		Symbol:        signal.Symbol,
		CacheID:       signal.CacheID,
		DetectedAt:    signal.DetectedAt.Unix(),
		HuntingType:   string(signal.HuntingType),
		Strength:      int(signal.Strength),
		HuntPrice:     signal.HuntPrice,
		ReversalPrice: signal.ReversalPrice,
		VolumeSpike:   signal.VolumeSpike,
		IsConfirmed:   signal.IsConfirmed,
		SignalQuality: signal.SignalQuality,
		Confidence:    signal.Confidence,
		Action:        string(signal.RecommendedAction),
		CreatedAt:     time.Now(),
	}

	return m.db.Create(record).Error
}

// PerformanceEvent 性能统计事件类型
type PerformanceEvent string

const (
	EventRangeDetected PerformanceEvent = "range_detected"
	EventBreakoutUp    PerformanceEvent = "breakout_up"
	EventBreakoutDown  PerformanceEvent = "breakout_down"
	EventExitTriggered PerformanceEvent = "exit_triggered"
	EventHuntDetected  PerformanceEvent = "hunt_detected"
)

// UpdateSymbolPerformance 更新交易对每日性能统计
func (m *Manager) UpdateSymbolPerformance(symbol string, event PerformanceEvent, qualityScore float64) error {
	today := time.Now().Truncate(24 * time.Hour)

	var performance SymbolPerformance
	result := m.db.Where("symbol = ? AND date = ?", symbol, today).First(&performance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		performance = SymbolPerformance{
			Symbol:          symbol,
			Date:            today,
			AvgQualityScore: &qualityScore,
		}
		applyEvent(&performance, event)

		return m.db.Create(&performance).Error
	} else if result.Error != nil {
		return result.Error
	}

	updates := map[string]interface{}{}
	switch event {
	case EventRangeDetected:
		updates["ranges_detected"] = performance.RangesDetected + 1
	case EventBreakoutUp:
		updates["breakouts_up"] = performance.BreakoutsUp + 1
	case EventBreakoutDown:
		updates["breakouts_down"] = performance.BreakoutsDown + 1
	case EventExitTriggered:
		updates["exits_triggered"] = performance.ExitsTriggered + 1
	case EventHuntDetected:
		updates["hunts_detected"] = performance.HuntsDetected + 1
	}

	// 质量评分滚动平均
	total := performance.RangesDetected + performance.BreakoutsUp + performance.BreakoutsDown +
		performance.ExitsTriggered + performance.HuntsDetected
	if performance.AvgQualityScore != nil && total > 0 {
		newAvg := ((*performance.AvgQualityScore)*float64(total) + qualityScore) / float64(total+1)
		updates["avg_quality_score"] = newAvg
	} else {
		updates["avg_quality_score"] = qualityScore
	}

	return m.db.Model(&performance).Where("id = ?", performance.ID).Updates(updates).Error
}

func applyEvent(p *SymbolPerformance, event PerformanceEvent) {
	switch event {
	case EventRangeDetected:
		p.RangesDetected = 1
	case EventBreakoutUp:
		p.BreakoutsUp = 1
	case EventBreakoutDown:
		p.BreakoutsDown = 1
	case EventExitTriggered:
		p.ExitsTriggered = 1
	case EventHuntDetected:
		p.HuntsDetected = 1
	}
}

// GetKLines 获取K线数据（按时间倒序）
func (m *Manager) GetKLines(symbol string, interval string, limit int) ([]*types.KLine, error) {
	var dbKlines []KLine
	err := m.db.Where("symbol = ? AND `interval` = ?", symbol, interval).
		Order("open_time DESC").
		Limit(limit).
		Find(&dbKlines).Error

	if err != nil {
		return nil, err
	}

	var klines []*types.KLine
	for _, dbKline := range dbKlines {
		kline := &types.KLine{
			Symbol:    dbKline.Symbol,
			OpenTime:  time.Unix(dbKline.OpenTime, 0),
			CloseTime: time.Unix(dbKline.CloseTime, 0),
			Open:      dbKline.Open,
			High:      dbKline.High,
			Low:       dbKline.Low,
			Close:     dbKline.Close,
			Volume:    dbKline.Volume,
			Interval:  dbKline.Interval,
		}
		klines = append(klines, kline)
	}

	return klines, nil
}

// GetBreakoutRecords 获取突破信号记录
func (m *Manager) GetBreakoutRecords(symbol string, limit int) ([]BreakoutRecord, error) {
	var records []BreakoutRecord
	err := m.db.Where("symbol = ?", symbol).
		Order("breakout_time DESC").
		Limit(limit).
		Find(&records).Error

	return records, err
}

// GetExitRecords 获取退出信号记录
func (m *Manager) GetExitRecords(symbol string, limit int) ([]ExitRecord, error) {
	var records []ExitRecord
	err := m.db.Where("symbol = ?", symbol).
		Order("exit_time DESC").
		Limit(limit).
		Find(&records).Error

	return records, err
}

// GetSymbolPerformance 获取交易对性能数据
func (m *Manager) GetSymbolPerformance(symbol string, days int) ([]SymbolPerformance, error) {
	var performances []SymbolPerformance
	startDate := time.Now().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	err := m.db.Where("symbol = ? AND date >= ?", symbol, startDate).
		Order("date DESC").
		Find(&performances).Error

	return performances, err
}

// BatchSaveKlines 批量保存K线数据
func (m *Manager) BatchSaveKlines(klines []*types.KLine) error {
	if len(klines) == 0 {
		return nil
	}

	dbKlines := make([]KLine, 0, len(klines))
	for _, kline := range klines {
		dbKline := KLine{
			Symbol:    kline.Symbol,
			OpenTime:  kline.OpenTime.Unix(),
			CloseTime: kline.CloseTime.Unix(),
			Open:      kline.Open,
			High:      kline.High,
			Low:       kline.Low,
			Close:     kline.Close,
			Volume:    kline.Volume,
			Interval:  kline.Interval,
			CreatedAt: time.Now(),
		}
		dbKlines = append(dbKlines, dbKline)
	}

	tx := m.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	// 分批插入避免单个事务过大
	batchSize := 100
	for i := 0; i < len(dbKlines); i += batchSize {
		end := i + batchSize
		if end > len(dbKlines) {
			end = len(dbKlines)
		}

		batch := dbKlines[i:end]
		if err := tx.CreateInBatches(batch, len(batch)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("批量插入K线数据失败: %v", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交批量插入事务失败: %v", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(klines)),
		zap.String("first_symbol", klines[0].Symbol))

	return nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
