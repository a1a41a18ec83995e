package types

// StrategyConfig 策略配置总入口
type StrategyConfig struct {
	Consolidation ConsolidationStrategyConfig `mapstructure:"consolidation"`
}

// ConsolidationStrategyConfig 盘整突破策略配置
type ConsolidationStrategyConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Symbols  []string `mapstructure:"symbols"`
	Interval string   `mapstructure:"interval"` // K线周期，如 15m

	Detector DetectorConfig `mapstructure:"detector"`
	Breakout BreakoutConfig `mapstructure:"breakout"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Stop     StopConfig     `mapstructure:"stop"`
	Hunter   HunterConfig   `mapstructure:"hunter"`
}

// DetectorConfig 盘整区间检测配置
type DetectorConfig struct {
	MinConsolidationBars    int     `mapstructure:"min_consolidation_bars"`    // 最小盘整K线数，默认10
	MaxConsolidationBars    int     `mapstructure:"max_consolidation_bars"`    // 最大回看K线数，默认100
	RangeTolerance          float64 `mapstructure:"range_tolerance"`           // 区间宽度容忍度，默认0.02
	VolumeConfirm           bool    `mapstructure:"volume_confirm"`            // 是否要求成交量确认
	MinQualityScore         float64 `mapstructure:"min_quality_score"`         // 最小质量评分，默认30
	SupportResistanceBuffer float64 `mapstructure:"support_resistance_buffer"` // 边界缓冲比例，默认0.005
	VolumeSpikeThreshold    float64 `mapstructure:"volume_spike_threshold"`    // 成交量异动倍数，默认1.5
}

// BreakoutConfig 突破分析配置
type BreakoutConfig struct {
	MinVolumeRatio           float64 `mapstructure:"min_volume_ratio"`           // 最小量比，默认1.3
	PriceThreshold           float64 `mapstructure:"price_threshold"`            // 突破价格阈值，默认0.005
	ConfirmBars              int     `mapstructure:"confirm_bars"`               // 确认K线数，默认2
	MomentumPeriod           int     `mapstructure:"momentum_period"`            // 动量周期，默认14
	VolatilityPeriod         int     `mapstructure:"volatility_period"`          // 波动率周期，默认20
	VolumeMAPeriod           int     `mapstructure:"volume_ma_period"`           // 成交量均线周期，默认20
	MinQualityScore          float64 `mapstructure:"min_quality_score"`          // 最小质量评分，默认40
	ExplosiveVolumeThreshold float64 `mapstructure:"explosive_volume_threshold"` // 爆量倍数，默认3.0
	StrongMomentumThreshold  float64 `mapstructure:"strong_momentum_threshold"`  // 强动量阈值，默认0.7
}

// CacheConfig 区间缓存配置
type CacheConfig struct {
	MaxCachedRanges  int    `mapstructure:"max_cached_ranges"`  // 最大缓存数量，默认100
	CacheExpiryHours int    `mapstructure:"cache_expiry_hours"` // 缓存有效期 单位：小时，默认168
	AutoCleanup      bool   `mapstructure:"auto_cleanup"`       // 访问时自动清理过期项
	SnapshotPath     string `mapstructure:"snapshot_path"`      // 快照文件路径，空则不持久化
}

// StopConfig 动态止损配置
type StopConfig struct {
	RangeStopBuffer         float64 `mapstructure:"range_stop_buffer"`         // 区间止损缓冲，默认0.001
	MaxStopLoss             float64 `mapstructure:"max_stop_loss"`             // 最大止损比例，默认0.05
	TimeStopHours           int     `mapstructure:"time_stop_hours"`           // 时间止损 单位：小时，默认168
	TrailingStopDistance    float64 `mapstructure:"trailing_stop_distance"`    // 移动止损距离，默认0.02
	TrailingActivationProfit float64 `mapstructure:"trailing_activation_profit"` // 移动止损激活盈利，默认0.01
	VolatilityMultiplier    float64 `mapstructure:"volatility_multiplier"`     // 波动率止损倍数，默认2.0
	EmergencyStopThreshold  float64 `mapstructure:"emergency_stop_threshold"`  // 紧急止损阈值，默认0.08
}

// HunterConfig 流动性猎杀检测配置
type HunterConfig struct {
	VolumeSpikeThreshold   float64 `mapstructure:"volume_spike_threshold"`   // 放量倍数，默认2.0
	MinHuntDistance        float64 `mapstructure:"min_hunt_distance"`        // 最小猎杀距离，默认0.005
	ZoneTouchMin           int     `mapstructure:"zone_touch_min"`           // 区域最小触碰次数，默认2
	ZoneExpiryHours        int     `mapstructure:"zone_expiry_hours"`        // 区域有效期 单位：小时，默认168
	PsychologicalLevels    bool    `mapstructure:"psychological_levels"`     // 是否识别心理价位
	RoundNumberSensitivity float64 `mapstructure:"round_number_sensitivity"` // 整数位敏感度，默认100
	MinSignalQuality       float64 `mapstructure:"min_signal_quality"`       // 最小信号质量，默认50
	MaxFalseSignalRisk     float64 `mapstructure:"max_false_signal_risk"`    // 最大假信号风险，默认0.4
}
