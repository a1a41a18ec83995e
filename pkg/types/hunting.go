package types

import "time"

// HuntingType 猎杀类型枚举
type HuntingType string

const (
	HuntStopHunt      HuntingType = "stop_hunt"      // 止损猎杀
	HuntLiquidityGrab HuntingType = "liquidity_grab" // 流动性抓取
	HuntFakeBreakout  HuntingType = "fake_breakout"  // 假突破
	HuntWashout       HuntingType = "washout"        // 洗盘
	HuntSqueeze       HuntingType = "squeeze"        // 挤压
)

// LiquidityZoneType 流动性区域类型枚举
type LiquidityZoneType string

const (
	ZoneSupportCluster     LiquidityZoneType = "support_cluster"     // 支撑聚集区
	ZoneResistanceCluster  LiquidityZoneType = "resistance_cluster"  // 阻力聚集区
	ZoneStopLossCluster    LiquidityZoneType = "stop_loss_cluster"   // 止损聚集区
	ZonePsychologicalLevel LiquidityZoneType = "psychological_level" // 心理价位
	ZoneTechnicalLevel     LiquidityZoneType = "technical_level"     // 技术位
)

// HuntingStrength 猎杀强度枚举
type HuntingStrength int

const (
	HuntWeak     HuntingStrength = 1 // 弱猎杀
	HuntModerate HuntingStrength = 2 // 中等猎杀
	HuntStrong   HuntingStrength = 3 // 强猎杀
	HuntExtreme  HuntingStrength = 4 // 极端猎杀
)

// RecommendedAction 猎杀信号的操作建议
type RecommendedAction string

const (
	ActionHold    RecommendedAction = "hold"    // 继续持有（洗盘）
	ActionReenter RecommendedAction = "reenter" // 考虑加仓或重新入场
	ActionObserve RecommendedAction = "observe" // 保持观察
)

// LiquidityZone 流动性区域数据结构
type LiquidityZone struct {
	// 基本信息
	ZoneType   LiquidityZoneType `json:"zone_type"`
	PriceLevel float64           `json:"price_level"`
	PriceLow   float64           `json:"price_low"`
	PriceHigh  float64           `json:"price_high"`
	Strength   float64           `json:"strength"` // 0-100

	// 统计信息
	TouchCount          int     `json:"touch_count"`
	VolumeConcentration float64 `json:"volume_concentration"`

	// 时间信息
	FirstTouch      time.Time `json:"first_touch"`
	LastTouch       time.Time `json:"last_touch"`
	FormationPeriod int       `json:"formation_period"` // K线数

	// 预测信息
	HuntProbability float64 `json:"hunt_probability"`
	TargetDistance  float64 `json:"target_distance"`

	// 元数据
	CreatedAt  time.Time `json:"created_at"`
	Confidence float64   `json:"confidence"`
	Notes      string    `json:"notes"`
}

// IsActive 区域在24小时内是否有触碰
func (z *LiquidityZone) IsActive(now time.Time) bool {
	return now.Sub(z.LastTouch) < 24*time.Hour
}

// HuntingSignal 猎杀信号数据结构
type HuntingSignal struct {
	// 基本信息
	HuntingType HuntingType     `json:"hunting_type"`
	Strength    HuntingStrength `json:"strength"`
	TargetZone  *LiquidityZone  `json:"target_zone,omitempty"`
	Symbol      string          `json:"symbol"`
	CacheID     string          `json:"cache_id"`

	// 价格信息
	HuntPrice      float64 `json:"hunt_price"`
	ReversalPrice  float64 `json:"reversal_price"`
	DistanceHunted float64 `json:"distance_hunted"`

	// 成交量信息
	VolumeSpike       float64 `json:"volume_spike"`
	AbsorptionDetect  bool    `json:"absorption_detected"`

	// 确认信息
	IsConfirmed         bool     `json:"is_confirmed"`
	ConfirmationSignals []string `json:"confirmation_signals"`
	FalseSignalRisk     float64  `json:"false_signal_risk"`

	// 操作建议
	RecommendedAction RecommendedAction `json:"recommended_action"`
	HoldSuggestion    bool              `json:"hold_suggestion"`
	EntryOpportunity  bool              `json:"entry_opportunity"`

	// 质量评估
	SignalQuality float64 `json:"signal_quality"` // 0-100
	Confidence    float64 `json:"confidence"`     // 0-1

	// 元数据
	DetectedAt time.Time `json:"detected_at"`
}

// IsValidHuntingSignal 检查是否为有效的猎杀信号
func (hs *HuntingSignal) IsValidHuntingSignal() bool {
	return hs.IsConfirmed &&
		hs.SignalQuality >= 50 &&
		hs.Confidence >= 0.6 &&
		hs.FalseSignalRisk <= 0.4
}
