package types

import "time"

// BreakoutDirection 突破方向枚举
type BreakoutDirection string

const (
	BreakoutUp   BreakoutDirection = "up"   // 向上突破
	BreakoutDown BreakoutDirection = "down" // 向下突破
	BreakoutNone BreakoutDirection = "none" // 无突破
)

// BreakoutType 突破类型枚举
type BreakoutType string

const (
	BreakoutGenuine   BreakoutType = "genuine"   // 真突破
	BreakoutFalse     BreakoutType = "false"     // 假突破
	BreakoutPotential BreakoutType = "potential" // 潜在突破
	BreakoutInvalid   BreakoutType = "invalid"   // 无效突破
)

// BreakoutStrength 突破强度枚举
type BreakoutStrength int

const (
	BreakoutWeak      BreakoutStrength = 1 // 弱突破
	BreakoutModerate  BreakoutStrength = 2 // 中等突破
	BreakoutStrong    BreakoutStrength = 3 // 强突破
	BreakoutExplosive BreakoutStrength = 4 // 爆发性突破
)

// ConfirmationType 确认类型枚举
type ConfirmationType string

const (
	ConfirmPriceOnly ConfirmationType = "price_only"         // 仅价格确认
	ConfirmVolume    ConfirmationType = "volume_confirmed"   // 成交量确认
	ConfirmMomentum  ConfirmationType = "momentum_confirmed" // 动量确认
	ConfirmFull      ConfirmationType = "full_confirmed"     // 全面确认
)

// BreakoutSignal 突破信号数据结构
//
// 突破分析的完整结果，生成后不再修改。
type BreakoutSignal struct {
	// 基本信息
	Symbol       string            `json:"symbol"`
	BreakoutTime time.Time         `json:"breakout_time"`
	Direction    BreakoutDirection `json:"direction"`
	BreakoutType BreakoutType      `json:"breakout_type"`
	Strength     BreakoutStrength  `json:"strength"`

	// 价格信息
	BreakoutPrice      float64 `json:"breakout_price"`
	TargetBoundary     float64 `json:"target_boundary"`
	BreakoutDistance   float64 `json:"breakout_distance"`
	BreakoutPercentage float64 `json:"breakout_percentage"`

	// 确认信息
	ConfirmationType ConfirmationType `json:"confirmation_type"`
	ConfirmBars      int              `json:"confirm_bars"`
	VolumeRatio      float64          `json:"volume_ratio"`
	MomentumScore    float64          `json:"momentum_score"`
	Sustained        bool             `json:"sustained"`

	// 质量评估
	QualityScore float64 `json:"quality_score"` // 0-100
	Confidence   float64 `json:"confidence"`    // 0-1
	RiskLevel    int     `json:"risk_level"`    // 1-5

	// 技术指标
	AvgVolumeRatio      float64 `json:"avg_volume_ratio"`
	PriceAcceleration   float64 `json:"price_acceleration"`
	VolatilityExpansion float64 `json:"volatility_expansion"`

	// 预测信息
	SuccessProbability float64 `json:"success_probability"`
	TargetDistance     float64 `json:"target_distance"`
	ExpectedDuration   int     `json:"expected_duration"` // K线数

	// 风险控制
	StopLossSuggestion float64 `json:"stop_loss_suggestion"`
	InvalidationLevel  float64 `json:"invalidation_level"`

	// 元数据
	CreatedAt time.Time `json:"created_at"`
}

// IsValid 检查突破信号是否有效
func (bs *BreakoutSignal) IsValid() bool {
	return bs.QualityScore >= 40 &&
		bs.Confidence >= 0.3 &&
		bs.BreakoutType != BreakoutInvalid
}

// IsConfirmed 检查是否为确认的突破
func (bs *BreakoutSignal) IsConfirmed() bool {
	return bs.IsValid() &&
		(bs.BreakoutType == BreakoutGenuine || bs.BreakoutType == BreakoutPotential) &&
		bs.ConfirmationType != ConfirmPriceOnly &&
		bs.QualityScore >= 50 &&
		bs.Confidence >= 0.6
}

// SignalStrengthScore 信号强度综合评分 (0-100)
func (bs *BreakoutSignal) SignalStrengthScore() float64 {
	strengthScore := float64(bs.Strength) * 25

	volumeScore := bs.VolumeRatio / 2.0
	if volumeScore > 1.0 {
		volumeScore = 1.0
	}
	volumeScore *= 100

	score := strengthScore*0.3 + volumeScore*0.25 + bs.MomentumScore*100*0.25 + bs.Confidence*100*0.2
	if score > 100 {
		score = 100
	}
	return score
}
