package types

import "time"

// ConsolidationType 盘整形态枚举
type ConsolidationType string

const (
	ConsolidationHorizontal ConsolidationType = "horizontal" // 水平盘整
	ConsolidationAscending  ConsolidationType = "ascending"  // 上升楔形
	ConsolidationDescending ConsolidationType = "descending" // 下降楔形
	ConsolidationTriangle   ConsolidationType = "triangle"   // 三角形整理
	ConsolidationRectangle  ConsolidationType = "rectangle"  // 矩形整理
)

// ConsolidationStrength 盘整强度等级
type ConsolidationStrength int

const (
	StrengthWeak       ConsolidationStrength = 1 // 弱盘整
	StrengthModerate   ConsolidationStrength = 2 // 中等盘整
	StrengthStrong     ConsolidationStrength = 3 // 强盘整
	StrengthVeryStrong ConsolidationStrength = 4 // 极强盘整
)

// ConsolidationRange 盘整区间数据结构
//
// 包含盘整区间的所有关键信息，用于后续的突破分析和止损计算。
// 检测完成后不再修改。
type ConsolidationRange struct {
	// 基本信息
	Symbol       string    `json:"symbol"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DurationBars int       `json:"duration_bars"`

	// 价格边界
	UpperBoundary   float64 `json:"upper_boundary"`
	LowerBoundary   float64 `json:"lower_boundary"`
	RangeSize       float64 `json:"range_size"`
	RangePercentage float64 `json:"range_percentage"`

	// 统计信息
	AvgPrice    float64 `json:"avg_price"`
	MedianPrice float64 `json:"median_price"`
	PriceStd    float64 `json:"price_std"`

	// 成交量信息
	AvgVolume   float64 `json:"avg_volume"`
	VolumeStd   float64 `json:"volume_std"`
	VolumeTrend float64 `json:"volume_trend"` // 标准化斜率 (-1到1附近)

	// 质量评估
	ConsolidationType ConsolidationType     `json:"consolidation_type"`
	Strength          ConsolidationStrength `json:"strength"`
	QualityScore      float64               `json:"quality_score"` // 0-100
	Confidence        float64               `json:"confidence"`    // 0-1
	StabilityRatio    float64               `json:"stability_ratio"`

	// 技术特征
	SupportTests    int `json:"support_tests"`
	ResistanceTests int `json:"resistance_tests"`
	FalseBreakouts  int `json:"false_breakouts"`
	VolumeSpikes    int `json:"volume_spikes"`

	// 元数据
	CreatedAt time.Time `json:"created_at"`
}

// IsValid 检查盘整区间是否有效
func (cr *ConsolidationRange) IsValid() bool {
	return cr.UpperBoundary > cr.LowerBoundary &&
		cr.DurationBars >= 5 &&
		cr.QualityScore >= 30 &&
		cr.Confidence >= 0.5
}

// ContainsPrice 检查价格是否在盘整区间内（buffer为区间大小的比例缓冲）
func (cr *ConsolidationRange) ContainsPrice(price, buffer float64) bool {
	bufferAmount := cr.RangeSize * buffer
	return cr.LowerBoundary-bufferAmount <= price && price <= cr.UpperBoundary+bufferAmount
}

// BoundaryDistance 价格到边界的距离
type BoundaryDistance struct {
	ToUpper    float64 `json:"to_upper"`
	ToLower    float64 `json:"to_lower"`
	ToUpperPct float64 `json:"to_upper_pct"`
	ToLowerPct float64 `json:"to_lower_pct"`
}

// DistanceToBoundary 计算价格到上下边界的距离
func (cr *ConsolidationRange) DistanceToBoundary(price float64) BoundaryDistance {
	toUpper := price - cr.UpperBoundary
	if toUpper < 0 {
		toUpper = -toUpper
	}
	toLower := price - cr.LowerBoundary
	if toLower < 0 {
		toLower = -toLower
	}
	d := BoundaryDistance{ToUpper: toUpper, ToLower: toLower}
	if cr.AvgPrice > 0 {
		d.ToUpperPct = toUpper / cr.AvgPrice * 100
		d.ToLowerPct = toLower / cr.AvgPrice * 100
	}
	return d
}
