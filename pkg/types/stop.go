package types

import "time"

// StopLossType 止损类型枚举
type StopLossType string

const (
	StopRangeBoundary   StopLossType = "range_boundary"   // 盘整带边界止损
	StopFixedPercentage StopLossType = "fixed_percentage" // 固定比例止损
	StopTrailing        StopLossType = "trailing"         // 跟踪止损
	StopTimeBased       StopLossType = "time_based"       // 时间止损
	StopVolatilityBased StopLossType = "volatility_based" // 波动率止损
	StopEmergency       StopLossType = "emergency"        // 紧急止损
)

// ExitReason 退出原因枚举
type ExitReason string

const (
	ExitRangeReturn     ExitReason = "range_return"      // 回到盘整区间
	ExitFixedStopHit    ExitReason = "fixed_stop_hit"    // 触发固定止损
	ExitTrailingStopHit ExitReason = "trailing_stop_hit" // 触发跟踪止损
	ExitTimeStopHit     ExitReason = "time_stop_hit"     // 时间止损
	ExitEmergencyStop   ExitReason = "emergency_stop"    // 紧急止损
	ExitNone            ExitReason = "none"              // 无需退出
)

// StopLossLevel 止损水平数据结构
//
// 每个决策周期重新计算，不做持久化。
type StopLossLevel struct {
	LevelType   StopLossType `json:"level_type"`
	Price       float64      `json:"price"`
	Distance    float64      `json:"distance"`
	DistancePct float64      `json:"distance_pct"`
	Priority    int          `json:"priority"` // 0最高 - 4最低
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	Description string       `json:"description"`
}

// ExitSignal 退出信号数据结构
//
// should_exit判定的唯一输出，供订单管理方消费。
type ExitSignal struct {
	ShouldExit    bool           `json:"should_exit"`
	ExitReason    ExitReason     `json:"exit_reason"`
	TriggeredStop *StopLossLevel `json:"triggered_stop,omitempty"`
	ExitPrice     float64        `json:"exit_price"`
	Urgency       int            `json:"urgency"`    // 1-5
	Confidence    float64        `json:"confidence"` // 0-1
	Symbol        string         `json:"symbol"`
	CacheID       string         `json:"cache_id"`
	Detail        string         `json:"detail"`
	Timestamp     time.Time      `json:"timestamp"`
}
