package types

import "time"

// PriceDataPoint 实时价格数据点
type PriceDataPoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// KLine K线数据结构（通用市场数据）
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  string    `json:"interval"` // 15m
}

// Range K线总波幅（高低价差）
func (k *KLine) Range() float64 {
	return k.High - k.Low
}

// BodySize K线实体大小
func (k *KLine) BodySize() float64 {
	body := k.Close - k.Open
	if body < 0 {
		body = -body
	}
	return body
}

// UpperShadow 上影线长度
func (k *KLine) UpperShadow() float64 {
	top := k.Open
	if k.Close > top {
		top = k.Close
	}
	return k.High - top
}

// LowerShadow 下影线长度
func (k *KLine) LowerShadow() float64 {
	bottom := k.Open
	if k.Close < bottom {
		bottom = k.Close
	}
	return bottom - k.Low
}

// IsBullish 是否为阳线
func (k *KLine) IsBullish() bool {
	return k.Close > k.Open
}

// Closes 提取收盘价序列
func Closes(klines []*KLine) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// Volumes 提取成交量序列
func Volumes(klines []*KLine) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Volume
	}
	return out
}
