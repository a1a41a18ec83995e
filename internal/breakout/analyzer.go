package breakout

import (
	"math"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// BreakoutAnalyzer 突破分析器
// 分析价格突破盘整区间的有效性，区分真假突破
type BreakoutAnalyzer struct {
	cfg types.BreakoutConfig

	mu    sync.Mutex
	stats analysisStats
}

type analysisStats struct {
	totalAnalyses    int
	genuineBreakouts int
	falseBreakouts   int
	avgSuccessRate   float64
}

// breakoutValidity 突破有效性分析的中间结果
type breakoutValidity struct {
	breakoutType   types.BreakoutType
	targetBoundary float64
	distance       float64
	percentage     float64
	sustained      bool
	barsConfirmed  int
}

// confirmationInfo 确认信息的中间结果
type confirmationInfo struct {
	confirmationType    types.ConfirmationType
	bars                int
	volumeRatio         float64
	avgVolumeRatio      float64
	momentumScore       float64
	priceAcceleration   float64
	volatilityExpansion float64
}

// qualityAssessment 质量评估的中间结果
type qualityAssessment struct {
	qualityScore float64
	confidence   float64
	riskLevel    int
	isValid      bool
}

// NewBreakoutAnalyzer 创建突破分析器
func NewBreakoutAnalyzer(cfg types.BreakoutConfig) *BreakoutAnalyzer {
	if cfg.MinVolumeRatio <= 0 {
		cfg.MinVolumeRatio = 1.3
	}
	if cfg.PriceThreshold <= 0 {
		cfg.PriceThreshold = 0.005
	}
	if cfg.ConfirmBars <= 0 {
		cfg.ConfirmBars = 2
	}
	if cfg.MomentumPeriod <= 0 {
		cfg.MomentumPeriod = 14
	}
	if cfg.VolatilityPeriod <= 0 {
		cfg.VolatilityPeriod = 20
	}
	if cfg.VolumeMAPeriod <= 0 {
		cfg.VolumeMAPeriod = 20
	}
	if cfg.MinQualityScore <= 0 {
		cfg.MinQualityScore = 40
	}
	if cfg.ExplosiveVolumeThreshold <= 0 {
		cfg.ExplosiveVolumeThreshold = 3.0
	}
	if cfg.StrongMomentumThreshold <= 0 {
		cfg.StrongMomentumThreshold = 0.7
	}
	return &BreakoutAnalyzer{cfg: cfg}
}

// AnalyzeBreakout 分析突破信号
// 价格仍在区间死区内或区间无效时返回nil
func (ba *BreakoutAnalyzer) AnalyzeBreakout(klines []*types.KLine, cr *types.ConsolidationRange, currentPrice float64) *types.BreakoutSignal {
	if cr == nil || !cr.IsValid() {
		zap.L().Debug("⚠️ 盘整区间无效，跳过突破分析")
		return nil
	}
	if len(klines) < ba.cfg.ConfirmBars+1 {
		zap.L().Debug("⚠️ 数据不足以进行突破分析", zap.Int("bars", len(klines)))
		return nil
	}

	if currentPrice <= 0 {
		currentPrice = klines[len(klines)-1].Close
	}

	// 1. 检测突破方向
	direction := ba.detectDirection(currentPrice, cr)
	if direction == types.BreakoutNone {
		return nil
	}

	// 2. 分析突破有效性
	validity := ba.analyzeValidity(klines, cr, direction, currentPrice)

	// 3. 计算突破强度
	strength := ba.calculateStrength(klines, cr, validity)

	// 4. 获取确认信息
	confirmation := ba.getConfirmationInfo(klines, validity)

	// 5. 评估质量和置信度
	quality := ba.assessQuality(cr, validity, confirmation)

	// 6. 计算预测信息
	successProbability, targetDistance, expectedDuration := ba.calculatePrediction(cr, validity, quality)

	// 7. 生成风险控制建议
	stopLoss, invalidationLevel := ba.riskControlSuggestions(cr, validity)

	now := time.Now()
	signal := &types.BreakoutSignal{
		Symbol:              cr.Symbol,
		BreakoutTime:        now,
		Direction:           direction,
		BreakoutType:        validity.breakoutType,
		Strength:            strength,
		BreakoutPrice:       currentPrice,
		TargetBoundary:      validity.targetBoundary,
		BreakoutDistance:    validity.distance,
		BreakoutPercentage:  validity.percentage,
		ConfirmationType:    confirmation.confirmationType,
		ConfirmBars:         confirmation.bars,
		VolumeRatio:         confirmation.volumeRatio,
		MomentumScore:       confirmation.momentumScore,
		Sustained:           validity.sustained,
		QualityScore:        quality.qualityScore,
		Confidence:          quality.confidence,
		RiskLevel:           quality.riskLevel,
		AvgVolumeRatio:      confirmation.avgVolumeRatio,
		PriceAcceleration:   confirmation.priceAcceleration,
		VolatilityExpansion: confirmation.volatilityExpansion,
		SuccessProbability:  successProbability,
		TargetDistance:      targetDistance,
		ExpectedDuration:    expectedDuration,
		StopLossSuggestion:  stopLoss,
		InvalidationLevel:   invalidationLevel,
		CreatedAt:           now,
	}

	ba.updateStats(signal)

	zap.L().Info("🎯 突破分析完成",
		zap.String("symbol", signal.Symbol),
		zap.String("direction", string(signal.Direction)),
		zap.String("type", string(signal.BreakoutType)),
		zap.Int("strength", int(signal.Strength)),
		zap.Float64("quality", signal.QualityScore))

	return signal
}

// detectDirection 检测突破方向，区间上下边界外设有死区阈值
func (ba *BreakoutAnalyzer) detectDirection(currentPrice float64, cr *types.ConsolidationRange) types.BreakoutDirection {
	upperThreshold := cr.UpperBoundary * (1 + ba.cfg.PriceThreshold)
	lowerThreshold := cr.LowerBoundary * (1 - ba.cfg.PriceThreshold)

	switch {
	case currentPrice > upperThreshold:
		return types.BreakoutUp
	case currentPrice < lowerThreshold:
		return types.BreakoutDown
	default:
		return types.BreakoutNone
	}
}

// analyzeValidity 分析突破有效性与持续性
func (ba *BreakoutAnalyzer) analyzeValidity(klines []*types.KLine, cr *types.ConsolidationRange, direction types.BreakoutDirection, currentPrice float64) breakoutValidity {
	var targetBoundary float64
	if direction == types.BreakoutUp {
		targetBoundary = cr.UpperBoundary
	} else {
		targetBoundary = cr.LowerBoundary
	}

	distance := math.Abs(currentPrice - targetBoundary)
	percentage := distance / targetBoundary * 100

	// 检查突破的持续性：确认期内收盘价必须全部在边界外
	recent := tail(klines, ba.cfg.ConfirmBars+1)
	sustained := true
	for _, k := range recent {
		if direction == types.BreakoutUp {
			if k.Close <= cr.UpperBoundary {
				sustained = false
				break
			}
		} else {
			if k.Close >= cr.LowerBoundary {
				sustained = false
				break
			}
		}
	}

	var breakoutType types.BreakoutType
	switch {
	case !sustained:
		breakoutType = types.BreakoutFalse
	case percentage >= ba.cfg.PriceThreshold*100:
		if ba.checkVolumeConfirmation(klines, recent) {
			breakoutType = types.BreakoutGenuine
		} else {
			breakoutType = types.BreakoutPotential
		}
	default:
		breakoutType = types.BreakoutPotential
	}

	return breakoutValidity{
		breakoutType:   breakoutType,
		targetBoundary: targetBoundary,
		distance:       distance,
		percentage:     percentage,
		sustained:      sustained,
		barsConfirmed:  len(recent),
	}
}

// checkVolumeConfirmation 检查确认期成交量是否放大
func (ba *BreakoutAnalyzer) checkVolumeConfirmation(klines, recent []*types.KLine) bool {
	historical := tail(klines, ba.cfg.VolumeMAPeriod+len(recent))
	if len(historical) <= len(recent) {
		return false
	}
	baseline := historical[:len(historical)-len(recent)]

	avgVolume := mean(types.Volumes(baseline))
	if avgVolume <= 0 {
		return false
	}

	recentAvg := mean(types.Volumes(recent))
	return recentAvg/avgVolume >= ba.cfg.MinVolumeRatio
}

// calculateStrength 基于幅度、量比、动量、盘整质量四因素计算突破强度
func (ba *BreakoutAnalyzer) calculateStrength(klines []*types.KLine, cr *types.ConsolidationRange, validity breakoutValidity) types.BreakoutStrength {
	factors := make([]int, 0, 4)

	// 1. 价格突破幅度
	switch {
	case validity.percentage >= 2.0:
		factors = append(factors, 4)
	case validity.percentage >= 1.0:
		factors = append(factors, 3)
	case validity.percentage >= 0.5:
		factors = append(factors, 2)
	default:
		factors = append(factors, 1)
	}

	// 2. 成交量放大
	avgVolume := mean(types.Volumes(tail(klines, ba.cfg.VolumeMAPeriod)))
	currentVolume := klines[len(klines)-1].Volume
	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = currentVolume / avgVolume
	}
	switch {
	case volumeRatio >= ba.cfg.ExplosiveVolumeThreshold:
		factors = append(factors, 4)
	case volumeRatio >= 2.0:
		factors = append(factors, 3)
	case volumeRatio >= ba.cfg.MinVolumeRatio:
		factors = append(factors, 2)
	default:
		factors = append(factors, 1)
	}

	// 3. 动量强度
	momentumScore := ba.calculateMomentumScore(klines)
	switch {
	case momentumScore >= 0.8:
		factors = append(factors, 4)
	case momentumScore >= 0.6:
		factors = append(factors, 3)
	case momentumScore >= 0.4:
		factors = append(factors, 2)
	default:
		factors = append(factors, 1)
	}

	// 4. 盘整质量
	switch {
	case cr.QualityScore >= 80:
		factors = append(factors, 4)
	case cr.QualityScore >= 60:
		factors = append(factors, 3)
	case cr.QualityScore >= 40:
		factors = append(factors, 2)
	default:
		factors = append(factors, 1)
	}

	sum := 0
	for _, f := range factors {
		sum += f
	}
	avgStrength := float64(sum) / float64(len(factors))

	switch {
	case avgStrength >= 3.5:
		return types.BreakoutExplosive
	case avgStrength >= 2.5:
		return types.BreakoutStrong
	case avgStrength >= 1.5:
		return types.BreakoutModerate
	default:
		return types.BreakoutWeak
	}
}

// calculateMomentumScore 综合RSI、价格动量和MACD计算动量评分（0-1）
func (ba *BreakoutAnalyzer) calculateMomentumScore(klines []*types.KLine) float64 {
	period := ba.cfg.MomentumPeriod
	if len(klines) < period {
		return 0.5
	}

	closes := types.Closes(klines)

	var factors []float64

	// RSI评分：超买超卖区域动量最强
	if len(closes) > period {
		rsi := talib.Rsi(closes, period)
		currentRSI := rsi[len(rsi)-1]
		switch {
		case currentRSI > 70 || currentRSI < 30:
			factors = append(factors, 0.8)
		case currentRSI > 60 || currentRSI < 40:
			factors = append(factors, 0.6)
		default:
			factors = append(factors, 0.4)
		}
	} else {
		factors = append(factors, 0.4)
	}

	// 价格动量评分
	recent := closes[len(closes)-period:]
	priceMomentum := (recent[len(recent)-1]/recent[0] - 1) * 100
	switch {
	case math.Abs(priceMomentum) > 5:
		factors = append(factors, 0.9)
	case math.Abs(priceMomentum) > 2:
		factors = append(factors, 0.7)
	default:
		factors = append(factors, 0.4)
	}

	// MACD柱状图评分
	if len(closes) >= 34 {
		_, _, hist := talib.Macd(closes, 12, 26, 9)
		macdMomentum := hist[len(hist)-1]
		switch {
		case math.Abs(macdMomentum) > 0.01:
			factors = append(factors, 0.8)
		case math.Abs(macdMomentum) > 0.005:
			factors = append(factors, 0.6)
		default:
			factors = append(factors, 0.4)
		}
	} else {
		factors = append(factors, 0.4)
	}

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors))
}

// getConfirmationInfo 汇总成交量、动量、加速度与波动率确认信息
func (ba *BreakoutAnalyzer) getConfirmationInfo(klines []*types.KLine, validity breakoutValidity) confirmationInfo {
	recent := tail(klines, ba.cfg.ConfirmBars+5)

	// 成交量确认
	avgVolume := mean(types.Volumes(tail(klines, ba.cfg.VolumeMAPeriod)))
	volumeRatio := 1.0
	avgVolumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = mean(types.Volumes(tail(recent, ba.cfg.ConfirmBars))) / avgVolume
		avgVolumeRatio = mean(types.Volumes(recent)) / avgVolume
	}

	// 动量确认
	momentumScore := ba.calculateMomentumScore(klines)

	// 价格加速度：最近两段涨跌幅之差
	priceAcceleration := 0.0
	if len(recent) >= 3 {
		c := types.Closes(recent)
		priceAcceleration = (c[len(c)-1] - c[len(c)-2]) - (c[len(c)-2] - c[len(c)-3])
	}

	// 波动率扩张
	historicalVol := returnsStd(types.Closes(tail(klines, ba.cfg.VolatilityPeriod)))
	recentVol := returnsStd(types.Closes(recent))
	volatilityExpansion := 1.0
	if historicalVol > 0 {
		volatilityExpansion = recentVol / historicalVol
	}

	// 确认类型
	var confirmationType types.ConfirmationType
	switch {
	case volumeRatio >= ba.cfg.MinVolumeRatio && momentumScore >= ba.cfg.StrongMomentumThreshold:
		confirmationType = types.ConfirmFull
	case volumeRatio >= ba.cfg.MinVolumeRatio:
		confirmationType = types.ConfirmVolume
	case momentumScore >= 0.6:
		confirmationType = types.ConfirmMomentum
	default:
		confirmationType = types.ConfirmPriceOnly
	}

	return confirmationInfo{
		confirmationType:    confirmationType,
		bars:                validity.barsConfirmed,
		volumeRatio:         volumeRatio,
		avgVolumeRatio:      avgVolumeRatio,
		momentumScore:       momentumScore,
		priceAcceleration:   priceAcceleration,
		volatilityExpansion: volatilityExpansion,
	}
}

// assessQuality 五因素平均评估突破质量
func (ba *BreakoutAnalyzer) assessQuality(cr *types.ConsolidationRange, validity breakoutValidity, confirmation confirmationInfo) qualityAssessment {
	var factors []float64

	// 1. 突破类型评分
	switch validity.breakoutType {
	case types.BreakoutGenuine:
		factors = append(factors, 90)
	case types.BreakoutPotential:
		factors = append(factors, 70)
	case types.BreakoutFalse:
		factors = append(factors, 20)
	default:
		factors = append(factors, 0)
	}

	// 2. 盘整质量评分
	factors = append(factors, cr.QualityScore)

	// 3. 确认质量评分
	switch confirmation.confirmationType {
	case types.ConfirmFull:
		factors = append(factors, 90)
	case types.ConfirmVolume:
		factors = append(factors, 75)
	case types.ConfirmMomentum:
		factors = append(factors, 60)
	default:
		factors = append(factors, 30)
	}

	// 4. 持续性评分
	if validity.sustained {
		factors = append(factors, 80)
	} else {
		factors = append(factors, 30)
	}

	// 5. 突破幅度评分
	switch {
	case validity.percentage >= 2.0:
		factors = append(factors, 90)
	case validity.percentage >= 1.0:
		factors = append(factors, 75)
	case validity.percentage >= 0.5:
		factors = append(factors, 60)
	default:
		factors = append(factors, 40)
	}

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	qualityScore := sum / float64(len(factors))
	confidence := math.Min(qualityScore/100, 1.0)

	var riskLevel int
	switch {
	case qualityScore >= 80:
		riskLevel = 1
	case qualityScore >= 60:
		riskLevel = 2
	case qualityScore >= 40:
		riskLevel = 3
	case qualityScore >= 20:
		riskLevel = 4
	default:
		riskLevel = 5
	}

	isValid := qualityScore >= ba.cfg.MinQualityScore &&
		validity.breakoutType != types.BreakoutInvalid &&
		confidence >= 0.3

	return qualityAssessment{
		qualityScore: qualityScore,
		confidence:   confidence,
		riskLevel:    riskLevel,
		isValid:      isValid,
	}
}

// calculatePrediction 计算成功概率、目标距离与预期持续时间
func (ba *BreakoutAnalyzer) calculatePrediction(cr *types.ConsolidationRange, validity breakoutValidity, quality qualityAssessment) (float64, float64, int) {
	baseProbability := quality.qualityScore / 100
	durationFactor := math.Min(float64(cr.DurationBars)/30, 1.2)
	successProbability := math.Min(baseProbability*durationFactor, 0.95)

	var targetDistance float64
	switch validity.breakoutType {
	case types.BreakoutGenuine:
		targetDistance = cr.RangeSize * 2.0
	case types.BreakoutPotential:
		targetDistance = cr.RangeSize * 1.5
	default:
		targetDistance = cr.RangeSize * 0.5
	}

	baseDuration := float64(cr.DurationBars) * 0.5
	var multiplier float64
	switch {
	case quality.qualityScore >= 80:
		multiplier = 2.0
	case quality.qualityScore >= 60:
		multiplier = 1.5
	case quality.qualityScore >= 40:
		multiplier = 1.0
	default:
		multiplier = 0.5
	}

	expectedDuration := int(baseDuration * multiplier)
	if expectedDuration < 1 {
		expectedDuration = 1
	}

	return successProbability, targetDistance, expectedDuration
}

// riskControlSuggestions 止损建议设在区间的另一边界外侧
func (ba *BreakoutAnalyzer) riskControlSuggestions(cr *types.ConsolidationRange, validity breakoutValidity) (float64, float64) {
	if validity.targetBoundary == cr.UpperBoundary {
		// 向上突破，止损设在下边界
		return cr.LowerBoundary * 0.999, cr.LowerBoundary
	}
	// 向下突破，止损设在上边界
	return cr.UpperBoundary * 1.001, cr.UpperBoundary
}

func (ba *BreakoutAnalyzer) updateStats(signal *types.BreakoutSignal) {
	ba.mu.Lock()
	defer ba.mu.Unlock()

	ba.stats.totalAnalyses++
	switch signal.BreakoutType {
	case types.BreakoutGenuine:
		ba.stats.genuineBreakouts++
	case types.BreakoutFalse:
		ba.stats.falseBreakouts++
	}
	ba.stats.avgSuccessRate = float64(ba.stats.genuineBreakouts) / float64(ba.stats.totalAnalyses)
}

// ValidateSignal 验证突破信号，返回错误与警告列表
func (ba *BreakoutAnalyzer) ValidateSignal(signal *types.BreakoutSignal) (bool, []string, []string) {
	var errors, warnings []string

	if !signal.IsValid() {
		errors = append(errors, "信号标记为无效")
	}
	if signal.BreakoutType == types.BreakoutInvalid {
		errors = append(errors, "突破类型无效")
	}
	if signal.QualityScore < ba.cfg.MinQualityScore {
		warnings = append(warnings, "质量评分偏低")
	}
	if signal.Confidence < 0.5 {
		warnings = append(warnings, "置信度偏低")
	}
	if signal.VolumeRatio < ba.cfg.MinVolumeRatio {
		warnings = append(warnings, "成交量确认不足")
	}
	if signal.RiskLevel >= 4 {
		warnings = append(warnings, "风险等级较高")
	}

	return len(errors) == 0, errors, warnings
}

// GetAnalysisStats 获取分析统计信息
func (ba *BreakoutAnalyzer) GetAnalysisStats() map[string]interface{} {
	ba.mu.Lock()
	defer ba.mu.Unlock()
	return map[string]interface{}{
		"total_analyses":    ba.stats.totalAnalyses,
		"genuine_breakouts": ba.stats.genuineBreakouts,
		"false_breakouts":   ba.stats.falseBreakouts,
		"avg_success_rate":  ba.stats.avgSuccessRate,
	}
}

// ResetStats 重置统计信息
func (ba *BreakoutAnalyzer) ResetStats() {
	ba.mu.Lock()
	defer ba.mu.Unlock()
	ba.stats = analysisStats{}
}

// tail 取切片末尾最多n个元素
func tail(klines []*types.KLine, n int) []*types.KLine {
	if len(klines) <= n {
		return klines
	}
	return klines[len(klines)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// returnsStd 计算收益率序列的标准差
func returnsStd(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	m := mean(returns)
	variance := 0.0
	for _, r := range returns {
		variance += (r - m) * (r - m)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
