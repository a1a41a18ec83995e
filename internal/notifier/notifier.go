package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"consolidation-guard/pkg/types"
)

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	runeCount := utf8.RuneCountInString(content)
	padding := totalWidth - runeCount - 4
	if padding < 0 {
		padding = 0
	}
	return padding
}

// buildTradingURL 根据交易对生成交易链接
func buildTradingURL(symbol string) string {
	pair := strings.ReplaceAll(symbol, "-", "")
	return fmt.Sprintf("https://www.bybits.io/trade/usdt/%s", pair)
}

// exitReasonText 退出原因的中文描述
func exitReasonText(reason types.ExitReason) string {
	switch reason {
	case types.ExitRangeReturn:
		return "价格回到盘整区间"
	case types.ExitFixedStopHit:
		return "触发固定止损"
	case types.ExitTrailingStopHit:
		return "触发跟踪止损"
	case types.ExitTimeStopHit:
		return "持仓超时"
	case types.ExitEmergencyStop:
		return "触发紧急止损"
	default:
		return "未知原因"
	}
}

// huntingTypeText 猎杀类型的中文描述
func huntingTypeText(huntType types.HuntingType) string {
	switch huntType {
	case types.HuntStopHunt:
		return "止损猎杀"
	case types.HuntLiquidityGrab:
		return "流动性抓取"
	case types.HuntFakeBreakout:
		return "假突破"
	case types.HuntWashout:
		return "洗盘"
	case types.HuntSqueeze:
		return "挤压"
	default:
		return "未知类型"
	}
}

// actionText 操作建议的中文描述
func actionText(action types.RecommendedAction) string {
	switch action {
	case types.ActionHold:
		return "继续持有"
	case types.ActionReenter:
		return "考虑重新入场"
	default:
		return "保持观察"
	}
}

// Interface 通知接口
type Interface interface {
	SendBreakoutAlert(cached *types.CachedRange) error
	SendExitAlert(signal *types.ExitSignal) error
	SendHuntingAlert(signal *types.HuntingSignal) error
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct{}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (cn *ConsoleNotifier) SendBreakoutAlert(cached *types.CachedRange) error {
	border := "╔" + strings.Repeat("═", 70) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", 70) + "╝"

	arrow := "📈"
	directionText := "向上突破"
	if cached.Signal.Direction == types.BreakoutDown {
		arrow = "📉"
		directionText = "向下突破"
	}

	fmt.Println()
	fmt.Println(border)
	cn.printLine(fmt.Sprintf("%s 🚨 盘整区间突破确认！", arrow), 70)
	cn.printBlank(70)
	cn.printLine(fmt.Sprintf("交易对: %s", cached.Symbol), 70)
	cn.printLine(fmt.Sprintf("突破方向: %s", directionText), 70)
	cn.printLine(fmt.Sprintf("突破价格: $%.6f", cached.Signal.BreakoutPrice), 70)
	cn.printLine(fmt.Sprintf("区间边界: $%.6f - $%.6f", cached.Range.LowerBoundary, cached.Range.UpperBoundary), 70)
	cn.printLine(fmt.Sprintf("盘整时长: %d根K线", cached.Range.DurationBars), 70)
	cn.printLine(fmt.Sprintf("信号质量: %.1f  置信度: %.2f", cached.Signal.QualityScore, cached.Signal.Confidence), 70)
	cn.printLine(fmt.Sprintf("量比: %.2f  成功概率: %.0f%%", cached.Signal.VolumeRatio, cached.Signal.SuccessProbability*100), 70)
	cn.printLine(fmt.Sprintf("缓存ID: %s", cached.CacheID), 70)
	cn.printLine(fmt.Sprintf("时间: %s", cached.CachedAt.Format("2006-01-02 15:04:05")), 70)
	cn.printBlank(70)
	cn.printLine("💡 区间边界已缓存，将持续跟踪止损与退出条件", 70)
	fmt.Println(bottomBorder)
	fmt.Println()

	return nil
}

func (cn *ConsoleNotifier) SendExitAlert(signal *types.ExitSignal) error {
	border := "╔" + strings.Repeat("═", 70) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", 70) + "╝"

	urgencyMark := "⚠️"
	if signal.Urgency >= 4 {
		urgencyMark = "🚨"
	}

	fmt.Println()
	fmt.Println(border)
	cn.printLine(fmt.Sprintf("%s 退出信号触发！", urgencyMark), 70)
	cn.printBlank(70)
	cn.printLine(fmt.Sprintf("交易对: %s", signal.Symbol), 70)
	cn.printLine(fmt.Sprintf("退出原因: %s", exitReasonText(signal.ExitReason)), 70)
	cn.printLine(fmt.Sprintf("建议退出价: $%.6f", signal.ExitPrice), 70)
	cn.printLine(fmt.Sprintf("紧急程度: %d/5  置信度: %.2f", signal.Urgency, signal.Confidence), 70)
	if signal.Detail != "" {
		cn.printLine(fmt.Sprintf("说明: %s", signal.Detail), 70)
	}
	cn.printLine(fmt.Sprintf("时间: %s", signal.Timestamp.Format("2006-01-02 15:04:05")), 70)
	cn.printBlank(70)
	if signal.Urgency >= 4 {
		cn.printLine("💡 高紧急度退出信号，请立即处理持仓！", 70)
	} else {
		cn.printLine("💡 请结合持仓情况及时处理退出信号", 70)
	}
	fmt.Println(bottomBorder)
	fmt.Println()

	return nil
}

func (cn *ConsoleNotifier) SendHuntingAlert(signal *types.HuntingSignal) error {
	border := "╔" + strings.Repeat("═", 70) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", 70) + "╝"

	fmt.Println()
	fmt.Println(border)
	cn.printLine("🎯 疑似流动性猎杀行为！", 70)
	cn.printBlank(70)
	cn.printLine(fmt.Sprintf("交易对: %s", signal.Symbol), 70)
	cn.printLine(fmt.Sprintf("猎杀类型: %s", huntingTypeText(signal.HuntingType)), 70)
	cn.printLine(fmt.Sprintf("猎杀价格: $%.6f", signal.HuntPrice), 70)
	cn.printLine(fmt.Sprintf("反转价格: $%.6f", signal.ReversalPrice), 70)
	cn.printLine(fmt.Sprintf("放量倍数: %.2f", signal.VolumeSpike), 70)
	cn.printLine(fmt.Sprintf("信号质量: %.1f  置信度: %.2f", signal.SignalQuality, signal.Confidence), 70)
	cn.printLine(fmt.Sprintf("操作建议: %s", actionText(signal.RecommendedAction)), 70)
	cn.printLine(fmt.Sprintf("时间: %s", signal.DetectedAt.Format("2006-01-02 15:04:05")), 70)
	cn.printBlank(70)
	if signal.HoldSuggestion {
		cn.printLine("💡 疑似洗盘行为，避免被动止损离场", 70)
	} else {
		cn.printLine("💡 请结合流动性区域分布谨慎判断", 70)
	}
	fmt.Println(bottomBorder)
	fmt.Println()

	return nil
}

func (cn *ConsoleNotifier) printLine(content string, width int) {
	padding := safePadding(content, width)
	fmt.Printf("║ %s%s ║\n", content, strings.Repeat(" ", padding))
}

func (cn *ConsoleNotifier) printBlank(width int) {
	fmt.Println("║" + strings.Repeat(" ", width) + "║")
}

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	enabled    bool
	httpClient *http.Client
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkNotifier(webhookURL, secret string) Interface {
	// 没有配置webhook URL时返回控制台通知器
	if webhookURL == "" {
		fmt.Println("🔧 未配置钉钉Webhook URL，使用控制台输出模式")
		return NewConsoleNotifier()
	}

	if secret != "" {
		fmt.Println("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		fmt.Println("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		enabled:    true,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (dtn *DingTalkNotifier) SendBreakoutAlert(cached *types.CachedRange) error {
	if !dtn.enabled {
		return NewConsoleNotifier().SendBreakoutAlert(cached)
	}

	arrow := "📈"
	if cached.Signal.Direction == types.BreakoutDown {
		arrow = "📉"
	}

	title := fmt.Sprintf("%s 盘整突破 - %s", arrow, cached.Symbol)
	content := dtn.buildBreakoutMarkdown(cached)

	if err := dtn.sendDingTalkMessage(title, content); err != nil {
		fmt.Printf("❌ 钉钉发送失败: %v，降级为控制台输出\n", err)
		return NewConsoleNotifier().SendBreakoutAlert(cached)
	}

	fmt.Printf("✅ 钉钉突破通知已发送: %s %s\n", cached.Symbol, cached.Signal.Direction)
	return nil
}

func (dtn *DingTalkNotifier) SendExitAlert(signal *types.ExitSignal) error {
	if !dtn.enabled {
		return NewConsoleNotifier().SendExitAlert(signal)
	}

	title := fmt.Sprintf("🛑 退出信号 - %s", signal.Symbol)
	content := dtn.buildExitMarkdown(signal)

	if err := dtn.sendDingTalkMessage(title, content); err != nil {
		fmt.Printf("❌ 钉钉发送失败: %v，降级为控制台输出\n", err)
		return NewConsoleNotifier().SendExitAlert(signal)
	}

	fmt.Printf("✅ 钉钉退出通知已发送: %s %s\n", signal.Symbol, signal.ExitReason)
	return nil
}

func (dtn *DingTalkNotifier) SendHuntingAlert(signal *types.HuntingSignal) error {
	if !dtn.enabled {
		return NewConsoleNotifier().SendHuntingAlert(signal)
	}

	title := fmt.Sprintf("🎯 流动性猎杀 - %s", signal.Symbol)
	content := dtn.buildHuntingMarkdown(signal)

	if err := dtn.sendDingTalkMessage(title, content); err != nil {
		fmt.Printf("❌ 钉钉发送失败: %v，降级为控制台输出\n", err)
		return NewConsoleNotifier().SendHuntingAlert(signal)
	}

	fmt.Printf("✅ 钉钉猎杀通知已发送: %s %s\n", signal.Symbol, signal.HuntingType)
	return nil
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) (string, error) {
	if dtn.secret == "" {
		return "", nil
	}

	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return url.QueryEscape(signature), nil
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() (string, error) {
	timestamp := time.Now().UnixNano() / 1e6

	if dtn.secret == "" {
		return dtn.webhookURL, nil
	}

	signature, err := dtn.generateSignature(timestamp)
	if err != nil {
		return "", err
	}

	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, signature), nil
}

// buildBreakoutMarkdown 构建突破通知的Markdown内容
func (dtn *DingTalkNotifier) buildBreakoutMarkdown(cached *types.CachedRange) string {
	arrow := "📈"
	color := "green"
	directionText := "向上突破"
	if cached.Signal.Direction == types.BreakoutDown {
		arrow = "📉"
		color = "red"
		directionText = "向下突破"
	}

	tradingURL := buildTradingURL(cached.Symbol)

	return fmt.Sprintf(`## %s 盘整区间突破确认

**交易对**: [%s](%s)
**突破方向**: <font color="%s">%s</font>
**突破价格**: $%.6f
**区间边界**: $%.6f - $%.6f
**盘整时长**: %d根K线
**信号质量**: %.1f / 100
**置信度**: %.2f
**量比**: %.2f
**成功概率**: %.0f%%
**时间**: %s

> 💡 区间边界已缓存，将持续跟踪止损与退出条件`,
		arrow,
		cached.Symbol, tradingURL,
		color, directionText,
		cached.Signal.BreakoutPrice,
		cached.Range.LowerBoundary, cached.Range.UpperBoundary,
		cached.Range.DurationBars,
		cached.Signal.QualityScore,
		cached.Signal.Confidence,
		cached.Signal.VolumeRatio,
		cached.Signal.SuccessProbability*100,
		cached.CachedAt.Format("2006-01-02 15:04:05"))
}

// buildExitMarkdown 构建退出通知的Markdown内容
func (dtn *DingTalkNotifier) buildExitMarkdown(signal *types.ExitSignal) string {
	urgencyMark := "⚠️"
	color := "orange"
	if signal.Urgency >= 4 {
		urgencyMark = "🚨"
		color = "red"
	}

	tradingURL := buildTradingURL(signal.Symbol)

	content := fmt.Sprintf(`## %s 退出信号触发

**交易对**: [%s](%s)
**退出原因**: <font color="%s">%s</font>
**建议退出价**: $%.6f
**紧急程度**: %d/5
**置信度**: %.2f
**时间**: %s  `,
		urgencyMark,
		signal.Symbol, tradingURL,
		color, exitReasonText(signal.ExitReason),
		signal.ExitPrice,
		signal.Urgency,
		signal.Confidence,
		signal.Timestamp.Format("2006-01-02 15:04:05"))

	if signal.Detail != "" {
		content += fmt.Sprintf("\n\n> 说明: %s", signal.Detail)
	}

	if signal.Urgency >= 4 {
		content += "\n\n> 💡 高紧急度退出信号，请立即处理持仓！"
	} else {
		content += "\n\n> 💡 请结合持仓情况及时处理退出信号"
	}

	return content
}

// buildHuntingMarkdown 构建猎杀通知的Markdown内容
func (dtn *DingTalkNotifier) buildHuntingMarkdown(signal *types.HuntingSignal) string {
	tradingURL := buildTradingURL(signal.Symbol)

	content := fmt.Sprintf(`## 🎯 疑似流动性猎杀行为

**交易对**: [%s](%s)
**猎杀类型**: %s
**猎杀价格**: $%.6f
**反转价格**: $%.6f
**放量倍数**: %.2f
**信号质量**: %.1f / 100
**置信度**: %.2f
**操作建议**: %s
**时间**: %s  `,
		signal.Symbol, tradingURL,
		huntingTypeText(signal.HuntingType),
		signal.HuntPrice,
		signal.ReversalPrice,
		signal.VolumeSpike,
		signal.SignalQuality,
		signal.Confidence,
		actionText(signal.RecommendedAction),
		signal.DetectedAt.Format("2006-01-02 15:04:05"))

	if signal.HoldSuggestion {
		content += "\n\n> 💡 疑似洗盘行为，避免被动止损离场"
	} else {
		content += "\n\n> 💡 请结合流动性区域分布谨慎判断"
	}

	return content
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(title, content string) error {
	signedURL, err := dtn.buildSignedURL()
	if err != nil {
		return fmt.Errorf("构建签名URL失败: %v", err)
	}

	message := DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false,
		},
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	resp, err := dtn.httpClient.Post(signedURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("发送HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉接口状态码异常: %d", resp.StatusCode)
	}

	var dtResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dtResp); err != nil {
		return fmt.Errorf("解析钉钉响应失败: %v", err)
	}

	if dtResp.ErrCode != 0 {
		return fmt.Errorf("钉钉接口返回错误: %d - %s", dtResp.ErrCode, dtResp.ErrMsg)
	}

	return nil
}
