package notifier

import (
	"strings"
	"testing"
	"time"

	"consolidation-guard/pkg/types"
)

func testCachedRange() *types.CachedRange {
	return &types.CachedRange{
		CacheID: "notify-test-1",
		Symbol:  "BTC-USDT",
		Range: types.ConsolidationRange{
			Symbol:        "BTC-USDT",
			UpperBoundary: 50500,
			LowerBoundary: 49500,
			DurationBars:  20,
		},
		Signal: types.BreakoutSignal{
			Symbol:             "BTC-USDT",
			Direction:          types.BreakoutUp,
			BreakoutPrice:      50800,
			QualityScore:       72,
			Confidence:         0.8,
			VolumeRatio:        2.1,
			SuccessProbability: 0.65,
		},
		CachedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildBreakoutMarkdown(t *testing.T) {
	dtn := &DingTalkNotifier{webhookURL: "https://example.com/hook", enabled: true}

	content := dtn.buildBreakoutMarkdown(testCachedRange())

	if !strings.Contains(content, "BTC-USDT") {
		t.Error("突破通知应包含交易对")
	}
	if !strings.Contains(content, "向上突破") {
		t.Error("突破通知应包含方向描述")
	}
	if !strings.Contains(content, "bybits.io/trade/usdt/BTCUSDT") {
		t.Error("突破通知应包含交易链接")
	}
	if !strings.Contains(content, "20根K线") {
		t.Error("突破通知应包含盘整时长")
	}
}

func TestBuildExitMarkdownUrgency(t *testing.T) {
	dtn := &DingTalkNotifier{webhookURL: "https://example.com/hook", enabled: true}

	urgent := dtn.buildExitMarkdown(&types.ExitSignal{
		ShouldExit: true,
		ExitReason: types.ExitEmergencyStop,
		ExitPrice:  46000,
		Urgency:    5,
		Confidence: 0.9,
		Symbol:     "BTC-USDT",
		Timestamp:  time.Now(),
	})

	if !strings.Contains(urgent, "🚨") {
		t.Error("高紧急度通知应使用🚨标记")
	}
	if !strings.Contains(urgent, "触发紧急止损") {
		t.Error("通知应包含退出原因中文描述")
	}
	if !strings.Contains(urgent, "立即处理") {
		t.Error("高紧急度通知应包含立即处理提示")
	}

	mild := dtn.buildExitMarkdown(&types.ExitSignal{
		ShouldExit: true,
		ExitReason: types.ExitTimeStopHit,
		ExitPrice:  50200,
		Urgency:    2,
		Confidence: 0.7,
		Symbol:     "BTC-USDT",
		Timestamp:  time.Now(),
	})

	if strings.Contains(mild, "🚨") {
		t.Error("低紧急度通知不应使用🚨标记")
	}
	if !strings.Contains(mild, "持仓超时") {
		t.Error("通知应包含时间止损描述")
	}
}

func TestBuildHuntingMarkdown(t *testing.T) {
	dtn := &DingTalkNotifier{webhookURL: "https://example.com/hook", enabled: true}

	content := dtn.buildHuntingMarkdown(&types.HuntingSignal{
		HuntingType:       types.HuntWashout,
		Symbol:            "ETH-USDT",
		HuntPrice:         3200,
		ReversalPrice:     3100,
		VolumeSpike:       2.5,
		SignalQuality:     65,
		Confidence:        0.7,
		RecommendedAction: types.ActionHold,
		HoldSuggestion:    true,
		DetectedAt:        time.Now(),
	})

	if !strings.Contains(content, "洗盘") {
		t.Error("猎杀通知应包含类型中文描述")
	}
	if !strings.Contains(content, "避免被动止损离场") {
		t.Error("洗盘信号应包含持有提示")
	}
	if !strings.Contains(content, "继续持有") {
		t.Error("猎杀通知应包含操作建议")
	}
}

func TestGenerateSignature(t *testing.T) {
	dtn := &DingTalkNotifier{secret: "test-secret"}

	sig1, err := dtn.generateSignature(1700000000000)
	if err != nil {
		t.Fatalf("生成签名失败: %v", err)
	}
	if sig1 == "" {
		t.Error("配置secret后签名不应为空")
	}

	sig2, _ := dtn.generateSignature(1700000000000)
	if sig1 != sig2 {
		t.Error("相同时间戳应生成相同签名")
	}

	sig3, _ := dtn.generateSignature(1700000001000)
	if sig1 == sig3 {
		t.Error("不同时间戳应生成不同签名")
	}

	empty := &DingTalkNotifier{}
	sig, err := empty.generateSignature(1700000000000)
	if err != nil || sig != "" {
		t.Error("未配置secret时签名应为空")
	}
}

func TestBuildSignedURL(t *testing.T) {
	dtn := &DingTalkNotifier{
		webhookURL: "https://oapi.dingtalk.com/robot/send?access_token=abc",
		secret:     "test-secret",
	}

	signed, err := dtn.buildSignedURL()
	if err != nil {
		t.Fatalf("构建签名URL失败: %v", err)
	}
	if !strings.Contains(signed, "&timestamp=") || !strings.Contains(signed, "&sign=") {
		t.Errorf("签名URL缺少参数: %s", signed)
	}

	plain := &DingTalkNotifier{webhookURL: "https://example.com/hook"}
	unsigned, _ := plain.buildSignedURL()
	if unsigned != "https://example.com/hook" {
		t.Errorf("无secret时应返回原始URL: %s", unsigned)
	}
}

func TestNewDingTalkNotifierFallback(t *testing.T) {
	n := NewDingTalkNotifier("", "")
	if _, ok := n.(*ConsoleNotifier); !ok {
		t.Error("未配置webhook时应降级为控制台通知器")
	}

	n = NewDingTalkNotifier("https://example.com/hook", "secret")
	if _, ok := n.(*DingTalkNotifier); !ok {
		t.Error("配置webhook时应返回钉钉通知器")
	}
}

func TestSafePadding(t *testing.T) {
	if p := safePadding("abc", 10); p != 3 {
		t.Errorf("ASCII填充计算错误: %d", p)
	}
	// 中文按rune计数
	if p := safePadding("中文", 10); p != 4 {
		t.Errorf("中文填充计算错误: %d", p)
	}
	if p := safePadding(strings.Repeat("x", 100), 10); p != 0 {
		t.Errorf("超长内容填充应为0: %d", p)
	}
}
