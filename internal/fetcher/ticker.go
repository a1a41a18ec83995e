package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	okxcommon "github.com/nntaoli-project/goex/v2/okx/common"
	"go.uber.org/zap"

	"consolidation-guard/internal/storage"
	"consolidation-guard/pkg/types"
)

// PriceFetcher 实时价格获取器
// 周期性拉取监控交易对的ticker价格写入StateManager，供持仓退出检查使用
type PriceFetcher struct {
	storage    *storage.StateManager
	symbols    map[string]bool
	interval   time.Duration
	okxClient  *okxcommon.OKxV5
	httpClient *http.Client
}

// NewPriceFetcher 创建实时价格获取器
func NewPriceFetcher(stateManager *storage.StateManager, symbols []string, networkConfig types.NetworkConfig) *PriceFetcher {
	client := okxcommon.New()

	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
		},
	}

	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			httpClient.Transport.(*http.Transport).Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	watched := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		watched[symbol] = true
	}

	zap.L().Info("✅ 初始化OKX行情客户端",
		zap.Int("symbols", len(symbols)),
		zap.Duration("timeout", timeout))

	return &PriceFetcher{
		storage:    stateManager,
		symbols:    watched,
		interval:   1 * time.Minute,
		okxClient:  client,
		httpClient: httpClient,
	}
}

// Start 启动价格轮询，阻塞直到ctx取消
func (f *PriceFetcher) Start(ctx context.Context) {
	zap.L().Info("🚀 实时价格获取器启动")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// 立即执行一次
	f.fetchAndStore()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 实时价格获取器已停止")
			return
		case <-ticker.C:
			f.fetchAndStore()
		}
	}
}

func (f *PriceFetcher) fetchAndStore() {
	tickers, err := f.getTickers()
	if err != nil {
		zap.L().Error("❌ 获取行情数据失败", zap.Error(err))
		return
	}

	stored := 0
	for _, ticker := range tickers {
		if !f.symbols[ticker.InstId] {
			continue
		}
		if price, err := parseFloat(ticker.Last); err == nil && price > 0 {
			f.storage.Store(ticker.InstId, price, time.Now())
			stored++
		}
	}

	zap.L().Debug("📊 实时价格已更新",
		zap.Int("total_tickers", len(tickers)),
		zap.Int("stored", stored))
}

// Ticker OKX ticker响应
type Ticker struct {
	InstId    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	Ts        string `json:"ts"`
}

// getTickers 获取全量现货ticker，带重试
func (f *PriceFetcher) getTickers() ([]Ticker, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			zap.L().Info("🔄 重试获取行情数据", zap.Int("attempt", attempt))
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		apiURL := "https://www.okx.com/api/v5/market/tickers?instType=SPOT"

		resp, err := f.httpClient.Get(apiURL)
		if err != nil {
			lastErr = fmt.Errorf("HTTP请求失败(第%d次尝试): %v", attempt, err)
			continue
		}

		var body bytes.Buffer
		_, err = body.ReadFrom(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("读取响应失败(第%d次尝试): %v", attempt, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP状态码错误(第%d次尝试): %d", attempt, resp.StatusCode)
			continue
		}

		var apiResp struct {
			Code string   `json:"code"`
			Msg  string   `json:"msg"`
			Data []Ticker `json:"data"`
		}

		if err := json.Unmarshal(body.Bytes(), &apiResp); err != nil {
			lastErr = fmt.Errorf("解析API响应失败(第%d次尝试): %v", attempt, err)
			continue
		}

		if apiResp.Code != "0" {
			lastErr = fmt.Errorf("API返回错误(第%d次尝试): %s - %s", attempt, apiResp.Code, apiResp.Msg)
			continue
		}

		return apiResp.Data, nil
	}

	return nil, lastErr
}
