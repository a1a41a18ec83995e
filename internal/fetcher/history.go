package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// HistoryKlineFetcher 历史K线获取器，用于启动时回填K线缓冲区
type HistoryKlineFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryKlineFetcher 创建历史K线获取器
func NewHistoryKlineFetcher(networkConfig types.NetworkConfig) *HistoryKlineFetcher {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{}
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误，历史数据将直连获取", zap.Error(err))
		}
	}

	return &HistoryKlineFetcher{
		baseURL: "https://www.okx.com/api/v5/market",
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// okxHistoryKlineResponse OKX历史K线响应
type okxHistoryKlineResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// FetchHistoryKlines 获取单个交易对的历史K线，返回按时间从旧到新排列
func (f *HistoryKlineFetcher) FetchHistoryKlines(symbol, interval string, limit int) ([]*types.KLine, error) {
	apiURL := fmt.Sprintf("%s/history-index-candles?instId=%s&bar=%s&limit=%d",
		f.baseURL, symbol, interval, limit)

	req, err := http.NewRequest("GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("User-Agent", "consolidation-guard/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求历史K线失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("历史K线接口状态码异常: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %v", err)
	}

	var apiResp okxHistoryKlineResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("解析历史K线响应失败: %v", err)
	}

	if apiResp.Code != "0" {
		return nil, fmt.Errorf("历史K线接口返回错误: %s - %s", apiResp.Code, apiResp.Msg)
	}

	klines := make([]*types.KLine, 0, len(apiResp.Data))
	for _, data := range apiResp.Data {
		kline, err := parseHistoryCandle(symbol, interval, data)
		if err != nil {
			zap.L().Warn("解析历史K线失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		klines = append(klines, kline)
	}

	// OKX返回按时间从新到旧，翻转为从旧到新
	reverseKlines(klines)

	return klines, nil
}

// FetchMultipleSymbolsHistory 批量获取多个交易对的历史K线
func (f *HistoryKlineFetcher) FetchMultipleSymbolsHistory(symbols []string, interval string, limit int) (map[string][]*types.KLine, error) {
	result := make(map[string][]*types.KLine)

	for _, symbol := range symbols {
		klines, err := f.FetchHistoryKlines(symbol, interval, limit)
		if err != nil {
			zap.L().Error("获取历史K线失败，跳过该交易对",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		result[symbol] = klines
		zap.L().Info("📚 历史K线回填完成",
			zap.String("symbol", symbol),
			zap.Int("count", len(klines)))

		// 限流
		time.Sleep(200 * time.Millisecond)
	}

	return result, nil
}

// parseHistoryCandle 历史K线格式: [ts, open, high, low, close, ...]
func parseHistoryCandle(symbol, interval string, data []string) (*types.KLine, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("K线字段不足: %d", len(data))
	}

	openTime, err := parseTimestamp(data[0])
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %v", err)
	}

	open, err := parseFloat(data[1])
	if err != nil {
		return nil, fmt.Errorf("解析开盘价失败: %v", err)
	}

	high, err := parseFloat(data[2])
	if err != nil {
		return nil, fmt.Errorf("解析最高价失败: %v", err)
	}

	low, err := parseFloat(data[3])
	if err != nil {
		return nil, fmt.Errorf("解析最低价失败: %v", err)
	}

	close, err := parseFloat(data[4])
	if err != nil {
		return nil, fmt.Errorf("解析收盘价失败: %v", err)
	}

	volume := 0.0
	if len(data) >= 6 {
		if v, err := parseFloat(data[5]); err == nil {
			volume = v
		}
	}

	return &types.KLine{
		Symbol:   symbol,
		OpenTime: openTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
		Interval: interval,
	}, nil
}

func reverseKlines(klines []*types.KLine) {
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
}
