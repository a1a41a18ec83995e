package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"consolidation-guard/pkg/types"
)

// CircularQueue 时间窗口滑动队列，保存单交易对的近期价格点
type CircularQueue struct {
	data   []types.PriceDataPoint
	maxAge time.Duration
	mutex  sync.RWMutex
}

func NewCircularQueue(maxAge time.Duration) *CircularQueue {
	return &CircularQueue{
		data:   make([]types.PriceDataPoint, 0, 10),
		maxAge: maxAge,
	}
}

func (cq *CircularQueue) Add(point types.PriceDataPoint) {
	cq.mutex.Lock()
	defer cq.mutex.Unlock()

	cq.data = append(cq.data, point)

	// 清理超过maxAge的旧数据
	cutoff := time.Now().Add(-cq.maxAge)
	newStart := 0
	for i, p := range cq.data {
		if p.Timestamp.After(cutoff) {
			newStart = i
			break
		}
	}
	if newStart > 0 {
		cq.data = cq.data[newStart:]
	}
}

func (cq *CircularQueue) GetLatest() *types.PriceDataPoint {
	cq.mutex.RLock()
	defer cq.mutex.RUnlock()

	if len(cq.data) == 0 {
		return nil
	}
	return &cq.data[len(cq.data)-1]
}

func (cq *CircularQueue) Length() int {
	cq.mutex.RLock()
	defer cq.mutex.RUnlock()
	return len(cq.data)
}

// StateManager 实时价格状态管理器
// 内存为主，Redis可选作为热备份，连接失败时自动降级为纯内存模式
type StateManager struct {
	priceHistory map[string]*CircularQueue
	mutex        sync.RWMutex
	windowSize   time.Duration
	redisClient  *redis.Client
	useRedis     bool
}

func NewStateManager(redisConfig types.RedisConfig) *StateManager {
	sm := &StateManager{
		priceHistory: make(map[string]*CircularQueue),
		windowSize:   5 * time.Minute,
	}

	if redisConfig.URL != "" {
		sm.redisClient = redis.NewClient(&redis.Options{
			Addr:     redisConfig.URL,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := sm.redisClient.Ping(ctx).Result()
		if err != nil {
			zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
			sm.useRedis = false
		} else {
			zap.L().Info("✅ Redis连接成功")
			sm.useRedis = true
		}
	} else {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		sm.useRedis = false
	}

	return sm
}

// Store 写入一个价格点
func (sm *StateManager) Store(symbol string, price float64, timestamp time.Time) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.priceHistory[symbol] == nil {
		sm.priceHistory[symbol] = NewCircularQueue(sm.windowSize)
	}

	dataPoint := types.PriceDataPoint{
		Price:     price,
		Timestamp: timestamp,
	}
	sm.priceHistory[symbol].Add(dataPoint)

	if sm.useRedis {
		go sm.backupToRedis(symbol, dataPoint)
	}
}

func (sm *StateManager) backupToRedis(symbol string, point types.PriceDataPoint) {
	if !sm.useRedis {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf("guard:price:%s", symbol)
	value, err := json.Marshal(point)
	if err != nil {
		zap.L().Warn("序列化价格数据失败", zap.Error(err))
		return
	}

	// Sorted Set以时间戳为分数
	err = sm.redisClient.ZAdd(ctx, key, &redis.Z{
		Score:  float64(point.Timestamp.Unix()),
		Member: value,
	}).Err()

	if err != nil {
		zap.L().Warn("Redis存储失败", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// 只保留最近10分钟数据
	sm.redisClient.Expire(ctx, key, 10*time.Minute)

	cutoff := float64(time.Now().Add(-10 * time.Minute).Unix())
	sm.redisClient.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%.0f", cutoff))
}

// GetLatestPrice 获取最新价格，无数据时返回0和false
func (sm *StateManager) GetLatestPrice(symbol string) (float64, bool) {
	sm.mutex.RLock()
	queue := sm.priceHistory[symbol]
	sm.mutex.RUnlock()

	if queue == nil {
		return 0, false
	}

	latest := queue.GetLatest()
	if latest == nil {
		return 0, false
	}

	return latest.Price, true
}

func (sm *StateManager) GetAllSymbols() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	symbols := make([]string, 0, len(sm.priceHistory))
	for symbol := range sm.priceHistory {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// GetRedisStats 获取Redis备份状态统计
func (sm *StateManager) GetRedisStats() map[string]interface{} {
	stats := map[string]interface{}{
		"redis_enabled":  sm.useRedis,
		"memory_symbols": len(sm.priceHistory),
	}

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		keys, err := sm.redisClient.Keys(ctx, "guard:price:*").Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}
