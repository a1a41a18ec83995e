package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
	"consolidation-guard/pkg/types"
)

// Load 加载配置
func Load() (*types.Config, error) {
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	setDefaults()

	// 读取环境变量
	viper.AutomaticEnv()

	// 优先尝试读取本地配置文件
	viper.SetConfigName("config.local")
	if err := viper.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		viper.SetConfigName("config")
		if err := viper.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info") // 兼容保留
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file_path", "logs")
	viper.SetDefault("log.max_size", 200)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.compress", false)
	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("dingtalk.webhook_url", "")
	viper.SetDefault("dingtalk.secret", "")
	viper.SetDefault("network.proxy", "")
	viper.SetDefault("network.timeout", 30*time.Second)

	// 数据库默认配置
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.username", "root")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "consolidation_guard")
	viper.SetDefault("database.mysql.max_idle_conns", 10)
	viper.SetDefault("database.mysql.max_open_conns", 100)

	// 策略默认配置
	viper.SetDefault("strategy.consolidation.enabled", true)
	viper.SetDefault("strategy.consolidation.symbols", []string{"BTC-USDT", "ETH-USDT"})
	viper.SetDefault("strategy.consolidation.interval", "15m")

	// 盘整检测默认配置
	viper.SetDefault("strategy.consolidation.detector.min_consolidation_bars", 10)
	viper.SetDefault("strategy.consolidation.detector.max_consolidation_bars", 100)
	viper.SetDefault("strategy.consolidation.detector.range_tolerance", 0.02)
	viper.SetDefault("strategy.consolidation.detector.volume_confirm", true)
	viper.SetDefault("strategy.consolidation.detector.min_quality_score", 30.0)
	viper.SetDefault("strategy.consolidation.detector.support_resistance_buffer", 0.005)
	viper.SetDefault("strategy.consolidation.detector.volume_spike_threshold", 1.5)

	// 突破分析默认配置
	viper.SetDefault("strategy.consolidation.breakout.min_volume_ratio", 1.3)
	viper.SetDefault("strategy.consolidation.breakout.price_threshold", 0.005)
	viper.SetDefault("strategy.consolidation.breakout.confirm_bars", 2)
	viper.SetDefault("strategy.consolidation.breakout.momentum_period", 14)
	viper.SetDefault("strategy.consolidation.breakout.volatility_period", 20)
	viper.SetDefault("strategy.consolidation.breakout.volume_ma_period", 20)
	viper.SetDefault("strategy.consolidation.breakout.min_quality_score", 40.0)
	viper.SetDefault("strategy.consolidation.breakout.explosive_volume_threshold", 3.0)
	viper.SetDefault("strategy.consolidation.breakout.strong_momentum_threshold", 0.7)

	// 缓存默认配置
	viper.SetDefault("strategy.consolidation.cache.max_cached_ranges", 100)
	viper.SetDefault("strategy.consolidation.cache.cache_expiry_hours", 168)
	viper.SetDefault("strategy.consolidation.cache.auto_cleanup", true)
	viper.SetDefault("strategy.consolidation.cache.snapshot_path", "")

	// 止损默认配置
	viper.SetDefault("strategy.consolidation.stop.range_stop_buffer", 0.001)
	viper.SetDefault("strategy.consolidation.stop.max_stop_loss", 0.05)
	viper.SetDefault("strategy.consolidation.stop.time_stop_hours", 168)
	viper.SetDefault("strategy.consolidation.stop.trailing_stop_distance", 0.02)
	viper.SetDefault("strategy.consolidation.stop.trailing_activation_profit", 0.01)
	viper.SetDefault("strategy.consolidation.stop.volatility_multiplier", 2.0)
	viper.SetDefault("strategy.consolidation.stop.emergency_stop_threshold", 0.08)

	// 猎杀检测默认配置
	viper.SetDefault("strategy.consolidation.hunter.volume_spike_threshold", 2.0)
	viper.SetDefault("strategy.consolidation.hunter.min_hunt_distance", 0.005)
	viper.SetDefault("strategy.consolidation.hunter.zone_touch_min", 2)
	viper.SetDefault("strategy.consolidation.hunter.zone_expiry_hours", 168)
	viper.SetDefault("strategy.consolidation.hunter.psychological_levels", true)
	viper.SetDefault("strategy.consolidation.hunter.round_number_sensitivity", 100.0)
	viper.SetDefault("strategy.consolidation.hunter.min_signal_quality", 50.0)
	viper.SetDefault("strategy.consolidation.hunter.max_false_signal_risk", 0.4)
}
