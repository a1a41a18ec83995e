package main

import (
	"log"

	"consolidation-guard/pkg/config"
	"consolidation-guard/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	appLogger, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer appLogger.Sync()

	app := NewApp(cfg)
	if err := app.Start(); err != nil {
		appLogger.Fatal("启动失败: " + err.Error())
	}

	app.WaitForShutdown()
	app.Stop()
}
