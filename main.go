// @title 视觉指令实验 API
// @version 1.0
// @description 视觉指令实验的参与者页面流程与诊断接口。

// @host localhost:5000
// @BasePath /
// @securityDefinitions.basic BasicAuth

package main

import (
	"flag"
	"log"
	"visual_experiment/internal/app"
	"visual_experiment/internal/config"
	"visual_experiment/pkg/logger"
)

func main() {
	// 命令行参数
	configDir := flag.String("config", "configs", "配置文件所在目录")
	initOnly := flag.Bool("init-only", false, "只初始化数据存储（建表或创建 JSON 文件），完成后退出")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.InitOnly = *initOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *initOnly {
		application.Close()
		log.Println("数据存储初始化完成，退出程序")
		return
	}

	application.Run()
}
