package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/api"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/config"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/engine"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/loader"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/telemetry"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/warmd.yaml)")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
	apiPort    = flag.String("port", "", "观测 API 端口，覆盖配置文件")
)

func main() {
	flag.Parse()

	cfg := loadConfig()

	if err := logger.Init(logger.Config{
		Level:    cfg.Logger.Level,
		Format:   cfg.Logger.Format,
		Output:   cfg.Logger.Output,
		Filename: cfg.Logger.Filename,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent("warmd")

	eng, err := engine.New(cfg, nil)
	if err != nil {
		log.WithError(err).Fatal("创建预热引擎失败")
	}
	defer eng.Close()

	registerDemoLoaders(eng)

	if err := eng.StartWarming(); err != nil {
		log.WithError(err).Fatal("启动预热循环失败")
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(eng, api.ServerConfig{
			Port: cfg.API.Port,
			Mode: cfg.API.Mode,
		})
		if err := apiServer.Start(); err != nil {
			log.WithError(err).Fatal("启动观测 API 失败")
		}
	}

	var reporter *telemetry.Reporter
	if cfg.Telemetry.Enabled {
		reporter = telemetry.NewReporter(eng, telemetry.ReporterConfig{
			URL:      cfg.Telemetry.URL,
			Token:    cfg.Telemetry.Token,
			Org:      cfg.Telemetry.Org,
			Bucket:   cfg.Telemetry.Bucket,
			Interval: cfg.Telemetry.Interval,
		})
		reporter.Start()
	}

	log.Info("warmd 已启动")

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("收到退出信号，正在关闭...")

	if reporter != nil {
		reporter.Stop()
	}
	if apiServer != nil {
		apiServer.Stop()
	}
	eng.StopWarming()
}

func loadConfig() *config.Config {
	var cfg *config.Config

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// 命令行参数覆盖
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}
	if *apiPort != "" {
		cfg.API.Port = *apiPort
	}

	return cfg
}

// registerDemoLoaders 注册内置数据类别的示例加载器。
// 真实部署中由业务方替换为访问 CRM 数据源的实现。
func registerDemoLoaders(eng *engine.Engine) {
	eng.RegisterLoader(loader.KindLeadScore, loader.LoaderFunc(
		func(ctx context.Context, params loader.Params) (interface{}, error) {
			select {
			case <-time.After(time.Duration(20+rand.Intn(60)) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]interface{}{
				"score":      rand.Float64() * 100,
				"updated_at": time.Now(),
			}, nil
		}))

	eng.RegisterLoader(loader.KindConversationContext, loader.LoaderFunc(
		func(ctx context.Context, params loader.Params) (interface{}, error) {
			select {
			case <-time.After(time.Duration(30+rand.Intn(80)) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]interface{}{
				"stage":      "qualification",
				"updated_at": time.Now(),
			}, nil
		}))

	eng.RegisterLoader(loader.KindPropertyMatch, loader.LoaderFunc(
		func(ctx context.Context, params loader.Params) (interface{}, error) {
			select {
			case <-time.After(time.Duration(50+rand.Intn(100)) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]interface{}{
				"matches":    []string{"prop-101", "prop-205"},
				"updated_at": time.Now(),
			}, nil
		}))
}
