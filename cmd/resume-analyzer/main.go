package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/api/router"
	"resume-match-go/internal/config"
	applogger "resume-match-go/internal/logger"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/pipeline"
	"resume-match-go/internal/scorer"
	"resume-match-go/internal/storage"
	"resume-match-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	// .env 缺失是正常情况，配置可以完全来自yaml与环境变量
	_ = godotenv.Load()

	var configPath string
	var addr string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	pflag.StringVarP(&addr, "addr", "a", "", "覆盖配置中的监听地址")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if addr != "" {
		cfg.Server.Address = addr
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	embedder, err := parser.NewAliyunEmbedder(cfg.Embedding)
	if err != nil {
		glog.Fatalf("初始化向量化客户端失败: %v", err)
	}
	glog.Info("向量化客户端初始化成功")

	qwenModel, err := scorer.NewQwenChatModel(cfg.LLM)
	if err != nil {
		glog.Fatalf("初始化LLM客户端失败: %v", err)
	}
	limitedModel := ratelimit.NewRateLimitedLLMModel(qwenModel, cfg.LLM.QPM).
		WithRetryPolicy(time.Duration(cfg.LLM.RetryWaitSeconds)*time.Second, cfg.LLM.MaxRetries)
	glog.Infof("LLM客户端初始化成功，限流 %d QPM", cfg.LLM.QPM)

	matchScorer := scorer.NewMatchScorer(limitedModel, cfg.LLM, cfg.Analyzer)
	analysisStore := storage.NewAnalysisStore(storageManager.MySQL)

	deps := pipeline.RunnerDeps{
		Extractor:  parser.NewResumeExtractor(),
		Chunker:    parser.NewTextChunker(cfg.Analyzer.ChunkSize, cfg.Analyzer.ChunkOverlap),
		Embedder:   embedder,
		Scorer:     matchScorer,
		Downloader: storageManager.MinIO,
		Store:      analysisStore,
	}
	// Redis与RabbitMQ是可降级依赖，未初始化时保持接口为nil
	if storageManager.Redis != nil {
		deps.TextCache = storageManager.Redis
		deps.Progress = storageManager.Redis
	}
	if storageManager.RabbitMQ != nil {
		deps.Events = storageManager.RabbitMQ
	}

	runner := pipeline.NewSessionRunner(deps, cfg.Analyzer, cfg.RabbitMQ)
	glog.Info("分析流水线初始化成功")

	sessionHandler := handler.NewSessionHandler(cfg, analysisStore, storageManager.Redis, runner)

	// 周期清扫孤儿分析结果
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := runner.CleanupOrphans(ctx); err != nil {
					applogger.Warn().Err(err).Msg("周期清扫孤儿分析结果失败")
				}
			}
		}
	}()

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, sessionHandler)
	glog.Info("HTTP路由注册成功")

	go func() {
		glog.Infof("HTTP服务器启动中，监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger(cfg *config.Config) {
	applogger.Init(applogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	// Hertz框架日志走同一个zerolog实例
	glog.SetLogger(hertzadapter.From(applogger.Logger))
	if cfg.Logger.Level == "debug" {
		glog.SetLevel(glog.LevelDebug)
	} else {
		glog.SetLevel(glog.LevelInfo)
	}
}
