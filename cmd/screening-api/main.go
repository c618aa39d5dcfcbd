package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/api/handler"
	"github.com/zthsk/semantic-resume-screening/internal/api/router"
	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/outbox"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
)

func main() {
	var configPath string
	var verbose bool
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "输出debug级别日志")
	pflag.Parse()

	// 配置加载之前先给一个可用的日志器，加载失败也能报出来
	_ = logger.Init(logger.Config{Level: "info", Format: "pretty"})
	glog.SetLogger(hertzadapter.From(logger.Logger))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logCfg := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	glog.SetLogger(hertzadapter.From(logger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	shutdownTracing, err := tracing.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFlush()
		if err := shutdownTracing(flushCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer store.Close()
	glog.Info("存储服务初始化成功")

	summarizer := llm.NewSummarizer(cfg)

	var embedder embedding.Embedder
	if cfg.Embedding.Provider != "" {
		embedder, err = llm.NewEmbedder(cfg.Embedding)
		if err != nil {
			glog.Warnf("初始化Embedder失败，候选人匹配不可用: %v", err)
			embedder = nil
		}
	}

	screeningHandler, err := handler.NewScreeningHandler(ctx, cfg, store, summarizer, embedder)
	if err != nil {
		glog.Fatalf("初始化ScreeningHandler失败: %v", err)
	}
	glog.Info("ScreeningHandler初始化成功")

	var relay *outbox.Relay
	if store.MySQL != nil && store.RabbitMQ != nil {
		relay = outbox.NewRelay(store.MySQL, store.RabbitMQ)
		relay.Start(ctx)
		glog.Info("发件箱中继已启动")
	}

	var stopConsumer func()
	if stop, err := screeningHandler.StartIntakeConsumer(ctx); err != nil {
		glog.Warnf("简历处理消费者未启动: %v", err)
	} else {
		stopConsumer = stop
	}

	go screeningHandler.StartMD5CleanupTask(ctx)

	opts := []hertzconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var tracingCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tcfg := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracingCfg = tcfg
	}

	h := server.New(opts...)
	if tracingCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	}
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, cfg, screeningHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	cancel()
	if stopConsumer != nil {
		stopConsumer()
		glog.Info("简历处理消费者已停止")
	}
	if relay != nil {
		relay.Stop()
		glog.Info("发件箱中继已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
