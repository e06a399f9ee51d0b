package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/adapter"
	"github.com/tokmz/realtime/pkg/config"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/metrics"
	"github.com/tokmz/realtime/pkg/service"
	"github.com/tokmz/realtime/pkg/tracing"
	"github.com/tokmz/realtime/pkg/ws"
)

// 运行：REALTIME_TOKEN=xxx REALTIME_BOT_ID=bot-1 go run ./example
func main() {
	boot, err := logger.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer boot.Sync()
	log := boot

	// ============ 1. 配置（修改文件后热更新日志级别） ============
	var cfg *config.Config
	cfg = config.New(
		config.WithConfigFile("example/config.yaml"),
		config.WithEnvPrefix("REALTIME"),
		config.WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
		config.WithDefaults(map[string]any{
			"log.level":    "info",
			"log.format":   "console",
			"metrics.addr": ":9100",
		}),
		config.WithOnChange(func() {
			applyLogLevel(log, cfg.GetString("log.level"))
		}),
		config.WithOnError(func(err error) {
			log.Warn("config watch error", zap.Error(err))
		}),
	)
	if err := cfg.Load(); err != nil {
		fatal(boot, "load config", err)
	}
	defer cfg.Close()

	if log, err = newLogger(cfg); err != nil {
		fatal(boot, "logger init", err)
	}
	defer log.Sync()
	if err := cfg.StartWatch(); err != nil {
		log.Warn("config watch disabled", zap.Error(err))
	}

	// ============ 2. 链路追踪 ============
	traceCfg := tracing.DefaultConfig()
	if err := cfg.UnmarshalKey("tracing", traceCfg); err != nil {
		fatal(log, "tracing config", err)
	}
	if _, err := tracing.NewTracerProvider(traceCfg); err != nil {
		fatal(log, "tracing init", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	// ============ 3. 监控 ============
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg, "")

	srv := &http.Server{Addr: cfg.GetString("metrics.addr"), Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	defer srv.Close()

	// ============ 4. 实时连接服务 ============
	rtCfg, err := service.LoadConfig(cfg)
	if err != nil {
		fatal(log, "realtime config", err)
	}
	svc, err := service.New(rtCfg, service.WithLogger(log), service.WithMetrics(m))
	if err != nil {
		fatal(log, "realtime init", err)
	}
	defer svc.Disconnect()

	notifications := svc.Notifications()
	notifications.OnNotification(func(n adapter.Notification) {
		log.Info("notification", zap.String("id", n.ID), zap.String("title", n.Title))
	})
	notifications.OnPermissionChanged(func(p adapter.PermissionChange) {
		log.Info("permission changed", zap.String("resource", p.ResourceID), zap.Bool("granted", p.Granted))
	})
	notifications.OnReconnectFailed(func() {
		log.Warn("notifications offline, giving up")
	})

	chat := svc.Chat()
	chat.OnChatMessage(func(msg adapter.ChatMessage) {
		log.Info("chat", zap.String("role", msg.Role), zap.String("content", msg.Content))
	})
	chat.OnConnectionState(func(s ws.State) {
		log.Info("chat state", zap.Stringer("state", s))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := cfg.GetString("token")
	if err := svc.Initialize(ctx, token); err != nil {
		log.Warn("notifications not connected yet", zap.Error(err))
	}
	if botID := cfg.GetString("bot_id"); botID != "" {
		if err := svc.ConnectToChat(ctx, botID, token, cfg.GetString("session_id")); err != nil {
			log.Warn("chat not connected", zap.Error(err))
		} else if err := chat.SendMessage("hello"); err != nil {
			log.Warn("send greeting", zap.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("shutting down", zap.Any("status", svc.Status()))
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, zap.Error(err))
	_ = log.Sync()
	os.Exit(1)
}

// newLogger 按 log 配置段构建 Logger，log.file 非空时按大小轮转写文件
func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	opts := []logger.Option{
		logger.WithName("realtime"),
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.GetString("log.format"))),
		logger.WithConsoleOutput(),
		logger.WithSampling(&logger.SamplingConfig{}),
	}
	if file := cfg.GetString("log.file"); file != "" {
		opts = append(opts, logger.WithRotateOutput(&logger.RotateConfig{Filename: file, Compress: true}))
	}
	return logger.NewWithOptions(opts...)
}

func applyLogLevel(log logger.Logger, level string) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		log.Warn("invalid log level", zap.String("level", level))
		return
	}
	log.SetLevel(lvl)
}
