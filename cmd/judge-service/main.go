package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fuzoj/internal/common/cache"
	"fuzoj/internal/common/db"
	"fuzoj/internal/judge/gateway"
	"fuzoj/internal/judge/loop"
	"fuzoj/internal/judge/pipeline"
	"fuzoj/internal/judge/sandbox"
	sandboxconfig "fuzoj/internal/judge/sandbox/config"
	"fuzoj/internal/judge/sandbox/engine"
	"fuzoj/internal/judge/sandbox/observer"
	"fuzoj/internal/judge/sandbox/profile"
	"fuzoj/internal/judge/status"
	"fuzoj/internal/judge/workerpool"
	"fuzoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log, err := logger.NewLogger(appCfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}

	background := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		log.WithContext(background).Error("init database failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	taskProfiles := make([]profile.TaskProfile, 0, len(appCfg.Images))
	for _, img := range appCfg.Images {
		taskProfiles = append(taskProfiles, img.toTaskProfile())
	}
	localRepo := sandboxconfig.NewLocalRepository(taskProfiles)

	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig(), localRepo)
	if err != nil {
		log.WithContext(background).Error("init sandbox engine failed", zap.Error(err))
		os.Exit(1)
	}

	sandboxSvc := sandbox.NewService(eng, localRepo, appCfg.Judge.WorkRoot, observer.NoopMetricsRecorder{})

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		log.WithContext(background).Error("init redis cache failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		_ = redisCache.Close()
	}()
	statusReader := status.New(db.NewStaticProvider(mysqlDB), redisCache, 0, 0)

	gw := gateway.New(mysqlDB, log).WithStatusInvalidator(statusReader)
	pl := pipeline.New(gw, sandboxSvc, appCfg.Judge.ResourceRoot, log)
	pool := workerpool.New(appCfg.Judge.WorkerPoolCapacity)
	dispatchLoop := loop.New(gw, pl, pool, appCfg.Judge.ServiceLoopInterval, log)

	dispatchLoop.Start(background)
	log.WithContext(background).Info("judge service started",
		zap.Int("worker_pool_capacity", appCfg.Judge.WorkerPoolCapacity),
		zap.Duration("service_loop_interval", appCfg.Judge.ServiceLoopInterval),
	)

	shutdownCtx, stop := signal.NotifyContext(background, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()

	log.WithContext(background).Info("shutdown signal received, draining in-flight submissions")
	dispatchLoop.Stop(background)
	log.WithContext(background).Info("judge service stopped")
}
