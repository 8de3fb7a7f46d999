// Fresco Orchestrator — ядро системы планирования.
//
// Orchestrator:
//   - Принимает запросы на планирование из RabbitMQ
//   - Строит маршруты по карте препятствий (A* / покрытие области)
//   - Отправляет инструкции роботу с publisher confirms
//   - Отслеживает подтверждения выполнения и финализирует jobs
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fresco/internal/cache"
	"github.com/shaiso/Fresco/internal/dispatch"
	"github.com/shaiso/Fresco/internal/jobmgr"
	"github.com/shaiso/Fresco/internal/joblock"
	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/telemetry"
	"github.com/shaiso/Fresco/internal/tracker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting fresco-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	wallRepo := repo.NewWallRepo(pool)
	obstacleRepo := repo.NewObstacleRepo(pool)
	planRepo := repo.NewPlanRepo(pool)
	jobRepo := repo.NewJobRepo(pool)

	// Redis: кэш карт препятствий
	rdb, err := cache.NewRedisClient()
	if err != nil {
		logger.Error("failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	obstacleCache := cache.New(rdb, obstacleRepo, cache.TTLFromEnv(), logger)

	// RabbitMQ
	var mqConn *mq.Connection
	var publisher *mq.Publisher

	mqConn, err = mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Общий реестр per-job блокировок: manager, dispatcher и tracker
	// сериализуют доступ к одному job через него.
	locks := joblock.New()

	// Без брокера отправлять инструкции некуда: jobs будут доведены до
	// PLANNED и подхвачены после восстановления соединения.
	var jobDispatcher jobmgr.Dispatcher
	if publisher != nil {
		jobDispatcher = dispatch.New(dispatch.Config{
			Jobs:      jobRepo,
			Plans:     planRepo,
			Publisher: publisher,
			Locks:     locks,
			Logger:    logger,
		})
	}

	manager := jobmgr.New(jobmgr.Config{
		Jobs:       jobRepo,
		Plans:      planRepo,
		Walls:      wallRepo,
		Maps:       obstacleCache,
		Dispatcher: jobDispatcher,
		Locks:      locks,
		Conn:       mqConn,
		Logger:     logger,
	})

	trk := tracker.New(tracker.Config{
		Jobs:   jobRepo,
		Locks:  locks,
		Conn:   mqConn,
		Logger: logger,
	})

	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start job manager", "error", err)
		os.Exit(1)
	}

	if err := trk.Start(ctx); err != nil {
		logger.Error("failed to start execution tracker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	trk.Stop()
	manager.Stop()
	logger.Info("fresco-orchestrator stopped")
}
