// Fresco Sweeper — фоновые регламентные задачи.
//
// Sweeper:
//   - Закрывает jobs без прогресса от робота (ExecutionTimeout)
//   - Архивирует давно завершённые jobs
//   - Подрезает историю версий карт препятствий
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/sweeper"
	"github.com/shaiso/Fresco/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting fresco-sweeper")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	swp := sweeper.New(sweeper.Config{
		Jobs:             repo.NewJobRepo(pool),
		Maps:             repo.NewObstacleRepo(pool),
		ExecutionTimeout: durationFromEnv("EXECUTION_TIMEOUT"),
		Retention:        durationFromEnv("JOB_RETENTION"),
		StallSchedule:    os.Getenv("STALL_SCHEDULE"),
		CleanupSchedule:  os.Getenv("CLEANUP_SCHEDULE"),
		Logger:           logger,
	})

	if err := swp.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8084"
	if v := os.Getenv("SWEEPER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	swp.Stop()
	logger.Info("fresco-sweeper stopped")
}

// durationFromEnv читает duration из переменной окружения.
// Возвращает 0 при отсутствии или ошибке парсинга (возьмётся default).
func durationFromEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
