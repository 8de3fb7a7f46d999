// Fresco Robot Simulator — симулятор робота для локальной разработки.
//
// Потребляет инструкции из instructions.outbound и публикует ack'и
// в robot.acks. Поддерживает инъекцию отказов (FAULT_RATE).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/robotsim"
	"github.com/shaiso/Fresco/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting fresco-robotsim")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	faultRate := 0.0
	if v := os.Getenv("FAULT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			faultRate = f
		}
	}

	stepDelay := time.Duration(0)
	if v := os.Getenv("STEP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			stepDelay = d
		}
	}

	robot := robotsim.New(robotsim.Config{
		Conn:      mqConn,
		Publisher: mq.NewPublisher(mqConn, logger),
		StepDelay: stepDelay,
		FaultRate: faultRate,
		Logger:    logger,
	})

	if err := robot.Start(ctx); err != nil {
		logger.Error("failed to start robot simulator", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8085"
	if v := os.Getenv("ROBOTSIM_PORT"); v != "" {
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

	robot.Stop()
	logger.Info("fresco-robotsim stopped")
}
