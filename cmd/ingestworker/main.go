// Command ingestworker runs one HTTP polling Task built from environment
// variables or a YAML task file, per spec.md §6. Startup, configuration
// reporting and the signal-driven graceful shutdown are grounded on
// examples/agent-with-resilience/main.go's pattern of a cancelable root
// context, a buffered os.Signal channel, and a bounded shutdown window.
//
// Environment Variables:
//
//	INGESTWORKER_CONFIG_FILE  - path to a YAML task file (see internal/config.LoadTaskFile)
//	REDIS_URL                 - when set, offsets persist to Redis instead of memory
//	REDIS_NAMESPACE           - key prefix for the Redis offset store (default "httpsource")
//	LOG_FORMAT                - "json" selects the zap logger; anything else uses the plain logger
//	LOG_LEVEL                 - DEBUG/INFO/WARN/ERROR (default INFO)
//	OTEL_EXPORTER_OTLP_ENDPOINT - when set, spans export to this OTLP/gRPC collector
//	OTEL_TRACES_CONSOLE         - "true" pretty-prints spans to stdout (no collector needed)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/engine"
	"github.com/leon4s4/httpsource/internal/logger"
	"github.com/leon4s4/httpsource/internal/metrics"
	"github.com/leon4s4/httpsource/internal/sink"
	"github.com/leon4s4/httpsource/internal/telemetry"
)

func main() {
	runID := uuid.New().String()[:8]

	lg := buildLogger()
	lg = lg.WithField("run_id", runID)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), "httpsource")
	if err != nil {
		lg.Warn("tracing disabled: failed to initialize", map[string]interface{}{"error": err.Error()})
		shutdownTracing = nil
	}

	collector, err := metrics.New()
	if err != nil {
		lg.Warn("metrics disabled: failed to build collector", map[string]interface{}{"error": err.Error()})
		collector = nil
	}

	offsets := buildOffsetStore(lg)

	task, err := engine.New(cfg, engine.Options{
		Sink:    sink.NewLoggingSink(lg),
		Offsets: offsets,
		Clock:   sink.SystemClock{},
		Logger:  lg,
		Metrics: collector,
	})
	if err != nil {
		lg.Error("failed to build task", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	lg.Info("starting ingest worker", map[string]interface{}{
		"endpoints": len(cfg.Endpoints),
		"base_url":  cfg.BaseURL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	task.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	lg.Info("shutting down", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), engine.DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := task.Stop(shutdownCtx); err != nil {
		lg.Warn("shutdown did not complete cleanly", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			lg.Warn("tracing shutdown did not complete cleanly", map[string]interface{}{"error": err.Error()})
		}
	}
	lg.Info("shutdown complete", nil)
}

func buildLogger() logger.Logger {
	if os.Getenv("LOG_FORMAT") == "json" {
		zl, err := logger.NewZapLogger()
		if err == nil {
			zl.SetLevel(logger.GetLogLevel())
			return zl
		}
		log.Printf("failed to build zap logger, falling back to plain logger: %v", err)
	}
	return logger.NewDefaultLogger()
}

func loadConfig() (*config.TaskConfig, error) {
	if path := os.Getenv("INGESTWORKER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return config.LoadTaskFile(data)
	}
	return config.NewConfig(envToMap())
}

// envToMap collects every environment variable into the flat key/value map
// internal/config.LoadFromMap expects, translating the process environment
// directly into spec.md §6's configuration surface rather than requiring a
// file for simple single-task deployments.
func envToMap() map[string]string {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				values[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return values
}

func buildOffsetStore(lg logger.Logger) sink.OffsetStore {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return sink.NewMemoryOffsetStore()
	}
	namespace := os.Getenv("REDIS_NAMESPACE")
	store, err := sink.NewRedisOffsetStore(redisURL, namespace, lg)
	if err != nil {
		lg.Warn("failed to connect to redis, falling back to in-memory offsets", map[string]interface{}{
			"error": err.Error(),
		})
		return sink.NewMemoryOffsetStore()
	}
	return store
}
