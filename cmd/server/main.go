package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github/martinmaurice/llmgate/internal/bootstrap"
	"github/martinmaurice/llmgate/internal/server"
	"github/martinmaurice/llmgate/pkg/config"
	"github/martinmaurice/llmgate/pkg/env"
)

var (
	envFilePath        string
	disableRateLimiter bool
	migrate            bool
)

func init() {
	flag.StringVar(&envFilePath, "env", "", "Enter the env file path you want to load if any")
	flag.BoolVar(&disableRateLimiter, "disableRateLimiter", false, "Disable the rate limiters")
	flag.BoolVar(&migrate, "migrate", false, "Apply the ledger migrations before serving (postgres backend only)")
}

func main() {
	flag.Parse()

	if envFilePath != "" {
		slog.Info(fmt.Sprintf("loading env file %s", envFilePath))
		if err := godotenv.Load(envFilePath); err != nil {
			panic(fmt.Errorf("could not be able to load the env file: %v", err))
		}
	}

	envObj := env.GetEnv()
	slog.SetDefault(bootstrap.NewLogger(os.Stdout, envObj))
	slog.Info("llm gateway", "version", envObj.Version, "env", envObj.Env)

	cfg := config.GetConfig()

	app, err := bootstrap.New(context.Background(), envObj, cfg, bootstrap.Options{
		DisableRateLimiter: disableRateLimiter,
		Migrate:            migrate,
	})
	if err != nil {
		log.Fatalf("Could not start the gateway: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("could not release resources", "error", err)
		}
	}()

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	srv := server.NewServer(app.Gateway, app.Ledger, app.Limiter,
		server.WithAddress(envObj.ServerPort, envObj.ServerReadTimeoutInSecond, envObj.ServerWriteTimeoutInSecond, envObj.ServerMaxHeaderBytes),
		server.WithDisableRateLimiter(disableRateLimiter),
		server.WithMetrics(app.Metrics, metricsPath),
		server.WithAuthTokenSecret(envObj.AuthTokenSecret),
		server.WithUpstreamTimeout(envObj.UpstreamTimeout),
		server.WithTrustedProxies(envObj.TrustedProxies),
	)
	srv.Run()
}
