// cmd/lineradar/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/gateway"
	"github.com/mfreeman451/lineradar/pkg/grpc"
	"github.com/mfreeman451/lineradar/pkg/lifecycle"
	"github.com/mfreeman451/lineradar/pkg/logger"
	"go.uber.org/zap"
)

const healthcheckTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "/etc/lineradar/lineradar.json", "Path to config file")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	healthcheck := flag.Bool("healthcheck", false, "Query the gRPC health endpoint of a running gateway and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	var cfg config.Config
	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *healthcheck {
		os.Exit(checkHealth(&cfg))
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	defer func() { _ = l.Sync() }()

	if err := run(&cfg, l); err != nil {
		l.Error("gateway exited", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx := context.Background()

	gw, err := gateway.New(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:      cfg.GRPCAddr,
		ServiceName:     cfg.ServiceName,
		Service:         gw,
		Security:        cfg.Security,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeout),
		Logger:          logger.Component(l, "lifecycle"),
	})
}

// checkHealth returns the process exit code for -healthcheck.
func checkHealth(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), healthcheckTimeout)
	defer cancel()

	addr := cfg.GRPCAddr
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("localhost", port)
	}

	client, err := grpc.NewClient(ctx, &grpc.ConnectionConfig{Address: addr, Security: cfg.Security},
		grpc.WithMaxRetries(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", addr, err)
		return 1
	}

	defer func() { _ = client.Close() }()

	ok, err := client.CheckHealth(ctx, cfg.ServiceName)
	if err != nil || !ok {
		fmt.Fprintf(os.Stderr, "%s not serving: %v\n", cfg.ServiceName, err)
		return 1
	}

	fmt.Println("SERVING")

	return 0
}
