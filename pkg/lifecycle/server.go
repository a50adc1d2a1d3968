// Package lifecycle runs a service next to its gRPC health endpoint and
// handles signals and bounded shutdown.
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/lineradar/pkg/grpc"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const (
	MaxRecvSize            = 4 * 1024 * 1024 // 4MB
	MaxSendSize            = 4 * 1024 * 1024 // 4MB
	DefaultShutdownTimeout = 10 * time.Second
)

// Service defines the interface that all services must implement.
// Start must return once the service is running; Stop receives the
// shutdown deadline.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for creating a server.
type ServerOptions struct {
	ListenAddr      string
	ServiceName     string
	Service         Service
	Security        *models.SecurityConfig
	ShutdownTimeout time.Duration
	Logger          *zap.Logger

	// Signals overrides the OS signal channel, for tests.
	Signals <-chan os.Signal
}

// RunServer starts the gRPC health server and the service, then blocks
// until a signal, a fatal error or ctx cancellation, and shuts down.
// Only a failure to start the listener or the service is fatal.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting service", zap.String("service", opts.ServiceName))

	lis, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.ListenAddr, err)
	}

	grpcServer, provider, err := setupGRPCServer(ctx, opts, logger)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	defer func() { _ = provider.Close() }()

	errChan := make(chan error, 2)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	if err := opts.Service.Start(ctx); err != nil {
		grpcServer.Stop(context.Background())
		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	grpcServer.SetServing(opts.ServiceName)

	return handleShutdown(ctx, opts, grpcServer, errChan, timeout, logger)
}

func setupGRPCServer(
	ctx context.Context, opts *ServerOptions, logger *zap.Logger) (*grpc.Server, grpc.SecurityProvider, error) {
	serverOpts := []grpc.ServerOption{
		grpc.WithMaxRecvSize(MaxRecvSize),
		grpc.WithMaxSendSize(MaxSendSize),
		grpc.WithLogger(logger.With(zap.String("component", "grpc"))),
	}

	provider, err := grpc.NewSecurityProvider(ctx, opts.Security, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create security provider: %w", err)
	}

	creds, err := provider.GetServerCredentials(ctx)
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("failed to get server credentials: %w", err)
	}

	serverOpts = append(serverOpts, grpc.WithServerOptions(creds))

	return grpc.NewServer(opts.ListenAddr, serverOpts...), provider, nil
}

func handleShutdown(
	ctx context.Context,
	opts *ServerOptions,
	grpcServer *grpc.Server,
	errChan <-chan error,
	timeout time.Duration,
	logger *zap.Logger) error {
	sigChan := opts.Signals
	if sigChan == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

		defer signal.Stop(ch)

		sigChan = ch
	}

	var runErr error

	select {
	case sig := <-sigChan:
		logger.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("fatal error, initiating shutdown", zap.Error(err))
		runErr = err
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	grpcServer.Stop(shutdownCtx)

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		logger.Error("error during service shutdown", zap.Error(err))

		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("service stopped", zap.String("service", opts.ServiceName))

	return runErr
}
