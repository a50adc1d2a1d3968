/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package grpc - gRPC client used for health probes
package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

const (
	defaultMaxRetries    = 3
	retryBaseDelay       = 100 * time.Millisecond
	grpcKeepAliveTime    = 10 * time.Second
	grpcKeepAliveTimeout = 5 * time.Second
)

type ConnectionConfig struct {
	Address  string                 `json:"address"`
	Security *models.SecurityConfig `json:"security,omitempty"`
}

// ClientOption allows customization of the client.
type ClientOption func(*ClientConn)

// ClientConn wraps a gRPC client connection with a health client.
type ClientConn struct {
	conn             *grpc.ClientConn
	healthClient     grpc_health_v1.HealthClient
	addr             string
	maxRetries       int
	securityProvider SecurityProvider
	logger           *zap.Logger
}

// NewClient creates a new gRPC client connection.
func NewClient(ctx context.Context, connConfig *ConnectionConfig, opts ...ClientOption) (*ClientConn, error) {
	if connConfig == nil {
		return nil, errConnectionConfigRequired
	}

	c := &ClientConn{
		addr:       connConfig.Address,
		maxRetries: defaultMaxRetries,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.securityProvider == nil {
		provider, err := NewSecurityProvider(ctx, connConfig.Security, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create security provider: %w", err)
		}

		c.securityProvider = provider
	}

	creds, err := c.securityProvider.GetClientCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client credentials: %w", err)
	}

	conn, err := grpc.NewClient(connConfig.Address,
		creds,
		grpc.WithChainUnaryInterceptor(c.retryInterceptor),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                grpcKeepAliveTime,
			Timeout:             grpcKeepAliveTimeout,
			PermitWithoutStream: true,
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", connConfig.Address, err)
	}

	c.conn = conn
	c.healthClient = grpc_health_v1.NewHealthClient(conn)

	return c, nil
}

// retryInterceptor retries failed calls with a linear backoff.
func (c *ClientConn) retryInterceptor(ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		lastErr = invoker(ctx, method, req, reply, cc, opts...)
		if lastErr == nil {
			return nil
		}

		c.logger.Debug("gRPC call attempt failed",
			zap.String("method", method), zap.Int("attempt", attempt+1), zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBaseDelay):
		}
	}

	return fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(retries int) ClientOption {
	return func(c *ClientConn) {
		if retries > 0 {
			c.maxRetries = retries
		}
	}
}

// WithSecurityProvider sets the security provider for the client.
func WithSecurityProvider(provider SecurityProvider) ClientOption {
	return func(c *ClientConn) {
		c.securityProvider = provider
	}
}

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *ClientConn) {
		c.logger = l
	}
}

// Close closes the client connection.
func (c *ClientConn) Close() error {
	if err := c.securityProvider.Close(); err != nil {
		c.logger.Warn("failed to close security provider", zap.Error(err))
	}

	return c.conn.Close()
}

// CheckHealth reports whether service is SERVING on the remote end.
func (c *ClientConn) CheckHealth(ctx context.Context, service string) (bool, error) {
	resp, err := c.healthClient.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}

	return resp.Status == grpc_health_v1.HealthCheckResponse_SERVING, nil
}
