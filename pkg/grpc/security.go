// Package grpc pkg/grpc/security.go provides secure gRPC communication options
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	SecurityModeNone   = models.SecurityModeNone
	SecurityModeSpiffe = models.SecurityModeSpiffe
	SecurityModeMTLS   = models.SecurityModeMTLS

	defaultWorkloadSocket = "unix:/run/spire/sockets/agent.sock"
)

// NoSecurityProvider implements SecurityProvider with no security (development only).
type NoSecurityProvider struct{}

func (*NoSecurityProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) Close() error {
	return nil
}

// MTLSProvider implements SecurityProvider with mutual TLS.
type MTLSProvider struct {
	config      *models.SecurityConfig
	clientCreds credentials.TransportCredentials
	serverCreds credentials.TransportCredentials
	needsClient bool
	needsServer bool
}

func NewMTLSProvider(config *models.SecurityConfig, logger *zap.Logger) (*MTLSProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	provider := &MTLSProvider{
		config: config,
	}

	switch config.Role {
	case models.RoleGateway:
		// serves health, dials its own health endpoint for probes
		provider.needsClient = true
		provider.needsServer = true
	case models.RoleSimulator:
		provider.needsServer = true
	default:
		return nil, fmt.Errorf("%w: %s", errInvalidServiceRole, config.Role)
	}

	logger.Info("initializing mTLS provider",
		zap.String("role", string(config.Role)),
		zap.Bool("needs_client", provider.needsClient),
		zap.Bool("needs_server", provider.needsServer),
		zap.String("cert_dir", config.CertDir))

	if err := NewCertificateManager(config).ValidateCertificates(provider.needsClient, provider.needsServer); err != nil {
		return nil, err
	}

	var err error
	if provider.needsClient {
		provider.clientCreds, err = loadClientCredentials(config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCreds, err)
		}
	}

	if provider.needsServer {
		provider.serverCreds, err = loadServerCredentials(config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCreds, err)
		}
	}

	return provider, nil
}

func (*MTLSProvider) Close() error {
	return nil
}

func loadCAPool(config *models.SecurityConfig) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(filepath.Join(config.CertDir, rootCertFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToReadCACert, err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errFailedToAppendCACert
	}

	return caPool, nil
}

func loadClientCredentials(config *models.SecurityConfig) (credentials.TransportCredentials, error) {
	certificate, err := tls.LoadX509KeyPair(
		filepath.Join(config.CertDir, clientCertFile),
		filepath.Join(config.CertDir, clientKeyFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCert, err)
	}

	caPool, err := loadCAPool(config)
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{certificate},
		RootCAs:      caPool,
		ServerName:   config.ServerName,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

func loadServerCredentials(config *models.SecurityConfig) (credentials.TransportCredentials, error) {
	certificate, err := tls.LoadX509KeyPair(
		filepath.Join(config.CertDir, serverCertFile),
		filepath.Join(config.CertDir, serverKeyFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCert, err)
	}

	caPool, err := loadCAPool(config)
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{certificate},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

func (p *MTLSProvider) GetClientCredentials(_ context.Context) (grpc.DialOption, error) {
	if !p.needsClient {
		return nil, errServiceNotClient
	}

	return grpc.WithTransportCredentials(p.clientCreds), nil
}

func (p *MTLSProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	if !p.needsServer {
		return nil, errServiceNotServer
	}

	return grpc.Creds(p.serverCreds), nil
}

// SpiffeProvider implements SecurityProvider using SPIFFE workload API.
type SpiffeProvider struct {
	config    *models.SecurityConfig
	client    *workloadapi.Client
	source    *workloadapi.X509Source
	logger    *zap.Logger
	closeOnce sync.Once
}

func NewSpiffeProvider(ctx context.Context, config *models.SecurityConfig, logger *zap.Logger) (*SpiffeProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// validate before dialing the workload API
	if config.TrustDomain != "" {
		if _, err := spiffeid.TrustDomainFromString(config.TrustDomain); err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
		}
	}

	socket := config.WorkloadSocket
	if socket == "" {
		socket = defaultWorkloadSocket
	}

	client, err := workloadapi.New(ctx, workloadapi.WithAddr(socket))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedWorkloadAPIClient, err)
	}

	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClient(client))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToCreateX509Source, err)
	}

	logger.Info("SPIFFE X.509 source ready", zap.String("socket", socket), zap.String("trust_domain", config.TrustDomain))

	return &SpiffeProvider{
		config: config,
		client: client,
		source: source,
		logger: logger,
	}, nil
}

func (p *SpiffeProvider) GetClientCredentials(_ context.Context) (grpc.DialOption, error) {
	serverID, err := spiffeid.FromString(p.config.ServerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidServerSPIFFEID, err)
	}

	tlsConfig := tlsconfig.MTLSClientConfig(p.source, p.source, tlsconfig.AuthorizeID(serverID))

	return grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) GetServerCredentials(_ context.Context) (grpc.ServerOption, error) {
	authorizer := tlsconfig.AuthorizeAny()

	if p.config.TrustDomain != "" {
		trustDomain, err := spiffeid.TrustDomainFromString(p.config.TrustDomain)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
		}

		authorizer = tlsconfig.AuthorizeMemberOf(trustDomain)
	}

	tlsConfig := tlsconfig.MTLSServerConfig(p.source, p.source, authorizer)

	return grpc.Creds(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) Close() error {
	var err error

	p.closeOnce.Do(func() {
		if p.source != nil {
			if err = p.source.Close(); err != nil {
				p.logger.Warn("failed to close X.509 source", zap.Error(err))
				return
			}
		}

		if p.client != nil {
			err = p.client.Close()
		}
	})

	return err
}

// NewSecurityProvider creates the appropriate security provider based on mode.
func NewSecurityProvider(ctx context.Context, config *models.SecurityConfig, logger *zap.Logger) (SecurityProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if config == nil {
		logger.Info("no security config provided, using no security")
		return &NoSecurityProvider{}, nil
	}

	logger.Info("creating security provider", zap.String("mode", string(config.Mode)))

	switch config.Mode {
	case SecurityModeNone, "":
		return &NoSecurityProvider{}, nil
	case SecurityModeMTLS:
		p, err := NewMTLSProvider(config, logger)
		if err != nil {
			return nil, err
		}

		return p, nil
	case SecurityModeSpiffe:
		p, err := NewSpiffeProvider(ctx, config, logger)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSecurityMode, config.Mode)
	}
}
