package grpc

import "errors"

// security configuration
var (
	errUnknownSecurityMode      = errors.New("unknown security mode")
	errSecurityConfigRequired   = errors.New("security config required for mTLS")
	errInvalidServiceRole       = errors.New("invalid service role")
	errServiceNotClient         = errors.New("role has no client credentials")
	errServiceNotServer         = errors.New("role has no server credentials")
	errMissingCerts             = errors.New("missing certificates")
	errConnectionConfigRequired = errors.New("connection config required")
)

// credential loading
var (
	errFailedToLoadClientCreds = errors.New("failed to load client credentials")
	errFailedToLoadServerCreds = errors.New("failed to load server credentials")
	errFailedToLoadClientCert  = errors.New("failed to load client certificate")
	errFailedToLoadServerCert  = errors.New("failed to load server certificate")
	errFailedToReadCACert      = errors.New("failed to read root certificate")
	errFailedToAppendCACert    = errors.New("root certificate contains no PEM blocks")
)

// SPIFFE
var (
	errFailedWorkloadAPIClient  = errors.New("failed to create workload API client")
	errFailedToCreateX509Source = errors.New("failed to create X509 source")
	errInvalidServerSPIFFEID    = errors.New("invalid server SPIFFE ID")
	errInvalidTrustDomain       = errors.New("invalid trust domain")
)

var errHealthServerRegistered = errors.New("health server already registered")
