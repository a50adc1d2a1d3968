package grpc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfreeman451/lineradar/pkg/models"
)

const (
	rootCertFile   = "root.pem"
	serverCertFile = "server.pem"
	serverKeyFile  = "server-key.pem"
	clientCertFile = "client.pem"
	clientKeyFile  = "client-key.pem"
)

// CertificateManager checks the certificate directory before the TLS
// stack gets to report a less readable error.
type CertificateManager struct {
	config *models.SecurityConfig
}

func NewCertificateManager(config *models.SecurityConfig) *CertificateManager {
	return &CertificateManager{config: config}
}

// ValidateCertificates reports every missing file at once.
func (cm *CertificateManager) ValidateCertificates(needsClient, needsServer bool) error {
	required := []string{rootCertFile}

	if needsServer {
		required = append(required, serverCertFile, serverKeyFile)
	}

	if needsClient {
		required = append(required, clientCertFile, clientKeyFile)
	}

	var missing []string

	for _, file := range required {
		path := filepath.Join(cm.config.CertDir, file)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, file)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w in %s: %s", errMissingCerts, cm.config.CertDir, strings.Join(missing, ", "))
	}

	return nil
}
