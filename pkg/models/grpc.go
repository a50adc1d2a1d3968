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

package models

import "fmt"

// ServiceRole selects which credentials a process loads.
type ServiceRole string

const (
	RoleGateway   ServiceRole = "gateway"   // serves health, dials peers
	RoleSimulator ServiceRole = "simulator" // serves only
)

type SecurityMode string

const (
	SecurityModeNone   SecurityMode = "none"
	SecurityModeMTLS   SecurityMode = "mtls"
	SecurityModeSpiffe SecurityMode = "spiffe"
)

// SecurityConfig secures the gRPC health listener and the healthcheck client.
type SecurityConfig struct {
	Mode           SecurityMode `json:"mode"`
	CertDir        string       `json:"cert_dir"`
	ServerName     string       `json:"server_name,omitempty"`
	Role           ServiceRole  `json:"role"`
	TrustDomain    string       `json:"trust_domain,omitempty"`
	WorkloadSocket string       `json:"workload_socket,omitempty"`
}

// Validate checks the fields the selected mode needs.
func (c *SecurityConfig) Validate() error {
	switch c.Mode {
	case "", SecurityModeNone:
		return nil
	case SecurityModeMTLS:
		if c.CertDir == "" {
			return fmt.Errorf("%w: mtls needs cert_dir", ErrInvalidSecurity)
		}
	case SecurityModeSpiffe:
		if c.TrustDomain == "" {
			return fmt.Errorf("%w: spiffe needs trust_domain", ErrInvalidSecurity)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSecurity, c.Mode)
	}

	switch c.Role {
	case RoleGateway, RoleSimulator:
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSecurity, c.Role)
	}
}
