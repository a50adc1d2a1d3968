/*
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

// Package poller pkg/poller/interfaces.go
package poller

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
)

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/mfreeman451/lineradar/pkg/poller TagReader,Listener

// TagReader reads tag values from one controller.
type TagReader interface {
	// Connect establishes the session. It is called again after any read failure.
	Connect(ctx context.Context) error
	// Read returns the values of the given addresses. Addresses the controller
	// does not know are left out of the result.
	Read(ctx context.Context, addresses []string) (map[string]interface{}, error)
	// Close releases the session.
	Close() error
}

// Listener receives poll outcomes.
type Listener interface {
	// OnCycle is called after every successful poll, and after every failed
	// poll once the device is degraded (with a stale snapshot).
	OnCycle(deviceID string, snap tagcache.Snapshot)
	// OnHealth is called when a device becomes degraded or recovers.
	OnHealth(health models.DeviceHealth)
}
