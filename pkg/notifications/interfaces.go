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

// Package notifications hands escalation notifications to delivery collaborators.
package notifications

import "context"

//go:generate mockgen -destination=mock_notifications.go -package=notifications github.com/mfreeman451/lineradar/pkg/notifications Sender

// Sender delivers a request to one external system.
type Sender interface {
	// Name labels the sender in logs and metrics.
	Name() string

	// Send delivers the request. It must honour ctx cancellation.
	Send(ctx context.Context, req *Request) error
}
