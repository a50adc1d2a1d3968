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

package notifications

import (
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// Request asks the delivery collaborators to notify recipients over one channel.
type Request struct {
	// EscalationID identifies one escalation step: the andon id and its level.
	EscalationID string             `json:"escalation_id"`
	AndonID      string             `json:"andon_id"`
	Equipment    string             `json:"equipment_code"`
	Line         string             `json:"line_id"`
	Level        int                `json:"level"`
	Priority     models.Priority    `json:"priority"`
	Status       models.AndonStatus `json:"status"`
	Recipients   []string           `json:"recipients"`
	Channel      models.Channel     `json:"channel"`
	Message      string             `json:"message"`
	At           time.Time          `json:"at"`
}

// Key is the cooldown and partition key of a request.
func (r *Request) Key() string {
	return r.EscalationID + ":" + string(r.Channel)
}
