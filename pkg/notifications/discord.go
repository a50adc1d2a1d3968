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

	"github.com/mfreeman451/lineradar/pkg/config"
	"go.uber.org/zap"
)

const (
	PresetDiscord = "discord"

	DiscordColorRed    = 15158332 // critical, high
	DiscordColorYellow = 16776960 // medium
	DiscordColorBlue   = 3447003  // low
)

const DiscordTemplate = `{
  "embeds": [{
    "title": {{json (printf "%s andon on %s (level %d)" .request.Priority .request.Equipment .request.Level)}},
    "description": {{json .request.Message}},
    "color": {{if or (eq .request.Priority "critical") (eq .request.Priority "high")}}15158332{{else if eq .request.Priority "medium"}}16776960{{else}}3447003{{end}},
    "timestamp": {{json .request.At}},
    "fields": [
      {"name": "Line", "value": {{json .request.Line}}, "inline": true},
      {"name": "Status", "value": {{json .request.Status}}, "inline": true},
      {"name": "Channel", "value": {{json .request.Channel}}, "inline": true},
      {"name": "Recipients", "value": {{json (join .request.Recipients ", ")}}, "inline": false}
    ]
  }]
}`

// NewDiscordWebhook posts escalation steps as Discord embeds.
func NewDiscordWebhook(webhookURL string, cooldown time.Duration, logger *zap.Logger) (*WebhookSender, error) {
	return NewWebhookSender(config.WebhookConfig{
		Enabled:  true,
		URL:      webhookURL,
		Preset:   PresetDiscord,
		Cooldown: config.Duration(cooldown),
	}, logger)
}
