// Package models pkg/models/metrics.go
package models

import "time"

// PollSample is one device poll latency observation.
type PollSample struct {
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
	Healthy   bool          `json:"healthy"`
}

type MetricsConfig struct {
	Enabled   bool `json:"metrics_enabled"`
	Retention int  `json:"metrics_retention"`
}
