// Package models pkg/models/types.go holds the enumerations shared by the pipeline.
package models

import "fmt"

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}

	return false
}

// ParsePriority accepts the lowercase priority names.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}

	return p, nil
}

type AndonStatus string

const (
	AndonOpen         AndonStatus = "open"
	AndonAcknowledged AndonStatus = "acknowledged"
	AndonEscalated    AndonStatus = "escalated"
	AndonResolved     AndonStatus = "resolved"
	AndonCancelled    AndonStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s AndonStatus) Terminal() bool {
	return s == AndonResolved || s == AndonCancelled
}

type AndonType string

const (
	AndonFault    AndonType = "fault"
	AndonQuality  AndonType = "quality"
	AndonDowntime AndonType = "downtime"
	AndonManual   AndonType = "manual"
)

func (t AndonType) Valid() bool {
	switch t {
	case AndonFault, AndonQuality, AndonDowntime, AndonManual:
		return true
	}

	return false
}

type ChangeoverStatus string

const (
	ChangeoverNone       ChangeoverStatus = "none"
	ChangeoverInProgress ChangeoverStatus = "in_progress"
	ChangeoverCompleted  ChangeoverStatus = "completed"
	ChangeoverFailed     ChangeoverStatus = "failed"
)

func (c ChangeoverStatus) Valid() bool {
	switch c {
	case ChangeoverNone, ChangeoverInProgress, ChangeoverCompleted, ChangeoverFailed:
		return true
	}

	return false
}

type DowntimeCategory string

const (
	DowntimePlanned   DowntimeCategory = "planned"
	DowntimeUnplanned DowntimeCategory = "unplanned"
)

// RunState is the derived running state of a piece of equipment.
type RunState string

const (
	StateUnknown RunState = "unknown"
	StateRunning RunState = "running"
	StateStopped RunState = "stopped"
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelMail  Channel = "mail"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMail, ChannelSMS, ChannelVoice, ChannelPush:
		return true
	}

	return false
}
