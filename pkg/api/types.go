package api

import "github.com/mfreeman451/lineradar/pkg/models"

// AcknowledgeRequest is the body of POST /api/andon/{id}/acknowledge.
// A positive Level must match the event's current escalation level.
type AcknowledgeRequest struct {
	By    string `json:"by"`
	Level int    `json:"level,omitempty"`
}

// CloseRequest is the body of resolve and cancel.
type CloseRequest struct {
	By   string `json:"by"`
	Note string `json:"note,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type andonResponse struct {
	Created bool              `json:"created"`
	Event   models.AndonEvent `json:"event"`
}
