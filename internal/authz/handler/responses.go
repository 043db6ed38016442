package handler

import (
	"opsgate/internal/authz"
)

// EvaluateResponse is the HTTP response for POST /v1/authz/evaluate.
type EvaluateResponse struct {
	Decision    string         `json:"decision"`
	Reasons     []string       `json:"reasons"`
	Obligations map[string]any `json:"obligations"`
	Metadata    map[string]any `json:"metadata"`
	RequestID   string         `json:"requestId,omitempty"`
}

// FromDecision converts a domain Decision to an HTTP response.
func FromDecision(d authz.Decision, requestID string) *EvaluateResponse {
	return &EvaluateResponse{
		Decision:    string(d.Effect),
		Reasons:     d.Reasons,
		Obligations: d.Obligations,
		Metadata:    d.Metadata,
		RequestID:   requestID,
	}
}
