package models

import "time"

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	// ObjectVersion is the current ComputeNode object version
	ObjectVersion string `json:"object_version"`
}

// ServiceResponse represents a compute service
type ServiceResponse struct {
	ID             int64  `json:"id"`
	Host           string `json:"host"`
	Binary         string `json:"binary"`
	Topic          string `json:"topic"`
	Disabled       bool   `json:"disabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	Up             *bool  `json:"up,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ServiceListResponse represents list services response
type ServiceListResponse struct {
	Services []ServiceResponse `json:"services"`
}

// FormatTime renders timestamps the way every response does
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
