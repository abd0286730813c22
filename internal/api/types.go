package api

import "github.com/mattjoyce/themethumb/internal/thumbnail"

// HealthzResponse is the response for GET /healthz
type HealthzResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Thumbnails    thumbnail.Stats `json:"thumbnails"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
