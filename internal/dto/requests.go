package dto

import "github.com/prperemyshlev/wearable-sync/internal/domain"

// SyncRequest represents a sync request
type SyncRequest struct {
	Email     string `json:"email" binding:"required"`
	Code      string `json:"code"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// SyncResponse represents a successful sync
type SyncResponse struct {
	Success  bool                    `json:"success"`
	SyncID   string                  `json:"syncId"`
	Summary  map[string]int          `json:"summary"`
	Analysis *domain.AnalysisSummary `json:"analysis,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Error  string            `json:"error,omitempty"`
}
