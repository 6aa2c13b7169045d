package dto

import "github.com/noah-isme/cbta-eval-api/internal/models"

// GenerateReportRequest captures POST /reports/generate payload.
type GenerateReportRequest struct {
	SessionID     string              `json:"session_id" validate:"required"`
	Format        models.ReportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	SafetyRatings map[string]int      `json:"safety_ratings"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
