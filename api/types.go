package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewErrorResponse(err string, details ...string) ErrorResponse {
	resp := ErrorResponse{Error: err}
	if len(details) > 0 {
		resp.Message = details[0]
	}
	return resp
}

type ActionResponse struct {
	Message string `json:"message"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// StartScanInput is the body of POST /api/v1/scans/start (§6.1).
type StartScanInput struct {
	Targets     []string               `json:"targets" validate:"required,min=1,dive,required"`
	Type        string                 `json:"type" validate:"required"`
	ScanOptions map[string]interface{} `json:"scan_options,omitempty"`
}

type StartScanResponse struct {
	ScanUUID uuid.UUID `json:"scan_uuid"`
}

// ScanResponse is the GET /api/v1/scans/:uuid payload, augmented with a
// live progress reading from the KVB when the scan is still non-terminal.
type ScanResponse struct {
	UUID       uuid.UUID  `json:"uuid"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Progress   *string    `json:"progress,omitempty"`
	Output     string     `json:"output"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func scanToResponse(scan *db.Scan, progress *string) ScanResponse {
	return ScanResponse{
		UUID:       scan.UUID,
		Name:       scan.Name,
		Type:       string(scan.Type),
		Status:     string(scan.Status),
		Progress:   progress,
		Output:     scan.Output,
		StartedAt:  scan.StartedAt,
		FinishedAt: scan.FinishedAt,
		CreatedAt:  scan.CreatedAt,
	}
}

type ScanStatusResponse struct {
	Status string `json:"status"`
}

type FindingResponse struct {
	UUID           uuid.UUID `json:"uuid"`
	TargetID       uint      `json:"target_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	Port           *int      `json:"port,omitempty"`
	PortState      *string   `json:"port_state,omitempty"`
	Protocol       string    `json:"protocol,omitempty"`
	Service        string    `json:"service,omitempty"`
	OS             string    `json:"os,omitempty"`
	Traceroute     string    `json:"traceroute,omitempty"`
	Severity       string    `json:"severity"`
	CreatedAt      time.Time `json:"created_at"`
}

func findingToResponse(f db.Finding) FindingResponse {
	resp := FindingResponse{
		UUID:           f.UUID,
		TargetID:       f.TargetID,
		Name:           f.Name,
		Description:    f.Description,
		Recommendation: f.Recommendation,
		Port:           f.Port,
		Protocol:       f.Protocol,
		Service:        f.Service,
		OS:             f.OS,
		Traceroute:     f.Traceroute,
		Severity:       string(f.Severity),
		CreatedAt:      f.CreatedAt,
	}
	if f.PortState != nil {
		s := string(*f.PortState)
		resp.PortState = &s
	}
	return resp
}

// WebhookRequest is the external scanner's callback body (§6.1, §6.4).
type WebhookRequest struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

// BulkDeleteRequest is the supplemented bulk-delete endpoint's body.
type BulkDeleteRequest struct {
	ScanUUIDs []uuid.UUID `json:"scan_uuids" validate:"required,min=1"`
}

type ReportRequest struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required"`
}
