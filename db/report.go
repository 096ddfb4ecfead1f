package db

import (
	"time"

	"github.com/google/uuid"
)

// ReportType names the rendering a Report intends to produce. Rendering
// itself (PDF/CSV formatting, email delivery) is out of scope — Report here
// is only the documented sink of a scan's terminal state (spec §3).
type ReportType string

const (
	ReportTypePDF  ReportType = "pdf"
	ReportTypeJSON ReportType = "json"
	ReportTypeCSV  ReportType = "csv"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusGenerated ReportStatus = "generated"
	ReportStatusFailed    ReportStatus = "failed"
)

// Report is a peripheral entity recording a user's intent to render a
// finished scan into a downloadable artifact.
type Report struct {
	BaseModel
	UUID             uuid.UUID    `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	ScanID           uint         `json:"scan_id" gorm:"index;not null"`
	Scan             Scan         `json:"-" gorm:"foreignKey:ScanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name             string       `json:"name" gorm:"size:255"`
	Type             ReportType   `json:"type" gorm:"size:10;not null"`
	Status           ReportStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	URL              string       `json:"url,omitempty" gorm:"size:1024"`
	LastDownloadedAt *time.Time   `json:"last_downloaded_at,omitempty"`
}

// CreateReport intakes a report request for a completed scan. Rendering is
// performed elsewhere; this only records the pending row.
func (d *DatabaseConnection) CreateReport(scanUUID uuid.UUID, name string, reportType ReportType) (*Report, error) {
	var scan Scan
	if err := d.db.Where("uuid = ?", scanUUID).First(&scan).Error; err != nil {
		return nil, err
	}
	if scan.Status != ScanStatusCompleted {
		return nil, &scanNotCompletedError{scanUUID: scanUUID}
	}

	report := &Report{
		UUID:   uuid.New(),
		ScanID: scan.ID,
		Name:   name,
		Type:   reportType,
		Status: ReportStatusPending,
	}
	if err := d.db.Create(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

type scanNotCompletedError struct {
	scanUUID uuid.UUID
}

func (e *scanNotCompletedError) Error() string {
	return "scan " + e.scanUUID.String() + " is not completed"
}
