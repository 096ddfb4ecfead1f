package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/lib"
)

// PortState mirrors the external scanner's port-state vocabulary.
type PortState string

const (
	PortStateOpen     PortState = "open"
	PortStateClosed   PortState = "closed"
	PortStateFiltered PortState = "filtered"
	PortStateUnknown  PortState = "unknown"
)

// Finding is a single interpreted observation about a Target, derived from
// scanner output by the Classifier, carrying a severity and a remediation
// recommendation. Findings are created exclusively by the Watcher.
type Finding struct {
	BaseModel
	UUID           uuid.UUID  `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	ScanID         uint       `json:"scan_id" gorm:"index;not null"`
	TargetID       uint       `json:"target_id" gorm:"index;not null"`
	Target         Target     `json:"-" gorm:"foreignKey:TargetID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name           string     `json:"name" gorm:"size:255;not null"`
	Description    string     `json:"description" gorm:"type:text"`
	Recommendation string     `json:"recommendation" gorm:"type:text"`
	Port           *int       `json:"port,omitempty"`
	PortState      *PortState `json:"port_state,omitempty" gorm:"size:20"`
	Protocol       string     `json:"protocol,omitempty" gorm:"size:10"`
	Service        string     `json:"service,omitempty" gorm:"size:255"`
	OS             string     `json:"os,omitempty" gorm:"type:text"`
	Traceroute     string     `json:"traceroute,omitempty" gorm:"type:text"`
	Severity       Severity   `json:"severity" gorm:"size:20;not null"`
}

func (f Finding) String() string {
	severityColor := lib.Yellow
	switch f.Severity {
	case SeverityHigh, SeverityCritical:
		severityColor = lib.Red
	case SeverityInfo:
		severityColor = lib.Green
	}
	return lib.Colorize("Finding: ", lib.Blue) + f.Name +
		"\n- " + lib.Colorize("Severity: ", lib.Cyan) + lib.Colorize(string(f.Severity), severityColor) +
		"\n- " + lib.Colorize("Target: ", lib.Cyan) + fmt.Sprint(f.TargetID)
}

// FindingFilter pairs a scan UUID with pagination settings. ListFindingsByScan
// does not take it: that function returns every finding of a scan, unpaginated.
type FindingFilter struct {
	ScanUUID   uuid.UUID
	Pagination Pagination
}

// ListFindingsByScan lists the findings recorded against a scan (by scan_id).
// It does not check ownership; callers do that before calling it.
func (d *DatabaseConnection) ListFindingsByScan(scanUUID uuid.UUID) ([]Finding, error) {
	var scan Scan
	if err := d.db.Where("uuid = ?", scanUUID).First(&scan).Error; err != nil {
		return nil, err
	}
	var findings []Finding
	err := d.db.Where("scan_id = ?", scan.ID).Find(&findings).Error
	if err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("Unable to list findings")
	}
	return findings, err
}
