package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/lib"
)

// ScanStatus is the scan lifecycle state. Transitions are monotonic along
// pending -> running -> {completed, failed}; completed/failed are absorbing.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanType selects which scan profile the external scanner runs.
type ScanType string

const (
	ScanTypeDefault ScanType = "default"
	ScanTypeCustom  ScanType = "custom"
	ScanTypeDeep    ScanType = "deep"
)

func ValidScanType(t string) bool {
	switch ScanType(t) {
	case ScanTypeDefault, ScanTypeCustom, ScanTypeDeep:
		return true
	default:
		return false
	}
}

// Scan is one invocation of the external scanner against a set of Targets
// on behalf of one User.
type Scan struct {
	BaseModel
	UUID        uuid.UUID         `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	OwnerUserID uint              `json:"owner_user_id" gorm:"index;not null"`
	Owner       User              `json:"-" gorm:"foreignKey:OwnerUserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name        string            `json:"name" gorm:"size:255"`
	Type        ScanType          `json:"type" gorm:"size:20;not null"`
	Status      ScanStatus        `json:"status" gorm:"index;size:20;not null;default:'pending'"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" gorm:"serializer:json"`

	// Output is append-only while the scan is non-terminal, frozen after.
	Output string `json:"output" gorm:"type:text"`
	// Result is the raw scanner result blob, set once by the Watcher on
	// ingesting scan_results:{S}; ResultAt guards against double-processing
	// a re-delivered terminal event (see ApplyResult).
	Result   *string    `json:"result,omitempty" gorm:"type:text"`
	ResultAt *time.Time `json:"result_at,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Targets  []Target  `json:"-" gorm:"many2many:scan_target_association;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Findings []Finding `json:"-" gorm:"foreignKey:ScanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// IsTerminal reports whether the scan has reached an absorbing state.
func (s *Scan) IsTerminal() bool {
	return s.Status == ScanStatusCompleted || s.Status == ScanStatusFailed
}

func (s Scan) String() string {
	return lib.Colorize("Scan: ", lib.Blue) + s.Name +
		"\n- " + lib.Colorize("UUID: ", lib.Cyan) + s.UUID.String() +
		"\n- " + lib.Colorize("Status: ", lib.Cyan) + string(s.Status)
}

// ScanFilter restricts ListScans.
type ScanFilter struct {
	OwnerUserID uint
	Statuses    []ScanStatus
	Pagination  Pagination
}

// CreateScan inserts a pending scan row associated with the given targets.
func (d *DatabaseConnection) CreateScan(scan *Scan) (*Scan, error) {
	result := d.db.Create(scan)
	if result.Error != nil {
		log.Error().Err(result.Error).Interface("scan", scan).Msg("Scan creation failed")
	}
	return scan, result.Error
}

// GetScanByUUID retrieves a scan by its public UUID.
func (d *DatabaseConnection) GetScanByUUID(id uuid.UUID) (*Scan, error) {
	var scan Scan
	if err := d.db.Where("uuid = ?", id).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

// GetScanWithTargets retrieves a scan by UUID with its associated Targets
// preloaded — the Watcher needs these to resolve a Classifier finding's
// TargetName back to a Target.ID before insertion.
func (d *DatabaseConnection) GetScanWithTargets(id uuid.UUID) (*Scan, error) {
	var scan Scan
	if err := d.db.Preload("Targets").Where("uuid = ?", id).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScans lists a user's scans, most recent first.
func (d *DatabaseConnection) ListScans(filter ScanFilter) (items []*Scan, count int64, err error) {
	query := d.db.Model(&Scan{}).Where("owner_user_id = ?", filter.OwnerUserID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := filter.Pagination.GetData()
	err = query.Offset(offset).Limit(limit).Order("id desc").Find(&items).Error
	return items, count, err
}

// ListActiveScansForUser returns scans whose status is neither pending nor
// completed (running or failed) — the set the list-view stream polls (§4.4.2).
func (d *DatabaseConnection) ListActiveScansForUser(ownerID uint) ([]*Scan, error) {
	var scans []*Scan
	err := d.db.Where("owner_user_id = ? AND status IN ?", ownerID, []ScanStatus{ScanStatusRunning, ScanStatusFailed}).Find(&scans).Error
	return scans, err
}

// DeleteScan deletes a scan and its findings, refusing while the scan is active.
func (d *DatabaseConnection) DeleteScan(id uuid.UUID) error {
	scan, err := d.GetScanByUUID(id)
	if err != nil {
		return err
	}
	if scan.Status == ScanStatusPending || scan.Status == ScanStatusRunning {
		return fmt.Errorf("scan %s cannot be deleted while %s", id, scan.Status)
	}
	return d.db.Select("Findings").Delete(scan).Error
}

// NextDisplayName composes "Assessment no. K" where K is one plus the count
// of every scan the user has ever created (see DESIGN.md Open Question
// resolution — a global per-user counter, not a running/pending-only one).
func (d *DatabaseConnection) NextDisplayName(ownerID uint) (string, error) {
	var count int64
	if err := d.db.Model(&Scan{}).Unscoped().Where("owner_user_id = ?", ownerID).Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("Assessment no. %d", count+1), nil
}

// TransitionStatus advances a scan's status, setting StartedAt/FinishedAt
// exactly once per §3's invariant, and returns the updated row. It is a
// no-op (returns the current row unchanged) once the scan is terminal.
func (d *DatabaseConnection) TransitionStatus(scanID uuid.UUID, newStatus ScanStatus) (*Scan, error) {
	scan, err := d.GetScanByUUID(scanID)
	if err != nil {
		return nil, err
	}
	if scan.IsTerminal() {
		return scan, nil
	}

	updates := map[string]interface{}{"status": newStatus}
	now := time.Now().UTC()

	if scan.StartedAt == nil && (newStatus == ScanStatusRunning || newStatus == ScanStatusCompleted || newStatus == ScanStatusFailed) {
		updates["started_at"] = now
	}
	if newStatus == ScanStatusCompleted || newStatus == ScanStatusFailed {
		updates["finished_at"] = now
	}

	if err := d.db.Model(&Scan{}).Where("id = ?", scan.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return d.GetScanByUUID(scanID)
}

// AppendOutput appends lines to scans.output while the scan is non-terminal.
// Returns false without writing if the scan has already reached a terminal
// state — callers (the Gateway) must not write after that point.
func (d *DatabaseConnection) AppendOutput(scanID uuid.UUID, lines []string) (bool, error) {
	scan, err := d.GetScanByUUID(scanID)
	if err != nil {
		return false, err
	}
	if scan.IsTerminal() {
		return false, nil
	}
	joined := scan.Output
	for _, l := range lines {
		if joined != "" {
			joined += "\n"
		}
		joined += l
	}
	return true, d.db.Model(&Scan{}).Where("id = ?", scan.ID).Update("output", joined).Error
}

// ApplyResult performs the Watcher's terminal-results commit: freezes
// output, stores the raw result blob, and inserts the Classifier's findings
// in one transaction. It is guarded by ResultAt IS NULL so a re-delivered
// terminal event (duplicate webhook + watcher observation) cannot
// double-insert findings — the idempotency mitigation named in spec notes.
func (d *DatabaseConnection) ApplyResult(scanID uuid.UUID, output string, resultJSON *string, findings []Finding) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var scan Scan
		if err := tx.Where("uuid = ? AND result_at IS NULL", scanID).First(&scan).Error; err != nil {
			// Already processed (or missing) — nothing to do, not an error.
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"output":    output,
			"result_at": now,
		}
		if resultJSON != nil {
			updates["result"] = *resultJSON
		}
		if err := tx.Model(&Scan{}).Where("id = ?", scan.ID).Updates(updates).Error; err != nil {
			return err
		}

		for i := range findings {
			findings[i].ScanID = scan.ID
		}
		if len(findings) > 0 {
			if err := tx.Create(&findings).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
