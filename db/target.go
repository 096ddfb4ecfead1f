package db

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/lib"
)

// Target is a user-owned, named network endpoint — a hostname, public IP,
// public CIDR, or public IP range. It is the Normalizer's post-image and is
// reusable across scans: (OwnerUserID, Name) is unique.
type Target struct {
	BaseModel
	UUID        uuid.UUID `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	OwnerUserID uint      `json:"owner_user_id" gorm:"index;not null;uniqueIndex:idx_owner_name"`
	Owner       User      `json:"-" gorm:"foreignKey:OwnerUserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name        string    `json:"name" gorm:"size:255;not null;uniqueIndex:idx_owner_name"`

	Scans []Scan `json:"-" gorm:"many2many:scan_target_association;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (t Target) String() string {
	return lib.Colorize("Target: ", lib.Blue) + t.Name +
		"\n- " + lib.Colorize("UUID: ", lib.Cyan) + t.UUID.String()
}

// GetOrCreateTarget resolves an existing Target row for ownerID/name or
// creates one, matching the Orchestrator's "resolve or create" step (§4.2).
func (d *DatabaseConnection) GetOrCreateTarget(ownerID uint, name string) (*Target, error) {
	var target Target
	err := d.db.Where("owner_user_id = ? AND name = ?", ownerID, name).First(&target).Error
	if err == nil {
		return &target, nil
	}

	target = Target{
		UUID:        uuid.New(),
		OwnerUserID: ownerID,
		Name:        name,
	}
	if err := d.db.Create(&target).Error; err != nil {
		log.Error().Err(err).Str("name", name).Uint("owner_user_id", ownerID).Msg("Target creation failed")
		return nil, err
	}
	return &target, nil
}

// GetOrCreateTargets resolves or creates a Target row for each cleaned name.
func (d *DatabaseConnection) GetOrCreateTargets(ownerID uint, names []string) ([]Target, error) {
	targets := make([]Target, 0, len(names))
	for _, name := range names {
		target, err := d.GetOrCreateTarget(ownerID, name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *target)
	}
	return targets, nil
}

// GetTargetByUUID retrieves a target by its public UUID.
func (d *DatabaseConnection) GetTargetByUUID(id uuid.UUID) (*Target, error) {
	var target Target
	if err := d.db.Where("uuid = ?", id).First(&target).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

// CountTargetsForUser returns how many distinct Target rows a user owns —
// used by tests asserting "submitting the same target set twice reuses rows".
func (d *DatabaseConnection) CountTargetsForUser(ownerID uint) (int64, error) {
	var count int64
	err := d.db.Model(&Target{}).Where("owner_user_id = ?", ownerID).Count(&count).Error
	return count, err
}
