package db

import (
	"github.com/rs/zerolog/log"
)

// User mirrors an externally-authenticated identity into local storage on
// first sight. Identity/authentication itself is an external collaborator
// (the OIDC provider) — this table only tracks what the control plane needs
// in order to own Scans, Targets and Findings.
type User struct {
	BaseModel
	ExternalAuthID string `json:"external_auth_id" gorm:"uniqueIndex;size:255;not null" validate:"required"`
	DisplayName    string `json:"display_name" gorm:"size:255"`
	Email          string `json:"email" gorm:"size:255" validate:"omitempty,email"`
	Enabled        bool   `json:"enabled" gorm:"default:true"`
}

// GetOrCreateUserByExternalID mirrors a user on first sight, matching the
// external identity provider's subject claim to a local row.
func (d *DatabaseConnection) GetOrCreateUserByExternalID(externalID, displayName, email string) (*User, error) {
	var user User
	err := d.db.Where("external_auth_id = ?", externalID).First(&user).Error
	if err == nil {
		return &user, nil
	}

	user = User{
		ExternalAuthID: externalID,
		DisplayName:    displayName,
		Email:          email,
		Enabled:        true,
	}
	if err := d.db.Create(&user).Error; err != nil {
		log.Error().Err(err).Str("external_auth_id", externalID).Msg("User creation failed")
		return nil, err
	}
	return &user, nil
}

// GetUserByExternalID looks up an already-mirrored user by the external
// identity provider's subject claim, without creating one.
func (d *DatabaseConnection) GetUserByExternalID(externalID string) (*User, error) {
	var user User
	if err := d.db.Where("external_auth_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by internal ID.
func (d *DatabaseConnection) GetUserByID(id uint) (*User, error) {
	var user User
	if err := d.db.Where("id = ?", id).First(&user).Error; err != nil {
		log.Error().Err(err).Uint("id", id).Msg("Unable to fetch user by ID")
		return nil, err
	}
	return &user, nil
}
