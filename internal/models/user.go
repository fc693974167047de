package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminRoleID identifies the seeded administrator role. Global two-factor
// enforcement is only honoured for users carrying this role.
const AdminRoleID = "admin"

// StaffRoleID identifies the seeded standard-access role.
const StaffRoleID = "staff"

// User describes an account able to sign in to the CRM.
//
// The two-factor columns form one logical unit: Enabled may only be true while
// Secret is set, and all of them are cleared together on disable. Writers must
// update them in a single statement to avoid a torn state.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	TwoFactorSecret           *string    `gorm:"column:two_factor_secret" json:"-"`
	TwoFactorEnabled          bool       `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorEnabledAt        *time.Time `gorm:"column:two_factor_enabled_at" json:"two_factor_enabled_at"`
	TwoFactorEnforcedGlobally bool       `gorm:"column:two_factor_enforced_globally;default:false" json:"two_factor_enforced_globally"`

	Roles    []Role    `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasTwoFactorEnabled reports whether the account requires an OTP at login.
// Both the flag and the secret must be present; a torn row counts as disabled.
func (u *User) HasTwoFactorEnabled() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// HasRole reports whether the user carries the given role id.
func (u *User) HasRole(roleID string) bool {
	for _, role := range u.Roles {
		if role.ID == roleID {
			return true
		}
	}
	return false
}
