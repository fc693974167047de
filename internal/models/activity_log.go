package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLog records a single auditable action (logins, 2FA transitions,
// CRM mutations). Properties carries free-form context such as company ids.
type ActivityLog struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      *string        `gorm:"type:uuid;index" json:"user_id"`
	User        *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action      string         `gorm:"not null;index" json:"action"`
	SubjectType string         `gorm:"index" json:"subject_type"`
	SubjectID   string         `gorm:"index" json:"subject_id"`
	Description string         `json:"description"`
	Properties  datatypes.JSON `json:"properties"`
	IPAddress   string         `gorm:"size:45" json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
