package models

import "time"

// Company statuses used by the pipeline filters and dashboard counters.
const (
	CompanyStatusActive    = "active"
	CompanyStatusInactive  = "inactive"
	CompanyStatusProspect  = "prospect"
	CompanyStatusConverted = "converted"
)

type Company struct {
	BaseModel

	Name        string `gorm:"not null;index" json:"name"`
	CompanyType string `gorm:"index" json:"company_type"`
	Status      string `gorm:"index;default:prospect" json:"status"`

	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	Address string `json:"address"`
	City    string `gorm:"index" json:"city"`
	Website string `json:"website"`
	Notes   string `json:"notes"`

	AssignedToID *string `gorm:"type:uuid;index" json:"assigned_to_id"`
	AssignedTo   *User   `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`

	FollowUps []FollowUp `gorm:"foreignKey:CompanyID" json:"follow_ups,omitempty"`

	LastContactedAt *time.Time `json:"last_contacted_at"`
}
