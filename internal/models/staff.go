package models

import "time"

// Staff is a contact person working at a company.
type Staff struct {
	BaseModel

	CompanyID string   `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`

	Name     string `gorm:"not null" json:"name"`
	Position string `json:"position"`
	Email    string `gorm:"index" json:"email"`
	Phone    string `json:"phone"`
	Notes    string `json:"notes"`

	IsPrimary bool       `gorm:"default:false" json:"is_primary"`
	LeftAt    *time.Time `json:"left_at"`
}
