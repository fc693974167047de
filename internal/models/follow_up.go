package models

import "time"

// Follow-up statuses.
const (
	FollowUpStatusPending   = "pending"
	FollowUpStatusCompleted = "completed"
	FollowUpStatusCancelled = "cancelled"
)

// FollowUp is a scheduled touchpoint with a company.
type FollowUp struct {
	BaseModel

	CompanyID string   `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	DueAt  time.Time `gorm:"index;not null" json:"due_at"`
	Status string    `gorm:"index;default:pending" json:"status"`
	Notes  string    `json:"notes"`

	CompletedAt *time.Time `json:"completed_at"`
}

// IsOverdue reports whether the follow-up is pending past its due time.
func (f *FollowUp) IsOverdue(now time.Time) bool {
	return f.Status == FollowUpStatusPending && now.After(f.DueAt)
}
