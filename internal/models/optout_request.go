package models

import "time"

const (
	OptOutStatusPending  = "pending"
	OptOutStatusApproved = "approved"
	OptOutStatusRejected = "rejected"
)

// OptOutRequest is a legal takedown request targeting one listing.
// Approval is the only path that suppresses a listing; once approved or
// rejected the request is immutable.
type OptOutRequest struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID uint64  `gorm:"not null;index" json:"listing_id"`
	Listing   Listing `json:"-"`

	RequesterName  string `gorm:"type:varchar(200);not null" json:"requester_name"`
	RequesterEmail string `gorm:"type:varchar(200);not null" json:"requester_email"`
	Reason         string `gorm:"type:text;not null" json:"reason"`

	Status         string  `gorm:"type:varchar(20);not null;index;default:'pending'" json:"status"`
	DecisionReason *string `gorm:"type:text" json:"decision_reason,omitempty"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	DecidedAt *time.Time `gorm:"type:timestamptz" json:"decided_at,omitempty"`
}

func (OptOutRequest) TableName() string {
	return "optout_requests"
}
