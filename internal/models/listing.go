package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ListingStatusActive  = "active"
	ListingStatusRemoved = "removed"
)

// Removal causes. Opt-out removals are permanent: matching content stays
// suppressed across re-fetches. Deactivation removals are recoverable: when
// the source is ingested again the listing is reactivated in place.
const (
	RemovalCauseOptOut            = "optout"
	RemovalCauseSourceDeactivated = "source_deactivated"
)

// Listing is a deduplicated, normalized property listing. The fingerprint
// unique index is the synchronization point for dedup correctness: all
// writers insert through it rather than relying on a read-then-write check.
//
// The index is global rather than scoped to active rows, so content matching
// a listing that was removed by an approved opt-out stays suppressed across
// re-fetches. RemovedCause keeps that suppression from swallowing removals
// with other causes: re-ingesting a deactivation-removed listing reactivates
// the row instead of counting it duplicate. Listings are soft-deleted only.
type Listing struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Fingerprint string `gorm:"type:varchar(64);uniqueIndex;not null" json:"fingerprint"`
	SourceID    uint64 `gorm:"not null;index" json:"source_id"`
	Source      Source `json:"-"`

	Title     string           `gorm:"type:text;not null" json:"title"`
	Price     decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"price"`
	City      string           `gorm:"type:varchar(120);not null;index" json:"city"`
	SurfaceM2 *decimal.Decimal `gorm:"type:numeric(10,2)" json:"surface_m2,omitempty"`
	URL       string           `gorm:"type:varchar(500)" json:"url,omitempty"`

	Status       string         `gorm:"type:varchar(20);not null;index;default:'active'" json:"status"`
	RemovedCause *string        `gorm:"type:varchar(30)" json:"removed_cause,omitempty"`
	RawJSON      datatypes.JSON `gorm:"type:jsonb" json:"-"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
	RemovedAt *time.Time `gorm:"type:timestamptz" json:"removed_at,omitempty"`
}

func (Listing) TableName() string {
	return "listings"
}
