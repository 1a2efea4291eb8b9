package models

import (
	"time"

	"gorm.io/datatypes"
)

// Source is a configured external listing feed. Sources are never deleted,
// only deactivated, so job and listing history stays attributable.
type Source struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	SourceType string         `gorm:"type:varchar(30);not null" json:"source_type"`
	Endpoint   string         `gorm:"type:varchar(500);not null" json:"endpoint"`
	Active     bool           `gorm:"not null;default:true;index" json:"active"`
	FetchCfg   datatypes.JSON `gorm:"type:jsonb" json:"fetch_config,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Source) TableName() string {
	return "sources"
}
