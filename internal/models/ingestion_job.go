package models

import "time"

// Ingestion job statuses. A job is immutable once terminal.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// IngestionJob records one scheduled execution of the pipeline for a source.
// At most one job per source may be pending or running at a time; the job row
// itself acts as the per-source exclusivity token.
type IngestionJob struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID uint64 `gorm:"not null;index:idx_jobs_source_status,priority:1" json:"source_id"`
	Source   Source `json:"-"`

	Status string `gorm:"type:varchar(20);not null;index:idx_jobs_source_status,priority:2;default:'pending'" json:"status"`

	Found     int `gorm:"not null;default:0" json:"found"`
	New       int `gorm:"not null;default:0" json:"new"`
	Duplicate int `gorm:"not null;default:0" json:"duplicate"`
	Errored   int `gorm:"not null;default:0" json:"errored"`

	LastError *string `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	StartedAt  *time.Time `gorm:"type:timestamptz" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// Terminal reports whether the job reached a final status.
func (j *IngestionJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
