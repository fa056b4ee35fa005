package models

import (
	"time"
)

// Import job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusPartial    = "partial"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Import job item statuses.
const (
	ItemStatusSuccess = "success"
	ItemStatusError   = "error"
	ItemStatusSkipped = "skipped"
)

// Entity types recorded on job items.
const (
	EntityTypeObjective  = "objective"
	EntityTypeInitiative = "initiative"
	EntityTypeActivity   = "activity"
)

// ImportJob represents the import_jobs table with GORM tags. One row per
// uploaded spreadsheet; counters are updated as batches complete so an
// interrupted run leaves accurate progress behind.
type ImportJob struct {
	ID            uint       `gorm:"primaryKey;column:id" json:"id"`
	TenantID      int        `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	AreaID        *int       `gorm:"column:area_id" json:"area_id,omitempty"`
	UploadedBy    string     `gorm:"column:uploaded_by" json:"uploaded_by"`
	ObjectPath    string     `gorm:"column:object_path;not null" json:"object_path"`
	Checksum      string     `gorm:"column:checksum;not null;index" json:"checksum"`
	Status        string     `gorm:"column:status;not null;default:'pending'" json:"status"`
	TotalRows     int        `gorm:"column:total_rows;default:0" json:"total_rows"`
	ProcessedRows int        `gorm:"column:processed_rows;default:0" json:"processed_rows"`
	SuccessRows   int        `gorm:"column:success_rows;default:0" json:"success_rows"`
	ErrorRows     int        `gorm:"column:error_rows;default:0" json:"error_rows"`
	SkippedRows   int        `gorm:"column:skipped_rows;default:0" json:"skipped_rows"`
	Summary       string     `gorm:"column:summary" json:"summary"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName specifies the table name for ImportJob
func (ImportJob) TableName() string {
	return "import_jobs"
}

// IsTerminal reports whether the job reached a final state.
func (j *ImportJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ImportJobItem represents the import_job_items table with GORM tags.
// Append-only: one record per processed row, never updated afterwards.
type ImportJobItem struct {
	ID           uint      `gorm:"primaryKey;column:id" json:"id"`
	JobID        int       `gorm:"column:job_id;not null;index" json:"job_id"`
	RowIndex     int       `gorm:"column:row_index;not null" json:"row_index"`
	EntityType   string    `gorm:"column:entity_type" json:"entity_type"`
	EntityID     *int      `gorm:"column:entity_id" json:"entity_id,omitempty"`
	Status       string    `gorm:"column:status;not null" json:"status"`
	ErrorMessage string    `gorm:"column:error_message" json:"error_message,omitempty"`
	Warning      string    `gorm:"column:warning" json:"warning,omitempty"`
	RawPayload   string    `gorm:"column:raw_payload;type:text" json:"raw_payload,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName specifies the table name for ImportJobItem
func (ImportJobItem) TableName() string {
	return "import_job_items"
}
