package models

import (
	"time"
)

// Canonical enum values. Parser and handlers normalize incoming values to
// these before anything is persisted.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	StatusPlanning   = "planning"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOnHold     = "on_hold"
	StatusOverdue    = "overdue"

	ProgressMethodManual       = "manual"
	ProgressMethodSubtaskBased = "subtask_based"
	ProgressMethodHybrid       = "hybrid"
)

// Priorities is the allow-list for priority columns.
var Priorities = []string{PriorityHigh, PriorityMedium, PriorityLow}

// ObjectiveStatuses is the allow-list for objective status columns.
var ObjectiveStatuses = []string{StatusPlanning, StatusInProgress, StatusCompleted, StatusOverdue}

// InitiativeStatuses is the allow-list for initiative status columns.
var InitiativeStatuses = []string{StatusPlanning, StatusInProgress, StatusCompleted, StatusOnHold}

// ProgressMethods is the allow-list for initiative progress_method.
var ProgressMethods = []string{ProgressMethodManual, ProgressMethodSubtaskBased, ProgressMethodHybrid}

// Area represents the areas table with GORM tags
type Area struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	TenantID  int       `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName specifies the table name for Area
func (Area) TableName() string {
	return "areas"
}

// Objective represents the objectives table with GORM tags
type Objective struct {
	ID          uint       `gorm:"primaryKey;column:id" json:"id"`
	TenantID    int        `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	AreaID      *int       `gorm:"column:area_id" json:"area_id,omitempty"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Description string     `gorm:"column:description" json:"description"`
	Priority    string     `gorm:"column:priority;default:'medium'" json:"priority"`
	Status      string     `gorm:"column:status;default:'planning'" json:"status"`
	Progress    float64    `gorm:"column:progress;default:0" json:"progress"`
	TargetDate  *time.Time `gorm:"column:target_date" json:"target_date,omitempty"`
	Version     int        `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName specifies the table name for Objective
func (Objective) TableName() string {
	return "objectives"
}

// Initiative represents the initiatives table with GORM tags
type Initiative struct {
	ID             uint       `gorm:"primaryKey;column:id" json:"id"`
	TenantID       int        `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	AreaID         int        `gorm:"column:area_id;not null" json:"area_id"`
	ObjectiveID    *int       `gorm:"column:objective_id" json:"objective_id,omitempty"`
	Title          string     `gorm:"column:title;not null" json:"title"`
	Description    string     `gorm:"column:description" json:"description"`
	StartDate      *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	DueDate        *time.Time `gorm:"column:due_date" json:"due_date,omitempty"`
	CompletionDate *time.Time `gorm:"column:completion_date" json:"completion_date,omitempty"`
	Status         string     `gorm:"column:status;default:'planning'" json:"status"`
	Progress       float64    `gorm:"column:progress;default:0" json:"progress"`
	ProgressMethod string     `gorm:"column:progress_method;default:'manual'" json:"progress_method"`
	Version        int        `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName specifies the table name for Initiative
func (Initiative) TableName() string {
	return "initiatives"
}

// Subtask represents the subtasks table with GORM tags. Subtasks are the
// activities tracked under an initiative; weight_percentage is their share of
// the initiative's progress when progress_method is subtask_based or hybrid.
type Subtask struct {
	ID               uint      `gorm:"primaryKey;column:id" json:"id"`
	TenantID         int       `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	InitiativeID     int       `gorm:"column:initiative_id;not null;index" json:"initiative_id"`
	Title            string    `gorm:"column:title;not null" json:"title"`
	Description      string    `gorm:"column:description" json:"description"`
	IsCompleted      bool      `gorm:"column:is_completed;default:false" json:"is_completed"`
	Progress         float64   `gorm:"column:progress;default:0" json:"progress"`
	WeightPercentage float64   `gorm:"column:weight_percentage;default:0" json:"weight_percentage"`
	IsCounted        bool      `gorm:"column:is_counted;default:true" json:"is_counted"`
	AssignedToEmail  string    `gorm:"column:assigned_to_email" json:"assigned_to_email"`
	SortOrder        int       `gorm:"column:sort_order;default:0" json:"sort_order"`
	Version          int       `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt        time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName specifies the table name for Subtask
func (Subtask) TableName() string {
	return "subtasks"
}

// EffectiveProgress is the progress value a subtask contributes to its
// parent: completion overrides whatever partial progress was recorded.
func (s *Subtask) EffectiveProgress() float64 {
	if s.IsCompleted {
		return 100
	}
	return s.Progress
}
