package models

// LoginRequest is the POST /api/login body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:""`
}

// UploadCompleteRequest announces an object already placed in the bucket and
// asks for an import job over it.
type UploadCompleteRequest struct {
	ObjectPath string `json:"object_path" binding:"required" example:"imports/7/okr-q3.xlsx"`
	Checksum   string `json:"checksum" binding:"required" example:"9f2c1a..."`
	RowCount   int    `json:"row_count" example:"120"`
	UploadedBy string `json:"uploaded_by" example:"user@example.com"`
	AreaID     *int   `json:"area_id,omitempty" example:"3"`
}

// SubtaskUpdateRequest is the PUT body for a single subtask. All patch fields
// are pointers: absent means leave untouched. ExpectedVersion is the
// optimistic-locking token the caller read.
type SubtaskUpdateRequest struct {
	ExpectedVersion  int      `json:"expected_version" binding:"required" example:"3"`
	Title            *string  `json:"title,omitempty"`
	Description      *string  `json:"description,omitempty"`
	Progress         *float64 `json:"progress,omitempty"`
	WeightPercentage *float64 `json:"weight_percentage,omitempty"`
	IsCompleted      *bool    `json:"is_completed,omitempty"`
	IsCounted        *bool    `json:"is_counted,omitempty"`
	AssignedToEmail  *string  `json:"assigned_to_email,omitempty"`
	SortOrder        *int     `json:"sort_order,omitempty"`
}

// Bulk subtask operations accepted by PUT /subtasks.
const (
	BulkOpReorder        = "reorder"
	BulkOpRedistribute   = "redistribute_weights"
	BulkOpBulkUpdate     = "bulk_update"
	RedistributionEqual  = "equal"
	RedistributionRatios = "proportional"
)

// SubtaskBulkItem is one entry of a bulk_update operation.
type SubtaskBulkItem struct {
	ID              int                  `json:"id" binding:"required"`
	ExpectedVersion int                  `json:"expected_version" binding:"required"`
	Patch           SubtaskUpdateRequest `json:"patch"`
}

// SubtaskBulkRequest is the PUT body for the collection endpoint.
// Order is used by reorder, Method by redistribute_weights, Updates by
// bulk_update.
type SubtaskBulkRequest struct {
	Operation string            `json:"operation" binding:"required" example:"redistribute_weights"`
	Order     []int             `json:"order,omitempty"`
	Method    string            `json:"method,omitempty" example:"equal"`
	Updates   []SubtaskBulkItem `json:"updates,omitempty"`
}

// SubtaskUpdateResponse is the PUT success body: the updated entity plus the
// effect the write had on the parent initiative.
type SubtaskUpdateResponse struct {
	Subtask                   Subtask  `json:"subtask"`
	InitiativeProgressUpdated bool     `json:"initiative_progress_updated"`
	PreviousProgress          float64  `json:"previous_progress"`
	NewProgress               float64  `json:"new_progress"`
	WeightImpact              *float64 `json:"weight_impact,omitempty"`
}

// WeightSummaryResponse is the GET /subtasks/weights body.
type WeightSummaryResponse struct {
	InitiativeID int                     `json:"initiative_id"`
	State        string                  `json:"state" example:"partial"`
	TotalWeight  float64                 `json:"total_weight" example:"80"`
	Remaining    float64                 `json:"remaining" example:"20"`
	Allocations  []WeightAllocationEntry `json:"allocations"`
}

// WeightAllocationEntry is one subtask's share in the weight summary.
type WeightAllocationEntry struct {
	SubtaskID        int     `json:"subtask_id"`
	Title            string  `json:"title"`
	WeightPercentage float64 `json:"weight_percentage"`
	IsCounted        bool    `json:"is_counted"`
}
