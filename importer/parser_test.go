package importer

import (
	"testing"

	"stratix/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRowFullHierarchy(t *testing.T) {
	raw := RawRow{
		"area_name":                  "Growth",
		"objective_title":            "Q3 Growth",
		"objective_priority":         "HIGH",
		"objective_status":           "In Progress",
		"objective_progress":         "40",
		"objective_target_date":      "2026-09-30",
		"initiative_title":           "Launch referral program",
		"initiative_status":          "planning",
		"activity_title":             "Draft landing page",
		"activity_is_completed":      "Yes",
		"activity_assigned_to_email": "sam@example.com",
	}

	cand, verr := ParseRow(1, raw)
	require.Nil(t, verr)
	require.NotNil(t, cand.Objective)
	require.NotNil(t, cand.Initiative)
	require.NotNil(t, cand.Activity)

	assert.Equal(t, "Growth", cand.AreaName)
	assert.Equal(t, models.PriorityHigh, *cand.Objective.Priority)
	assert.Equal(t, models.StatusInProgress, *cand.Objective.Status)
	assert.Equal(t, 40.0, *cand.Objective.Progress)
	assert.Equal(t, "2026-09-30", cand.Objective.TargetDate.Format("2006-01-02"))
	assert.True(t, *cand.Activity.IsCompleted)
	assert.Equal(t, models.EntityTypeActivity, cand.DeepestLevel())
}

func TestParseRowAbsentFieldsStayNil(t *testing.T) {
	cand, verr := ParseRow(1, RawRow{"objective_title": "Q3 Growth"})
	require.Nil(t, verr)
	require.NotNil(t, cand.Objective)
	assert.Nil(t, cand.Objective.Priority)
	assert.Nil(t, cand.Objective.Progress)
	assert.Nil(t, cand.Objective.TargetDate)
	assert.Nil(t, cand.Initiative)
	assert.Nil(t, cand.Activity)
}

func TestParseRowRejections(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawRow
		field string
	}{
		{"unknown priority", RawRow{"objective_title": "A", "objective_priority": "urgent"}, "objective_priority"},
		{"unknown status", RawRow{"objective_title": "A", "objective_status": "done"}, "objective_status"},
		{"progress above 100", RawRow{"objective_title": "A", "objective_progress": "130"}, "objective_progress"},
		{"negative progress", RawRow{"objective_title": "A", "objective_progress": "-5"}, "objective_progress"},
		{"non-numeric progress", RawRow{"objective_title": "A", "objective_progress": "lots"}, "objective_progress"},
		{"bad date", RawRow{"objective_title": "A", "objective_target_date": "30/09/2026"}, "objective_target_date"},
		{"bad boolean", RawRow{"initiative_title": "B", "activity_title": "C", "activity_is_completed": "maybe"}, "activity_is_completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verr := ParseRow(1, tt.raw)
			require.NotNil(t, verr)
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected a %s field error, got %v", tt.field, verr.Fields)
		})
	}
}

func TestParseRowCollectsEveryFailingField(t *testing.T) {
	_, verr := ParseRow(3, RawRow{
		"objective_title":       "A",
		"objective_priority":    "urgent",
		"objective_progress":    "130",
		"objective_target_date": "soon",
	})
	require.NotNil(t, verr)
	assert.Len(t, verr.Fields, 3)
	assert.Equal(t, 3, verr.RowIndex)
}

func TestParseRowNoTitleAnywhere(t *testing.T) {
	_, verr := ParseRow(2, RawRow{"area_name": "Growth", "objective_description": "orphan text"})
	require.NotNil(t, verr)
	assert.True(t, verr.LevelFailed("row"))
}

func TestParseRowActivityNeedsInitiative(t *testing.T) {
	_, verr := ParseRow(1, RawRow{"activity_title": "Floating task"})
	require.NotNil(t, verr)
	assert.True(t, verr.LevelFailed("activity"))
}

func TestParseBoolAcceptedSpellings(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "Yes", "1"} {
		cand, verr := ParseRow(1, RawRow{"initiative_title": "B", "activity_title": "C", "activity_is_completed": v})
		require.Nil(t, verr, "value %q", v)
		assert.True(t, *cand.Activity.IsCompleted, "value %q", v)
	}
	for _, v := range []string{"false", "No", "0"} {
		cand, verr := ParseRow(1, RawRow{"initiative_title": "B", "activity_title": "C", "activity_is_completed": v})
		require.Nil(t, verr, "value %q", v)
		assert.False(t, *cand.Activity.IsCompleted, "value %q", v)
	}
}

func TestReadCSVRows(t *testing.T) {
	data := []byte("objective_title,objective_priority\nQ3 Growth,high\n,\nRetention,low\n")
	rows, err := ReadRows("import.csv", data)
	require.NoError(t, err)
	require.Len(t, rows, 2, "all-empty rows are dropped")
	assert.Equal(t, "Q3 Growth", rows[0]["objective_title"])
	assert.Equal(t, "low", rows[1]["objective_priority"])
}

func TestReadRowsUnsupportedExtension(t *testing.T) {
	_, err := ReadRows("import.pdf", []byte("x"))
	require.Error(t, err)
}
