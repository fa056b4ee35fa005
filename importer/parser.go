package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stratix/models"

	"golang.org/x/text/cases"
)

const dateLayout = "2006-01-02"

var foldCaser = cases.Fold()

// ObjectiveFields is the objective level of a row. Every field except Title
// is a pointer: absent columns leave existing values untouched on update.
type ObjectiveFields struct {
	Title       string
	Description *string
	Priority    *string
	Status      *string
	Progress    *float64
	TargetDate  *time.Time
}

// InitiativeFields is the initiative level of a row.
type InitiativeFields struct {
	Title          string
	Description    *string
	Status         *string
	Progress       *float64
	StartDate      *time.Time
	DueDate        *time.Time
	CompletionDate *time.Time
}

// ActivityFields is the activity (subtask) level of a row.
type ActivityFields struct {
	Title           string
	Description     *string
	IsCompleted     *bool
	AssignedToEmail *string
}

// RowCandidate is the typed form of one spreadsheet row. A nil level means
// the row carries no data for it. The deepest non-nil level is what the row
// is "about" for audit purposes.
type RowCandidate struct {
	Index      int
	AreaName   string
	Objective  *ObjectiveFields
	Initiative *InitiativeFields
	Activity   *ActivityFields
	Raw        RawRow
}

// DeepestLevel returns the entity type of the deepest level present.
func (c *RowCandidate) DeepestLevel() string {
	switch {
	case c.Activity != nil:
		return models.EntityTypeActivity
	case c.Initiative != nil:
		return models.EntityTypeInitiative
	case c.Objective != nil:
		return models.EntityTypeObjective
	}
	return ""
}

// ParseRow turns a raw row into a typed candidate. The returned
// ValidationError, when non-nil, lists every failing field; the candidate is
// still returned with its valid levels filled so the caller can tell a failed
// parent from a failed target level.
func ParseRow(index int, raw RawRow) (*RowCandidate, *ValidationError) {
	verr := &ValidationError{RowIndex: index}
	cand := &RowCandidate{Index: index, AreaName: raw["area_name"], Raw: raw}

	objTitle := raw["objective_title"]
	initTitle := raw["initiative_title"]
	actTitle := raw["activity_title"]

	if objTitle == "" && initTitle == "" && actTitle == "" {
		verr.add("row", "no objective, initiative or activity title present")
		return cand, verr
	}

	if objTitle != "" {
		obj := &ObjectiveFields{Title: objTitle}
		obj.Description = optString(raw, "objective_description")
		obj.Priority = parseEnum(raw, "objective_priority", models.Priorities, verr)
		obj.Status = parseEnum(raw, "objective_status", models.ObjectiveStatuses, verr)
		obj.Progress = parsePercent(raw, "objective_progress", verr)
		obj.TargetDate = parseDate(raw, "objective_target_date", verr)
		cand.Objective = obj
	}

	if initTitle != "" {
		init := &InitiativeFields{Title: initTitle}
		init.Description = optString(raw, "initiative_description")
		init.Status = parseEnum(raw, "initiative_status", models.InitiativeStatuses, verr)
		init.Progress = parsePercent(raw, "initiative_progress", verr)
		init.StartDate = parseDate(raw, "initiative_start_date", verr)
		init.DueDate = parseDate(raw, "initiative_due_date", verr)
		init.CompletionDate = parseDate(raw, "initiative_completion_date", verr)
		cand.Initiative = init
	}

	if actTitle != "" {
		act := &ActivityFields{Title: actTitle}
		act.Description = optString(raw, "activity_description")
		act.IsCompleted = parseBool(raw, "activity_is_completed", verr)
		act.AssignedToEmail = optString(raw, "activity_assigned_to_email")
		if initTitle == "" {
			verr.add("activity_title", "activity requires an initiative_title on the same row")
		}
		cand.Activity = act
	}

	if len(verr.Fields) == 0 {
		return cand, nil
	}
	return cand, verr
}

func optString(raw RawRow, key string) *string {
	if v, ok := raw[key]; ok && v != "" {
		return &v
	}
	return nil
}

// parseEnum normalizes the value case-insensitively against the allow-list
// and returns the canonical casing. Unknown values are recorded, never
// coerced.
func parseEnum(raw RawRow, key string, allowed []string, verr *ValidationError) *string {
	v, ok := raw[key]
	if !ok || v == "" {
		return nil
	}
	folded := foldCaser.String(strings.ReplaceAll(v, " ", "_"))
	for _, a := range allowed {
		if foldCaser.String(a) == folded {
			canonical := a
			return &canonical
		}
	}
	verr.add(key, fmt.Sprintf("%q is not one of %s", v, strings.Join(allowed, "/")))
	return nil
}

// parsePercent rejects values outside [0,100] rather than clamping them.
func parsePercent(raw RawRow, key string, verr *ValidationError) *float64 {
	v, ok := raw[key]
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		verr.add(key, fmt.Sprintf("%q is not a number", v))
		return nil
	}
	if f < 0 || f > 100 {
		verr.add(key, fmt.Sprintf("%v is outside 0-100", f))
		return nil
	}
	return &f
}

func parseDate(raw RawRow, key string, verr *ValidationError) *time.Time {
	v, ok := raw[key]
	if !ok || v == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		verr.add(key, fmt.Sprintf("%q is not a YYYY-MM-DD date", v))
		return nil
	}
	return &t
}

func parseBool(raw RawRow, key string, verr *ValidationError) *bool {
	v, ok := raw[key]
	if !ok || v == "" {
		return nil
	}
	b := false
	switch foldCaser.String(v) {
	case "true", "yes", "1":
		b = true
	case "false", "no", "0":
		b = false
	default:
		verr.add(key, fmt.Sprintf("%q is not a boolean (true/false, yes/no, 1/0)", v))
		return nil
	}
	return &b
}
