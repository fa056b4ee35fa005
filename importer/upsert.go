package importer

import (
	"context"
	"fmt"
	"strings"

	"stratix/models"
)

// RowResult is the outcome of applying one row, fed to the job item recorder.
// InitiativeID carries the initiative resolved on the row (if any) so the
// coordinator can trigger progress recalculation after activity writes.
type RowResult struct {
	EntityType   string
	EntityID     *int
	InitiativeID *int
	Status       string
	ErrorMessage string
	Warning      string
}

// Upserter applies a validated candidate to the hierarchy in strict top-down
// order: objective, then initiative, then activity. Each row runs in its own
// transaction; a failure rolls the whole row back.
type Upserter struct {
	store Store
}

func NewUpserter(store Store) *Upserter {
	return &Upserter{store: store}
}

// ApplyRow upserts the row's levels. Updates only overwrite fields present in
// the row; absent fields keep their stored values. Resolved ids are threaded
// downward, and the deepest level's id lands in the result.
func (u *Upserter) ApplyRow(ctx context.Context, tenantID int, defaultAreaID *int, cand *RowCandidate) RowResult {
	result := RowResult{EntityType: cand.DeepestLevel(), Status: models.ItemStatusSuccess}
	var warnings []string

	err := u.store.InTransaction(ctx, func(tx Store) error {
		matcher := NewMatcher(tx)

		areaID, err := matcher.ResolveArea(ctx, tenantID, cand.AreaName, defaultAreaID)
		if err != nil {
			return err
		}

		var objectiveID *int
		if cand.Objective != nil {
			id, warning, err := upsertObjective(ctx, tx, matcher, tenantID, areaID, cand.Objective)
			if err != nil {
				return err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			objectiveID = &id
			result.EntityID = objectiveID
		}

		var initiativeID *int
		if cand.Initiative != nil {
			if areaID == nil {
				uerr := &UnresolvedParentError{Level: "area", Reason: "row names no area and the job has no default area"}
				result.Status = models.ItemStatusSkipped
				result.ErrorMessage = uerr.Error()
				return nil
			}
			id, warning, err := upsertInitiative(ctx, tx, matcher, tenantID, *areaID, objectiveID, cand.Initiative)
			if err != nil {
				return err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			initiativeID = &id
			result.EntityID = initiativeID
			result.InitiativeID = initiativeID
		}

		if cand.Activity != nil {
			if initiativeID == nil {
				uerr := &UnresolvedParentError{Level: "initiative", Reason: "no initiative resolved on this row"}
				result.Status = models.ItemStatusSkipped
				result.ErrorMessage = uerr.Error()
				return nil
			}
			id, warning, err := upsertActivity(ctx, tx, matcher, tenantID, *initiativeID, cand.Activity)
			if err != nil {
				return err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			result.EntityID = &id
		}

		return nil
	})
	if err != nil {
		return RowResult{
			EntityType:   cand.DeepestLevel(),
			Status:       models.ItemStatusError,
			ErrorMessage: fmt.Sprintf("row %d: %v", cand.Index, err),
		}
	}

	result.Warning = strings.Join(warnings, "; ")
	return result
}

func upsertObjective(ctx context.Context, tx Store, matcher *Matcher, tenantID int, areaID *int, fields *ObjectiveFields) (int, string, error) {
	existing, warning, err := matcher.MatchObjective(ctx, tenantID, areaID, fields.Title)
	if err != nil {
		return 0, "", err
	}

	if existing == nil {
		obj := &models.Objective{
			TenantID: tenantID,
			AreaID:   areaID,
			Title:    fields.Title,
			Priority: models.PriorityMedium,
			Status:   models.StatusPlanning,
			Version:  1,
		}
		applyObjectiveFields(obj, fields)
		if err := tx.CreateObjective(ctx, obj); err != nil {
			return 0, "", fmt.Errorf("create objective %q: %w", fields.Title, err)
		}
		return int(obj.ID), warning, nil
	}

	applyObjectiveFields(existing, fields)
	existing.Version++
	if err := tx.UpdateObjective(ctx, existing); err != nil {
		return 0, "", fmt.Errorf("update objective %d: %w", existing.ID, err)
	}
	return int(existing.ID), warning, nil
}

func applyObjectiveFields(obj *models.Objective, fields *ObjectiveFields) {
	if fields.Description != nil {
		obj.Description = *fields.Description
	}
	if fields.Priority != nil {
		obj.Priority = *fields.Priority
	}
	if fields.Status != nil {
		obj.Status = *fields.Status
	}
	if fields.Progress != nil {
		obj.Progress = *fields.Progress
	}
	if fields.TargetDate != nil {
		obj.TargetDate = fields.TargetDate
	}
}

func upsertInitiative(ctx context.Context, tx Store, matcher *Matcher, tenantID int, areaID int, objectiveID *int, fields *InitiativeFields) (int, string, error) {
	existing, warning, err := matcher.MatchInitiative(ctx, tenantID, areaID, objectiveID, fields.Title)
	if err != nil {
		return 0, "", err
	}

	if existing == nil {
		init := &models.Initiative{
			TenantID:       tenantID,
			AreaID:         areaID,
			ObjectiveID:    objectiveID,
			Title:          fields.Title,
			Status:         models.StatusPlanning,
			ProgressMethod: models.ProgressMethodManual,
			Version:        1,
		}
		applyInitiativeFields(init, fields)
		if err := tx.CreateInitiative(ctx, init); err != nil {
			return 0, "", fmt.Errorf("create initiative %q: %w", fields.Title, err)
		}
		return int(init.ID), warning, nil
	}

	applyInitiativeFields(existing, fields)
	if existing.ObjectiveID == nil && objectiveID != nil {
		existing.ObjectiveID = objectiveID
	}
	existing.Version++
	if err := tx.UpdateInitiative(ctx, existing); err != nil {
		return 0, "", fmt.Errorf("update initiative %d: %w", existing.ID, err)
	}
	return int(existing.ID), warning, nil
}

func applyInitiativeFields(init *models.Initiative, fields *InitiativeFields) {
	if fields.Description != nil {
		init.Description = *fields.Description
	}
	if fields.Status != nil {
		init.Status = *fields.Status
	}
	if fields.Progress != nil {
		init.Progress = *fields.Progress
	}
	if fields.StartDate != nil {
		init.StartDate = fields.StartDate
	}
	if fields.DueDate != nil {
		init.DueDate = fields.DueDate
	}
	if fields.CompletionDate != nil {
		init.CompletionDate = fields.CompletionDate
	}
}

func upsertActivity(ctx context.Context, tx Store, matcher *Matcher, tenantID int, initiativeID int, fields *ActivityFields) (int, string, error) {
	existing, warning, err := matcher.MatchActivity(ctx, tenantID, initiativeID, fields.Title)
	if err != nil {
		return 0, "", err
	}

	if existing == nil {
		sub := &models.Subtask{
			TenantID:     tenantID,
			InitiativeID: initiativeID,
			Title:        fields.Title,
			IsCounted:    true,
			Version:      1,
		}
		applyActivityFields(sub, fields)
		if err := tx.CreateSubtask(ctx, sub); err != nil {
			return 0, "", fmt.Errorf("create activity %q: %w", fields.Title, err)
		}
		return int(sub.ID), warning, nil
	}

	applyActivityFields(existing, fields)
	existing.Version++
	if err := tx.UpdateSubtask(ctx, existing); err != nil {
		return 0, "", fmt.Errorf("update activity %d: %w", existing.ID, err)
	}
	return int(existing.ID), warning, nil
}

func applyActivityFields(sub *models.Subtask, fields *ActivityFields) {
	if fields.Description != nil {
		sub.Description = *fields.Description
	}
	if fields.IsCompleted != nil {
		sub.IsCompleted = *fields.IsCompleted
	}
	if fields.AssignedToEmail != nil {
		sub.AssignedToEmail = *fields.AssignedToEmail
	}
}
