package progress

import (
	"context"
	"fmt"
	"math"

	"stratix/models"

	"github.com/sirupsen/logrus"
)

// Weight aggregate states for an initiative's subtasks.
const (
	WeightStateUnassigned = "unassigned"
	WeightStatePartial    = "partial"
	WeightStateBalanced   = "balanced"
)

// weightEpsilon absorbs the rounding noise of two-decimal weights.
const weightEpsilon = 0.005

// Store is the persistence surface of the engine. Tenant id is a mandatory
// argument everywhere; a subtask is only visible through its initiative.
type Store interface {
	GetInitiative(ctx context.Context, tenantID, initiativeID int) (*models.Initiative, error)
	SaveInitiative(ctx context.Context, init *models.Initiative) error

	GetSubtask(ctx context.Context, tenantID, initiativeID, subtaskID int) (*models.Subtask, error)
	ListSubtasks(ctx context.Context, tenantID, initiativeID int) ([]models.Subtask, error)
	SaveSubtask(ctx context.Context, s *models.Subtask) error
	DeleteSubtask(ctx context.Context, tenantID, initiativeID, subtaskID int) error

	// InTransaction runs fn against a transactional view of the store. A
	// non-nil error from fn rolls everything back.
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}

// UpdateResult is what a successful subtask mutation reports back: the
// updated entity and the effect on the parent's progress.
type UpdateResult struct {
	Subtask                   models.Subtask
	InitiativeProgressUpdated bool
	PreviousProgress          float64
	NewProgress               float64
	WeightImpact              *float64
}

// Engine is the single writer of weight_percentage and derived progress.
// Every mutation runs as one transaction: read siblings, validate, write.
type Engine struct {
	store Store
	log   *logrus.Logger
}

func NewEngine(store Store, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{store: store, log: log}
}

// ValidateWeightChange checks a proposed weight against its siblings and
// returns the would-be total either way.
func (e *Engine) ValidateWeightChange(ctx context.Context, tenantID, initiativeID, subtaskID int, proposed float64) (float64, error) {
	init, err := e.store.GetInitiative(ctx, tenantID, initiativeID)
	if err != nil {
		return 0, fmt.Errorf("load initiative %d: %w", initiativeID, err)
	}
	siblings, err := e.store.ListSubtasks(ctx, tenantID, initiativeID)
	if err != nil {
		return 0, fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
	}
	return validateWeight(init, siblings, subtaskID, proposed)
}

func validateWeight(init *models.Initiative, siblings []models.Subtask, subtaskID int, proposed float64) (float64, error) {
	othersTotal := 0.0
	for _, s := range siblings {
		if int(s.ID) == subtaskID {
			continue
		}
		othersTotal += s.WeightPercentage
	}
	wouldBe := othersTotal + proposed

	if proposed < 0 {
		return wouldBe, &WeightValidationError{Proposed: proposed, Reason: "weight cannot be negative"}
	}
	if proposed > 100 {
		return wouldBe, &WeightValidationError{Proposed: proposed, Reason: "weight cannot exceed 100"}
	}
	if init.ProgressMethod == models.ProgressMethodSubtaskBased && proposed == 0 {
		return wouldBe, &WeightValidationError{Proposed: proposed, Reason: "zero weight is not allowed under subtask_based progress"}
	}
	// round2 absorbs float noise from the sum; a genuine overshoot like
	// 100.005 still rounds above 100 and is rejected.
	if round2(wouldBe) > 100 {
		return wouldBe, &WeightExceededError{Proposed: proposed, OthersTotal: othersTotal, WouldBeTotal: wouldBe}
	}
	return wouldBe, nil
}

// RecalculateParentProgress re-derives the initiative's progress from its
// subtasks per its progress_method and persists the value when it changed.
// Returns the resulting progress and whether a write happened.
func (e *Engine) RecalculateParentProgress(ctx context.Context, tenantID, initiativeID int) (float64, bool, error) {
	var result float64
	var updated bool
	err := e.store.InTransaction(ctx, func(tx Store) error {
		var err error
		result, updated, err = recalculate(ctx, tx, tenantID, initiativeID)
		return err
	})
	return result, updated, err
}

// recalculate is the in-transaction body shared by every mutation path.
func recalculate(ctx context.Context, tx Store, tenantID, initiativeID int) (float64, bool, error) {
	init, err := tx.GetInitiative(ctx, tenantID, initiativeID)
	if err != nil {
		return 0, false, fmt.Errorf("load initiative %d: %w", initiativeID, err)
	}
	if init.ProgressMethod == models.ProgressMethodManual {
		return init.Progress, false, nil
	}

	subtasks, err := tx.ListSubtasks(ctx, tenantID, initiativeID)
	if err != nil {
		return 0, false, fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
	}

	countedOnly := init.ProgressMethod == models.ProgressMethodHybrid
	derived := weightedProgress(subtasks, countedOnly)
	if derived == init.Progress {
		return init.Progress, false, nil
	}

	init.Progress = derived
	init.Version++
	if err := tx.SaveInitiative(ctx, init); err != nil {
		return 0, false, fmt.Errorf("save initiative %d: %w", initiativeID, err)
	}
	return derived, true, nil
}

// weightedProgress is round(Σ progress*weight/100). Children without weight
// contribute 0; under hybrid only counted children participate.
func weightedProgress(subtasks []models.Subtask, countedOnly bool) float64 {
	sum := 0.0
	for _, s := range subtasks {
		if countedOnly && !s.IsCounted {
			continue
		}
		sum += s.EffectiveProgress() * s.WeightPercentage / 100
	}
	return math.Round(sum)
}

// ApplyOptimisticUpdate patches one subtask guarded by its version token.
// On a token mismatch nothing is written and a ConcurrencyConflict carrying
// the current version is returned.
func (e *Engine) ApplyOptimisticUpdate(ctx context.Context, tenantID, initiativeID, subtaskID, expectedVersion int, patch models.SubtaskUpdateRequest) (*UpdateResult, error) {
	var result UpdateResult
	err := e.store.InTransaction(ctx, func(tx Store) error {
		init, err := tx.GetInitiative(ctx, tenantID, initiativeID)
		if err != nil {
			return fmt.Errorf("load initiative %d: %w", initiativeID, err)
		}
		sub, err := tx.GetSubtask(ctx, tenantID, initiativeID, subtaskID)
		if err != nil {
			return fmt.Errorf("load subtask %d: %w", subtaskID, err)
		}
		if sub.Version != expectedVersion {
			return &ConcurrencyConflict{
				SubtaskID:       subtaskID,
				ExpectedVersion: expectedVersion,
				CurrentVersion:  sub.Version,
			}
		}

		if patch.WeightPercentage != nil {
			siblings, err := tx.ListSubtasks(ctx, tenantID, initiativeID)
			if err != nil {
				return fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
			}
			if _, err := validateWeight(init, siblings, subtaskID, *patch.WeightPercentage); err != nil {
				return err
			}
			impact := *patch.WeightPercentage - sub.WeightPercentage
			result.WeightImpact = &impact
		}
		if patch.Progress != nil && (*patch.Progress < 0 || *patch.Progress > 100) {
			return &WeightValidationError{Proposed: *patch.Progress, Reason: "progress must be within 0-100"}
		}

		applyPatch(sub, patch)
		sub.Version++
		if err := tx.SaveSubtask(ctx, sub); err != nil {
			return fmt.Errorf("save subtask %d: %w", subtaskID, err)
		}

		result.PreviousProgress = init.Progress
		newProgress, updated, err := recalculate(ctx, tx, tenantID, initiativeID)
		if err != nil {
			return err
		}
		result.NewProgress = newProgress
		result.InitiativeProgressUpdated = updated
		result.Subtask = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func applyPatch(sub *models.Subtask, patch models.SubtaskUpdateRequest) {
	if patch.Title != nil {
		sub.Title = *patch.Title
	}
	if patch.Description != nil {
		sub.Description = *patch.Description
	}
	if patch.Progress != nil {
		sub.Progress = *patch.Progress
	}
	if patch.WeightPercentage != nil {
		sub.WeightPercentage = *patch.WeightPercentage
	}
	if patch.IsCompleted != nil {
		sub.IsCompleted = *patch.IsCompleted
	}
	if patch.IsCounted != nil {
		sub.IsCounted = *patch.IsCounted
	}
	if patch.AssignedToEmail != nil {
		sub.AssignedToEmail = *patch.AssignedToEmail
	}
	if patch.SortOrder != nil {
		sub.SortOrder = *patch.SortOrder
	}
}

// RedistributeWeights re-splits every sibling's weight. equal gives each
// round(100/n, 2); proportional rescales existing weights to sum to exactly
// 100 preserving ratios, falling back to equal when all weights are zero.
// This is an explicit bulk operation, never implicit on single-item edits.
func (e *Engine) RedistributeWeights(ctx context.Context, tenantID, initiativeID int, method string) ([]models.Subtask, error) {
	var out []models.Subtask
	err := e.store.InTransaction(ctx, func(tx Store) error {
		subtasks, err := tx.ListSubtasks(ctx, tenantID, initiativeID)
		if err != nil {
			return fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
		}
		if len(subtasks) == 0 {
			return fmt.Errorf("initiative %d has no subtasks to redistribute", initiativeID)
		}

		weights, err := redistributedWeights(subtasks, method)
		if err != nil {
			return err
		}

		for i := range subtasks {
			if subtasks[i].WeightPercentage == weights[i] {
				continue
			}
			subtasks[i].WeightPercentage = weights[i]
			subtasks[i].Version++
			if err := tx.SaveSubtask(ctx, &subtasks[i]); err != nil {
				return fmt.Errorf("save subtask %d: %w", subtasks[i].ID, err)
			}
		}

		if _, _, err := recalculate(ctx, tx, tenantID, initiativeID); err != nil {
			return err
		}
		out = subtasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func redistributedWeights(subtasks []models.Subtask, method string) ([]float64, error) {
	n := len(subtasks)
	weights := make([]float64, n)

	switch method {
	case models.RedistributionEqual:
		share := round2(100 / float64(n))
		for i := range weights {
			weights[i] = share
		}
	case models.RedistributionRatios:
		total := 0.0
		for _, s := range subtasks {
			total += s.WeightPercentage
		}
		if total == 0 {
			return redistributedWeights(subtasks, models.RedistributionEqual)
		}
		for i, s := range subtasks {
			weights[i] = round2(s.WeightPercentage * 100 / total)
		}
	default:
		return nil, fmt.Errorf("unknown redistribution method %q", method)
	}
	return weights, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reorder rewrites the sort order of an initiative's subtasks. The order
// slice must name every subtask exactly once.
func (e *Engine) Reorder(ctx context.Context, tenantID, initiativeID int, order []int) error {
	return e.store.InTransaction(ctx, func(tx Store) error {
		subtasks, err := tx.ListSubtasks(ctx, tenantID, initiativeID)
		if err != nil {
			return fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
		}
		if len(order) != len(subtasks) {
			return fmt.Errorf("order names %d subtasks, initiative has %d", len(order), len(subtasks))
		}
		byID := make(map[int]*models.Subtask, len(subtasks))
		for i := range subtasks {
			byID[int(subtasks[i].ID)] = &subtasks[i]
		}
		seen := make(map[int]bool, len(order))
		for pos, id := range order {
			sub, ok := byID[id]
			if !ok {
				return fmt.Errorf("subtask %d does not belong to initiative %d", id, initiativeID)
			}
			if seen[id] {
				return fmt.Errorf("subtask %d appears twice in the order", id)
			}
			seen[id] = true
			if sub.SortOrder == pos {
				continue
			}
			sub.SortOrder = pos
			sub.Version++
			if err := tx.SaveSubtask(ctx, sub); err != nil {
				return fmt.Errorf("save subtask %d: %w", id, err)
			}
		}
		return nil
	})
}

// Delete removes a subtask. With redistribute=true the remaining siblings'
// weights are re-split equally; otherwise they are left as-is, which may
// leave the total below 100 (a legal partial state).
func (e *Engine) Delete(ctx context.Context, tenantID, initiativeID, subtaskID int, redistribute bool) error {
	return e.store.InTransaction(ctx, func(tx Store) error {
		if _, err := tx.GetSubtask(ctx, tenantID, initiativeID, subtaskID); err != nil {
			return fmt.Errorf("load subtask %d: %w", subtaskID, err)
		}
		if err := tx.DeleteSubtask(ctx, tenantID, initiativeID, subtaskID); err != nil {
			return fmt.Errorf("delete subtask %d: %w", subtaskID, err)
		}

		if redistribute {
			remaining, err := tx.ListSubtasks(ctx, tenantID, initiativeID)
			if err != nil {
				return fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
			}
			if len(remaining) > 0 {
				weights, err := redistributedWeights(remaining, models.RedistributionEqual)
				if err != nil {
					return err
				}
				for i := range remaining {
					if remaining[i].WeightPercentage == weights[i] {
						continue
					}
					remaining[i].WeightPercentage = weights[i]
					remaining[i].Version++
					if err := tx.SaveSubtask(ctx, &remaining[i]); err != nil {
						return fmt.Errorf("save subtask %d: %w", remaining[i].ID, err)
					}
				}
			}
		}

		_, _, err := recalculate(ctx, tx, tenantID, initiativeID)
		return err
	})
}

// WeightSummary reports the weight aggregate state machine value for an
// initiative: unassigned (0) → partial (<100) → balanced (100). A total
// above 100 can never be observed at rest.
func (e *Engine) WeightSummary(ctx context.Context, tenantID, initiativeID int) (*models.WeightSummaryResponse, error) {
	subtasks, err := e.store.ListSubtasks(ctx, tenantID, initiativeID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks of initiative %d: %w", initiativeID, err)
	}

	total := 0.0
	allocations := make([]models.WeightAllocationEntry, 0, len(subtasks))
	for _, s := range subtasks {
		total += s.WeightPercentage
		allocations = append(allocations, models.WeightAllocationEntry{
			SubtaskID:        int(s.ID),
			Title:            s.Title,
			WeightPercentage: s.WeightPercentage,
			IsCounted:        s.IsCounted,
		})
	}
	total = round2(total)

	state := WeightStatePartial
	switch {
	case total == 0:
		state = WeightStateUnassigned
	case math.Abs(total-100) <= weightEpsilon:
		state = WeightStateBalanced
	}

	return &models.WeightSummaryResponse{
		InitiativeID: initiativeID,
		State:        state,
		TotalWeight:  total,
		Remaining:    round2(100 - total),
		Allocations:  allocations,
	}, nil
}
