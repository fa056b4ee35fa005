package importer

import (
	"context"
	"fmt"
	"sort"

	"stratix/models"
)

// Store is the tenant-scoped persistence surface the import pipeline writes
// through. Every method takes the tenant id explicitly; implementations must
// never widen a query beyond it. FindXByTitle methods compare titles
// case-insensitively and return every hit in the scope.
type Store interface {
	FindAreaByName(ctx context.Context, tenantID int, name string) (*models.Area, error)
	CreateArea(ctx context.Context, area *models.Area) error

	FindObjectivesByTitle(ctx context.Context, tenantID int, areaID *int, title string) ([]models.Objective, error)
	CreateObjective(ctx context.Context, o *models.Objective) error
	UpdateObjective(ctx context.Context, o *models.Objective) error

	FindInitiativesByTitle(ctx context.Context, tenantID int, areaID int, objectiveID *int, title string) ([]models.Initiative, error)
	CreateInitiative(ctx context.Context, i *models.Initiative) error
	UpdateInitiative(ctx context.Context, i *models.Initiative) error

	FindSubtasksByTitle(ctx context.Context, tenantID int, initiativeID int, title string) ([]models.Subtask, error)
	CreateSubtask(ctx context.Context, s *models.Subtask) error
	UpdateSubtask(ctx context.Context, s *models.Subtask) error

	// InTransaction runs fn against a transactional view of the store. A
	// non-nil error from fn rolls everything back.
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}

// Matcher resolves candidate titles to existing entities within their scope:
// objective scope = tenant (+ optional area), initiative scope = objective or
// area, activity scope = initiative. A nil entity result means "to create".
type Matcher struct {
	store Store
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// ambiguityWarning names the duplicate set once for the job item record.
func ambiguityWarning(level, title string, n int, chosenID uint) string {
	return fmt.Sprintf("ambiguous match: %d existing %ss titled %q, using earliest-created (id %d)", n, level, title, chosenID)
}

// MatchObjective finds the objective for a title within tenant (+area).
// Multiple hits pick the earliest-created with a warning, so batch imports
// stay non-blocking while the ambiguity is still surfaced.
func (m *Matcher) MatchObjective(ctx context.Context, tenantID int, areaID *int, title string) (*models.Objective, string, error) {
	matches, err := m.store.FindObjectivesByTitle(ctx, tenantID, areaID, title)
	if err != nil {
		return nil, "", fmt.Errorf("match objective %q: %w", title, err)
	}
	if len(matches) == 0 {
		return nil, "", nil
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].CreatedAt.Equal(matches[b].CreatedAt) {
			return matches[a].ID < matches[b].ID
		}
		return matches[a].CreatedAt.Before(matches[b].CreatedAt)
	})
	chosen := matches[0]
	warning := ""
	if len(matches) > 1 {
		warning = ambiguityWarning("objective", title, len(matches), chosen.ID)
	}
	return &chosen, warning, nil
}

// MatchInitiative finds the initiative for a title under the resolved
// objective, or under the area when the row has no objective.
func (m *Matcher) MatchInitiative(ctx context.Context, tenantID int, areaID int, objectiveID *int, title string) (*models.Initiative, string, error) {
	matches, err := m.store.FindInitiativesByTitle(ctx, tenantID, areaID, objectiveID, title)
	if err != nil {
		return nil, "", fmt.Errorf("match initiative %q: %w", title, err)
	}
	if len(matches) == 0 {
		return nil, "", nil
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].CreatedAt.Equal(matches[b].CreatedAt) {
			return matches[a].ID < matches[b].ID
		}
		return matches[a].CreatedAt.Before(matches[b].CreatedAt)
	})
	chosen := matches[0]
	warning := ""
	if len(matches) > 1 {
		warning = ambiguityWarning("initiative", title, len(matches), chosen.ID)
	}
	return &chosen, warning, nil
}

// MatchActivity finds the subtask for a title under the resolved initiative.
func (m *Matcher) MatchActivity(ctx context.Context, tenantID int, initiativeID int, title string) (*models.Subtask, string, error) {
	matches, err := m.store.FindSubtasksByTitle(ctx, tenantID, initiativeID, title)
	if err != nil {
		return nil, "", fmt.Errorf("match activity %q: %w", title, err)
	}
	if len(matches) == 0 {
		return nil, "", nil
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].CreatedAt.Equal(matches[b].CreatedAt) {
			return matches[a].ID < matches[b].ID
		}
		return matches[a].CreatedAt.Before(matches[b].CreatedAt)
	})
	chosen := matches[0]
	warning := ""
	if len(matches) > 1 {
		warning = ambiguityWarning("activity", title, len(matches), chosen.ID)
	}
	return &chosen, warning, nil
}

// ResolveArea maps a row's area name to an id, creating the area on first
// use. When the row names no area the job's default applies; an initiative
// without either cannot be placed.
func (m *Matcher) ResolveArea(ctx context.Context, tenantID int, areaName string, defaultAreaID *int) (*int, error) {
	if areaName == "" {
		return defaultAreaID, nil
	}
	area, err := m.store.FindAreaByName(ctx, tenantID, areaName)
	if err != nil {
		return nil, fmt.Errorf("resolve area %q: %w", areaName, err)
	}
	if area == nil {
		area = &models.Area{TenantID: tenantID, Name: areaName}
		if err := m.store.CreateArea(ctx, area); err != nil {
			return nil, fmt.Errorf("create area %q: %w", areaName, err)
		}
	}
	id := int(area.ID)
	return &id, nil
}
