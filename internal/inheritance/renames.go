package inheritance

import (
	"context"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// StepRename records a step whose name changed from Old to New.
type StepRename struct {
	Old string
	New string
}

// RenameMap holds the step renames of a save, keyed by scenario id.
type RenameMap map[string][]StepRename

// Add records a rename of a step of scenarioID.
func (m RenameMap) Add(scenarioID, oldName, newName string) {
	m[scenarioID] = append(m[scenarioID], StepRename{Old: oldName, New: newName})
}

// Previous returns the name a step of scenarioID had before it was renamed
// to newName.
func (m RenameMap) Previous(scenarioID, newName string) (string, bool) {
	for _, rename := range m[scenarioID] {
		if rename.New == newName {
			return rename.Old, true
		}
	}
	return "", false
}

// FindRenamedSteps compares the incoming steps that carry an id with the
// stored steps and returns the ones whose name changed. It must run before
// the scenarios are saved.
func FindRenamedSteps(ctx context.Context, store Store, scenarios []*domain.Scenario) (RenameMap, error) {
	renames := make(RenameMap)

	incoming := make(map[string]string)
	for _, sc := range scenarios {
		if sc.ID == "" {
			continue
		}
		for _, step := range sc.Steps {
			if step.ID != "" && step.Name != "" {
				incoming[step.ID] = step.Name
			}
		}
	}
	if len(incoming) == 0 {
		return renames, nil
	}

	ids := make([]string, 0, len(incoming))
	for id := range incoming {
		ids = append(ids, id)
	}
	stored, err := store.GetStepsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, step := range stored {
		if name := incoming[step.ID]; name != step.Name {
			renames.Add(step.ScenarioID, step.Name, name)
		}
	}
	return renames, nil
}
