package scenario

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/itemkey"
)

type itemSpec struct {
	kind      domain.ItemKind
	name      string
	valueType int
	units     string
}

var scenarioItemSpecs = []itemSpec{
	{domain.ItemDownloadRate, `Download speed for scenario "%s".`, domain.ValueTypeFloat, "Bps"},
	{domain.ItemFailedStep, `Failed step of scenario "%s".`, domain.ValueTypeUint64, ""},
	{domain.ItemLastError, `Last error message of scenario "%s".`, domain.ValueTypeString, ""},
}

var stepItemSpecs = []itemSpec{
	{domain.ItemDownloadRate, `Download speed for step "%[2]s" of scenario "%[1]s".`, domain.ValueTypeFloat, "Bps"},
	{domain.ItemResponseTime, `Response time for step "%[2]s" of scenario "%[1]s".`, domain.ValueTypeFloat, "s"},
	{domain.ItemResponseCode, `Response code for step "%[2]s" of scenario "%[1]s".`, domain.ValueTypeUint64, ""},
}

func specFor(specs []itemSpec, kind domain.ItemKind) (itemSpec, bool) {
	for _, spec := range specs {
		if spec.kind == kind {
			return spec, true
		}
	}
	return itemSpec{}, false
}

// parentItems maps item keys of the scenario sc was inherited from to their
// ids. It is empty for local scenarios.
func (m *Manager) parentItems(ctx context.Context, sc *domain.Scenario) (map[string]string, error) {
	byKey := make(map[string]string)
	if !sc.IsInherited() {
		return byKey, nil
	}
	items, err := m.store.ListScenarioItems(ctx, *sc.OriginID)
	if err != nil {
		return nil, fmt.Errorf("loading template items: %w", err)
	}
	for _, item := range items {
		byKey[item.Key] = item.ID
	}
	return byKey, nil
}

func newItem(sc *domain.Scenario, spec itemSpec, key, name string, parentItems map[string]string) *domain.CheckItem {
	item := &domain.CheckItem{
		ID:         uuid.New().String(),
		HostID:     sc.HostID,
		ScenarioID: sc.ID,
		Kind:       spec.kind,
		Key:        key,
		Name:       name,
		ValueType:  spec.valueType,
		Units:      spec.units,
		Delay:      sc.Delay,
		Status:     domain.ItemStatusFor(sc.Status),
		History:    domain.ItemHistoryDays,
		Trends:     domain.ItemTrendsDays,
	}
	if parentID, ok := parentItems[key]; ok {
		item.OriginID = domain.StringPtr(parentID)
	}
	return item
}

func (m *Manager) createScenarioItems(ctx context.Context, sc *domain.Scenario, parentItems map[string]string) error {
	for _, spec := range scenarioItemSpecs {
		key := itemkey.ScenarioKey(spec.kind, sc.Name)
		item := newItem(sc, spec, key, fmt.Sprintf(spec.name, sc.Name), parentItems)
		if err := m.store.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("creating item %s: %w", key, err)
		}
	}
	return nil
}

func (m *Manager) createStepItems(ctx context.Context, sc *domain.Scenario, step *domain.Step, parentItems map[string]string) error {
	for _, spec := range stepItemSpecs {
		key := itemkey.StepKey(spec.kind, sc.Name, step.Name)
		item := newItem(sc, spec, key, fmt.Sprintf(spec.name, sc.Name, step.Name), parentItems)
		item.StepID = domain.StringPtr(step.ID)
		if err := m.store.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("creating item %s: %w", key, err)
		}
	}
	return nil
}

// syncItems brings the key, name, status and delay of every item of sc in
// line with the scenario and its steps.
func (m *Manager) syncItems(ctx context.Context, sc *domain.Scenario) error {
	items, err := m.store.ListScenarioItems(ctx, sc.ID)
	if err != nil {
		return err
	}
	steps := make(map[string]*domain.Step, len(sc.Steps))
	for i := range sc.Steps {
		steps[sc.Steps[i].ID] = &sc.Steps[i]
	}

	type itemUpdate struct {
		item      *domain.CheckItem
		key, name string
	}
	var updates []itemUpdate
	holders := make(map[string]string, len(items))
	status := domain.ItemStatusFor(sc.Status)
	for _, item := range items {
		holders[item.Key] = item.ID

		var key, name string
		if item.StepID == nil {
			spec, ok := specFor(scenarioItemSpecs, item.Kind)
			if !ok {
				continue
			}
			key = itemkey.ScenarioKey(item.Kind, sc.Name)
			name = fmt.Sprintf(spec.name, sc.Name)
		} else {
			step, ok := steps[*item.StepID]
			if !ok {
				continue
			}
			spec, ok := specFor(stepItemSpecs, item.Kind)
			if !ok {
				continue
			}
			key = itemkey.StepKey(item.Kind, sc.Name, step.Name)
			name = fmt.Sprintf(spec.name, sc.Name, step.Name)
		}

		if item.Key == key && item.Name == name && item.Status == status && item.Delay == sc.Delay {
			continue
		}
		updates = append(updates, itemUpdate{item: item, key: key, name: name})
	}

	// Swapped step names swap item keys; park the moving keys first.
	collides := false
	for _, u := range updates {
		if holder, ok := holders[u.key]; ok && holder != u.item.ID {
			collides = true
			break
		}
	}
	if collides {
		for _, u := range updates {
			if u.item.Key == u.key {
				continue
			}
			u.item.Key = placeholder(u.item.ID)
			if err := m.store.UpdateItem(ctx, u.item); err != nil {
				return fmt.Errorf("parking item %s: %w", u.item.ID, err)
			}
		}
	}

	for _, u := range updates {
		u.item.Key = u.key
		u.item.Name = u.name
		u.item.Status = status
		u.item.Delay = sc.Delay
		if err := m.store.UpdateItem(ctx, u.item); err != nil {
			return fmt.Errorf("updating item %s: %w", u.item.ID, err)
		}
	}
	return nil
}
