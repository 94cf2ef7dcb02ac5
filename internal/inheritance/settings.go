package inheritance

import (
	"context"
	"fmt"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// Setting is a scenario value that an inherited copy may override on its
// host. Name and steps always follow the template.
type Setting uint8

const (
	SettingDelay Setting = 1 << iota
	SettingStatus
	SettingAgent
	SettingRetries
	SettingHeaders
	SettingVariables
)

// SettingChanges holds, per scenario id, the settings a save changed.
// Propagation copies only those onto existing copies and keeps the copies'
// own values for the rest.
type SettingChanges map[string]Setting

// Has reports whether scenarioID changed setting.
func (c SettingChanges) Has(scenarioID string, setting Setting) bool {
	return c[scenarioID]&setting != 0
}

// FindChangedSettings compares incoming scenarios that carry an id with the
// stored ones and returns the settings each of them changes. It must run
// before the scenarios are saved. Empty values count as their defaults.
func FindChangedSettings(ctx context.Context, store Store, scenarios []*domain.Scenario) (SettingChanges, error) {
	changes := make(SettingChanges)
	for _, sc := range scenarios {
		if sc.ID == "" {
			continue
		}
		stored, err := store.GetScenario(ctx, sc.ID)
		if err != nil {
			return nil, fmt.Errorf("loading web scenario %s: %w", sc.ID, err)
		}
		if changed := diffSettings(stored, sc); changed != 0 {
			changes[sc.ID] = changed
		}
	}
	return changes, nil
}

func diffSettings(stored, incoming *domain.Scenario) Setting {
	var changed Setting
	if orDefault(incoming.Delay, domain.DefaultDelay) != orDefault(stored.Delay, domain.DefaultDelay) {
		changed |= SettingDelay
	}
	if incoming.Status != stored.Status {
		changed |= SettingStatus
	}
	if orDefault(incoming.Agent, domain.DefaultAgent) != orDefault(stored.Agent, domain.DefaultAgent) {
		changed |= SettingAgent
	}
	if max(incoming.Retries, 1) != max(stored.Retries, 1) {
		changed |= SettingRetries
	}
	if !domain.FieldsEqual(incoming.Headers, stored.Headers) {
		changed |= SettingHeaders
	}
	if !domain.FieldsEqual(incoming.Variables, stored.Variables) {
		changed |= SettingVariables
	}
	return changed
}

// keepLocalSettings copies the settings of existing that the template did
// not change onto c.
func keepLocalSettings(c, existing *domain.Scenario, changed Setting) {
	if changed&SettingDelay == 0 {
		c.Delay = existing.Delay
	}
	if changed&SettingStatus == 0 {
		c.Status = existing.Status
	}
	if changed&SettingAgent == 0 {
		c.Agent = existing.Agent
	}
	if changed&SettingRetries == 0 {
		c.Retries = existing.Retries
	}
	if changed&SettingHeaders == 0 {
		c.Headers = append([]domain.Field(nil), existing.Headers...)
	}
	if changed&SettingVariables == 0 {
		c.Variables = append([]domain.Field(nil), existing.Variables...)
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
