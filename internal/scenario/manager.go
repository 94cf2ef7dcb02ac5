// Package scenario writes web scenarios, their steps and their check items,
// and hands saved template scenarios to the inheritance propagator.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/inheritance"
	"github.com/bcnelson/webscenario-manager/internal/storage"
)

// Manager applies scenario changes to a store. It does not open
// transactions; callers hand it a storage.Transaction and commit it.
type Manager struct {
	store      storage.Storage
	propagator *inheritance.Propagator
	logger     *zap.Logger
}

// NewManager creates a Manager working on store.
func NewManager(store storage.Storage, logger *zap.Logger, maxDepth int) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		logger: logger,
	}
	m.propagator = inheritance.NewPropagator(store, m, logger, maxDepth)
	return m
}

// Persist saves scenarios and propagates them to every host linked to their
// owners.
func (m *Manager) Persist(ctx context.Context, scenarios []*domain.Scenario) ([]*domain.Scenario, *inheritance.Report, error) {
	renames, err := inheritance.FindRenamedSteps(ctx, m.store, scenarios)
	if err != nil {
		return nil, nil, fmt.Errorf("finding renamed steps: %w", err)
	}
	changes, err := inheritance.FindChangedSettings(ctx, m.store, scenarios)
	if err != nil {
		return nil, nil, fmt.Errorf("finding changed settings: %w", err)
	}

	result, err := m.Save(ctx, scenarios)
	if err != nil {
		return nil, nil, err
	}

	report, err := m.propagator.Propagate(ctx, result.Scenarios, nil, renames, changes)
	if err != nil {
		return nil, report, err
	}
	return result.Scenarios, report, nil
}

// Save creates the scenarios without an id and updates the others.
func (m *Manager) Save(ctx context.Context, scenarios []*domain.Scenario) (*inheritance.SaveResult, error) {
	result := &inheritance.SaveResult{Scenarios: scenarios}
	for _, sc := range scenarios {
		if sc.ID == "" {
			if err := m.create(ctx, sc); err != nil {
				return nil, fmt.Errorf("creating web scenario %q: %w", sc.Name, err)
			}
			result.Created++
			continue
		}

		changed, err := m.update(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("updating web scenario %q: %w", sc.Name, err)
		}
		if changed {
			result.Updated++
		} else {
			result.Unchanged++
		}
	}
	return result, nil
}

// Link propagates every scenario of templateID to hostIDs. Copies that
// already exist keep their own settings.
func (m *Manager) Link(ctx context.Context, templateID string, hostIDs []string) (*inheritance.Report, error) {
	scenarios, err := m.store.ListScenarios(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return &inheritance.Report{Parents: make(inheritance.ParentChain)}, nil
	}
	return m.propagator.Propagate(ctx, scenarios, hostIDs, nil, nil)
}

// Adopt makes childID an inherited copy of parentID and links the child's
// check items to the parent's items with the same key.
func (m *Manager) Adopt(ctx context.Context, parentID, childID string) error {
	if err := m.store.SetScenarioOrigin(ctx, childID, domain.StringPtr(parentID)); err != nil {
		return err
	}

	parentItems, err := m.store.ListScenarioItems(ctx, parentID)
	if err != nil {
		return err
	}
	byKey := make(map[string]string, len(parentItems))
	for _, item := range parentItems {
		byKey[item.Key] = item.ID
	}

	childItems, err := m.store.ListScenarioItems(ctx, childID)
	if err != nil {
		return err
	}
	for _, item := range childItems {
		parentItemID, ok := byKey[item.Key]
		if !ok {
			continue
		}
		item.OriginID = domain.StringPtr(parentItemID)
		if err := m.store.UpdateItem(ctx, item); err != nil {
			return err
		}
	}

	m.logger.Info("adopted web scenario",
		zap.String("scenario_id", childID),
		zap.String("origin_id", parentID))
	return nil
}

// Delete removes scenarios together with every copy inherited from them.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	return m.deleteTree(ctx, ids, make(map[string]bool))
}

func (m *Manager) deleteTree(ctx context.Context, ids []string, visited map[string]bool) error {
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if !visited[id] {
			visited[id] = true
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	children, err := m.store.ListScenariosByOrigin(ctx, pending)
	if err != nil {
		return err
	}
	childIDs := make([]string, len(children))
	for i, child := range children {
		childIDs[i] = child.ID
	}
	if err := m.deleteTree(ctx, childIDs, visited); err != nil {
		return err
	}

	for _, id := range pending {
		if err := m.store.DeleteScenario(ctx, id); err != nil {
			return fmt.Errorf("deleting web scenario %s: %w", id, err)
		}
	}
	return nil
}

// Unlink handles the scenarios hostID inherited from templateID when the
// link between them is removed. With clear the copies are deleted; otherwise
// they and their items are detached and become local scenarios of the host.
func (m *Manager) Unlink(ctx context.Context, hostID, templateID string, clear bool) (int, error) {
	copies, err := m.inheritedFrom(ctx, hostID, templateID)
	if err != nil {
		return 0, err
	}
	if len(copies) == 0 {
		return 0, nil
	}

	if clear {
		ids := make([]string, len(copies))
		for i, sc := range copies {
			ids[i] = sc.ID
		}
		return len(copies), m.Delete(ctx, ids)
	}

	for _, sc := range copies {
		if err := m.store.SetScenarioOrigin(ctx, sc.ID, nil); err != nil {
			return 0, err
		}
		items, err := m.store.ListScenarioItems(ctx, sc.ID)
		if err != nil {
			return 0, err
		}
		for _, item := range items {
			if item.OriginID == nil {
				continue
			}
			item.OriginID = nil
			if err := m.store.UpdateItem(ctx, item); err != nil {
				return 0, err
			}
		}
	}
	return len(copies), nil
}

func (m *Manager) inheritedFrom(ctx context.Context, hostID, templateID string) ([]*domain.Scenario, error) {
	templateScenarios, err := m.store.ListScenarios(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(templateScenarios) == 0 {
		return nil, nil
	}
	ids := make([]string, len(templateScenarios))
	for i, sc := range templateScenarios {
		ids[i] = sc.ID
	}

	inherited, err := m.store.ListScenariosByOrigin(ctx, ids)
	if err != nil {
		return nil, err
	}
	copies := make([]*domain.Scenario, 0, len(inherited))
	for _, sc := range inherited {
		if sc.HostID == hostID {
			copies = append(copies, sc)
		}
	}
	return copies, nil
}

func (m *Manager) create(ctx context.Context, sc *domain.Scenario) error {
	now := time.Now()
	sc.ID = uuid.New().String()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	applyScenarioDefaults(sc)

	if err := m.store.CreateScenario(ctx, sc); err != nil {
		return err
	}

	parentItems, err := m.parentItems(ctx, sc)
	if err != nil {
		return err
	}
	if err := m.createScenarioItems(ctx, sc, parentItems); err != nil {
		return err
	}
	for i := range sc.Steps {
		if err := m.createStep(ctx, sc, &sc.Steps[i], parentItems); err != nil {
			return err
		}
	}

	m.logger.Debug("created web scenario",
		zap.String("scenario_id", sc.ID),
		zap.String("host_id", sc.HostID),
		zap.String("name", sc.Name))
	return nil
}

func (m *Manager) createStep(ctx context.Context, sc *domain.Scenario, step *domain.Step, parentItems map[string]string) error {
	step.ID = uuid.New().String()
	step.ScenarioID = sc.ID
	applyStepDefaults(step)

	if err := m.store.CreateStep(ctx, step); err != nil {
		return fmt.Errorf("creating step %q: %w", step.Name, err)
	}
	return m.createStepItems(ctx, sc, step, parentItems)
}

// update writes the differences between sc and the stored scenario and
// reports whether anything was written.
func (m *Manager) update(ctx context.Context, sc *domain.Scenario) (bool, error) {
	stored, err := m.store.GetScenario(ctx, sc.ID)
	if err != nil {
		return false, err
	}
	sc.HostID = stored.HostID
	sc.CreatedAt = stored.CreatedAt
	applyScenarioDefaults(sc)

	changed := false
	if !rowEqual(stored, sc) {
		if err := m.store.UpdateScenario(ctx, sc); err != nil {
			return false, err
		}
		changed = true
	} else {
		sc.UpdatedAt = stored.UpdatedAt
	}

	storedBuckets := stored.Buckets()
	for fieldType, fields := range sc.Buckets() {
		if domain.FieldsEqual(storedBuckets[fieldType], fields) {
			continue
		}
		if err := m.store.ReplaceScenarioFields(ctx, sc.ID, fieldType, fields); err != nil {
			return false, err
		}
		changed = true
	}

	stepsChanged, pending, err := m.syncSteps(ctx, sc, stored)
	if err != nil {
		return false, err
	}
	changed = changed || stepsChanged

	if changed {
		if err := m.syncItems(ctx, sc); err != nil {
			return false, err
		}
	}

	// New steps are created last: a new step may reuse the name, and so the
	// item keys, of a step renamed in the same update.
	if len(pending) > 0 {
		parentItems, err := m.parentItems(ctx, sc)
		if err != nil {
			return false, err
		}
		for _, i := range pending {
			if err := m.createStep(ctx, sc, &sc.Steps[i], parentItems); err != nil {
				return false, err
			}
		}
		changed = true
	}

	if changed {
		m.logger.Debug("updated web scenario",
			zap.String("scenario_id", sc.ID),
			zap.String("host_id", sc.HostID),
			zap.String("name", sc.Name))
	}
	return changed, nil
}

// syncSteps updates incoming steps that match a stored step by id and deletes
// stored steps that are no longer listed. It returns the indexes of the
// incoming steps without a match, which the caller creates.
func (m *Manager) syncSteps(ctx context.Context, sc, stored *domain.Scenario) (bool, []int, error) {
	storedByID := make(map[string]domain.Step, len(stored.Steps))
	for _, step := range stored.Steps {
		storedByID[step.ID] = step
	}

	var toUpdate, toCreate []int
	for i := range sc.Steps {
		step := &sc.Steps[i]
		if _, ok := storedByID[step.ID]; ok && step.ID != "" {
			toUpdate = append(toUpdate, i)
			continue
		}
		toCreate = append(toCreate, i)
	}

	listed := make(map[string]bool, len(toUpdate))
	for _, i := range toUpdate {
		listed[sc.Steps[i].ID] = true
	}
	var removed []string
	for _, step := range stored.Steps {
		if !listed[step.ID] {
			removed = append(removed, step.ID)
		}
	}

	changed := false

	// Removed steps go first so their names and item keys are free again.
	if len(removed) > 0 {
		items, err := m.store.ListStepItems(ctx, removed)
		if err != nil {
			return false, nil, err
		}
		itemIDs := make([]string, len(items))
		for i, item := range items {
			itemIDs[i] = item.ID
		}
		if err := m.store.DeleteItems(ctx, itemIDs); err != nil {
			return false, nil, err
		}
		if err := m.store.DeleteSteps(ctx, removed); err != nil {
			return false, nil, err
		}
		for _, id := range removed {
			delete(storedByID, id)
		}
		changed = true
	}

	if err := m.parkRenamedSteps(ctx, sc, toUpdate, storedByID); err != nil {
		return false, nil, err
	}

	for _, i := range toUpdate {
		step := &sc.Steps[i]
		step.ScenarioID = sc.ID
		applyStepDefaults(step)
		prev := storedByID[step.ID]

		if !stepRowEqual(&prev, step) {
			if err := m.store.UpdateStep(ctx, step); err != nil {
				return false, nil, fmt.Errorf("updating step %q: %w", step.Name, err)
			}
			changed = true
		}
		prevBuckets := prev.Buckets()
		for fieldType, fields := range step.Buckets() {
			if domain.FieldsEqual(prevBuckets[fieldType], fields) {
				continue
			}
			if err := m.store.ReplaceStepFields(ctx, step.ID, fieldType, fields); err != nil {
				return false, nil, err
			}
			changed = true
		}
	}
	return changed, toCreate, nil
}

// parkRenamedSteps moves renamed steps to a placeholder name when one of them
// takes a name another stored step still holds, as in a swap. The following
// updates then never pass through a duplicate name. storedByID is updated
// with the placeholder names.
func (m *Manager) parkRenamedSteps(ctx context.Context, sc *domain.Scenario, toUpdate []int, storedByID map[string]domain.Step) error {
	holders := make(map[string]string, len(storedByID))
	for id, step := range storedByID {
		holders[step.Name] = id
	}

	var renamed []int
	collides := false
	for _, i := range toUpdate {
		step := &sc.Steps[i]
		if storedByID[step.ID].Name == step.Name {
			continue
		}
		renamed = append(renamed, i)
		if holder, ok := holders[step.Name]; ok && holder != step.ID {
			collides = true
		}
	}
	if !collides {
		return nil
	}

	for _, i := range renamed {
		prev := storedByID[sc.Steps[i].ID]
		prev.Name = placeholder(prev.ID)
		if err := m.store.UpdateStep(ctx, &prev); err != nil {
			return fmt.Errorf("parking step %q: %w", sc.Steps[i].Name, err)
		}
		storedByID[prev.ID] = prev
	}
	return nil
}

// placeholder is a temporary step name or item key derived from a row id.
func placeholder(id string) string {
	return "~" + id
}

func applyScenarioDefaults(sc *domain.Scenario) {
	if sc.Delay == "" {
		sc.Delay = domain.DefaultDelay
	}
	if sc.Agent == "" {
		sc.Agent = domain.DefaultAgent
	}
	if sc.Retries < 1 {
		sc.Retries = 1
	}
	if sc.Headers == nil {
		sc.Headers = []domain.Field{}
	}
	if sc.Variables == nil {
		sc.Variables = []domain.Field{}
	}
}

// applyStepDefaults fills defaults and keeps the raw body and the form
// fields mutually exclusive according to PostType.
func applyStepDefaults(step *domain.Step) {
	if step.Timeout == "" {
		step.Timeout = domain.DefaultTimeout
	}
	if step.PostType == domain.PostTypeForm {
		step.Posts = ""
	} else {
		step.PostFields = nil
	}
	if step.Headers == nil {
		step.Headers = []domain.Field{}
	}
	if step.Variables == nil {
		step.Variables = []domain.Field{}
	}
	if step.QueryFields == nil {
		step.QueryFields = []domain.Field{}
	}
	if step.PostFields == nil {
		step.PostFields = []domain.Field{}
	}
}

func rowEqual(a, b *domain.Scenario) bool {
	return a.Name == b.Name &&
		a.Delay == b.Delay &&
		a.Status == b.Status &&
		a.Agent == b.Agent &&
		a.Retries == b.Retries &&
		originEqual(a.OriginID, b.OriginID)
}

func stepRowEqual(a, b *domain.Step) bool {
	return a.No == b.No &&
		a.Name == b.Name &&
		a.URL == b.URL &&
		a.Timeout == b.Timeout &&
		a.Posts == b.Posts &&
		a.PostType == b.PostType &&
		a.Required == b.Required &&
		a.StatusCodes == b.StatusCodes &&
		a.FollowRedirects == b.FollowRedirects
}

func originEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
