package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/storage"
)

type linkKey struct {
	hostID     string
	templateID string
}

// state holds every table. Values are stored by value and cloned on the way
// in and out, so a shallow copy of the maps is an independent snapshot.
type state struct {
	apiKeys   map[string]domain.APIKey
	hosts     map[string]domain.Host
	links     map[linkKey]domain.TemplateLink
	scenarios map[string]domain.Scenario // Steps always nil
	steps     map[string]domain.Step
	items     map[string]domain.CheckItem
}

func newState() *state {
	return &state{
		apiKeys:   make(map[string]domain.APIKey),
		hosts:     make(map[string]domain.Host),
		links:     make(map[linkKey]domain.TemplateLink),
		scenarios: make(map[string]domain.Scenario),
		steps:     make(map[string]domain.Step),
		items:     make(map[string]domain.CheckItem),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.apiKeys {
		c.apiKeys[k] = v
	}
	for k, v := range st.hosts {
		c.hosts[k] = v
	}
	for k, v := range st.links {
		c.links[k] = v
	}
	for k, v := range st.scenarios {
		c.scenarios[k] = v
	}
	for k, v := range st.steps {
		c.steps[k] = v
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	return c
}

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu   sync.RWMutex
	data *state
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) Close() error { return nil }

// BeginTx starts a transaction working on a snapshot of the store. Commit
// publishes the snapshot; the last commit wins.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()
	return &Tx{Store: &Store{data: snapshot}, parent: s}, nil
}

// Tx is a snapshot transaction for the in-memory store.
type Tx struct {
	*Store
	parent *Store
	done   bool
}

func (t *Tx) Commit() error {
	if t.done {
		return domain.ErrInvalidInput
	}
	t.done = true
	t.Store.mu.RLock()
	data := t.Store.data
	t.Store.mu.RUnlock()
	t.parent.mu.Lock()
	t.parent.data = data
	t.parent.mu.Unlock()
	return nil
}

func (t *Tx) Rollback() error {
	t.done = true
	return nil
}

func (t *Tx) Close() error { return nil }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

func inSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data.apiKeys[key.ID] = *key
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.data.apiKeys {
		if key.KeyHash == keyHash {
			k := key
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.data.apiKeys))
	for _, key := range s.data.apiKeys {
		k := key
		keys = append(keys, &k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.data.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	s.data.apiKeys[id] = key
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.apiKeys), nil
}

// ============================================
// Hosts
// ============================================

func (s *Store) CreateHost(ctx context.Context, host *domain.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.data.hosts {
		if h.ID == host.ID || h.Name == host.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.data.hosts[host.ID] = *host
	return nil
}

func (s *Store) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, exists := s.data.hosts[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &host, nil
}

func (s *Store) GetHostByName(ctx context.Context, name string) (*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, host := range s.data.hosts {
		if host.Name == name {
			h := host
			return &h, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]*domain.Host, 0, len(s.data.hosts))
	for _, host := range s.data.hosts {
		h := host
		hosts = append(hosts, &h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

func (s *Store) UpdateHost(ctx context.Context, host *domain.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.hosts[host.ID]; !exists {
		return domain.ErrNotFound
	}
	for _, h := range s.data.hosts {
		if h.ID != host.ID && h.Name == host.Name {
			return domain.ErrAlreadyExists
		}
	}
	host.UpdatedAt = time.Now()
	s.data.hosts[host.ID] = *host
	return nil
}

func (s *Store) DeleteHost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.hosts[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.hosts, id)
	for key := range s.data.links {
		if key.hostID == id || key.templateID == id {
			delete(s.data.links, key)
		}
	}
	for sid, sc := range s.data.scenarios {
		if sc.HostID == id {
			s.deleteScenarioLocked(sid)
		}
	}
	return nil
}

// ============================================
// Template links
// ============================================

func (s *Store) CreateTemplateLink(ctx context.Context, link *domain.TemplateLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{hostID: link.HostID, templateID: link.TemplateID}
	if _, exists := s.data.links[key]; exists {
		return domain.ErrAlreadyExists
	}
	s.data.links[key] = *link
	return nil
}

func (s *Store) DeleteTemplateLink(ctx context.Context, hostID, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{hostID: hostID, templateID: templateID}
	if _, exists := s.data.links[key]; !exists {
		return domain.ErrNotFound
	}
	delete(s.data.links, key)
	return nil
}

func (s *Store) ListTemplateLinks(ctx context.Context, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	templates := inSet(templateIDs)
	hosts := inSet(hostIDs)
	links := make([]*domain.TemplateLink, 0)
	for _, link := range s.data.links {
		if !templates[link.TemplateID] {
			continue
		}
		if len(hostIDs) > 0 && !hosts[link.HostID] {
			continue
		}
		l := link
		links = append(links, &l)
	}
	sortLinks(links)
	return links, nil
}

func (s *Store) ListHostTemplates(ctx context.Context, hostID string) ([]*domain.TemplateLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make([]*domain.TemplateLink, 0)
	for _, link := range s.data.links {
		if link.HostID == hostID {
			l := link
			links = append(links, &l)
		}
	}
	sortLinks(links)
	return links, nil
}

func sortLinks(links []*domain.TemplateLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].HostID != links[j].HostID {
			return links[i].HostID < links[j].HostID
		}
		return links[i].TemplateID < links[j].TemplateID
	})
}

// ============================================
// Scenarios
// ============================================

func (s *Store) CreateScenario(ctx context.Context, scenario *domain.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.hosts[scenario.HostID]; !exists {
		return domain.ErrNotFound
	}
	for _, sc := range s.data.scenarios {
		if sc.ID == scenario.ID || (sc.HostID == scenario.HostID && sc.Name == scenario.Name) {
			return domain.ErrAlreadyExists
		}
	}
	row := scenario.Clone()
	row.Steps = nil
	s.data.scenarios[scenario.ID] = *row
	return nil
}

func (s *Store) loadScenarioLocked(row domain.Scenario) *domain.Scenario {
	sc := row.Clone()
	sc.Steps = s.listStepsLocked(sc.ID)
	return sc
}

func (s *Store) GetScenario(ctx context.Context, id string) (*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, exists := s.data.scenarios[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return s.loadScenarioLocked(row), nil
}

func (s *Store) ListScenarios(ctx context.Context, hostID string) ([]*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scenarios := make([]*domain.Scenario, 0)
	for _, row := range s.data.scenarios {
		if row.HostID == hostID {
			scenarios = append(scenarios, s.loadScenarioLocked(row))
		}
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Name < scenarios[j].Name })
	return scenarios, nil
}

func (s *Store) ListScenariosByOrigin(ctx context.Context, originIDs []string) ([]*domain.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	origins := inSet(originIDs)
	scenarios := make([]*domain.Scenario, 0)
	for _, row := range s.data.scenarios {
		if row.OriginID != nil && origins[*row.OriginID] {
			scenarios = append(scenarios, s.loadScenarioLocked(row))
		}
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

func (s *Store) ListScenarioSummaries(ctx context.Context, hostIDs []string) ([]*domain.ScenarioSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := inSet(hostIDs)
	summaries := make([]*domain.ScenarioSummary, 0)
	for _, row := range s.data.scenarios {
		if !hosts[row.HostID] {
			continue
		}
		summary := &domain.ScenarioSummary{ID: row.ID, HostID: row.HostID, Name: row.Name}
		if row.OriginID != nil {
			summary.OriginID = domain.StringPtr(*row.OriginID)
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (s *Store) UpdateScenario(ctx context.Context, scenario *domain.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.data.scenarios[scenario.ID]
	if !exists {
		return domain.ErrNotFound
	}
	for _, sc := range s.data.scenarios {
		if sc.ID != scenario.ID && sc.HostID == scenario.HostID && sc.Name == scenario.Name {
			return domain.ErrAlreadyExists
		}
	}
	scenario.UpdatedAt = time.Now()
	row := scenario.Clone()
	row.Steps = nil
	// Buckets are owned by ReplaceScenarioFields.
	row.Headers = existing.Headers
	row.Variables = existing.Variables
	row.CreatedAt = existing.CreatedAt
	s.data.scenarios[scenario.ID] = *row
	return nil
}

func (s *Store) SetScenarioOrigin(ctx context.Context, id string, originID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, exists := s.data.scenarios[id]
	if !exists {
		return domain.ErrNotFound
	}
	if originID != nil {
		row.OriginID = domain.StringPtr(*originID)
	} else {
		row.OriginID = nil
	}
	row.UpdatedAt = time.Now()
	s.data.scenarios[id] = row
	return nil
}

func (s *Store) DeleteScenario(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.scenarios[id]; !exists {
		return domain.ErrNotFound
	}
	s.deleteScenarioLocked(id)
	return nil
}

func (s *Store) deleteScenarioLocked(id string) {
	var itemIDs []string
	for itemID, item := range s.data.items {
		if item.ScenarioID == id {
			itemIDs = append(itemIDs, itemID)
		}
	}
	s.deleteItemsLocked(itemIDs)
	for stepID, step := range s.data.steps {
		if step.ScenarioID == id {
			delete(s.data.steps, stepID)
		}
	}
	for scID, sc := range s.data.scenarios {
		if sc.OriginID != nil && *sc.OriginID == id {
			sc.OriginID = nil
			s.data.scenarios[scID] = sc
		}
	}
	delete(s.data.scenarios, id)
}

func (s *Store) ReplaceScenarioFields(ctx context.Context, scenarioID string, fieldType domain.FieldType, fields []domain.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, exists := s.data.scenarios[scenarioID]
	if !exists {
		return domain.ErrNotFound
	}
	sc := row.Clone()
	sc.SetBucket(fieldType, append([]domain.Field(nil), fields...))
	s.data.scenarios[scenarioID] = *sc
	return nil
}

// ============================================
// Steps
// ============================================

func (s *Store) CreateStep(ctx context.Context, step *domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.scenarios[step.ScenarioID]; !exists {
		return domain.ErrNotFound
	}
	for _, st := range s.data.steps {
		if st.ID == step.ID || (st.ScenarioID == step.ScenarioID && st.Name == step.Name) {
			return domain.ErrAlreadyExists
		}
	}
	s.data.steps[step.ID] = step.Clone()
	return nil
}

func (s *Store) listStepsLocked(scenarioID string) []domain.Step {
	steps := make([]domain.Step, 0)
	for _, step := range s.data.steps {
		if step.ScenarioID == scenarioID {
			steps = append(steps, step.Clone())
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].No < steps[j].No })
	return steps
}

func (s *Store) ListSteps(ctx context.Context, scenarioID string) ([]domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listStepsLocked(scenarioID), nil
}

func (s *Store) GetStepsByIDs(ctx context.Context, ids []string) ([]domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := make([]domain.Step, 0, len(ids))
	for _, id := range ids {
		if step, exists := s.data.steps[id]; exists {
			steps = append(steps, step.Clone())
		}
	}
	return steps, nil
}

func (s *Store) UpdateStep(ctx context.Context, step *domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.data.steps[step.ID]
	if !exists {
		return domain.ErrNotFound
	}
	for _, st := range s.data.steps {
		if st.ID != step.ID && st.ScenarioID == existing.ScenarioID && st.Name == step.Name {
			return domain.ErrAlreadyExists
		}
	}
	row := step.Clone()
	row.ScenarioID = existing.ScenarioID
	row.Headers = existing.Headers
	row.Variables = existing.Variables
	row.QueryFields = existing.QueryFields
	row.PostFields = existing.PostFields
	s.data.steps[step.ID] = row
	return nil
}

func (s *Store) DeleteSteps(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := inSet(ids)
	var itemIDs []string
	for itemID, item := range s.data.items {
		if item.StepID != nil && set[*item.StepID] {
			itemIDs = append(itemIDs, itemID)
		}
	}
	s.deleteItemsLocked(itemIDs)
	for _, id := range ids {
		delete(s.data.steps, id)
	}
	return nil
}

func (s *Store) ReplaceStepFields(ctx context.Context, stepID string, fieldType domain.FieldType, fields []domain.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, exists := s.data.steps[stepID]
	if !exists {
		return domain.ErrNotFound
	}
	step = step.Clone()
	step.SetBucket(fieldType, append([]domain.Field(nil), fields...))
	s.data.steps[stepID] = step
	return nil
}

// ============================================
// Check items
// ============================================

func cloneItem(item domain.CheckItem) *domain.CheckItem {
	c := item
	if item.StepID != nil {
		c.StepID = domain.StringPtr(*item.StepID)
	}
	if item.OriginID != nil {
		c.OriginID = domain.StringPtr(*item.OriginID)
	}
	return &c
}

func (s *Store) CreateItem(ctx context.Context, item *domain.CheckItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.data.items {
		if it.ID == item.ID || (it.HostID == item.HostID && it.Key == item.Key) {
			return domain.ErrAlreadyExists
		}
	}
	s.data.items[item.ID] = *cloneItem(*item)
	return nil
}

func sortItems(items []*domain.CheckItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}

func (s *Store) ListScenarioItems(ctx context.Context, scenarioID string) ([]*domain.CheckItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*domain.CheckItem, 0)
	for _, item := range s.data.items {
		if item.ScenarioID == scenarioID {
			items = append(items, cloneItem(item))
		}
	}
	sortItems(items)
	return items, nil
}

func (s *Store) ListStepItems(ctx context.Context, stepIDs []string) ([]*domain.CheckItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := inSet(stepIDs)
	items := make([]*domain.CheckItem, 0)
	for _, item := range s.data.items {
		if item.StepID != nil && set[*item.StepID] {
			items = append(items, cloneItem(item))
		}
	}
	sortItems(items)
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, item *domain.CheckItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.items[item.ID]; !exists {
		return domain.ErrNotFound
	}
	for _, it := range s.data.items {
		if it.ID != item.ID && it.HostID == item.HostID && it.Key == item.Key {
			return domain.ErrAlreadyExists
		}
	}
	s.data.items[item.ID] = *cloneItem(*item)
	return nil
}

func (s *Store) DeleteItems(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteItemsLocked(ids)
	return nil
}

// deleteItemsLocked removes items and detaches items inherited from them.
func (s *Store) deleteItemsLocked(ids []string) {
	set := inSet(ids)
	for itemID, item := range s.data.items {
		if item.OriginID != nil && set[*item.OriginID] {
			item.OriginID = nil
			s.data.items[itemID] = item
		}
	}
	for _, id := range ids {
		delete(s.data.items, id)
	}
}
