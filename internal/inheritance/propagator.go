// Package inheritance propagates template web scenarios onto the hosts linked
// to the template, following multi-level template chains.
package inheritance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// DefaultMaxDepth bounds the number of template levels a propagation follows.
const DefaultMaxDepth = 16

// Store is the read side the propagator needs from storage.
type Store interface {
	GetHost(ctx context.Context, id string) (*domain.Host, error)
	ListTemplateLinks(ctx context.Context, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error)
	ListScenarioSummaries(ctx context.Context, hostIDs []string) ([]*domain.ScenarioSummary, error)
	GetScenario(ctx context.Context, id string) (*domain.Scenario, error)
	ListSteps(ctx context.Context, scenarioID string) ([]domain.Step, error)
	GetStepsByIDs(ctx context.Context, ids []string) ([]domain.Step, error)
}

// Saver writes the scenarios a propagation pass produces.
type Saver interface {
	// Save creates scenarios without an id and updates the others.
	Save(ctx context.Context, scenarios []*domain.Scenario) (*SaveResult, error)
	// Adopt links an existing local scenario to the template scenario it matches.
	Adopt(ctx context.Context, parentID, childID string) error
}

// SaveResult is the outcome of a Save call. Scenarios carries the saved
// scenarios with their ids assigned, in input order.
type SaveResult struct {
	Scenarios []*domain.Scenario
	Created   int
	Updated   int
	Unchanged int
}

// Report summarizes a propagation.
type Report struct {
	Passes    int `json:"passes"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Adopted   int `json:"adopted"`
	Unchanged int `json:"unchanged"`

	// Parents records the root template scenario of every copy that was
	// matched by origin.
	Parents ParentChain `json:"-"`
}

// Propagator pushes template scenarios down to linked hosts.
type Propagator struct {
	store    Store
	saver    Saver
	logger   *zap.Logger
	maxDepth int
}

// NewPropagator creates a Propagator. A maxDepth below one uses DefaultMaxDepth.
func NewPropagator(store Store, saver Saver, logger *zap.Logger, maxDepth int) *Propagator {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		store:    store,
		saver:    saver,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// Propagate makes every host linked to the owners of batch hold an up to date
// copy of each batch scenario, then repeats for the copies until no linked
// hosts remain. hostIDs narrows the first pass to those hosts. renames and
// changes hold the step renames and the changed settings of the save that
// produced batch; existing copies keep their own value of every other setting.
//
// Any naming conflict aborts the whole call. Writes already made are left to
// the caller's transaction.
func (p *Propagator) Propagate(ctx context.Context, batch []*domain.Scenario, hostIDs []string, renames RenameMap, changes SettingChanges) (*Report, error) {
	if renames == nil {
		renames = make(RenameMap)
	}
	// Copies inherit the changes of their template for the next level.
	passChanges := make(SettingChanges, len(changes))
	for id, changed := range changes {
		passChanges[id] = changed
	}
	report := &Report{Parents: make(ParentChain)}
	if err := p.propagate(ctx, batch, hostIDs, renames, passChanges, report, 0); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Propagator) propagate(ctx context.Context, batch []*domain.Scenario, hostIDs []string, renames RenameMap, changes SettingChanges, report *Report, depth int) error {
	if len(batch) == 0 {
		return nil
	}

	links, err := p.store.ListTemplateLinks(ctx, ownerIDs(batch), hostIDs)
	if err != nil {
		return fmt.Errorf("loading template links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}
	if depth >= p.maxDepth {
		return fmt.Errorf("%w: propagation exceeded %d levels", domain.ErrTemplateCycle, p.maxDepth)
	}

	report.Passes++
	p.logger.Debug("propagating web scenarios",
		zap.Int("pass", report.Passes),
		zap.Int("scenarios", len(batch)),
		zap.Int("links", len(links)))

	plan, err := p.prepare(ctx, batch, links, renames, changes, report.Parents)
	if err != nil {
		return err
	}

	for _, adoption := range plan.adoptions {
		if err := p.saver.Adopt(ctx, adoption.parentID, adoption.childID); err != nil {
			return fmt.Errorf("adopting web scenario %s: %w", adoption.childID, err)
		}
		report.Adopted++
	}

	if len(plan.copies) == 0 {
		return nil
	}
	result, err := p.saver.Save(ctx, plan.copies)
	if err != nil {
		return err
	}
	report.Created += result.Created
	report.Updated += result.Updated
	report.Unchanged += result.Unchanged

	// Hosts can act as templates themselves; continue with their copies.
	return p.propagate(ctx, result.Scenarios, nil, renames, changes, report, depth+1)
}

type adoption struct {
	parentID string
	childID  string
}

type pass struct {
	copies    []*domain.Scenario
	adoptions []adoption
}

// prepare decides, for every template scenario and linked host pair, whether
// the host copy is created, updated or adopted. It performs no writes, so a
// conflict anywhere in the pass leaves the hosts of the pass untouched.
func (p *Propagator) prepare(ctx context.Context, batch []*domain.Scenario, links []*domain.TemplateLink, renames RenameMap, changes SettingChanges, parents ParentChain) (*pass, error) {
	hostsByTemplate := make(map[string][]string)
	var hostIDs []string
	seen := make(map[string]bool)
	for _, link := range links {
		hostsByTemplate[link.TemplateID] = append(hostsByTemplate[link.TemplateID], link.HostID)
		if !seen[link.HostID] {
			seen[link.HostID] = true
			hostIDs = append(hostIDs, link.HostID)
		}
	}

	index, err := BuildIndex(ctx, p.store, hostIDs)
	if err != nil {
		return nil, fmt.Errorf("indexing host web scenarios: %w", err)
	}

	plan := &pass{}
	for _, tmpl := range batch {
		for _, hostID := range hostsByTemplate[tmpl.HostID] {
			idx := index[hostID]

			if existing, ok := idx.ByOrigin[tmpl.ID]; ok {
				// The template scenario may have been renamed onto a name
				// that another scenario of the host already uses.
				if other, ok := idx.ByName[tmpl.Name]; ok && !sameOrigin(other.OriginID, existing.OriginID) {
					return nil, p.conflict(ctx, existing.Name, hostID)
				}

				parents.Link(existing.ID, tmpl.ID)
				steps, err := p.remapSteps(ctx, tmpl.Steps, existing.ID, renames, parents)
				if err != nil {
					return nil, err
				}
				current, err := p.store.GetScenario(ctx, existing.ID)
				if err != nil {
					return nil, fmt.Errorf("loading web scenario %s: %w", existing.ID, err)
				}
				c := copyFor(tmpl, hostID, existing.ID, steps)
				keepLocalSettings(c, current, changes[tmpl.ID])
				if changed := changes[tmpl.ID]; changed != 0 {
					changes[existing.ID] = changed
				}
				plan.copies = append(plan.copies, c)
				continue
			}

			if existing, ok := idx.ByName[tmpl.Name]; ok {
				if existing.OriginID != nil && *existing.OriginID != "" {
					return nil, p.conflict(ctx, tmpl.Name, hostID)
				}
				existingSteps, err := p.store.ListSteps(ctx, existing.ID)
				if err != nil {
					return nil, fmt.Errorf("loading steps of web scenario %s: %w", existing.ID, err)
				}
				if !StepsEquivalent(tmpl.Steps, existingSteps) {
					return nil, p.conflict(ctx, tmpl.Name, hostID)
				}

				plan.adoptions = append(plan.adoptions, adoption{parentID: tmpl.ID, childID: existing.ID})
				existing.OriginID = domain.StringPtr(tmpl.ID)
				idx.ByOrigin[tmpl.ID] = existing
				continue
			}

			steps := make([]domain.Step, len(tmpl.Steps))
			for i := range tmpl.Steps {
				steps[i] = tmpl.Steps[i].Clone()
				steps[i].ID = ""
				steps[i].ScenarioID = ""
			}
			plan.copies = append(plan.copies, copyFor(tmpl, hostID, "", steps))
		}
	}
	return plan, nil
}

// remapSteps matches template steps to the steps of the host copy. Renamed
// steps claim the copy step holding their previous name first, then the
// remaining steps match by name. A copy step is claimed at most once; steps
// without a match lose their id and are created.
func (p *Propagator) remapSteps(ctx context.Context, steps []domain.Step, copyID string, renames RenameMap, parents ParentChain) ([]domain.Step, error) {
	existing, err := p.store.ListSteps(ctx, copyID)
	if err != nil {
		return nil, fmt.Errorf("loading steps of web scenario %s: %w", copyID, err)
	}
	byName := make(map[string]string, len(existing))
	for _, step := range existing {
		byName[step.Name] = step.ID
	}

	root := parents.Root(copyID)
	result := make([]domain.Step, len(steps))
	claimed := make(map[string]bool, len(existing))
	matched := make([]bool, len(steps))
	for i := range steps {
		result[i] = steps[i].Clone()
		result[i].ScenarioID = copyID
		result[i].ID = ""

		previous, ok := renames.Previous(root, steps[i].Name)
		if !ok {
			continue
		}
		if id, ok := byName[previous]; ok && !claimed[id] {
			result[i].ID = id
			claimed[id] = true
			matched[i] = true
		}
	}
	for i := range steps {
		if matched[i] {
			continue
		}
		if id, ok := byName[steps[i].Name]; ok && !claimed[id] {
			result[i].ID = id
			claimed[id] = true
		}
	}
	return result, nil
}

func (p *Propagator) conflict(ctx context.Context, scenarioName, hostID string) error {
	hostName := hostID
	host, err := p.store.GetHost(ctx, hostID)
	if err != nil {
		p.logger.Warn("resolving host name for conflict", zap.String("host_id", hostID), zap.Error(err))
	} else {
		hostName = host.Name
	}
	return &domain.NamingConflictError{Scenario: scenarioName, Host: hostName}
}

func copyFor(tmpl *domain.Scenario, hostID, id string, steps []domain.Step) *domain.Scenario {
	c := tmpl.Clone()
	c.ID = id
	c.HostID = hostID
	c.OriginID = domain.StringPtr(tmpl.ID)
	c.Steps = steps
	return c
}

func ownerIDs(scenarios []*domain.Scenario) []string {
	seen := make(map[string]bool, len(scenarios))
	ids := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		if !seen[sc.HostID] {
			seen[sc.HostID] = true
			ids = append(ids, sc.HostID)
		}
	}
	return ids
}

func sameOrigin(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
