// Package service runs scenario operations inside storage transactions.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/inheritance"
	"github.com/bcnelson/webscenario-manager/internal/scenario"
	"github.com/bcnelson/webscenario-manager/internal/storage"
	"github.com/bcnelson/webscenario-manager/internal/validation"
)

// ScenarioService owns the transaction around every mutating scenario
// operation. A failed operation, including a naming conflict found while
// propagating to linked hosts, leaves the store untouched.
type ScenarioService struct {
	store    storage.Storage
	logger   *zap.Logger
	maxDepth int
}

// NewScenarioService creates a new ScenarioService.
func NewScenarioService(store storage.Storage, logger *zap.Logger, maxDepth int) *ScenarioService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenarioService{
		store:    store,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// withTx runs fn with a manager bound to a new transaction and commits it
// when fn succeeds.
func (s *ScenarioService) withTx(ctx context.Context, fn func(tx storage.Transaction, m *scenario.Manager) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx, scenario.NewManager(tx, s.logger, s.maxDepth)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateScenario creates a scenario on hostID and copies it to every host
// linked to hostID, directly or through other templates.
func (s *ScenarioService) CreateScenario(ctx context.Context, hostID string, req *domain.CreateScenarioRequest) (*domain.Scenario, *inheritance.Report, error) {
	sc := &domain.Scenario{
		HostID:    hostID,
		Name:      req.Name,
		Delay:     req.Delay,
		Status:    req.Status,
		Agent:     req.Agent,
		Retries:   req.Retries,
		Headers:   req.Headers,
		Variables: req.Variables,
		Steps:     req.Steps,
	}
	for i := range sc.Steps {
		sc.Steps[i].ID = ""
	}
	if err := validation.ValidateScenario(sc); err != nil {
		return nil, nil, err
	}

	var report *inheritance.Report
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		if _, err := tx.GetHost(ctx, hostID); err != nil {
			return err
		}
		if err := checkNameFree(ctx, tx, hostID, sc.Name, ""); err != nil {
			return err
		}
		var err error
		_, report, err = m.Persist(ctx, []*domain.Scenario{sc})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("created web scenario",
		zap.String("scenario_id", sc.ID),
		zap.String("host_id", hostID),
		zap.Int("copies_created", report.Created))
	return s.reload(ctx, sc.ID, report)
}

// UpdateScenario applies req to the scenario and propagates the result.
// The name and steps of an inherited scenario belong to its template and
// cannot be changed here.
func (s *ScenarioService) UpdateScenario(ctx context.Context, id string, req *domain.UpdateScenarioRequest) (*domain.Scenario, *inheritance.Report, error) {
	var report *inheritance.Report
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		stored, err := tx.GetScenario(ctx, id)
		if err != nil {
			return err
		}
		sc, err := applyUpdate(stored, req)
		if err != nil {
			return err
		}
		if err := validation.ValidateScenario(sc); err != nil {
			return err
		}
		if sc.Name != stored.Name {
			if err := checkNameFree(ctx, tx, sc.HostID, sc.Name, sc.ID); err != nil {
				return err
			}
		}
		_, report, err = m.Persist(ctx, []*domain.Scenario{sc})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("updated web scenario",
		zap.String("scenario_id", id),
		zap.Int("copies_created", report.Created),
		zap.Int("copies_updated", report.Updated),
		zap.Int("passes", report.Passes))
	return s.reload(ctx, id, report)
}

// applyUpdate returns a copy of stored with the non-nil fields of req applied.
func applyUpdate(stored *domain.Scenario, req *domain.UpdateScenarioRequest) (*domain.Scenario, error) {
	if stored.IsInherited() {
		if req.Name != nil && *req.Name != stored.Name {
			return nil, fmt.Errorf("cannot rename web scenario %q: %w", stored.Name, domain.ErrInherited)
		}
		if req.Steps != nil {
			return nil, fmt.Errorf("cannot change steps of web scenario %q: %w", stored.Name, domain.ErrInherited)
		}
	}

	sc := stored.Clone()
	if req.Name != nil {
		sc.Name = *req.Name
	}
	if req.Delay != nil {
		sc.Delay = *req.Delay
	}
	if req.Status != nil {
		sc.Status = *req.Status
	}
	if req.Agent != nil {
		sc.Agent = *req.Agent
	}
	if req.Retries != nil {
		sc.Retries = *req.Retries
	}
	if req.Headers != nil {
		sc.Headers = *req.Headers
	}
	if req.Variables != nil {
		sc.Variables = *req.Variables
	}
	if req.Steps != nil {
		sc.Steps = *req.Steps
	}
	return sc, nil
}

// DeleteScenario deletes a scenario and every copy inherited from it.
// Inherited copies can only be removed through their template.
func (s *ScenarioService) DeleteScenario(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		sc, err := tx.GetScenario(ctx, id)
		if err != nil {
			return err
		}
		if sc.IsInherited() {
			return fmt.Errorf("cannot delete web scenario %q: %w", sc.Name, domain.ErrInherited)
		}
		return m.Delete(ctx, []string{id})
	})
	if err != nil {
		return err
	}

	s.logger.Info("deleted web scenario", zap.String("scenario_id", id))
	return nil
}

// LinkTemplate links templateID to hostID and copies the template's
// scenarios onto the host and everything linked below it.
func (s *ScenarioService) LinkTemplate(ctx context.Context, hostID, templateID string) (*inheritance.Report, error) {
	var report *inheritance.Report
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		if _, err := tx.GetHost(ctx, hostID); err != nil {
			return err
		}
		template, err := tx.GetHost(ctx, templateID)
		if err != nil {
			return err
		}
		if !template.IsTemplate {
			return fmt.Errorf("%s: %w", template.Name, domain.ErrNotTemplate)
		}
		if err := checkNoCycle(ctx, tx, hostID, templateID); err != nil {
			return err
		}
		if err := tx.CreateTemplateLink(ctx, &domain.TemplateLink{HostID: hostID, TemplateID: templateID}); err != nil {
			return err
		}
		report, err = m.Link(ctx, templateID, []string{hostID})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("linked template",
		zap.String("host_id", hostID),
		zap.String("template_id", templateID),
		zap.Int("copies_created", report.Created),
		zap.Int("copies_adopted", report.Adopted))
	return report, nil
}

// UnlinkTemplate removes the link between hostID and templateID. With clear
// the inherited copies are deleted, otherwise they are kept as local
// scenarios. It returns the number of scenarios affected.
func (s *ScenarioService) UnlinkTemplate(ctx context.Context, hostID, templateID string, clear bool) (int, error) {
	var affected int
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		if err := tx.DeleteTemplateLink(ctx, hostID, templateID); err != nil {
			return err
		}
		var err error
		affected, err = m.Unlink(ctx, hostID, templateID, clear)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("unlinked template",
		zap.String("host_id", hostID),
		zap.String("template_id", templateID),
		zap.Bool("clear", clear),
		zap.Int("scenarios", affected))
	return affected, nil
}

// Resync propagates every scenario of templateID to all linked hosts again,
// recreating missing copies and reconciling drifted ones.
func (s *ScenarioService) Resync(ctx context.Context, templateID string) (*inheritance.Report, error) {
	var report *inheritance.Report
	err := s.withTx(ctx, func(tx storage.Transaction, m *scenario.Manager) error {
		template, err := tx.GetHost(ctx, templateID)
		if err != nil {
			return err
		}
		if !template.IsTemplate {
			return fmt.Errorf("%s: %w", template.Name, domain.ErrNotTemplate)
		}
		report, err = m.Link(ctx, templateID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resynced template",
		zap.String("template_id", templateID),
		zap.Int("copies_created", report.Created),
		zap.Int("copies_updated", report.Updated),
		zap.Int("copies_unchanged", report.Unchanged))
	return report, nil
}

// DeleteHost deletes a host with its scenarios and links. Copies other hosts
// inherited from its scenarios are kept and become local.
func (s *ScenarioService) DeleteHost(ctx context.Context, hostID string) error {
	err := s.withTx(ctx, func(tx storage.Transaction, _ *scenario.Manager) error {
		return tx.DeleteHost(ctx, hostID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("deleted host", zap.String("host_id", hostID))
	return nil
}

func (s *ScenarioService) reload(ctx context.Context, id string, report *inheritance.Report) (*domain.Scenario, *inheritance.Report, error) {
	sc, err := s.store.GetScenario(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sc, report, nil
}

// checkNameFree fails when hostID already has a scenario called name other
// than exceptID.
func checkNameFree(ctx context.Context, store storage.Storage, hostID, name, exceptID string) error {
	summaries, err := store.ListScenarioSummaries(ctx, []string{hostID})
	if err != nil {
		return err
	}
	for _, summary := range summaries {
		if summary.Name == name && summary.ID != exceptID {
			return fmt.Errorf("web scenario %q on host %s: %w", name, hostID, domain.ErrAlreadyExists)
		}
	}
	return nil
}

// checkNoCycle fails when hostID is already among the templates templateID
// inherits from, directly or transitively.
func checkNoCycle(ctx context.Context, store storage.Storage, hostID, templateID string) error {
	if hostID == templateID {
		return fmt.Errorf("host cannot be linked to itself: %w", domain.ErrTemplateCycle)
	}
	visited := map[string]bool{templateID: true}
	queue := []string{templateID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		links, err := store.ListHostTemplates(ctx, current)
		if err != nil {
			return err
		}
		for _, link := range links {
			if link.TemplateID == hostID {
				return fmt.Errorf("template %s already inherits from %s: %w", templateID, hostID, domain.ErrTemplateCycle)
			}
			if !visited[link.TemplateID] {
				visited[link.TemplateID] = true
				queue = append(queue, link.TemplateID)
			}
		}
	}
	return nil
}
