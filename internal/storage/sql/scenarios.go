package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

const scenarioColumns = `id, host_id, name, origin_id, delay, status, agent, retries, created_at, updated_at`

const stepColumns = `id, scenario_id, step_no, name, url, timeout, posts, post_type, required, status_codes, follow_redirects`

// fieldRow is one row of scenario_fields or step_fields.
type fieldRow struct {
	OwnerID string           `db:"owner_id"`
	Type    domain.FieldType `db:"type"`
	Name    string           `db:"name"`
	Value   string           `db:"value"`
}

// ============================================
// Scenarios
// ============================================

func createScenario(ctx context.Context, db dbInterface, sc *domain.Scenario) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO scenarios (id, host_id, name, origin_id, delay, status, agent, retries, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sc.ID, sc.HostID, sc.Name, sc.OriginID, sc.Delay, sc.Status, sc.Agent, sc.Retries, sc.CreatedAt, sc.UpdatedAt)
	if err != nil {
		return wrapUniqueError(err)
	}
	for fieldType, fields := range sc.Buckets() {
		if err := insertFields(ctx, db, "scenario_fields", "scenario_id", sc.ID, fieldType, fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateScenario(ctx context.Context, sc *domain.Scenario) error {
	return createScenario(ctx, s.db, sc)
}

func (t *Tx) CreateScenario(ctx context.Context, sc *domain.Scenario) error {
	return createScenario(ctx, t.tx, sc)
}

// insertFields writes a bucket. table and ownerColumn are compile-time constants.
func insertFields(ctx context.Context, db dbInterface, table, ownerColumn, ownerID string, fieldType domain.FieldType, fields []domain.Field) error {
	for i, field := range fields {
		_, err := db.ExecContext(ctx,
			`INSERT INTO `+table+` (`+ownerColumn+`, type, position, name, value) VALUES ($1, $2, $3, $4, $5)`,
			ownerID, int(fieldType), i, field.Name, field.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

// loadScenarios attaches buckets and steps to scenario rows.
func loadScenarios(ctx context.Context, db dbInterface, scenarios []*domain.Scenario) error {
	if len(scenarios) == 0 {
		return nil
	}
	ids := make([]string, len(scenarios))
	byID := make(map[string]*domain.Scenario, len(scenarios))
	for i, sc := range scenarios {
		ids[i] = sc.ID
		byID[sc.ID] = sc
		sc.Headers, sc.Variables = []domain.Field{}, []domain.Field{}
		sc.Steps = []domain.Step{}
	}

	var fields []fieldRow
	err := selectIn(ctx, db, &fields,
		`SELECT scenario_id AS owner_id, type, name, value FROM scenario_fields
		 WHERE scenario_id IN (?) ORDER BY scenario_id, type, position`, ids)
	if err != nil {
		return err
	}
	for _, f := range fields {
		sc := byID[f.OwnerID]
		bucket := sc.Buckets()[f.Type]
		sc.SetBucket(f.Type, append(bucket, domain.Field{Name: f.Name, Value: f.Value}))
	}

	var steps []domain.Step
	err = selectIn(ctx, db, &steps,
		`SELECT `+stepColumns+` FROM steps WHERE scenario_id IN (?) ORDER BY scenario_id, step_no`, ids)
	if err != nil {
		return err
	}
	if err := loadStepFields(ctx, db, steps); err != nil {
		return err
	}
	for _, step := range steps {
		sc := byID[step.ScenarioID]
		sc.Steps = append(sc.Steps, step)
	}
	return nil
}

func loadStepFields(ctx context.Context, db dbInterface, steps []domain.Step) error {
	if len(steps) == 0 {
		return nil
	}
	ids := make([]string, len(steps))
	index := make(map[string]int, len(steps))
	for i := range steps {
		ids[i] = steps[i].ID
		index[steps[i].ID] = i
		steps[i].Headers, steps[i].Variables = []domain.Field{}, []domain.Field{}
		steps[i].QueryFields, steps[i].PostFields = []domain.Field{}, []domain.Field{}
	}
	var fields []fieldRow
	err := selectIn(ctx, db, &fields,
		`SELECT step_id AS owner_id, type, name, value FROM step_fields
		 WHERE step_id IN (?) ORDER BY step_id, type, position`, ids)
	if err != nil {
		return err
	}
	for _, f := range fields {
		step := &steps[index[f.OwnerID]]
		bucket := step.Buckets()[f.Type]
		step.SetBucket(f.Type, append(bucket, domain.Field{Name: f.Name, Value: f.Value}))
	}
	return nil
}

func getScenario(ctx context.Context, db dbInterface, id string) (*domain.Scenario, error) {
	var sc domain.Scenario
	err := db.GetContext(ctx, &sc, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadScenarios(ctx, db, []*domain.Scenario{&sc}); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Store) GetScenario(ctx context.Context, id string) (*domain.Scenario, error) {
	return getScenario(ctx, s.db, id)
}

func (t *Tx) GetScenario(ctx context.Context, id string) (*domain.Scenario, error) {
	return getScenario(ctx, t.tx, id)
}

func listScenarios(ctx context.Context, db dbInterface, hostID string) ([]*domain.Scenario, error) {
	scenarios := make([]*domain.Scenario, 0)
	err := db.SelectContext(ctx, &scenarios,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE host_id = $1 ORDER BY name`, hostID)
	if err != nil {
		return nil, err
	}
	if err := loadScenarios(ctx, db, scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

func (s *Store) ListScenarios(ctx context.Context, hostID string) ([]*domain.Scenario, error) {
	return listScenarios(ctx, s.db, hostID)
}

func (t *Tx) ListScenarios(ctx context.Context, hostID string) ([]*domain.Scenario, error) {
	return listScenarios(ctx, t.tx, hostID)
}

func listScenariosByOrigin(ctx context.Context, db dbInterface, originIDs []string) ([]*domain.Scenario, error) {
	scenarios := make([]*domain.Scenario, 0)
	if len(originIDs) == 0 {
		return scenarios, nil
	}
	err := selectIn(ctx, db, &scenarios,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE origin_id IN (?) ORDER BY id`, originIDs)
	if err != nil {
		return nil, err
	}
	if err := loadScenarios(ctx, db, scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

func (s *Store) ListScenariosByOrigin(ctx context.Context, originIDs []string) ([]*domain.Scenario, error) {
	return listScenariosByOrigin(ctx, s.db, originIDs)
}

func (t *Tx) ListScenariosByOrigin(ctx context.Context, originIDs []string) ([]*domain.Scenario, error) {
	return listScenariosByOrigin(ctx, t.tx, originIDs)
}

func listScenarioSummaries(ctx context.Context, db dbInterface, hostIDs []string) ([]*domain.ScenarioSummary, error) {
	summaries := make([]*domain.ScenarioSummary, 0)
	if len(hostIDs) == 0 {
		return summaries, nil
	}
	err := selectIn(ctx, db, &summaries,
		`SELECT id, host_id, name, origin_id FROM scenarios WHERE host_id IN (?) ORDER BY id`, hostIDs)
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ListScenarioSummaries(ctx context.Context, hostIDs []string) ([]*domain.ScenarioSummary, error) {
	return listScenarioSummaries(ctx, s.db, hostIDs)
}

func (t *Tx) ListScenarioSummaries(ctx context.Context, hostIDs []string) ([]*domain.ScenarioSummary, error) {
	return listScenarioSummaries(ctx, t.tx, hostIDs)
}

func updateScenario(ctx context.Context, db dbInterface, sc *domain.Scenario) error {
	sc.UpdatedAt = time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE scenarios SET name = $1, origin_id = $2, delay = $3, status = $4, agent = $5, retries = $6, updated_at = $7
		 WHERE id = $8`,
		sc.Name, sc.OriginID, sc.Delay, sc.Status, sc.Agent, sc.Retries, sc.UpdatedAt, sc.ID)
	if err != nil {
		return wrapUniqueError(err)
	}
	return requireRow(result)
}

func (s *Store) UpdateScenario(ctx context.Context, sc *domain.Scenario) error {
	return updateScenario(ctx, s.db, sc)
}

func (t *Tx) UpdateScenario(ctx context.Context, sc *domain.Scenario) error {
	return updateScenario(ctx, t.tx, sc)
}

func setScenarioOrigin(ctx context.Context, db dbInterface, id string, originID *string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE scenarios SET origin_id = $1, updated_at = $2 WHERE id = $3`, originID, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) SetScenarioOrigin(ctx context.Context, id string, originID *string) error {
	return setScenarioOrigin(ctx, s.db, id, originID)
}

func (t *Tx) SetScenarioOrigin(ctx context.Context, id string, originID *string) error {
	return setScenarioOrigin(ctx, t.tx, id, originID)
}

// deleteScenario removes dependent rows explicitly so SQLite databases opened
// without foreign key enforcement stay consistent.
func deleteScenario(ctx context.Context, db dbInterface, id string) error {
	statements := []string{
		`UPDATE items SET origin_id = NULL WHERE origin_id IN (SELECT id FROM items WHERE scenario_id = $1)`,
		`DELETE FROM items WHERE scenario_id = $1`,
		`DELETE FROM step_fields WHERE step_id IN (SELECT id FROM steps WHERE scenario_id = $1)`,
		`DELETE FROM steps WHERE scenario_id = $1`,
		`DELETE FROM scenario_fields WHERE scenario_id = $1`,
		`UPDATE scenarios SET origin_id = NULL WHERE origin_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	result, err := db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) DeleteScenario(ctx context.Context, id string) error {
	return deleteScenario(ctx, s.db, id)
}

func (t *Tx) DeleteScenario(ctx context.Context, id string) error {
	return deleteScenario(ctx, t.tx, id)
}

func replaceScenarioFields(ctx context.Context, db dbInterface, scenarioID string, fieldType domain.FieldType, fields []domain.Field) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM scenario_fields WHERE scenario_id = $1 AND type = $2`, scenarioID, int(fieldType))
	if err != nil {
		return err
	}
	return insertFields(ctx, db, "scenario_fields", "scenario_id", scenarioID, fieldType, fields)
}

func (s *Store) ReplaceScenarioFields(ctx context.Context, scenarioID string, fieldType domain.FieldType, fields []domain.Field) error {
	return replaceScenarioFields(ctx, s.db, scenarioID, fieldType, fields)
}

func (t *Tx) ReplaceScenarioFields(ctx context.Context, scenarioID string, fieldType domain.FieldType, fields []domain.Field) error {
	return replaceScenarioFields(ctx, t.tx, scenarioID, fieldType, fields)
}

// ============================================
// Steps
// ============================================

func createStep(ctx context.Context, db dbInterface, step *domain.Step) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO steps (`+stepColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		step.ID, step.ScenarioID, step.No, step.Name, step.URL, step.Timeout, step.Posts, step.PostType,
		step.Required, step.StatusCodes, step.FollowRedirects)
	if err != nil {
		return wrapUniqueError(err)
	}
	for fieldType, fields := range step.Buckets() {
		if err := insertFields(ctx, db, "step_fields", "step_id", step.ID, fieldType, fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateStep(ctx context.Context, step *domain.Step) error {
	return createStep(ctx, s.db, step)
}

func (t *Tx) CreateStep(ctx context.Context, step *domain.Step) error {
	return createStep(ctx, t.tx, step)
}

func listSteps(ctx context.Context, db dbInterface, scenarioID string) ([]domain.Step, error) {
	steps := make([]domain.Step, 0)
	err := db.SelectContext(ctx, &steps,
		`SELECT `+stepColumns+` FROM steps WHERE scenario_id = $1 ORDER BY step_no`, scenarioID)
	if err != nil {
		return nil, err
	}
	if err := loadStepFields(ctx, db, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *Store) ListSteps(ctx context.Context, scenarioID string) ([]domain.Step, error) {
	return listSteps(ctx, s.db, scenarioID)
}

func (t *Tx) ListSteps(ctx context.Context, scenarioID string) ([]domain.Step, error) {
	return listSteps(ctx, t.tx, scenarioID)
}

func getStepsByIDs(ctx context.Context, db dbInterface, ids []string) ([]domain.Step, error) {
	steps := make([]domain.Step, 0)
	if len(ids) == 0 {
		return steps, nil
	}
	if err := selectIn(ctx, db, &steps, `SELECT `+stepColumns+` FROM steps WHERE id IN (?)`, ids); err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *Store) GetStepsByIDs(ctx context.Context, ids []string) ([]domain.Step, error) {
	return getStepsByIDs(ctx, s.db, ids)
}

func (t *Tx) GetStepsByIDs(ctx context.Context, ids []string) ([]domain.Step, error) {
	return getStepsByIDs(ctx, t.tx, ids)
}

func updateStep(ctx context.Context, db dbInterface, step *domain.Step) error {
	result, err := db.ExecContext(ctx,
		`UPDATE steps SET step_no = $1, name = $2, url = $3, timeout = $4, posts = $5, post_type = $6,
		 required = $7, status_codes = $8, follow_redirects = $9 WHERE id = $10`,
		step.No, step.Name, step.URL, step.Timeout, step.Posts, step.PostType,
		step.Required, step.StatusCodes, step.FollowRedirects, step.ID)
	if err != nil {
		return wrapUniqueError(err)
	}
	return requireRow(result)
}

func (s *Store) UpdateStep(ctx context.Context, step *domain.Step) error {
	return updateStep(ctx, s.db, step)
}

func (t *Tx) UpdateStep(ctx context.Context, step *domain.Step) error {
	return updateStep(ctx, t.tx, step)
}

func deleteSteps(ctx context.Context, db dbInterface, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	statements := []string{
		`DELETE FROM items WHERE step_id IN (?)`,
		`DELETE FROM step_fields WHERE step_id IN (?)`,
		`DELETE FROM steps WHERE id IN (?)`,
	}
	for _, stmt := range statements {
		if err := execIn(ctx, db, stmt, ids); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteSteps(ctx context.Context, ids []string) error {
	return deleteSteps(ctx, s.db, ids)
}

func (t *Tx) DeleteSteps(ctx context.Context, ids []string) error {
	return deleteSteps(ctx, t.tx, ids)
}

func replaceStepFields(ctx context.Context, db dbInterface, stepID string, fieldType domain.FieldType, fields []domain.Field) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM step_fields WHERE step_id = $1 AND type = $2`, stepID, int(fieldType))
	if err != nil {
		return err
	}
	return insertFields(ctx, db, "step_fields", "step_id", stepID, fieldType, fields)
}

func (s *Store) ReplaceStepFields(ctx context.Context, stepID string, fieldType domain.FieldType, fields []domain.Field) error {
	return replaceStepFields(ctx, s.db, stepID, fieldType, fields)
}

func (t *Tx) ReplaceStepFields(ctx context.Context, stepID string, fieldType domain.FieldType, fields []domain.Field) error {
	return replaceStepFields(ctx, t.tx, stepID, fieldType, fields)
}

// ============================================
// Check items
// ============================================

const itemColumns = `id, host_id, scenario_id, step_id, origin_id, kind, item_key, name, value_type, units, delay, status, history, trends`

func createItem(ctx context.Context, db dbInterface, item *domain.CheckItem) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		item.ID, item.HostID, item.ScenarioID, item.StepID, item.OriginID, int(item.Kind), item.Key, item.Name,
		item.ValueType, item.Units, item.Delay, item.Status, item.History, item.Trends)
	return wrapUniqueError(err)
}

func (s *Store) CreateItem(ctx context.Context, item *domain.CheckItem) error {
	return createItem(ctx, s.db, item)
}

func (t *Tx) CreateItem(ctx context.Context, item *domain.CheckItem) error {
	return createItem(ctx, t.tx, item)
}

func listScenarioItems(ctx context.Context, db dbInterface, scenarioID string) ([]*domain.CheckItem, error) {
	items := make([]*domain.CheckItem, 0)
	err := db.SelectContext(ctx, &items,
		`SELECT `+itemColumns+` FROM items WHERE scenario_id = $1 ORDER BY item_key`, scenarioID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListScenarioItems(ctx context.Context, scenarioID string) ([]*domain.CheckItem, error) {
	return listScenarioItems(ctx, s.db, scenarioID)
}

func (t *Tx) ListScenarioItems(ctx context.Context, scenarioID string) ([]*domain.CheckItem, error) {
	return listScenarioItems(ctx, t.tx, scenarioID)
}

func listStepItems(ctx context.Context, db dbInterface, stepIDs []string) ([]*domain.CheckItem, error) {
	items := make([]*domain.CheckItem, 0)
	if len(stepIDs) == 0 {
		return items, nil
	}
	err := selectIn(ctx, db, &items,
		`SELECT `+itemColumns+` FROM items WHERE step_id IN (?) ORDER BY item_key`, stepIDs)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStepItems(ctx context.Context, stepIDs []string) ([]*domain.CheckItem, error) {
	return listStepItems(ctx, s.db, stepIDs)
}

func (t *Tx) ListStepItems(ctx context.Context, stepIDs []string) ([]*domain.CheckItem, error) {
	return listStepItems(ctx, t.tx, stepIDs)
}

func updateItem(ctx context.Context, db dbInterface, item *domain.CheckItem) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET origin_id = $1, item_key = $2, name = $3, delay = $4, status = $5 WHERE id = $6`,
		item.OriginID, item.Key, item.Name, item.Delay, item.Status, item.ID)
	if err != nil {
		return wrapUniqueError(err)
	}
	return requireRow(result)
}

func (s *Store) UpdateItem(ctx context.Context, item *domain.CheckItem) error {
	return updateItem(ctx, s.db, item)
}

func (t *Tx) UpdateItem(ctx context.Context, item *domain.CheckItem) error {
	return updateItem(ctx, t.tx, item)
}

func deleteItems(ctx context.Context, db dbInterface, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := execIn(ctx, db, `UPDATE items SET origin_id = NULL WHERE origin_id IN (?)`, ids); err != nil {
		return err
	}
	return execIn(ctx, db, `DELETE FROM items WHERE id IN (?)`, ids)
}

func (s *Store) DeleteItems(ctx context.Context, ids []string) error {
	return deleteItems(ctx, s.db, ids)
}

func (t *Tx) DeleteItems(ctx context.Context, ids []string) error {
	return deleteItems(ctx, t.tx, ids)
}
