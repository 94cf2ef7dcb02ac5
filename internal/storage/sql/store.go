package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and applies pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := Migrate(db.DB, driver); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, driver: driver}, nil
}

// Migrate runs the embedded migrations against db.
func Migrate(db *sql.DB, driver string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// selectIn runs a query containing "IN (?)" placeholders expanded by sqlx.In.
func selectIn(ctx context.Context, db dbInterface, dest any, query string, args ...any) error {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return db.SelectContext(ctx, dest, db.Rebind(q), a...)
}

// execIn is selectIn for statements.
func execIn(ctx context.Context, db dbInterface, query string, args ...any) error {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, db.Rebind(q), a...)
	return err
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// API Keys
// ============================================

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return &key, err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := make([]*domain.APIKey, 0)
	err := db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

// ============================================
// Hosts
// ============================================

const hostColumns = `id, name, is_template, created_at, updated_at`

func createHost(ctx context.Context, db dbInterface, host *domain.Host) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO hosts (id, name, is_template, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		host.ID, host.Name, host.IsTemplate, host.CreatedAt, host.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateHost(ctx context.Context, host *domain.Host) error {
	return createHost(ctx, s.db, host)
}

func (t *Tx) CreateHost(ctx context.Context, host *domain.Host) error {
	return createHost(ctx, t.tx, host)
}

func getHost(ctx context.Context, db dbInterface, column, value string) (*domain.Host, error) {
	var host domain.Host
	err := db.GetContext(ctx, &host, `SELECT `+hostColumns+` FROM hosts WHERE `+column+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *Store) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	return getHost(ctx, s.db, "id", id)
}

func (t *Tx) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	return getHost(ctx, t.tx, "id", id)
}

func (s *Store) GetHostByName(ctx context.Context, name string) (*domain.Host, error) {
	return getHost(ctx, s.db, "name", name)
}

func (t *Tx) GetHostByName(ctx context.Context, name string) (*domain.Host, error) {
	return getHost(ctx, t.tx, "name", name)
}

func listHosts(ctx context.Context, db dbInterface) ([]*domain.Host, error) {
	hosts := make([]*domain.Host, 0)
	if err := db.SelectContext(ctx, &hosts, `SELECT `+hostColumns+` FROM hosts ORDER BY name`); err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return listHosts(ctx, s.db)
}

func (t *Tx) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return listHosts(ctx, t.tx)
}

func updateHost(ctx context.Context, db dbInterface, host *domain.Host) error {
	host.UpdatedAt = time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE hosts SET name = $1, is_template = $2, updated_at = $3 WHERE id = $4`,
		host.Name, host.IsTemplate, host.UpdatedAt, host.ID)
	if err != nil {
		return wrapUniqueError(err)
	}
	return requireRow(result)
}

func (s *Store) UpdateHost(ctx context.Context, host *domain.Host) error {
	return updateHost(ctx, s.db, host)
}

func (t *Tx) UpdateHost(ctx context.Context, host *domain.Host) error {
	return updateHost(ctx, t.tx, host)
}

func deleteHost(ctx context.Context, db dbInterface, id string) error {
	var scenarioIDs []string
	if err := db.SelectContext(ctx, &scenarioIDs, `SELECT id FROM scenarios WHERE host_id = $1`, id); err != nil {
		return err
	}
	for _, scenarioID := range scenarioIDs {
		if err := deleteScenario(ctx, db, scenarioID); err != nil {
			return err
		}
	}
	if _, err := db.ExecContext(ctx,
		`DELETE FROM hosts_templates WHERE host_id = $1 OR template_id = $1`, id); err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `DELETE FROM hosts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) DeleteHost(ctx context.Context, id string) error {
	return deleteHost(ctx, s.db, id)
}

func (t *Tx) DeleteHost(ctx context.Context, id string) error {
	return deleteHost(ctx, t.tx, id)
}

// ============================================
// Template links
// ============================================

func createTemplateLink(ctx context.Context, db dbInterface, link *domain.TemplateLink) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO hosts_templates (host_id, template_id) VALUES ($1, $2)`, link.HostID, link.TemplateID)
	return wrapUniqueError(err)
}

func (s *Store) CreateTemplateLink(ctx context.Context, link *domain.TemplateLink) error {
	return createTemplateLink(ctx, s.db, link)
}

func (t *Tx) CreateTemplateLink(ctx context.Context, link *domain.TemplateLink) error {
	return createTemplateLink(ctx, t.tx, link)
}

func deleteTemplateLink(ctx context.Context, db dbInterface, hostID, templateID string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM hosts_templates WHERE host_id = $1 AND template_id = $2`, hostID, templateID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) DeleteTemplateLink(ctx context.Context, hostID, templateID string) error {
	return deleteTemplateLink(ctx, s.db, hostID, templateID)
}

func (t *Tx) DeleteTemplateLink(ctx context.Context, hostID, templateID string) error {
	return deleteTemplateLink(ctx, t.tx, hostID, templateID)
}

func listTemplateLinks(ctx context.Context, db dbInterface, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error) {
	links := make([]*domain.TemplateLink, 0)
	if len(templateIDs) == 0 {
		return links, nil
	}
	var err error
	if len(hostIDs) > 0 {
		err = selectIn(ctx, db, &links,
			`SELECT host_id, template_id FROM hosts_templates
			 WHERE template_id IN (?) AND host_id IN (?) ORDER BY host_id, template_id`,
			templateIDs, hostIDs)
	} else {
		err = selectIn(ctx, db, &links,
			`SELECT host_id, template_id FROM hosts_templates
			 WHERE template_id IN (?) ORDER BY host_id, template_id`,
			templateIDs)
	}
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Store) ListTemplateLinks(ctx context.Context, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error) {
	return listTemplateLinks(ctx, s.db, templateIDs, hostIDs)
}

func (t *Tx) ListTemplateLinks(ctx context.Context, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error) {
	return listTemplateLinks(ctx, t.tx, templateIDs, hostIDs)
}

func listHostTemplates(ctx context.Context, db dbInterface, hostID string) ([]*domain.TemplateLink, error) {
	links := make([]*domain.TemplateLink, 0)
	err := db.SelectContext(ctx, &links,
		`SELECT host_id, template_id FROM hosts_templates WHERE host_id = $1 ORDER BY template_id`, hostID)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Store) ListHostTemplates(ctx context.Context, hostID string) ([]*domain.TemplateLink, error) {
	return listHostTemplates(ctx, s.db, hostID)
}

func (t *Tx) ListHostTemplates(ctx context.Context, hostID string) ([]*domain.TemplateLink, error) {
	return listHostTemplates(ctx, t.tx, hostID)
}
