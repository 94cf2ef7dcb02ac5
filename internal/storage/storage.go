package storage

import (
	"context"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
//
// Create methods store the field buckets they are given. Update methods only
// touch the row; buckets are rewritten through the Replace*Fields methods.
// Get/List methods that return full scenarios populate buckets and steps.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Hosts
	CreateHost(ctx context.Context, host *domain.Host) error
	GetHost(ctx context.Context, id string) (*domain.Host, error)
	GetHostByName(ctx context.Context, name string) (*domain.Host, error)
	ListHosts(ctx context.Context) ([]*domain.Host, error)
	UpdateHost(ctx context.Context, host *domain.Host) error
	DeleteHost(ctx context.Context, id string) error

	// Template links
	CreateTemplateLink(ctx context.Context, link *domain.TemplateLink) error
	DeleteTemplateLink(ctx context.Context, hostID, templateID string) error
	// ListTemplateLinks returns links whose template is one of templateIDs,
	// narrowed to hostIDs when that is non-empty.
	ListTemplateLinks(ctx context.Context, templateIDs, hostIDs []string) ([]*domain.TemplateLink, error)
	ListHostTemplates(ctx context.Context, hostID string) ([]*domain.TemplateLink, error)

	// Scenarios
	CreateScenario(ctx context.Context, scenario *domain.Scenario) error
	GetScenario(ctx context.Context, id string) (*domain.Scenario, error)
	ListScenarios(ctx context.Context, hostID string) ([]*domain.Scenario, error)
	ListScenariosByOrigin(ctx context.Context, originIDs []string) ([]*domain.Scenario, error)
	ListScenarioSummaries(ctx context.Context, hostIDs []string) ([]*domain.ScenarioSummary, error)
	UpdateScenario(ctx context.Context, scenario *domain.Scenario) error
	SetScenarioOrigin(ctx context.Context, id string, originID *string) error
	DeleteScenario(ctx context.Context, id string) error
	ReplaceScenarioFields(ctx context.Context, scenarioID string, fieldType domain.FieldType, fields []domain.Field) error

	// Steps
	CreateStep(ctx context.Context, step *domain.Step) error
	ListSteps(ctx context.Context, scenarioID string) ([]domain.Step, error)
	GetStepsByIDs(ctx context.Context, ids []string) ([]domain.Step, error)
	UpdateStep(ctx context.Context, step *domain.Step) error
	DeleteSteps(ctx context.Context, ids []string) error
	ReplaceStepFields(ctx context.Context, stepID string, fieldType domain.FieldType, fields []domain.Field) error

	// Check items
	CreateItem(ctx context.Context, item *domain.CheckItem) error
	ListScenarioItems(ctx context.Context, scenarioID string) ([]*domain.CheckItem, error)
	ListStepItems(ctx context.Context, stepIDs []string) ([]*domain.CheckItem, error)
	UpdateItem(ctx context.Context, item *domain.CheckItem) error
	DeleteItems(ctx context.Context, ids []string) error

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
