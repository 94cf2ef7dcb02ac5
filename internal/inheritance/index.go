package inheritance

import (
	"context"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// HostIndex holds a host's existing scenarios keyed two ways.
type HostIndex struct {
	// ByName holds every scenario of the host.
	ByName map[string]*domain.ScenarioSummary
	// ByOrigin holds inherited scenarios keyed by the scenario they were
	// inherited from.
	ByOrigin map[string]*domain.ScenarioSummary
}

func newHostIndex() *HostIndex {
	return &HostIndex{
		ByName:   make(map[string]*domain.ScenarioSummary),
		ByOrigin: make(map[string]*domain.ScenarioSummary),
	}
}

func (idx *HostIndex) add(summary *domain.ScenarioSummary) {
	idx.ByName[summary.Name] = summary
	if summary.OriginID != nil && *summary.OriginID != "" {
		idx.ByOrigin[*summary.OriginID] = summary
	}
}

// BuildIndex loads the scenarios of hostIDs with one read and indexes them
// per host. Every requested host gets an entry, even when it has no scenarios.
func BuildIndex(ctx context.Context, store Store, hostIDs []string) (map[string]*HostIndex, error) {
	index := make(map[string]*HostIndex, len(hostIDs))
	for _, hostID := range hostIDs {
		index[hostID] = newHostIndex()
	}
	if len(hostIDs) == 0 {
		return index, nil
	}

	summaries, err := store.ListScenarioSummaries(ctx, hostIDs)
	if err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		idx, ok := index[summary.HostID]
		if !ok {
			continue
		}
		idx.add(summary)
	}
	return index, nil
}
