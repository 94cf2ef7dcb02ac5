package domain

// ItemKind identifies which measurement a scenario or step check item holds.
type ItemKind int

const (
	ItemResponseCode ItemKind = 0
	ItemResponseTime ItemKind = 1
	ItemDownloadRate ItemKind = 2
	ItemFailedStep   ItemKind = 3
	ItemLastError    ItemKind = 4
)

// Item value types.
const (
	ValueTypeFloat  = 0
	ValueTypeString = 1
	ValueTypeUint64 = 3
)

// Item status values.
const (
	ItemActive   = 0
	ItemDisabled = 1
)

// Retention applied to web check items, in days.
const (
	ItemHistoryDays = 30
	ItemTrendsDays  = 90
)

// CheckItem is a monitoring item generated for a scenario (StepID nil) or for
// one of its steps. OriginID links an inherited item to its template item.
type CheckItem struct {
	ID         string   `json:"id" db:"id"`
	HostID     string   `json:"host_id" db:"host_id"`
	ScenarioID string   `json:"scenario_id" db:"scenario_id"`
	StepID     *string  `json:"step_id,omitempty" db:"step_id"`
	OriginID   *string  `json:"origin_id,omitempty" db:"origin_id"`
	Kind       ItemKind `json:"kind" db:"kind"`
	Key        string   `json:"key" db:"item_key"`
	Name       string   `json:"name" db:"name"`
	ValueType  int      `json:"value_type" db:"value_type"`
	Units      string   `json:"units" db:"units"`
	Delay      string   `json:"delay" db:"delay"`
	Status     int      `json:"status" db:"status"`
	History    int      `json:"history" db:"history"`
	Trends     int      `json:"trends" db:"trends"`
}

// ItemStatusFor maps a scenario status onto the status of its items.
func ItemStatusFor(scenarioStatus int) int {
	if scenarioStatus == ScenarioActive {
		return ItemActive
	}
	return ItemDisabled
}
