package scenario_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/scenario"
	"github.com/bcnelson/webscenario-manager/internal/storage/memory"
)

func setup(t *testing.T, hosts ...string) (*memory.Store, *scenario.Manager) {
	t.Helper()
	store := memory.New()
	now := time.Now()
	for _, id := range hosts {
		host := &domain.Host{ID: id, Name: id, IsTemplate: strings.HasPrefix(id, "tpl"), CreatedAt: now, UpdatedAt: now}
		if err := store.CreateHost(context.Background(), host); err != nil {
			t.Fatalf("CreateHost failed: %v", err)
		}
	}
	return store, scenario.NewManager(store, nil, 0)
}

func newScenario(hostID, name string, steps ...string) *domain.Scenario {
	sc := &domain.Scenario{HostID: hostID, Name: name}
	for i, step := range steps {
		sc.Steps = append(sc.Steps, domain.Step{No: i + 1, Name: step, URL: "http://example.com/" + step})
	}
	return sc
}

func persist(t *testing.T, m *scenario.Manager, sc *domain.Scenario) *domain.Scenario {
	t.Helper()
	saved, _, err := m.Persist(context.Background(), []*domain.Scenario{sc})
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	return saved[0]
}

func TestCreate_AppliesDefaultsAndItems(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := persist(t, m, newScenario("h1", "Login, portal", "open"))

	stored, err := store.GetScenario(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScenario failed: %v", err)
	}
	if stored.Delay != domain.DefaultDelay || stored.Agent != domain.DefaultAgent || stored.Retries != 1 {
		t.Errorf("Expected defaults, got delay=%s agent=%s retries=%d", stored.Delay, stored.Agent, stored.Retries)
	}
	if stored.Steps[0].Timeout != domain.DefaultTimeout {
		t.Errorf("Expected default timeout, got %s", stored.Steps[0].Timeout)
	}

	items, _ := store.ListScenarioItems(ctx, sc.ID)
	keys := make(map[string]*domain.CheckItem)
	for _, item := range items {
		keys[item.Key] = item
	}
	for _, key := range []string{
		`web.test.in["Login, portal",,bps]`,
		`web.test.fail["Login, portal"]`,
		`web.test.error["Login, portal"]`,
		`web.test.in["Login, portal",open,bps]`,
		`web.test.time["Login, portal",open,resp]`,
		`web.test.rspcode["Login, portal",open]`,
	} {
		item, ok := keys[key]
		if !ok {
			t.Errorf("Expected item %s", key)
			continue
		}
		if item.History != domain.ItemHistoryDays || item.Trends != domain.ItemTrendsDays {
			t.Errorf("Expected retention 30/90 on %s, got %d/%d", key, item.History, item.Trends)
		}
	}
	if len(items) != 6 {
		t.Errorf("Expected 6 items, got %d", len(items))
	}
}

func TestUpdate_RenameRewritesItemKeys(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := persist(t, m, newScenario("h1", "Old", "home"))
	sc.Name = "New"
	persist(t, m, sc)

	items, _ := store.ListScenarioItems(ctx, sc.ID)
	for _, item := range items {
		if strings.Contains(item.Key, "Old") || !strings.Contains(item.Key, "New") {
			t.Errorf("Expected key to use the new name, got %s", item.Key)
		}
		if strings.Contains(item.Name, "Old") {
			t.Errorf("Expected item name to use the new name, got %s", item.Name)
		}
	}
}

func TestUpdate_StatusAndDelayReachItems(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := persist(t, m, newScenario("h1", "Shop", "home"))
	sc.Status = domain.ScenarioDisabled
	sc.Delay = "10m"
	persist(t, m, sc)

	items, _ := store.ListScenarioItems(ctx, sc.ID)
	for _, item := range items {
		if item.Status != domain.ItemDisabled {
			t.Errorf("Expected %s to be disabled", item.Key)
		}
		if item.Delay != "10m" {
			t.Errorf("Expected delay 10m on %s, got %s", item.Key, item.Delay)
		}
	}
}

func TestUpdate_UnchangedIsNotWritten(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := persist(t, m, newScenario("h1", "Shop", "home"))
	before, _ := store.GetScenario(ctx, sc.ID)

	result, err := m.Save(ctx, []*domain.Scenario{before.Clone()})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Unchanged != 1 || result.Updated != 0 {
		t.Errorf("Expected unchanged save, got %+v", result)
	}

	after, _ := store.GetScenario(ctx, sc.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("Expected row not to be rewritten")
	}
}

func TestUpdate_FieldBuckets(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := newScenario("h1", "Shop", "home")
	sc.Headers = []domain.Field{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	sc = persist(t, m, sc)

	sc.Headers = []domain.Field{{Name: "B", Value: "2"}, {Name: "A", Value: "1"}}
	sc.Steps[0].QueryFields = []domain.Field{{Name: "q", Value: "shoes"}}
	result, err := m.Save(ctx, []*domain.Scenario{sc})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("Expected reordered bucket to count as an update, got %+v", result)
	}

	stored, _ := store.GetScenario(ctx, sc.ID)
	if stored.Headers[0].Name != "B" {
		t.Errorf("Expected header order to be rewritten, got %v", stored.Headers)
	}
	if len(stored.Steps[0].QueryFields) != 1 || stored.Steps[0].QueryFields[0].Value != "shoes" {
		t.Errorf("Expected step query field, got %v", stored.Steps[0].QueryFields)
	}
}

func TestUpdate_StepRemovalDeletesItems(t *testing.T) {
	store, m := setup(t, "h1")
	ctx := context.Background()

	sc := persist(t, m, newScenario("h1", "Shop", "home", "cart"))
	removed := sc.Steps[1].ID
	sc.Steps = sc.Steps[:1]
	persist(t, m, sc)

	steps, _ := store.GetStepsByIDs(ctx, []string{removed})
	if len(steps) != 0 {
		t.Error("Expected step to be deleted")
	}
	items, _ := store.ListStepItems(ctx, []string{removed})
	if len(items) != 0 {
		t.Errorf("Expected step items to be deleted, got %d", len(items))
	}
}

func TestDelete_CascadesToCopies(t *testing.T) {
	store, m := setup(t, "tpl", "h1")
	ctx := context.Background()
	_ = store.CreateTemplateLink(ctx, &domain.TemplateLink{HostID: "h1", TemplateID: "tpl"})

	tmpl := persist(t, m, newScenario("tpl", "Shop", "home"))
	if err := m.Delete(ctx, []string{tmpl.ID}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	copies, _ := store.ListScenarios(ctx, "h1")
	if len(copies) != 0 {
		t.Errorf("Expected inherited copy to be deleted, got %d", len(copies))
	}
}

func TestUnlink(t *testing.T) {
	tests := []struct {
		name      string
		clear     bool
		wantCount int
	}{
		{"detach", false, 1},
		{"clear", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, m := setup(t, "tpl", "h1")
			ctx := context.Background()
			_ = store.CreateTemplateLink(ctx, &domain.TemplateLink{HostID: "h1", TemplateID: "tpl"})
			persist(t, m, newScenario("tpl", "Shop", "home"))

			n, err := m.Unlink(ctx, "h1", "tpl", tt.clear)
			if err != nil {
				t.Fatalf("Unlink failed: %v", err)
			}
			if n != 1 {
				t.Errorf("Expected 1 affected scenario, got %d", n)
			}

			scenarios, _ := store.ListScenarios(ctx, "h1")
			if len(scenarios) != tt.wantCount {
				t.Fatalf("Expected %d scenarios, got %d", tt.wantCount, len(scenarios))
			}
			if tt.clear {
				return
			}
			if scenarios[0].OriginID != nil {
				t.Error("Expected detached scenario to have no origin")
			}
			items, _ := store.ListScenarioItems(ctx, scenarios[0].ID)
			for _, item := range items {
				if item.OriginID != nil {
					t.Errorf("Expected item %s to be detached", item.Key)
				}
			}
		})
	}
}

func TestUpdate_StepRenames(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(sc *domain.Scenario)
		want   []string
		keepID map[int]int // incoming index -> original index whose row it keeps
	}{
		{
			name: "swap",
			edit: func(sc *domain.Scenario) {
				sc.Steps[0].Name, sc.Steps[1].Name = "cart", "home"
			},
			want:   []string{"cart", "home"},
			keepID: map[int]int{0: 0, 1: 1},
		},
		{
			name: "rotate",
			edit: func(sc *domain.Scenario) {
				sc.Steps = append(sc.Steps, domain.Step{No: 3, Name: "pay", URL: "http://example.com/pay"})
				sc.Steps[0].Name, sc.Steps[1].Name = "cart", "pay"
				sc.Steps[2].Name = "home"
			},
			want:   []string{"cart", "pay", "home"},
			keepID: map[int]int{0: 0, 1: 1},
		},
		{
			name: "rename and reuse old name",
			edit: func(sc *domain.Scenario) {
				sc.Steps[0].Name = "start"
				sc.Steps = append(sc.Steps, domain.Step{No: 3, Name: "home", URL: "http://example.com/home2"})
			},
			want:   []string{"start", "cart", "home"},
			keepID: map[int]int{0: 0, 1: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, m := setup(t, "h1")
			ctx := context.Background()

			sc := persist(t, m, newScenario("h1", "Shop", "home", "cart"))
			original := []string{sc.Steps[0].ID, sc.Steps[1].ID}

			tt.edit(sc)
			persist(t, m, sc)

			stored, err := store.GetScenario(ctx, sc.ID)
			if err != nil {
				t.Fatalf("GetScenario failed: %v", err)
			}
			if len(stored.Steps) != len(tt.want) {
				t.Fatalf("Expected %d steps, got %d", len(tt.want), len(stored.Steps))
			}
			for i, name := range tt.want {
				if stored.Steps[i].Name != name {
					t.Errorf("Expected step %d to be %s, got %s", i, name, stored.Steps[i].Name)
				}
			}
			for i, j := range tt.keepID {
				if stored.Steps[i].ID != original[j] {
					t.Errorf("Expected step %d to keep its row", i)
				}
			}

			items, _ := store.ListScenarioItems(ctx, sc.ID)
			if len(items) != 3+3*len(tt.want) {
				t.Errorf("Expected %d items, got %d", 3+3*len(tt.want), len(items))
			}
			byStep := make(map[string]string)
			for _, step := range stored.Steps {
				byStep[step.ID] = step.Name
			}
			for _, item := range items {
				if strings.HasPrefix(item.Key, "~") {
					t.Errorf("Expected no placeholder key, got %s", item.Key)
				}
				if item.StepID != nil && !strings.Contains(item.Key, ","+byStep[*item.StepID]+",") &&
					!strings.HasSuffix(item.Key, ","+byStep[*item.StepID]+"]") {
					t.Errorf("Expected key %s to name its step %s", item.Key, byStep[*item.StepID])
				}
			}
		})
	}
}
