package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bcnelson/webscenario-manager/internal/api"
	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage/memory"
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	bootstrapKey string
}

func newTestServer() *testServer {
	store := memory.New()
	bootstrapKey := "test-bootstrap-key"
	svc := service.NewScenarioService(store, nil, 0)

	// OIDC disabled for tests
	handler := api.NewRouter(store, svc, bootstrapKey, nil, nil)

	return &testServer{
		handler:      handler,
		store:        store,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	return ts.requestWithHeaders(method, path, body, apiKey, nil)
}

func (ts *testServer) requestWithHeaders(method, path string, body any, apiKey string, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) createHost(t *testing.T, name string, template bool) *domain.Host {
	t.Helper()
	rr := ts.request("POST", "/api/v1/hosts", domain.CreateHostRequest{Name: name, IsTemplate: template}, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating host, got %d: %s", rr.Code, rr.Body.String())
	}
	var host domain.Host
	_ = json.Unmarshal(rr.Body.Bytes(), &host)
	return &host
}

func (ts *testServer) link(t *testing.T, hostID, templateID string) {
	t.Helper()
	rr := ts.request("POST", "/api/v1/hosts/"+hostID+"/templates", domain.LinkTemplateRequest{TemplateID: templateID}, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 linking template, got %d: %s", rr.Code, rr.Body.String())
	}
}

func shopRequest(name string) domain.CreateScenarioRequest {
	return domain.CreateScenarioRequest{
		Name: name,
		Steps: []domain.Step{
			{No: 1, Name: "home", URL: "https://shop.example.com/"},
			{No: 2, Name: "cart", URL: "https://shop.example.com/cart", StatusCodes: "200"},
		},
	}
}

type scenarioBody struct {
	domain.Scenario
	Propagation struct {
		Passes  int `json:"passes"`
		Created int `json:"created"`
		Updated int `json:"updated"`
	} `json:"propagation"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) domain.StandardError {
	t.Helper()
	var resp domain.StandardErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected error body, got %s", rr.Body.String())
	}
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer()

	// Request without auth header
	rr := ts.request("GET", "/api/v1/hosts", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid auth header format
	rr = ts.requestWithHeaders("GET", "/api/v1/hosts", nil, "", map[string]string{"Authorization": "Basic invalid"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid API key
	rr = ts.request("GET", "/api/v1/hosts", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != domain.ErrCodeUnauthorized {
		t.Errorf("Expected code %s, got %s", domain.ErrCodeUnauthorized, got.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer()

	// Create API keys using the bootstrap key
	var created []domain.CreateAPIKeyResponse
	for _, name := range []string{"CI", "Operator"} {
		rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: name}, ts.bootstrapKey)
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp domain.CreateAPIKeyResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Key == "" {
			t.Fatal("Expected key to be returned on creation")
		}
		created = append(created, resp)
	}

	// The bootstrap key stops working once real keys exist
	rr := ts.request("GET", "/api/v1/hosts", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected bootstrap key to be disabled, got %d", rr.Code)
	}

	rr = ts.request("GET", "/api/v1/keys", nil, created[0].Key)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var keys []*domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %d", len(keys))
	}

	// A key cannot delete itself
	rr = ts.request("DELETE", "/api/v1/keys/"+created[0].ID, nil, created[0].Key)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	rr = ts.request("DELETE", "/api/v1/keys/"+created[1].ID, nil, created[0].Key)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/hosts", nil, created[1].Key)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected deleted key to be rejected, got %d", rr.Code)
	}
}

func TestHostCRUD(t *testing.T) {
	ts := newTestServer()

	host := ts.createHost(t, "web-01", false)
	ts.createHost(t, "Template Web", true)

	rr := ts.request("POST", "/api/v1/hosts", domain.CreateHostRequest{Name: "bad/name"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid name, got %d", rr.Code)
	}

	rr = ts.request("GET", "/api/v1/hosts?template=true", nil, ts.bootstrapKey)
	var hosts []*domain.Host
	_ = json.Unmarshal(rr.Body.Bytes(), &hosts)
	if len(hosts) != 1 || !hosts[0].IsTemplate {
		t.Errorf("Expected only the template, got %+v", hosts)
	}

	rr = ts.request("GET", "/api/v1/hosts/"+host.ID+"/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected ETag header")
	}

	rr = ts.requestWithHeaders("PUT", "/api/v1/hosts/"+host.ID+"/", domain.UpdateHostRequest{Name: "web-02"}, ts.bootstrapKey,
		map[string]string{"If-Match": `"host-stale-0"`})
	if rr.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected status 412 for stale ETag, got %d", rr.Code)
	}

	rr = ts.requestWithHeaders("PUT", "/api/v1/hosts/"+host.ID+"/", domain.UpdateHostRequest{Name: "web-02"}, ts.bootstrapKey,
		map[string]string{"If-Match": etag})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("DELETE", "/api/v1/hosts/"+host.ID+"/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/hosts/"+host.ID+"/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", rr.Code)
	}
}

func TestScenarioInheritanceFlow(t *testing.T) {
	ts := newTestServer()
	tmpl := ts.createHost(t, "Template Web", true)
	host := ts.createHost(t, "web-01", false)
	ts.link(t, host.ID, tmpl.ID)

	// Create on the template; the host gets a copy
	rr := ts.request("POST", "/api/v1/hosts/"+tmpl.ID+"/scenarios", shopRequest("Shop"), ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created scenarioBody
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	if created.Propagation.Created != 1 {
		t.Errorf("Expected 1 inherited copy, got %d", created.Propagation.Created)
	}

	rr = ts.request("GET", "/api/v1/hosts/"+host.ID+"/scenarios", nil, ts.bootstrapKey)
	var copies []*domain.Scenario
	_ = json.Unmarshal(rr.Body.Bytes(), &copies)
	if len(copies) != 1 || copies[0].OriginID == nil || *copies[0].OriginID != created.ID {
		t.Fatalf("Expected an inherited copy, got %+v", copies)
	}
	copyID := copies[0].ID

	// Items exist for the copy
	rr = ts.request("GET", "/api/v1/scenarios/"+copyID+"/items", nil, ts.bootstrapKey)
	var items []*domain.CheckItem
	_ = json.Unmarshal(rr.Body.Bytes(), &items)
	if len(items) != 9 {
		t.Errorf("Expected 9 items (3 scenario + 3 per step), got %d", len(items))
	}

	// Renaming the copy is rejected
	name := "Mine"
	rr = ts.request("PUT", "/api/v1/scenarios/"+copyID, domain.UpdateScenarioRequest{Name: &name}, ts.bootstrapKey)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != domain.ErrCodeInherited {
		t.Errorf("Expected 409 INHERITED, got %d: %s", rr.Code, rr.Body.String())
	}

	// Renaming the template scenario reaches the copy
	name = "Store"
	rr = ts.request("PUT", "/api/v1/scenarios/"+created.ID, domain.UpdateScenarioRequest{Name: &name}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = ts.request("GET", "/api/v1/scenarios/"+copyID, nil, ts.bootstrapKey)
	var renamed domain.Scenario
	_ = json.Unmarshal(rr.Body.Bytes(), &renamed)
	if renamed.Name != "Store" {
		t.Errorf("Expected copy to be renamed, got %s", renamed.Name)
	}

	// Deleting the copy directly is rejected; deleting the template scenario cascades
	rr = ts.request("DELETE", "/api/v1/scenarios/"+copyID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}
	rr = ts.request("DELETE", "/api/v1/scenarios/"+created.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/scenarios/"+copyID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected copy to be gone, got %d", rr.Code)
	}
}

func TestNamingConflict(t *testing.T) {
	ts := newTestServer()
	tmpl := ts.createHost(t, "Template Web", true)
	host := ts.createHost(t, "web-01", false)
	ts.link(t, host.ID, tmpl.ID)

	local := shopRequest("Shop")
	local.Steps = local.Steps[:1]
	rr := ts.request("POST", "/api/v1/hosts/"+host.ID+"/scenarios", local, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("POST", "/api/v1/hosts/"+tmpl.ID+"/scenarios", shopRequest("Shop"), ts.bootstrapKey)
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decodeError(t, rr)
	if got.Code != domain.ErrCodeNamingConflict {
		t.Errorf("Expected code %s, got %s", domain.ErrCodeNamingConflict, got.Code)
	}
	if got.Details["scenario"] != "Shop" || got.Details["host"] != "web-01" {
		t.Errorf("Unexpected details: %v", got.Details)
	}

	rr = ts.request("GET", "/api/v1/hosts/"+tmpl.ID+"/scenarios", nil, ts.bootstrapKey)
	var scenarios []*domain.Scenario
	_ = json.Unmarshal(rr.Body.Bytes(), &scenarios)
	if len(scenarios) != 0 {
		t.Errorf("Expected the failed create to leave no template scenario, got %d", len(scenarios))
	}
}

func TestScenarioValidation(t *testing.T) {
	ts := newTestServer()
	host := ts.createHost(t, "web-01", false)

	req := shopRequest("Shop")
	req.Steps[1].Name = "home"
	rr := ts.request("POST", "/api/v1/hosts/"+host.ID+"/scenarios", req, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != domain.ErrCodeValidationError || got.Field != "steps[1].name" {
		t.Errorf("Expected validation error on steps[1].name, got %+v", got)
	}
}

func TestTemplateLinks(t *testing.T) {
	ts := newTestServer()
	tmpl := ts.createHost(t, "Template Web", true)
	host := ts.createHost(t, "web-01", false)
	other := ts.createHost(t, "web-02", false)

	rr := ts.request("POST", "/api/v1/hosts/"+tmpl.ID+"/scenarios", shopRequest("Shop"), ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}
	ts.link(t, host.ID, tmpl.ID)

	// Linking to a plain host fails
	rr = ts.request("POST", "/api/v1/hosts/"+host.ID+"/templates", domain.LinkTemplateRequest{TemplateID: other.ID}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 linking a non-template, got %d", rr.Code)
	}

	// Self link is a cycle
	rr = ts.request("POST", "/api/v1/hosts/"+tmpl.ID+"/templates", domain.LinkTemplateRequest{TemplateID: tmpl.ID}, ts.bootstrapKey)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != domain.ErrCodeTemplateCycle {
		t.Errorf("Expected 409 TEMPLATE_CYCLE, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("GET", "/api/v1/hosts/"+host.ID+"/templates", nil, ts.bootstrapKey)
	var links []*domain.TemplateLink
	_ = json.Unmarshal(rr.Body.Bytes(), &links)
	if len(links) != 1 || links[0].TemplateID != tmpl.ID {
		t.Errorf("Expected one link, got %+v", links)
	}

	rr = ts.request("POST", "/api/v1/templates/"+tmpl.ID+"/resync", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 on resync, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("DELETE", "/api/v1/hosts/"+host.ID+"/templates/"+tmpl.ID+"?clear=true", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = ts.request("GET", "/api/v1/hosts/"+host.ID+"/scenarios", nil, ts.bootstrapKey)
	var scenarios []*domain.Scenario
	_ = json.Unmarshal(rr.Body.Bytes(), &scenarios)
	if len(scenarios) != 0 {
		t.Errorf("Expected cleared copies, got %d", len(scenarios))
	}
}
