package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/ai/mock"
	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/billing"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository"
	"github.com/govai/console/internal/repository/memstore"
	"github.com/govai/console/internal/report"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testOrgID = "org_handler"

// testEnv wires the handlers over an in-memory store and the mock provider.
type testEnv struct {
	store    *memstore.Store
	plans    service.PlanService
	costs    service.CostService
	quota    service.QuotaService
	prompts  service.PromptService
	provider *mock.Provider
	files    *storage.LocalStorage
	filesDir string
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T, planID domain.PlanID) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	store := memstore.New()
	plans := service.NewPlanService(store, nil, logger)
	for _, p := range []*domain.PlanLimit{
		{PlanID: domain.PlanFree, MonthlyChatLimit: 3, MonthlyDocGenLimit: 2, StorageLimitMB: 1, MaxUsers: 3,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: false}},
		{PlanID: domain.PlanPro, MonthlyChatLimit: domain.Unlimited, MonthlyDocGenLimit: 100, StorageLimitMB: 1000, MaxUsers: 30,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: true, domain.FeatureDownloadWord: true}},
	} {
		if _, err := plans.UpsertPlan(ctx, p); err != nil {
			t.Fatalf("seed plan: %v", err)
		}
	}
	if _, err := plans.CreateOrganization(ctx, testOrgID, "Test City", planID); err != nil {
		t.Fatalf("seed organization: %v", err)
	}

	costs, err := service.NewCostService(store, plans, service.CostConfig{}, logger)
	if err != nil {
		t.Fatalf("cost service: %v", err)
	}
	quota := service.NewQuotaService(store, plans, costs, nil, service.QuotaConfig{
		WriteRetries:   1,
		WriteBackoff:   time.Millisecond,
		ReservationTTL: time.Minute,
	}, logger)

	dir := t.TempDir()
	files, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: dir, BaseURL: "http://localhost/files"}, logger)
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	prompts := service.NewPromptService(store, logger)
	for _, m := range testPromptModules() {
		if _, err := prompts.UpsertModule(ctx, m); err != nil {
			t.Fatalf("seed prompt module: %v", err)
		}
	}

	provider := mock.New(logger)
	meter := NewMeter(quota, costs, prompts, provider, logger)

	mux := http.NewServeMux()
	passthrough := func(next http.Handler) http.Handler { return next }
	NewChatHandler(meter, costs, provider, logger).RegisterRoutes(mux, passthrough)
	NewDocumentHandler(meter, quota, logger).RegisterRoutes(mux, passthrough)
	NewFileHandler(quota, files, 4<<20, logger).RegisterRoutes(mux, passthrough)
	NewUsageHandler(quota, plans, costs, logger).RegisterRoutes(mux, passthrough)
	NewAdminHandler(plans, quota, prompts, logger).RegisterRoutes(mux, passthrough)
	NewWebhookHandler(nil, plans, logger).RegisterRoutes(mux)
	NewBillingHandler(nil, plans, "http://localhost", logger).RegisterRoutes(mux, passthrough)

	return &testEnv{
		store:    store,
		plans:    plans,
		costs:    costs,
		quota:    quota,
		prompts:  prompts,
		provider: provider,
		files:    files,
		filesDir: dir,
		mux:      mux,
	}
}

func testPromptModules() []*domain.PromptModule {
	return []*domain.PromptModule{
		{Slug: domain.PersonaModule, Content: "You are Aoi.", RequiredPlanLevel: 0, Active: true},
		{Slug: "mod_core", Content: "[core]", RequiredPlanLevel: 0, Active: true},
		{Slug: "mod_std", Content: "[standard]", RequiredPlanLevel: 1, Active: true},
		{Slug: "mod_pro", Content: "[pro]", RequiredPlanLevel: 2, Active: true},
		{Slug: "mod_ent", Content: "[enterprise]", RequiredPlanLevel: 3, Active: true},
	}
}

// do serves a request as a member of the test organization.
func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	org, err := e.plans.GetOrganization(req.Context(), testOrgID)
	if err != nil {
		t.Fatalf("load organization: %v", err)
	}
	ctx := auth.SetPrincipal(req.Context(), &auth.Principal{
		UserID:         "user_1",
		OrganizationID: testOrgID,
		Email:          "staff@city.example.jp",
		Role:           auth.RoleAdmin,
	})
	ctx = auth.SetOrganization(ctx, org)

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (e *testEnv) usage(t *testing.T) *domain.UsageRecord {
	t.Helper()
	r, err := e.quota.GetUsage(context.Background(), testOrgID, time.Now())
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	return r
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", rec.Body.String())
	}
	return body.Error.Code
}

const chatBody = `{"messages":[{"role":"user","content":"住民票の発行手続きを教えてください"}]}`

// =============================================================================
// Chat
// =============================================================================

func TestChat_RecordsUsageAndSpend(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result MeteredResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Model != domain.ModelGPT4oMini {
		t.Errorf("model = %q, want %q", result.Model, domain.ModelGPT4oMini)
	}
	if !strings.Contains(result.Content, "住民票") {
		t.Errorf("content = %q", result.Content)
	}

	if got := env.usage(t).ChatCount; got != 1 {
		t.Errorf("chat count = %d, want 1", got)
	}
	if got := env.store.Reservations(); got != 0 {
		t.Errorf("outstanding reservations = %d, want 0", got)
	}
	logs, err := env.costs.ListSpend(context.Background(), testOrgID, 10)
	if err != nil || len(logs) != 1 {
		t.Fatalf("usage logs = %d (%v), want 1", len(logs), err)
	}
	if logs[0].FeatureName != "chat" || logs[0].UserID != "user_1" {
		t.Errorf("log = %+v", logs[0])
	}
}

func TestChat_QuotaExhausted(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	if _, err := env.quota.RecordUsage(context.Background(), testOrgID, domain.CounterChat, 3); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if code := errorCode(t, rec); code != domain.EQUOTA {
		t.Errorf("code = %q", code)
	}
	if env.provider.CompleteCalls != 0 {
		t.Error("model should not be called after a quota denial")
	}
	if got := env.usage(t).ChatCount; got != 3 {
		t.Errorf("chat count = %d, want 3", got)
	}
}

func TestChat_ProviderFailureReleasesReservation(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	env.provider.CompleteError = ai.EAIUnavailable

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	u := env.usage(t)
	if u.ChatCount != 0 || u.ChatReserved != 0 {
		t.Errorf("usage = %+v, want nothing recorded or held", u)
	}
	if env.store.Reservations() != 0 {
		t.Error("reservation should be released")
	}
}

func TestChat_SystemPromptStacksByPlan(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("free status = %d, body = %s", rec.Code, rec.Body.String())
	}
	free := env.provider.LastRequest.System
	if want := "You are Aoi.\n\n[core]"; free != want {
		t.Errorf("free prompt = %q, want %q", free, want)
	}

	if _, err := env.plans.SetOrganizationPlan(context.Background(), testOrgID, domain.PlanPro); err != nil {
		t.Fatal(err)
	}
	body := `{"system":"Answer in English.","messages":[{"role":"user","content":"hello"}]}`
	rec = env.do(t, jsonRequest("POST", "/api/chat", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("pro status = %d, body = %s", rec.Code, rec.Body.String())
	}
	pro := env.provider.LastRequest.System
	if want := "You are Aoi.\n\n[core]\n\n[standard]\n\n[pro]\n\nAnswer in English."; pro != want {
		t.Errorf("pro prompt = %q, want %q", pro, want)
	}
	if strings.Contains(pro, "[enterprise]") {
		t.Error("pro prompt includes the enterprise module")
	}
}

func TestChat_MissingPromptModulesFailsClosed(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	if _, err := env.prompts.UpsertModule(context.Background(), &domain.PromptModule{
		Slug: domain.PersonaModule, Content: "You are Aoi.", Active: false,
	}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), domain.ECONFIG) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if env.provider.CompleteCalls != 0 {
		t.Errorf("provider called %d times", env.provider.CompleteCalls)
	}
	if u := env.usage(t); u.ChatCount != 0 || u.ChatReserved != 0 {
		t.Errorf("usage = %+v, want nothing recorded or held", u)
	}
}

func TestChat_CostLimitReached(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	env.store.AddUsageLog(repository.UsageLog{
		OrganizationID:   testOrgID,
		FeatureName:      "chat",
		ModelUsed:        domain.ModelGPT4oMini,
		EstimatedCostUsd: 1.25,
		CreatedAt:        time.Now(),
	})

	rec := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if code := errorCode(t, rec); code != domain.ELIMITREACHED {
		t.Errorf("code = %q", code)
	}
	if env.usage(t).ChatReserved != 0 {
		t.Error("reservation should be released on cost denial")
	}
}

func TestChat_Validation(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty messages", `{"messages":[]}`, http.StatusBadRequest},
		{"assistant last", `{"messages":[{"role":"assistant","content":"hi"}]}`, http.StatusBadRequest},
		{"bad task", `{"messages":[{"role":"user","content":"hi"}],"task":"embedding"}`, http.StatusBadRequest},
		{"unknown field", `{"messages":[{"role":"user","content":"hi"}],"x":1}`, http.StatusBadRequest},
		{"not json", `hello`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest("POST", "/api/chat", tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if env.provider.CompleteCalls != 0 {
		t.Error("invalid requests should not reach the model")
	}
}

func TestEmbed(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("POST", "/api/embeddings", `{"input":["条例","規則"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp EmbedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Model != domain.ModelEmbeddingSmall || len(resp.Vectors) != 2 {
		t.Errorf("model = %q, vectors = %d", resp.Model, len(resp.Vectors))
	}
	if env.usage(t).ChatCount != 0 {
		t.Error("embeddings should not consume chat quota")
	}
}

// =============================================================================
// Documents
// =============================================================================

func TestGenerate_FeatureGate(t *testing.T) {
	body := `{"title":"議事録","prompt":"第3回委員会の議事録を作成","advanced":true}`

	t.Run("free plan denied", func(t *testing.T) {
		env := newTestEnv(t, domain.PlanFree)
		rec := env.do(t, jsonRequest("POST", "/api/documents/generate", body))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if code := errorCode(t, rec); code != domain.EFEATURE {
			t.Errorf("code = %q", code)
		}
		if env.usage(t).DocGenCount != 0 {
			t.Error("denied generation should not be counted")
		}
	})

	t.Run("pro plan allowed", func(t *testing.T) {
		env := newTestEnv(t, domain.PlanPro)
		rec := env.do(t, jsonRequest("POST", "/api/documents/generate", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp GenerateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Model != domain.ModelGPT4o {
			t.Errorf("model = %q, want %q", resp.Model, domain.ModelGPT4o)
		}
		if env.usage(t).DocGenCount != 1 {
			t.Error("generation should be counted")
		}
	})
}

func TestGenerate_WordRequiresFeature(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	rec := env.do(t, jsonRequest("POST", "/api/documents/generate", `{"title":"通知","prompt":"通知文","format":"docx"}`))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGenerate_WordDownload(t *testing.T) {
	env := newTestEnv(t, domain.PlanPro)
	rec := env.do(t, jsonRequest("POST", "/api/documents/generate", `{"title":"通知","prompt":"## 件名\n通知文","format":"docx"}`))
	if rec.Code == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "internal") {
		t.Skip("docx rendering unavailable without a unioffice license")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != report.ContentTypeDOCX {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Model-Used") == "" {
		t.Error("missing X-Model-Used header")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip container")
	}
	if env.usage(t).DocGenCount != 1 {
		t.Error("generation should be counted")
	}
}

// =============================================================================
// Files
// =============================================================================

func multipartRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_RecordsStorage(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	content := bytes.Repeat([]byte("a"), 512*1024)

	rec := env.do(t, multipartRequest(t, "memo.txt", content))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp FileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Size != int64(len(content)) {
		t.Errorf("size = %d", resp.Size)
	}
	if _, err := os.Stat(filepath.Join(env.filesDir, filepath.FromSlash(resp.Key))); err != nil {
		t.Errorf("file not written: %v", err)
	}
	if got := env.usage(t).StorageUsedMB; got != 0.5 {
		t.Errorf("storage used = %v MB, want 0.5", got)
	}

	link := env.do(t, httptest.NewRequest("GET", "/api/files/"+resp.ID, nil))
	if link.Code != http.StatusOK {
		t.Errorf("link status = %d", link.Code)
	}
}

func TestUpload_StorageLimit(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	content := bytes.Repeat([]byte("b"), 2<<20)

	rec := env.do(t, multipartRequest(t, "big.txt", content))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	used, err := env.files.Usage(context.Background(), storage.OrganizationPrefix(testOrgID))
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("nothing should be stored, got %d bytes", used)
	}
}

func TestUpload_RejectsDisallowedType(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	rec := env.do(t, multipartRequest(t, "run.exe", []byte("MZ\x90\x00")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.usage(t).StorageReservedMB != 0 {
		t.Error("rejected upload should not reserve storage")
	}
}

func TestLink_NotFound(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	rec := env.do(t, httptest.NewRequest("GET", "/api/files/missing.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Usage and Admin
// =============================================================================

func TestUsageSummary(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	if _, err := env.quota.RecordUsage(context.Background(), testOrgID, domain.CounterChat, 2); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, httptest.NewRequest("GET", "/api/usage", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		PlanID   string               `json:"plan_id"`
		PlanName string               `json:"plan_name"`
		Metrics  []domain.MetricUsage `json:"metrics"`
		CostJPY  string               `json:"cost_jpy"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PlanID != "free" || resp.PlanName != "Free" {
		t.Errorf("plan = %q/%q", resp.PlanID, resp.PlanName)
	}
	if len(resp.Metrics) != 3 {
		t.Fatalf("metrics = %d, want 3", len(resp.Metrics))
	}
	chat := resp.Metrics[0]
	if chat.Used != 2 || chat.Limit != 3 || chat.Remaining != 1 {
		t.Errorf("chat = %+v", chat)
	}
	if resp.CostJPY != "<¥1" {
		t.Errorf("cost_jpy = %q", resp.CostJPY)
	}
}

func TestAdmin_SetOrganizationPlanAppliesImmediately(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	if _, err := env.quota.RecordUsage(context.Background(), testOrgID, domain.CounterChat, 3); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, jsonRequest("PUT", "/admin/organizations/"+testOrgID+"/plan", `{"plan_id":"pro"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	chat := env.do(t, jsonRequest("POST", "/api/chat", chatBody))
	if chat.Code != http.StatusOK {
		t.Errorf("chat after upgrade = %d, want 200", chat.Code)
	}
}

func TestAdmin_PlanUsage(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()
	if _, err := env.plans.CreateOrganization(ctx, "org_pro", "Pro City", domain.PlanPro); err != nil {
		t.Fatal(err)
	}
	if _, err := env.quota.RecordUsage(ctx, testOrgID, domain.CounterChat, 2); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, httptest.NewRequest("GET", "/admin/usage?plan=free", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PlanID        string               `json:"plan_id"`
		Organizations []domain.PeriodUsage `json:"organizations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Organizations) != 1 {
		t.Fatalf("organizations = %+v", resp.Organizations)
	}
	if got := resp.Organizations[0]; got.OrganizationID != testOrgID || got.ChatCount != 2 {
		t.Errorf("usage = %+v", got)
	}

	if rec := env.do(t, httptest.NewRequest("GET", "/admin/usage?plan=platinum", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown plan status = %d, want 400", rec.Code)
	}
}

func TestAdmin_OrganizationHistory(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := env.quota.ApplyUsage(ctx, testOrgID, domain.CounterDocGen, 1, jan); err != nil {
		t.Fatal(err)
	}
	if _, err := env.quota.RecordUsage(ctx, testOrgID, domain.CounterChat, 1); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, httptest.NewRequest("GET", "/admin/organizations/"+testOrgID+"/history?months=24", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		History []domain.PeriodUsage `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history = %+v", resp.History)
	}
	if last := resp.History[1]; last.Period != "2025-01-01" || last.DocGenCount != 1 {
		t.Errorf("oldest = %+v", last)
	}

	for _, q := range []string{"months=0", "months=abc"} {
		rec := env.do(t, httptest.NewRequest("GET", "/admin/organizations/"+testOrgID+"/history?"+q, nil))
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "months") {
			t.Errorf("%s: status = %d, body = %s", q, rec.Code, rec.Body.String())
		}
	}
}

func TestAdmin_PromptModules(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("PUT", "/admin/prompt-modules/mod_core", `{"content":"[core v2]","required_plan_level":0}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest("GET", "/admin/prompt-modules/preview?plan=standard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d", rec.Code)
	}
	var preview struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatal(err)
	}
	if want := "You are Aoi.\n\n[core v2]\n\n[standard]"; preview.Prompt != want {
		t.Errorf("prompt = %q, want %q", preview.Prompt, want)
	}

	rec = env.do(t, jsonRequest("PUT", "/admin/prompt-modules/mod_x", `{"content":"","required_plan_level":9}`))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "required_plan_level") {
		t.Errorf("invalid module: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	list := env.do(t, httptest.NewRequest("GET", "/admin/prompt-modules", nil))
	if !strings.Contains(list.Body.String(), `"slug":"mod_ent"`) {
		t.Errorf("modules = %s", list.Body.String())
	}
}

func TestAdmin_UpsertPlanValidation(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("PUT", "/admin/plans/standard", `{"monthly_chat_limit":-5,"max_users":1}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "monthly_chat_limit") {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = env.do(t, jsonRequest("PUT", "/admin/plans/standard", `{"monthly_chat_limit":500,"monthly_doc_gen_limit":50,"storage_limit_mb":1000,"max_users":10}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	list := env.do(t, httptest.NewRequest("GET", "/admin/plans", nil))
	if !strings.Contains(list.Body.String(), `"plan_id":"standard"`) {
		t.Errorf("plans = %s", list.Body.String())
	}
}

// =============================================================================
// Billing
// =============================================================================

func TestBilling_NotConfigured(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)

	rec := env.do(t, jsonRequest("POST", "/api/billing/checkout", `{"plan_id":"pro"}`))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("checkout status = %d, want 503", rec.Code)
	}

	hook := httptest.NewRecorder()
	env.mux.ServeHTTP(hook, httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader("{}")))
	if hook.Code != http.StatusOK {
		t.Errorf("webhook status = %d, want 200", hook.Code)
	}
}

const testWebhookSecret = "whsec_test_secret"

// postStripeEvent signs an event the way Stripe does and delivers it.
func postStripeEvent(t *testing.T, mux *http.ServeMux, secret, eventType, object string) *httptest.ResponseRecorder {
	t.Helper()
	payload := fmt.Sprintf(`{"id":"evt_%d","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		time.Now().UnixNano(), stripe.APIVersion, eventType, object)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SubscriptionMovesPlan(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()

	svc := billing.NewStripeService("sk_test_unused", testWebhookSecret, billing.PriceConfig{ProPriceID: "price_pro"})
	mux := http.NewServeMux()
	NewWebhookHandler(svc, env.plans, discardLogger()).RegisterRoutes(mux)

	rec := postStripeEvent(t, mux, testWebhookSecret, "checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","customer":"cus_123","client_reference_id":"`+testOrgID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d", rec.Code)
	}

	subscription := func(status string) string {
		return `{"id":"sub_1","object":"subscription","customer":"cus_123","status":"` + status + `",` +
			`"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_pro","object":"price"}}]}}`
	}

	rec = postStripeEvent(t, mux, testWebhookSecret, "customer.subscription.updated", subscription("active"))
	if rec.Code != http.StatusOK {
		t.Fatalf("subscription status = %d", rec.Code)
	}
	org, err := env.plans.GetOrganization(ctx, testOrgID)
	if err != nil {
		t.Fatal(err)
	}
	if org.PlanID != domain.PlanPro || org.StripeCustomerID != "cus_123" || org.SubscriptionStatus != domain.SubscriptionActive {
		t.Fatalf("organization = %+v, want pro/cus_123/active", org)
	}

	// Quota follows the new plan on the next request.
	for i := 0; i < 5; i++ {
		if chat := env.do(t, jsonRequest("POST", "/api/chat", chatBody)); chat.Code != http.StatusOK {
			t.Fatalf("chat %d on pro = %d", i, chat.Code)
		}
	}

	rec = postStripeEvent(t, mux, "whsec_wrong", "customer.subscription.deleted", subscription("canceled"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("forged event status = %d, want 400", rec.Code)
	}
	if org, _ := env.plans.GetOrganization(ctx, testOrgID); org.PlanID != domain.PlanPro {
		t.Errorf("forged event changed plan to %s", org.PlanID)
	}

	rec = postStripeEvent(t, mux, testWebhookSecret, "customer.subscription.deleted", subscription("canceled"))
	if rec.Code != http.StatusOK {
		t.Fatalf("deleted status = %d", rec.Code)
	}
	if org, _ := env.plans.GetOrganization(ctx, testOrgID); org.PlanID != domain.PlanFree {
		t.Errorf("plan after cancellation = %s, want free", org.PlanID)
	}
}
