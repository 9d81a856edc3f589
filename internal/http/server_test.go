package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/records/memory"
	"fintrack/internal/services"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type inlineDispatcher struct {
	eval *services.BudgetEvaluator
}

func (d inlineDispatcher) Dispatch(ctx context.Context, c core.BudgetCheck) error {
	_, err := d.eval.Evaluate(ctx, c)
	return err
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.New()
	signer, err := auth.NewTokenSigner("0123456789abcdef0123", time.Hour)
	if err != nil {
		t.Fatalf("token signer: %v", err)
	}
	eval := services.NewBudgetEvaluator(store, store, services.NewRecordingSink(store), nil)
	dashboards := cache.NewLRUCache[core.DashboardStats](16, time.Minute)
	txs := services.NewTransactionService(store, inlineDispatcher{eval: eval},
		services.WithTransactionClock(func() time.Time { return fixedNow }),
		services.WithDashboardCache(dashboards))

	srv := NewServer(":0", Deps{
		Transactions:   txs,
		Budgets:        services.NewBudgetService(store, store, nil),
		Auth:           auth.NewService(store, signer, auth.WithBcryptCost(bcrypt.MinCost)),
		Store:          store,
		DashboardCache: dashboards,
	}, opts)
	srv.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// register creates a user and returns its token.
func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Test User","email":"`+email+`","password":"secret123"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rr.Code, rr.Body)
	}
	var s struct {
		Token string `json:"token"`
	}
	decode(t, rr, &s)
	return s.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func message(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var m messageResponse
	decode(t, rr, &m)
	return m.Message
}

type txBody struct {
	ID       string      `json:"id"`
	User     string      `json:"user"`
	Title    string      `json:"title"`
	Amount   json.Number `json:"amount"`
	Type     string      `json:"type"`
	Category string      `json:"category"`
	Date     time.Time   `json:"date"`
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("%s content type = %q", path, ct)
		}
	}

	env.srv.deps.Store = downStore{}
	rr := env.do(t, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d", rr.Code)
	}
	var h healthResponse
	decode(t, rr, &h)
	if h.Status != "not_ready" || h.Checks["store"] != "failed" {
		t.Fatalf("readyz body = %+v", h)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.register(t, "ana@example.com")

	rr := env.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Again","email":"ANA@example.com","password":"secret123"}`, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong-pass"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"secret123"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rr.Code, rr.Body)
	}

	rr = env.do(t, http.MethodGet, "/api/auth/me", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d", rr.Code)
	}
	var me userResponse
	decode(t, rr, &me)
	if me.Email != "ana@example.com" || me.Name != "Test User" {
		t.Fatalf("me = %+v", me)
	}

	rr = env.do(t, http.MethodGet, "/api/auth/me", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status = %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}

	rr = env.do(t, http.MethodGet, "/api/transactions", "", token+"tampered")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token status = %d", rr.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	owner := env.register(t, "owner@example.com")
	other := env.register(t, "other@example.com")

	rr := env.do(t, http.MethodPost, "/api/transactions",
		`{"title":" Groceries ","amount":"12.345","type":"expense","category":"Food","date":"2025-03-02"}`, owner)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"amount":12.35`) {
		t.Fatalf("amount not rendered as a two-decimal number: %s", rr.Body)
	}
	var created txBody
	decode(t, rr, &created)
	if created.Title != "Groceries" || created.Category != "Food" || created.ID == "" {
		t.Fatalf("created = %+v", created)
	}

	path := "/api/transactions/" + created.ID

	rr = env.do(t, http.MethodPut, path, `{"amount":1}`, other)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-owner update status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, path, "", other)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, path, `{"title":"Market","amount":20}`, owner)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d body = %s", rr.Code, rr.Body)
	}
	var updated txBody
	decode(t, rr, &updated)
	if updated.Title != "Market" || updated.Amount.String() != "20.00" || updated.Category != "Food" {
		t.Fatalf("updated = %+v", updated)
	}

	rr = env.do(t, http.MethodPut, "/api/transactions/missing", `{"amount":1}`, owner)
	if rr.Code != http.StatusNotFound || message(t, rr) != msgTxNotFound {
		t.Fatalf("update missing = %d %s", rr.Code, rr.Body)
	}

	rr = env.do(t, http.MethodDelete, path, "", owner)
	if rr.Code != http.StatusOK || message(t, rr) != msgTxRemoved {
		t.Fatalf("delete = %d %s", rr.Code, rr.Body)
	}
	rr = env.do(t, http.MethodDelete, path, "", owner)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/transactions", "", owner)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("list after delete = %d %s", rr.Code, rr.Body)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.register(t, "v@example.com")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"empty body", ``},
		{"missing amount", `{"title":"x","type":"expense","category":"Food"}`},
		{"missing title", `{"amount":5,"type":"expense","category":"Food"}`},
		{"title too long", `{"title":"` + strings.Repeat("a", core.MaxTitleLength+1) + `","amount":5,"type":"expense","category":"Food"}`},
		{"negative amount", `{"title":"x","amount":-5,"type":"expense","category":"Food"}`},
		{"garbage amount", `{"title":"x","amount":"12abc","type":"expense","category":"Food"}`},
		{"unknown type", `{"title":"x","amount":5,"type":"gift","category":"Food"}`},
		{"unknown category", `{"title":"x","amount":5,"type":"expense","category":"Pets"}`},
		{"bad date", `{"title":"x","amount":5,"type":"expense","category":"Food","date":"03/02/2025"}`},
		{"amount too large", `{"title":"x","amount":200000000000000000,"type":"expense","category":"Food"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", tt.body, token)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rr.Code, rr.Body)
			}
			if message(t, rr) == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.register(t, "f@example.com")

	for _, body := range []string{
		`{"title":"first","amount":1,"type":"expense","category":"Food","date":"2024-03-01T00:00:00Z"}`,
		`{"title":"last second","amount":2,"type":"income","category":"Others","date":"2024-03-31T23:59:59Z"}`,
		`{"title":"april","amount":3,"type":"expense","category":"Food","date":"2024-04-01T00:00:00Z"}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", body, token); rr.Code != http.StatusCreated {
			t.Fatalf("seed status = %d body = %s", rr.Code, rr.Body)
		}
	}

	tests := []struct {
		name   string
		query  string
		titles []string
	}{
		{"all newest first", "", []string{"april", "last second", "first"}},
		{"march by date-only bounds", "?startDate=2024-03-01&endDate=2024-03-31", []string{"last second", "first"}},
		{"only one bound ignored", "?startDate=2024-03-15", []string{"april", "last second", "first"}},
		{"by type", "?type=expense", []string{"april", "first"}},
		{"by category", "?category=Others", []string{"last second"}},
		{"limit", "?limit=1", []string{"april"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/transactions"+tt.query, "", token)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", rr.Code, rr.Body)
			}
			var got []txBody
			decode(t, rr, &got)
			if len(got) != len(tt.titles) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.titles))
			}
			for i, title := range tt.titles {
				if got[i].Title != title {
					t.Errorf("[%d] = %q, want %q", i, got[i].Title, title)
				}
			}
		})
	}

	for _, q := range []string{"?startDate=yesterday&endDate=2024-03-31", "?category=Pets", "?type=gift", "?limit=0"} {
		if rr := env.do(t, http.MethodGet, "/api/transactions"+q, "", token); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", q, rr.Code)
		}
	}
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.register(t, "d@example.com")
	other := env.register(t, "someone@example.com")

	for _, body := range []string{
		`{"title":"salary","amount":1000,"type":"income","category":"Others","date":"2025-03-01"}`,
		`{"title":"food","amount":200,"type":"expense","category":"Food","date":"2025-03-03"}`,
		`{"title":"power","amount":"50.50","type":"expense","category":"Bills","date":"2025-03-04"}`,
		`{"title":"trip","amount":100,"type":"expense","category":"Travel","date":"2025-01-20"}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", body, token); rr.Code != http.StatusCreated {
			t.Fatalf("seed status = %d body = %s", rr.Code, rr.Body)
		}
	}
	env.do(t, http.MethodPost, "/api/transactions",
		`{"title":"not mine","amount":999,"type":"expense","category":"Food","date":"2025-03-05"}`, other)

	var got struct {
		TotalIncome      json.Number            `json:"totalIncome"`
		TotalExpenses    json.Number            `json:"totalExpenses"`
		Balance          json.Number            `json:"balance"`
		CategoryExpenses map[string]json.Number `json:"categoryExpenses"`
		MonthlyData      []struct {
			Month int         `json:"month"`
			Year  int         `json:"year"`
			Total json.Number `json:"total"`
		} `json:"monthlyData"`
	}

	rr := env.do(t, http.MethodGet, "/api/transactions/dashboard/stats", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body)
	}
	decode(t, rr, &got)
	if got.TotalIncome != "1000.00" || got.TotalExpenses != "250.50" || got.Balance != "749.50" {
		t.Fatalf("totals = %s / %s / %s", got.TotalIncome, got.TotalExpenses, got.Balance)
	}
	if len(got.CategoryExpenses) != 2 || got.CategoryExpenses["Food"] != "200.00" || got.CategoryExpenses["Bills"] != "50.50" {
		t.Fatalf("categoryExpenses = %v", got.CategoryExpenses)
	}
	if len(got.MonthlyData) != 2 {
		t.Fatalf("monthlyData = %+v", got.MonthlyData)
	}
	if got.MonthlyData[0].Month != 1 || got.MonthlyData[0].Total != "100.00" ||
		got.MonthlyData[1].Month != 3 || got.MonthlyData[1].Total != "250.50" {
		t.Fatalf("monthlyData = %+v", got.MonthlyData)
	}

	rr = env.do(t, http.MethodGet, "/api/transactions/dashboard/stats?month=1&year=2025", "", token)
	decode(t, rr, &got)
	if got.TotalExpenses != "100.00" || got.TotalIncome != "0.00" || got.CategoryExpenses["Travel"] != "100.00" {
		t.Fatalf("january = %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/api/transactions/dashboard/stats?month=6&year=2020", "", token)
	decode(t, rr, &got)
	if got.TotalExpenses != "0.00" || got.Balance != "0.00" || len(got.CategoryExpenses) != 0 {
		t.Fatalf("empty period = %+v", got)
	}

	for _, q := range []string{"?month=13", "?month=abc", "?year=x"} {
		if rr := env.do(t, http.MethodGet, "/api/transactions/dashboard/stats"+q, "", token); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", q, rr.Code)
		}
	}
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.register(t, "b@example.com")

	rr := env.do(t, http.MethodGet, "/api/budget/current", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("current status = %d", rr.Code)
	}
	var current budgetResponse
	decode(t, rr, &current)
	if current.ID != "" || current.Amount != "0.00" {
		t.Fatalf("current without budget = %+v", current)
	}

	for _, amount := range []string{"500", "800"} {
		rr = env.do(t, http.MethodPost, "/api/budget", `{"amount":`+amount+`,"month":3,"year":2025}`, token)
		if rr.Code != http.StatusCreated {
			t.Fatalf("set budget status = %d body = %s", rr.Code, rr.Body)
		}
	}

	rr = env.do(t, http.MethodGet, "/api/budget/history", "", token)
	var history []budgetResponse
	decode(t, rr, &history)
	if len(history) != 1 || history[0].Amount != "800.00" || history[0].Month != 3 {
		t.Fatalf("history = %+v", history)
	}

	rr = env.do(t, http.MethodPost, "/api/budget", `{"amount":100}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("default period status = %d", rr.Code)
	}
	var defaulted budgetResponse
	decode(t, rr, &defaulted)
	if defaulted.Month != 3 || defaulted.Year != 2025 {
		t.Fatalf("defaulted period = %d/%d", defaulted.Month, defaulted.Year)
	}

	rr = env.do(t, http.MethodPost, "/api/transactions",
		`{"title":"tv","amount":150,"type":"expense","category":"Shopping","date":"2025-03-10"}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expense status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/budget/alerts", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("alerts status = %d", rr.Code)
	}
	var alerts []alertResponse
	decode(t, rr, &alerts)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts[0].Total != "150.00" || alerts[0].Budget != "100.00" || alerts[0].Overspend != "50.00" {
		t.Fatalf("alert = %+v", alerts[0])
	}

	for name, body := range map[string]string{
		"missing amount":  `{"month":3,"year":2025}`,
		"negative amount": `{"amount":-1}`,
		"bad month":       `{"amount":10,"month":13}`,
		"bad year":        `{"amount":10,"year":1999}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/budget", body, token); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", name, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodGet, "/api/budget/alerts?limit=x", "", token); rr.Code != http.StatusBadRequest {
		t.Errorf("bad alert limit status = %d", rr.Code)
	}
}

func TestRoutingErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/nope", "", "")
	if rr.Code != http.StatusNotFound || message(t, rr) != msgNotFound {
		t.Fatalf("unknown route = %d %s", rr.Code, rr.Body)
	}

	rr = env.do(t, http.MethodPatch, "/api/transactions", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method = %d", rr.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigins: []string{"https://app.example"}, RateLimitPerMinute: 3})

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing trace or security headers: %v", rr.Header())
	}

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = env.do(t, http.MethodGet, "/healthz", "", "")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status after limit = %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.deps.AlertStats = func() (int64, int64, int64) { return 4, 1, 2 }

	env.do(t, http.MethodGet, "/healthz", "", "")
	rr := env.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"http_requests_total 2", "budget_checks_total 4", "budget_alerts_total 2", "dashboard_cache_entries 0"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
