// Package client is a small Go client for the fintrack HTTP API.
//
// The client holds no credentials. A bearer token travels with each call in
// its context:
//
//	ctx = client.WithToken(ctx, session.Token)
//	txs, err := c.ListTransactions(ctx, client.ListOptions{Limit: 5})
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

type tokenKey struct{}

// WithToken returns a copy of ctx carrying the bearer token for calls made
// with it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentClient)
	return c
}

// APIError is a non-2xx answer. It unwraps to the matching core error so
// callers can use errors.Is(err, core.ErrNotFound).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return core.ErrValidation
	case http.StatusUnauthorized:
		return core.ErrUnauthorized
	case http.StatusForbidden:
		return core.ErrForbidden
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	}
	return nil
}

type (
	User struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Session struct {
		User
		Token string `json:"token"`
	}

	Transaction struct {
		ID        string          `json:"id"`
		User      string          `json:"user"`
		Title     string          `json:"title"`
		Amount    decimal.Decimal `json:"amount"`
		Type      string          `json:"type"`
		Category  string          `json:"category"`
		Date      time.Time       `json:"date"`
		Notes     string          `json:"notes,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	// TransactionInput is the body of a create call. A zero Date lets the
	// server stamp the current time.
	TransactionInput struct {
		Title    string
		Amount   decimal.Decimal
		Type     core.TransactionType
		Category core.Category
		Date     time.Time
		Notes    string
	}

	// TransactionUpdate carries the fields of an edit; nil fields are left
	// untouched.
	TransactionUpdate struct {
		Title    *string          `json:"title,omitempty"`
		Amount   *decimal.Decimal `json:"amount,omitempty"`
		Type     *string          `json:"type,omitempty"`
		Category *string          `json:"category,omitempty"`
		Date     *time.Time       `json:"date,omitempty"`
		Notes    *string          `json:"notes,omitempty"`
	}

	ListOptions struct {
		StartDate time.Time
		EndDate   time.Time
		Category  core.Category
		Type      core.TransactionType
		Limit     int
	}

	MonthlyTotal struct {
		Month int             `json:"month"`
		Year  int             `json:"year"`
		Total decimal.Decimal `json:"total"`
	}

	Dashboard struct {
		TotalIncome      decimal.Decimal            `json:"totalIncome"`
		TotalExpenses    decimal.Decimal            `json:"totalExpenses"`
		Balance          decimal.Decimal            `json:"balance"`
		CategoryExpenses map[string]decimal.Decimal `json:"categoryExpenses"`
		MonthlyData      []MonthlyTotal             `json:"monthlyData"`
	}

	Budget struct {
		ID     string          `json:"id"`
		User   string          `json:"user"`
		Month  int             `json:"month"`
		Year   int             `json:"year"`
		Amount decimal.Decimal `json:"amount"`
	}

	Alert struct {
		ID        string          `json:"id"`
		Month     int             `json:"month"`
		Year      int             `json:"year"`
		Total     decimal.Decimal `json:"total"`
		Budget    decimal.Decimal `json:"budget"`
		Overspend decimal.Decimal `json:"overspend"`
		CreatedAt time.Time       `json:"createdAt"`
	}
)

type transactionBody struct {
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Date     *time.Time      `json:"date,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, body, &s)
	return s, err
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &s)
	return s, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u)
	return u, err
}

func (c *Client) CreateTransaction(ctx context.Context, in TransactionInput) (Transaction, error) {
	body := transactionBody{
		Title:    in.Title,
		Amount:   in.Amount,
		Type:     string(in.Type),
		Category: string(in.Category),
		Notes:    in.Notes,
	}
	if !in.Date.IsZero() {
		d := in.Date.UTC()
		body.Date = &d
	}
	var tx Transaction
	err := c.do(ctx, http.MethodPost, "/api/transactions", nil, body, &tx)
	return tx, err
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, upd TransactionUpdate) (Transaction, error) {
	var tx Transaction
	err := c.do(ctx, http.MethodPut, "/api/transactions/"+url.PathEscape(id), nil, upd, &tx)
	return tx, err
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListTransactions(ctx context.Context, opts ListOptions) ([]Transaction, error) {
	q := url.Values{}
	if !opts.StartDate.IsZero() {
		q.Set("startDate", opts.StartDate.UTC().Format(time.RFC3339))
	}
	if !opts.EndDate.IsZero() {
		q.Set("endDate", opts.EndDate.UTC().Format(time.RFC3339))
	}
	if opts.Category != "" {
		q.Set("category", string(opts.Category))
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var txs []Transaction
	err := c.do(ctx, http.MethodGet, "/api/transactions", q, nil, &txs)
	return txs, err
}

// Dashboard fetches the stats of a month. Zero month or year selects the
// server's current one.
func (c *Client) Dashboard(ctx context.Context, month, year int) (Dashboard, error) {
	q := url.Values{}
	if month != 0 {
		q.Set("month", strconv.Itoa(month))
	}
	if year != 0 {
		q.Set("year", strconv.Itoa(year))
	}
	var d Dashboard
	err := c.do(ctx, http.MethodGet, "/api/transactions/dashboard/stats", q, nil, &d)
	return d, err
}

// SetBudget creates or replaces the budget of a month. Zero month or year
// selects the current one.
func (c *Client) SetBudget(ctx context.Context, month, year int, amount decimal.Decimal) (Budget, error) {
	body := struct {
		Amount decimal.Decimal `json:"amount"`
		Month  int             `json:"month,omitempty"`
		Year   int             `json:"year,omitempty"`
	}{amount, month, year}
	var b Budget
	err := c.do(ctx, http.MethodPost, "/api/budget", nil, body, &b)
	return b, err
}

func (c *Client) CurrentBudget(ctx context.Context) (Budget, error) {
	var b Budget
	err := c.do(ctx, http.MethodGet, "/api/budget/current", nil, nil, &b)
	return b, err
}

func (c *Client) BudgetHistory(ctx context.Context) ([]Budget, error) {
	var list []Budget
	err := c.do(ctx, http.MethodGet, "/api/budget/history", nil, nil, &list)
	return list, err
}

func (c *Client) Alerts(ctx context.Context, limit int) ([]Alert, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list []Alert
	err := c.do(ctx, http.MethodGet, "/api/budget/alerts", q, nil, &list)
	return list, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
			apiErr.Message = msg.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.DebugContext(ctx, "API call failed",
			log.FieldMethod, method,
			log.FieldPath, path,
			log.FieldStatusCode, resp.StatusCode,
			log.FieldError, apiErr.Message)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
