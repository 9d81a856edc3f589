package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const maxListLimit = 1000

var (
	errBadBody   = fmt.Errorf("%w: invalid request body", core.ErrValidation)
	errBadDate   = fmt.Errorf("%w: invalid date", core.ErrValidation)
	errBadLimit  = fmt.Errorf("%w: limit must be a positive integer", core.ErrValidation)
	errBadNumber = fmt.Errorf("%w: month and year must be integers", core.ErrValidation)
	errNoAmount  = fmt.Errorf("%w: please add an amount", core.ErrValidation)
)

// amountField accepts an amount as a JSON number or a decimal string.
type amountField struct {
	Value decimal.Decimal
	set   bool
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return core.ErrInvalidAmount
		}
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	a.Value, a.set = d, true
	return nil
}

type (
	transactionRequest struct {
		Title    *string      `json:"title"`
		Amount   *amountField `json:"amount"`
		Type     *string      `json:"type"`
		Category *string      `json:"category"`
		Date     *string      `json:"date"`
		Notes    *string      `json:"notes"`
	}

	budgetRequest struct {
		Amount *amountField `json:"amount"`
		Month  *int         `json:"month"`
		Year   *int         `json:"year"`
	}

	registerRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
)

// decodeJSON reads a bounded JSON body into v. Validation errors raised by
// field decoders are passed through; anything else is a bad body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errBadBody
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errBadBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return errBadBody
	}
	return nil
}

// toTransaction builds the record of a create request. A missing date is
// left zero so the service fills in the creation time.
func (req transactionRequest) toTransaction() (core.Transaction, error) {
	if req.Amount == nil || !req.Amount.set {
		return core.Transaction{}, errNoAmount
	}
	tx := core.Transaction{
		Title:    deref(req.Title),
		Amount:   req.Amount.Value,
		Type:     core.TransactionType(strings.TrimSpace(deref(req.Type))),
		Category: core.Category(strings.TrimSpace(deref(req.Category))),
		Notes:    sanitizeInput(deref(req.Notes)),
	}
	tx.Title = sanitizeInput(tx.Title)
	if req.Date != nil && strings.TrimSpace(*req.Date) != "" {
		d, err := parseBodyDate(*req.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Date = d
	}
	return tx, nil
}

// toPatch builds the partial update of an edit request.
func (req transactionRequest) toPatch() (core.TransactionPatch, error) {
	var p core.TransactionPatch
	if req.Title != nil {
		t := sanitizeInput(*req.Title)
		p.Title = &t
	}
	if req.Amount != nil && req.Amount.set {
		a := req.Amount.Value
		p.Amount = &a
	}
	if req.Type != nil {
		t := core.TransactionType(strings.TrimSpace(*req.Type))
		p.Type = &t
	}
	if req.Category != nil {
		c := core.Category(strings.TrimSpace(*req.Category))
		p.Category = &c
	}
	if req.Date != nil {
		d, err := parseBodyDate(*req.Date)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		p.Date = &d
	}
	if req.Notes != nil {
		n := sanitizeInput(*req.Notes)
		p.Notes = &n
	}
	return p, nil
}

func parseBodyDate(s string) (time.Time, error) {
	d, err := core.ParseFilterDate(s, false)
	if err != nil {
		return time.Time{}, errBadDate
	}
	return d, nil
}

// ParseFilterCriteria reads the listing filters from the query string.
// Empty values mean no restriction; malformed values are validation errors.
func ParseFilterCriteria(query url.Values) (core.FilterCriteria, error) {
	var c core.FilterCriteria
	if v := strings.TrimSpace(query.Get("startDate")); v != "" {
		t, err := core.ParseFilterDate(v, false)
		if err != nil {
			return core.FilterCriteria{}, errBadDate
		}
		c.StartDate = &t
	}
	if v := strings.TrimSpace(query.Get("endDate")); v != "" {
		t, err := core.ParseFilterDate(v, true)
		if err != nil {
			return core.FilterCriteria{}, errBadDate
		}
		c.EndDate = &t
	}
	c.Category = core.Category(strings.TrimSpace(query.Get("category")))
	if c.Category != "" && !c.Category.Valid() {
		return core.FilterCriteria{}, core.ErrInvalidCategory
	}
	c.Type = core.TransactionType(strings.TrimSpace(query.Get("type")))
	if c.Type != "" && !c.Type.Valid() {
		return core.FilterCriteria{}, core.ErrInvalidType
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return core.FilterCriteria{}, errBadLimit
		}
		c.Limit = min(n, maxListLimit)
	}
	return c, nil
}

// ParseMonthParams reads the optional month and year query parameters. A
// nil result means the parameter was absent.
func ParseMonthParams(query url.Values) (month, year *int, err error) {
	parse := func(key string) (*int, error) {
		v := strings.TrimSpace(query.Get(key))
		if v == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errBadNumber
		}
		return &n, nil
	}
	if month, err = parse("month"); err != nil {
		return nil, nil, err
	}
	if year, err = parse("year"); err != nil {
		return nil, nil, err
	}
	return month, year, nil
}

// parseLimit reads an optional positive limit, falling back to def.
func parseLimit(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errBadLimit
	}
	return min(n, maxListLimit), nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
