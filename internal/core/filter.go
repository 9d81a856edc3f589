package core

import (
	"strings"
	"time"
)

// FilterCriteria is the sparse set of optional listing filters supplied by a
// caller. Zero values mean "no restriction".
type FilterCriteria struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  Category
	Type      TransactionType
	Limit     int
}

// TransactionFilter is a record-selection predicate. Owner is always set;
// the date range is only active when both bounds are present.
type TransactionFilter struct {
	Owner    string
	Range    *Window
	Category Category
	Type     TransactionType
	Limit    int
}

// NewTransactionFilter builds the predicate for owner from criteria. It has
// no side effects.
func NewTransactionFilter(owner string, c FilterCriteria) TransactionFilter {
	f := TransactionFilter{
		Owner:    owner,
		Category: c.Category,
		Type:     c.Type,
	}
	if c.StartDate != nil && c.EndDate != nil {
		f.Range = &Window{Start: c.StartDate.UTC(), End: c.EndDate.UTC()}
	}
	if c.Limit > 0 {
		f.Limit = c.Limit
	}
	return f
}

// PeriodFilter selects every transaction of owner inside p.
func PeriodFilter(owner string, p Period) TransactionFilter {
	return TransactionFilter{Owner: owner, Range: &Window{Start: p.Start, End: p.End}}
}

// Matches evaluates the predicate against a single record.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if tx.Owner != f.Owner {
		return false
	}
	if f.Range != nil && !f.Range.Contains(tx.Date) {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	return true
}

// ParseFilterDate parses a listing bound. RFC 3339 timestamps are used
// as-is; a bare YYYY-MM-DD date means the start of that day, or its last
// millisecond when endOfDay is set, so that an end date includes the whole
// day.
func ParseFilterDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return t, nil
}
