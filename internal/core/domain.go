package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Food     Category = "Food"
	Travel   Category = "Travel"
	Bills    Category = "Bills"
	Shopping Category = "Shopping"
	Health   Category = "Health"
	Others   Category = "Others"
)

const (
	MaxTitleLength = 50
	MaxNotesLength = 200
	MinBudgetYear  = 2000
	MaxBudgetYear  = 2100
)

// MaxAmount is the largest amount a transaction or budget may carry. It fits
// NUMERIC(14,2) and leaves int64 cents room for monthly sums.
var MaxAmount = decimal.New(99999999999999, -2)

type (
	TransactionType string

	Category string

	Transaction struct {
		ID        string
		Owner     string
		Title     string
		Amount    decimal.Decimal
		Type      TransactionType
		Category  Category
		Date      time.Time
		Notes     string
		CreatedAt time.Time
	}

	// TransactionPatch carries the fields of an edit request. Nil fields are
	// left untouched; the owner can never be patched.
	TransactionPatch struct {
		Title    *string
		Amount   *decimal.Decimal
		Type     *TransactionType
		Category *Category
		Date     *time.Time
		Notes    *string
	}

	Budget struct {
		ID        string
		Owner     string
		Month     int
		Year      int
		Amount    decimal.Decimal
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		ID           string
		Name         string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("not authorized")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")

	ErrMissingOwner    = fmt.Errorf("%w: missing owner", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: please add a title", ErrValidation)
	ErrTitleTooLong    = fmt.Errorf("%w: title cannot be more than %d characters", ErrValidation, MaxTitleLength)
	ErrNotesTooLong    = fmt.Errorf("%w: notes cannot be more than %d characters", ErrValidation, MaxNotesLength)
	ErrNegativeAmount  = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrAmountTooLarge  = fmt.Errorf("%w: amount cannot be more than %s", ErrValidation, MaxAmount.StringFixed(2))
	ErrInvalidType     = fmt.Errorf("%w: type must be income or expense", ErrValidation)
	ErrInvalidCategory = fmt.Errorf("%w: unknown category", ErrValidation)
	ErrMissingDate     = fmt.Errorf("%w: missing date", ErrValidation)
	ErrInvalidMonth    = fmt.Errorf("%w: month must be between 1 and 12", ErrValidation)
	ErrInvalidYear     = fmt.Errorf("%w: year must be between %d and %d", ErrValidation, MinBudgetYear, MaxBudgetYear)
)

// Categories returns the fixed category enumeration in display order.
func Categories() []Category {
	return []Category{Food, Travel, Bills, Shopping, Health, Others}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (c Category) Valid() bool {
	switch c {
	case Food, Travel, Bills, Shopping, Health, Others:
		return true
	default:
		return false
	}
}

// Normalize trims free text fields and truncates the date to millisecond
// precision, which is what every store persists.
func (t Transaction) Normalize() Transaction {
	t.Title = strings.TrimSpace(t.Title)
	t.Notes = strings.TrimSpace(t.Notes)
	t.Amount = t.Amount.Round(2)
	if !t.Date.IsZero() {
		t.Date = t.Date.UTC().Truncate(time.Millisecond)
	}
	return t
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Owner) == "" {
		return ErrMissingOwner
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if t.Amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if utf8.RuneCountInString(t.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// IsExpense reports whether the transaction counts against budgets.
func (t Transaction) IsExpense() bool {
	return t.Type == Expense
}

// Apply returns tx with every non-nil patch field applied.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.Title != nil {
		tx.Title = *p.Title
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.Notes != nil {
		tx.Notes = *p.Notes
	}
	return tx
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Owner) == "" {
		return ErrMissingOwner
	}
	if b.Month < 1 || b.Month > 12 {
		return ErrInvalidMonth
	}
	if b.Year < MinBudgetYear || b.Year > MaxBudgetYear {
		return ErrInvalidYear
	}
	if b.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if b.Amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// Period returns the calendar month the budget applies to.
func (b Budget) Period() Period {
	return NewPeriod(b.Month, b.Year)
}
