package services

import (
	"context"
	"errors"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"
)

// LogSink writes every alert as a structured warning.
type LogSink struct {
	events *log.StructuredLogger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LogSink{events: log.NewStructuredLogger(logger)}
}

func (s *LogSink) Emit(ctx context.Context, a core.BudgetAlert) error {
	s.events.LogBudgetAlert(ctx, a.UserID, a.Month, a.Year, a.Total.StringFixed(2), a.BudgetAmount.StringFixed(2))
	return nil
}

// RecordingSink appends alerts to the alert log so users can list them.
type RecordingSink struct {
	log records.AlertLog
}

func NewRecordingSink(l records.AlertLog) *RecordingSink {
	return &RecordingSink{log: l}
}

func (s *RecordingSink) Emit(ctx context.Context, a core.BudgetAlert) error {
	return s.log.RecordAlert(ctx, a)
}

// MultiSink fans an alert out to several sinks. Every sink is attempted;
// the failures are joined.
type MultiSink []AlertSink

func (m MultiSink) Emit(ctx context.Context, a core.BudgetAlert) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
