package worker

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
)

// AlertWorker evaluates budget checks consumed from the broker
type AlertWorker struct {
	eval   Evaluator
	logger *log.Logger
}

func NewAlertWorker(eval Evaluator, logger *log.Logger) *AlertWorker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AlertWorker{eval: eval, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleBudgetCheck processes a single budget check message. A returned
// error leaves redelivery to the consumer.
func (w *AlertWorker) HandleBudgetCheck(ctx context.Context, msg *amqp.BudgetCheckMessage) error {
	check := msg.Check()
	w.logger.DebugContext(ctx, "Processing budget check",
		log.FieldUserID, check.UserID,
		log.FieldTransactionID, check.TransactionID)

	alert, err := w.eval.Evaluate(ctx, check)
	if err != nil {
		return fmt.Errorf("evaluate budget for %s: %w", check.UserID, err)
	}
	if alert != nil {
		w.logger.InfoContext(ctx, "Budget check produced alert",
			log.FieldUserID, alert.UserID,
			log.FieldMonth, alert.Month,
			log.FieldYear, alert.Year,
			log.FieldTotal, alert.Total.StringFixed(2))
	}
	return nil
}
