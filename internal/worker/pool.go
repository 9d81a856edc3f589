package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

var (
	ErrQueueFull   = errors.New("alert queue is full")
	ErrPoolStopped = errors.New("alert pool is not running")
)

// Evaluator runs one budget check.
type Evaluator interface {
	Evaluate(ctx context.Context, check core.BudgetCheck) (*core.BudgetAlert, error)
}

// PoolConfig holds configuration for the in-process alert pool
type PoolConfig struct {
	// Workers is the number of goroutines evaluating checks (default: 2)
	Workers int

	// QueueSize bounds the pending checks; Dispatch fails when full (default: 256)
	QueueSize int

	// EvalTimeout bounds a single evaluation (default: 10s)
	EvalTimeout time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:     2,
		QueueSize:   256,
		EvalTimeout: 10 * time.Second,
	}
}

// Pool evaluates budget checks on background goroutines. Dispatch never
// blocks the caller.
type Pool struct {
	eval   Evaluator
	config PoolConfig
	logger *log.Logger

	mu      sync.RWMutex
	running bool
	queue   chan core.BudgetCheck
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	alerted   atomic.Int64
}

func NewPool(eval Evaluator, config PoolConfig, logger *log.Logger) *Pool {
	def := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.EvalTimeout <= 0 {
		config.EvalTimeout = def.EvalTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pool{
		eval:   eval,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Start launches the workers. Evaluations run under ctx, not under the
// context of the request that dispatched them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("alert pool is already running")
	}
	p.running = true
	p.queue = make(chan core.BudgetCheck, p.config.QueueSize)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.queue)
	}

	p.logger.InfoContext(ctx, "Alert pool started",
		"workers", p.config.Workers,
		"queue_size", p.config.QueueSize)
	return nil
}

// Dispatch enqueues check without waiting for a worker.
func (p *Pool) Dispatch(ctx context.Context, check core.BudgetCheck) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}
	select {
	case p.queue <- check:
		return nil
	default:
		p.logger.WarnContext(ctx, "Alert queue full, dropping budget check",
			log.FieldUserID, check.UserID,
			log.FieldTransactionID, check.TransactionID)
		return ErrQueueFull
	}
}

// Stop refuses new checks, drains the queue and waits for the workers or
// for ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Alert pool stopped gracefully",
			"processed", p.processed.Load(),
			"failed", p.failed.Load(),
			"alerts", p.alerted.Load())
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Alert pool stop timed out")
		return ctx.Err()
	}
}

// Stats returns processed, failed and alert counts.
func (p *Pool) Stats() (processed, failed, alerts int64) {
	return p.processed.Load(), p.failed.Load(), p.alerted.Load()
}

func (p *Pool) run(ctx context.Context, queue <-chan core.BudgetCheck) {
	defer p.wg.Done()
	for check := range queue {
		p.evaluate(ctx, check)
	}
}

func (p *Pool) evaluate(ctx context.Context, check core.BudgetCheck) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.EvalTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.ErrorContext(ctx, "Budget evaluation panicked",
				log.FieldUserID, check.UserID,
				log.FieldTransactionID, check.TransactionID,
				"panic", r)
		}
	}()

	alert, err := p.eval.Evaluate(ctx, check)
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.logger.ErrorContext(ctx, "Budget evaluation failed",
			log.FieldUserID, check.UserID,
			log.FieldTransactionID, check.TransactionID,
			log.FieldOperation, log.OpEvaluate,
			log.FieldError, err)
		return
	}
	if alert != nil {
		p.alerted.Add(1)
	}
}
