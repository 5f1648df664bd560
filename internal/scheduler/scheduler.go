package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single overdue sweep.
const sweepTimeout = time.Minute

// InvoiceStore is the slice of the database the scheduler needs.
type InvoiceStore interface {
	MarkOverdueInvoices(ctx context.Context, today string) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	store  InvoiceStore
	logger *slog.Logger
	now    func() time.Time
}

func New(store InvoiceStore, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// Start registers the overdue sweep under the given cron expression and
// starts the cron runner. An empty expression disables the sweep.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("overdue sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("invalid cron %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "cron", spec)
	return nil
}

// Stop halts the runner and waits for a sweep in progress.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep marks pending invoices past their due date as overdue.
func (s *Scheduler) Sweep(ctx context.Context) (int64, error) {
	today := s.now().Format(time.DateOnly)
	n, err := s.store.MarkOverdueInvoices(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("overdue sweep: %w", err)
	}
	return n, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("invoices marked overdue", "count", n)
	}
}
