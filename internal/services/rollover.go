package services

import (
	"context"
	"fmt"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/log"
)

// Rollover installs the default expenses of the calendar month once the
// clock enters it.
type Rollover struct {
	expenses *ExpensesModule
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger
}

func NewRollover(expenses *ExpensesModule) *Rollover {
	return &Rollover{
		expenses: expenses,
		loc:      expenses.Currency.Location(),
		now:      expenses.Now,
		logger:   expenses.Logger.WithComponent(log.ComponentExpenses),
	}
}

// Run initializes the month of now. It is idempotent and returns how many
// default lines were installed.
func (r *Rollover) Run(ctx context.Context) (int, error) {
	month := core.MonthKeyOf(r.now().In(r.loc))
	n, err := r.expenses.InitializeMonth(ctx, month)
	if err != nil {
		return 0, fmt.Errorf("initialize %s: %w", month, err)
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Installed default expenses for new month",
			log.FieldMonth, month,
			"added", n)
	}
	return n, nil
}
