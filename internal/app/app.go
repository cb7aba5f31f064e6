// Package app wires the stores, modules and background services of watchbook
// into one value shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"watchbook/internal/amqp"
	"watchbook/internal/backend"
	"watchbook/internal/config"
	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/envelope"
	"watchbook/internal/events"
	"watchbook/internal/fileio"
	"watchbook/internal/health"
	"watchbook/internal/log"
	"watchbook/internal/reports"
	"watchbook/internal/services"
	"watchbook/internal/sheets"
	"watchbook/internal/state"
	"watchbook/internal/storage"
	"watchbook/internal/store"
	"watchbook/internal/undo"
)

// Options configures New. Medium is required; everything else is optional.
type Options struct {
	Medium    storage.Medium
	Rows      sheets.RowStore
	Publisher amqp.Publisher
	Files     fileio.FileIO

	Prefix          string
	BackupKeep      int
	BackupMaxAge    time.Duration
	HistoryCapacity int
	Health          health.Config

	Location *time.Location
	Template []core.DefaultExpense

	// InitializeMonth installs the default expenses of the current month
	// once everything is loaded.
	InitializeMonth bool

	Registry *prometheus.Registry
	Logger   *log.Logger
	Now      func() time.Time
}

// App holds every component of a running watchbook process.
type App struct {
	Logger   *log.Logger
	Bus      *events.Bus
	Store    *store.Store
	Hub      *state.Hub
	Undo     *undo.Stack
	Currency *currency.Engine

	Settings  *services.SettingsModule
	Orders    *services.OrdersModule
	Clients   *services.ClientsModule
	Expenses  *services.ExpensesModule
	Inventory *services.InventoryModule
	Months    *services.MonthsModule
	History   *services.History
	Rollover  *services.Rollover

	Reports  *reports.Engine
	Envelope *envelope.Manager
	Files    fileio.FileIO

	Registry *prometheus.Registry
	Metrics  *health.Metrics
	Monitor  *health.Monitor

	// Mirror and Forwarder are nil unless a row store or a publisher was
	// configured.
	Mirror    *services.Mirror
	Forwarder *amqp.Forwarder

	detach  func()
	closers []func() error
}

// New builds an App on top of opts.Medium and loads the persisted state.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Medium == nil {
		return nil, errors.New("storage medium required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	logger := opts.Logger

	a := &App{Logger: logger.WithComponent(log.ComponentApp), Registry: opts.Registry, Files: opts.Files}

	a.Bus = events.NewBus(logger)
	a.Store = store.New(opts.Medium, store.Options{
		Prefix:       opts.Prefix,
		BackupKeep:   opts.BackupKeep,
		BackupMaxAge: opts.BackupMaxAge,
		Now:          opts.Now,
		Logger:       logger,
	})

	metrics, err := health.NewMetrics(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.Metrics = metrics
	a.detach = metrics.Attach(a.Store, a.Bus)

	a.Hub = state.NewHub(a.Store, a.Bus, logger, opts.Now)
	if err := a.Hub.Load(ctx); err != nil {
		a.detach()
		return nil, fmt.Errorf("load state: %w", err)
	}

	a.Undo = undo.NewStack(opts.HistoryCapacity)
	a.Currency = currency.NewEngine(opts.Location, opts.Now)

	deps := services.Deps{
		Hub:      a.Hub,
		Bus:      a.Bus,
		History:  a.Undo,
		Currency: a.Currency,
		Logger:   logger,
		Now:      opts.Now,
	}
	a.Settings = services.NewSettingsModule(deps)
	a.Orders = services.NewOrdersModule(deps)
	a.Clients = services.NewClientsModule(deps, a.Orders)
	a.Expenses = services.NewExpensesModule(deps, opts.Template)
	a.Inventory = services.NewInventoryModule(deps)
	a.Months = services.NewMonthsModule(deps, a.Orders, a.Clients)
	a.History = services.NewHistory(deps)
	a.Rollover = services.NewRollover(a.Expenses)

	a.Reports = reports.NewEngine(a.Hub, a.Bus, logger, opts.Now, a.Currency.Location())
	a.Envelope = envelope.NewManager(deps)
	a.Monitor = health.NewMonitor(a.Hub, a.Bus, metrics, opts.Health, logger, opts.Now)

	if opts.Rows != nil {
		a.Mirror = services.NewMirror(opts.Rows, a.Hub, a.Bus, logger)
		a.Mirror.Start()
	}
	if opts.Publisher != nil {
		a.Forwarder = amqp.NewForwarder(opts.Publisher, a.Bus, nil, 0, logger)
		a.Forwarder.Subscribe()
	}

	if opts.InitializeMonth {
		if _, err := a.Rollover.Run(ctx); err != nil {
			// Not fatal; the month can be initialized later.
			a.Logger.WarnContext(ctx, "Failed to initialize current month", log.FieldError, err)
		}
	}

	a.Logger.InfoContext(ctx, "Application ready",
		"orders", len(a.Orders.All()),
		"clients", len(a.Clients.All()),
		"mirror", a.Mirror != nil,
		"forwarder", a.Forwarder != nil)
	return a, nil
}

// FromConfig opens the configured backends and builds an App on them.
func FromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var template []core.DefaultExpense
	if cfg.DefaultExpensesFile != "" {
		template, err = services.LoadTemplate(cfg.DefaultExpensesFile)
		if err != nil {
			return nil, err
		}
	}

	files, err := openFiles(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	closers = append(closers, res.Cleanup)

	var pub amqp.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			// Forwarding is optional; local bookkeeping continues without it.
			logger.Warn("Event forwarding disabled", log.FieldError, err)
		} else {
			pub = client
			closers = append(closers, client.Close)
		}
	}

	a, err := New(ctx, Options{
		Medium:          res.Medium,
		Rows:            res.Rows,
		Publisher:       pub,
		Files:           files,
		Prefix:          cfg.KeyPrefix,
		BackupKeep:      cfg.BackupKeep,
		BackupMaxAge:    cfg.BackupMaxAge,
		HistoryCapacity: cfg.HistoryCapacity,
		Health: health.Config{
			Interval:      cfg.HealthInterval,
			ReminderAfter: cfg.ExportReminderAfter,
		},
		Location:        loc,
		Template:        template,
		InitializeMonth: true,
		Logger:          logger,
	})
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

func openFiles(ctx context.Context, cfg *config.Config) (fileio.FileIO, error) {
	if cfg.ExportS3Bucket != "" {
		return fileio.NewS3(ctx, fileio.S3Config{
			Bucket:    cfg.ExportS3Bucket,
			Region:    cfg.ExportS3Region,
			Endpoint:  cfg.ExportS3Endpoint,
			PathStyle: cfg.ExportS3PathStyle,
		})
	}
	return fileio.NewLocal(cfg.ExportDir)
}

// Close stops the background services, flushes pending forwarded events and
// releases the backends. It is safe to call once.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if err := a.Monitor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop monitor: %w", err))
	}
	if a.Mirror != nil {
		a.Mirror.Stop()
	}
	if a.Forwarder != nil {
		a.Forwarder.Unsubscribe()
		// Run returns after draining when its context is already done.
		done, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cancel()
		_ = a.Forwarder.Run(done)
	}
	a.Reports.Close()
	a.detach()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		a.Logger.ErrorContext(ctx, "Shutdown finished with errors", log.FieldError, err)
		return err
	}
	a.Logger.InfoContext(ctx, "Application stopped")
	return nil
}
