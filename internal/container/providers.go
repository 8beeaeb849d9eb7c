// Package container provides dependency injection and lifecycle management
// for the invoice ledger following Clean Architecture principles.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/dispatcher"
	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/application/service"
	"github.com/garyjia/invoice-ledger/internal/application/workflow"
	"github.com/garyjia/invoice-ledger/internal/config"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/export"
	infraLark "github.com/garyjia/invoice-ledger/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/memory"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-ledger/migrations"
	"github.com/garyjia/invoice-ledger/pkg/database"
	"github.com/garyjia/invoice-ledger/pkg/utils"
)

// StoreBundle holds the invoice store and the means to release it.
type StoreBundle struct {
	Driver string
	Repo   port.InvoiceRepository
	close  func() error
}

// Close releases the underlying connections.
func (b *StoreBundle) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// ProvideStore opens the configured store and applies pending migrations when enabled.
func ProvideStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.New(database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			BusyTimeout:     cfg.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}

		if cfg.AutoMigrate {
			if err := database.NewMigrator(db, logger).Run(ctx, migrations.SQLite()); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		return &StoreBundle{
			Driver: cfg.Driver,
			Repo:   sqlite.NewInvoiceRepository(db, logger),
			close:  db.Close,
		}, nil

	case config.DriverPostgres:
		pool, err := database.NewPostgres(ctx, database.PostgresConfig{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}

		if cfg.AutoMigrate {
			if err := database.NewPostgresMigrator(pool, logger).Run(ctx, migrations.Postgres()); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		return &StoreBundle{
			Driver: cfg.Driver,
			Repo:   postgres.NewInvoiceRepository(pool, logger),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverMemory:
		logger.Warn("Using in-memory invoice store; data is lost on exit")
		return &StoreBundle{
			Driver: cfg.Driver,
			Repo:   memory.NewInvoiceRepository(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ProvideDispatcher creates the in-process event dispatcher.
func ProvideDispatcher(cfg *config.DispatcherConfig, logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
		dispatcher.WithHandlerTimeout(cfg.HandlerTimeout),
	)
}

// ProvideResolver creates the scope resolver from the auth and allocation settings.
func ProvideResolver(cfg *config.Config) *scope.Resolver {
	return scope.NewResolver(scope.Config{
		PadWidth:         cfg.Allocation.PadWidth,
		AdminRole:        cfg.Auth.AdminRole,
		RoleCapabilities: cfg.Auth.Roles,
	})
}

// ServiceDeps holds what the application services are built from.
type ServiceDeps struct {
	Config     *config.Config
	Repo       port.InvoiceRepository
	Dispatcher dispatcher.Dispatcher
	Sender     port.MessageSender
	Logger     *zap.Logger
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Invoice      service.InvoiceService
	Notification service.NotificationService
}

// ProvideServices wires the invoice and notification services and subscribes the notifier.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repo == nil || deps.Dispatcher == nil || deps.Logger == nil {
		return nil, fmt.Errorf("incomplete service dependencies")
	}
	cfg := deps.Config

	invoices := service.NewInvoiceService(
		deps.Repo,
		workflow.NewEngine(),
		service.Config{
			MaxAttempts:  cfg.Allocation.MaxAttempts,
			StoreRetries: cfg.Allocation.StoreRetries,
			Backoff:      cfg.Allocation.Backoff,
			PageSize:     cfg.Views.PageSize,
		},
		utils.NewKVLogger(deps.Logger.Named("invoices")),
		service.WithDispatcher(deps.Dispatcher),
		service.WithExporter(export.NewExcelExporter(cfg.Export.SheetName, deps.Logger.Named("export"))),
	)

	notifications := service.NewNotificationService(
		deps.Sender,
		cfg.Lark.ApproverChatID,
		utils.NewKVLogger(deps.Logger.Named("notifications")),
	)
	notifications.Register(deps.Dispatcher)

	return &ServiceBundle{
		Invoice:      invoices,
		Notification: notifications,
	}, nil
}

// ProvideMessageSender returns the Lark messenger, or a logging sender when Lark is disabled.
func ProvideMessageSender(cfg *config.LarkConfig, logger *zap.Logger) port.MessageSender {
	if !cfg.Enabled {
		return infraLark.NewLogSender(logger.Named("notify"))
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
	})
	return infraLark.NewMessenger(client, cfg.ReceiveIDType, logger.Named("lark"))
}
