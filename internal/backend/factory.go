package backend

import (
	"context"
	"fmt"
	"log/slog"

	"pockets/internal/amqp"
	gsheet "pockets/internal/sheets/google"
	exportmem "pockets/internal/sheets/memory"
	"pockets/internal/storage"
	"pockets/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, cfg Config) (*StoreResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQLiteStore(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSQLiteStore(ctx context.Context, cfg Config) (*StoreResult, error) {
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
	if err != nil {
		f.logger.WarnContext(ctx, "Could not read schema version", "error", err)
	}
	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"schema_version", version,
		"schema_dirty", dirty)

	return &StoreResult{
		Store:   store,
		Ready:   store.Ping,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryStore(ctx context.Context, cfg Config) (*StoreResult, error) {
	var store *memory.Store
	if cfg.SeedDir != "" {
		store = memory.NewFromDir(cfg.SeedDir)
	} else {
		store = memory.New()
	}

	f.logger.InfoContext(ctx, "Initialized memory backend",
		"seed_dir", cfg.SeedDir,
		"seeded_keys", len(store.Keys()))

	return &StoreResult{Store: store}, nil
}

// CreateMessaging implements Factory.CreateMessaging
func (f *DefaultFactory) CreateMessaging(ctx context.Context, cfg Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}

	client, err := amqp.NewClient(amqp.Config{
		URL:            cfg.AMQPURL,
		Exchange:       cfg.AMQPExchange,
		EventsQueue:    cfg.AMQPEventsQueue,
		RemindersQueue: cfg.AMQPRemindersQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"events_queue", cfg.AMQPEventsQueue,
		"reminders_queue", cfg.AMQPRemindersQueue)
	return client, nil
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, cfg Config) (Exporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "Google Sheets disabled - exporting to memory")
		return exportmem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Currency:        cfg.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets exporter",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
