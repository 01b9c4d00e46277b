package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/database/store"
	"github.com/mrlokans/sheetloader/internal/entities"
)

type Database struct {
	DB       *gorm.DB
	registry *store.Registry
}

type Option func(*gorm.Config)

// WithLogLevel overrides the gorm SQL log level (Info by default).
func WithLogLevel(level logger.LogLevel) Option {
	return func(c *gorm.Config) {
		c.Logger = logger.Default.LogMode(level)
	}
}

func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities. Subclasses share their parent's table.
	err = db.AutoMigrate(
		&entities.Company{},
		&entities.Group{},
		&entities.Permission{},
		&entities.Member{},
		&entities.ImportRun{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db, registry: Registry()}, nil
}

// Registry returns the importable classes of the application.
func Registry() *store.Registry {
	return store.NewRegistry().
		MustRegister(entities.ClassCompany, &entities.Company{}, "").
		MustRegister(entities.ClassGroup, &entities.Group{}, "").
		MustRegister(entities.ClassPermission, &entities.Permission{}, "").
		MustRegister(entities.ClassMember, &entities.Member{}, "").
		MustRegister(entities.ClassVerifiedMember, &entities.VerifiedMember{}, entities.ClassMember)
}

// Store returns a bulk loading store over the database.
func (d *Database) Store() *store.Store {
	return store.New(d.DB, d.registry)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
