// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, class registry
//	├── store/           # Generic bulkloader.Store over gorm models
//	├── imports/         # Import run bookkeeping
//	└── audit/           # Audit events
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./app.db")
//
//	members := db.Store()              // bulkloader.Store for every registered class
//	runs := imports.NewRepository(db.DB)
//	events := audit.NewRepository(db.DB)
//
// # Adding a New Class
//
//  1. Add the gorm model to internal/entities with an EntityID method
//  2. Add it to AutoMigrate in NewDatabase (skip for subclasses)
//  3. Register it in Registry, naming the parent class for subclasses
package database
