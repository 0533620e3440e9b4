// Package database provides the local application database.
//
// It is separate from the device and library stores: it only holds what the
// tool itself records about its runs.
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── audit/           # Audit events for checks and rebuilds
//	└── sync/            # Batch progress per sync type
//
// Usage:
//
//	db, err := database.NewDatabase("./kobotoc.db")
//	auditRepo := audit.NewRepository(db.DB)
//	progress := sync.NewRepository(db.DB, entities.SyncTypeToCUpdate)
package database
