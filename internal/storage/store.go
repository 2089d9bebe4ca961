// Package storage defines the persistence interface for supervised runs.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL
// (production). Both serialize the full supervisor state as JSON so the
// task, result, and error logs survive restarts intact.
package storage

import (
	"context"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// Driver names reported by Store implementations.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the persistence backend for run snapshots.
type Store interface {
	// Runs returns the run repository. The engine never reads it mid-run;
	// it serves the gateway and the CLI.
	Runs() supervisor.RunStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}
