package store

import (
	"context"
	"fmt"
)

// StoreState represents the initialization state of the datastore.
type StoreState int

const (
	StateMissing         StoreState = iota // File doesn't exist
	StateUninitialized                     // File exists but no schema
	StateVersionMismatch                   // Schema exists but wrong version
	StateReady                             // Initialized and correct version
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateVersionMismatch:
		return "version_mismatch"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("StoreState(%d)", int(s))
}

// Stats summarizes the seeded content of the datastore.
type Stats struct {
	Tables         int `json:"tables"`
	AppInfoRecords int `json:"app_info_records"`
}

// Store defines the gaming datastore contract.
// Implementations must be safe for concurrent use.
type Store interface {
	// Close closes the datastore connection
	Close() error

	// InitSchema creates the schema and records the schema version
	InitSchema(ctx context.Context, version string) error

	// Seed inserts the seed rows; safe to repeat
	Seed(ctx context.Context) error

	// QuickCheck runs a read-only integrity check and returns its verdict
	QuickCheck(ctx context.Context) (string, error)

	// CheckState returns the current state of the datastore
	CheckState(ctx context.Context) (StoreState, error)

	// GetSchemaVersion returns the current schema version from the database
	GetSchemaVersion(ctx context.Context) (string, error)

	// Stats counts user tables and app_info rows
	Stats(ctx context.Context) (Stats, error)
}
