// Package bootstrap creates and seeds the gaming database file.
//
// Both the serve command's startup step and the health handlers call
// Initializer.Ensure, so there is one code path that defines the schema.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maloquacious/gamingdb/internal/logger"
	"github.com/maloquacious/gamingdb/internal/metrics"
	"github.com/maloquacious/gamingdb/internal/store"
	"github.com/maloquacious/gamingdb/internal/store/sqlite"
)

// InitError reports a failed initializer step.
type InitError struct {
	Op   string
	Path string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Initializer creates the database file at a fixed path.
// Calls are serialized; it is safe for concurrent use.
type Initializer struct {
	path    string
	log     logger.Logger
	metrics *metrics.Collector

	mu sync.Mutex
}

// New returns an Initializer for the database at path. m may be nil.
func New(path string, log logger.Logger, m *metrics.Collector) *Initializer {
	if log == nil {
		log = logger.Nop()
	}
	return &Initializer{path: path, log: log, metrics: m}
}

// Path returns the database file path.
func (i *Initializer) Path() string {
	return i.path
}

// Ensure creates, migrates and seeds the database if the file is missing or
// zero-length. A non-empty file is left untouched.
func (i *Initializer) Ensure(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	state, err := store.CheckFile(i.path)
	if err != nil {
		return i.fail("stat", err)
	}
	if state == store.FilePresent {
		i.log.Debug("database already present at %s", i.path)
		i.metrics.RecordInit("existing")
		return nil
	}

	i.log.Info("creating database at %s (was %s)", i.path, state)
	if err := i.build(ctx); err != nil {
		return err
	}
	i.metrics.RecordInit("created")
	i.log.Info("database created at %s", i.path)
	return nil
}

// Upgrade re-applies the schema and seed rows to an existing database.
// Missing or empty files are built from scratch as Ensure does.
func (i *Initializer) Upgrade(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	state, err := store.CheckFile(i.path)
	if err != nil {
		return i.fail("stat", err)
	}
	if state != store.FilePresent {
		if err := i.build(ctx); err != nil {
			return err
		}
		i.metrics.RecordInit("created")
		return nil
	}

	if err := populate(ctx, i.path); err != nil {
		return i.fail("upgrade", err)
	}
	i.metrics.RecordInit("upgraded")
	i.log.Info("database at %s upgraded to schema %s", i.path, sqlite.SchemaVersion)
	return nil
}

// build populates a temporary file beside the target and renames it into
// place, so readers see either no database or a complete one.
func (i *Initializer) build(ctx context.Context) error {
	dir, base := filepath.Split(i.path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".init-*")
	if err != nil {
		return i.fail("create", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return i.fail("create", err)
	}

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := populate(ctx, tmpPath); err != nil {
		return i.fail("populate", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return i.fail("chmod", err)
	}
	if err := os.Rename(tmpPath, i.path); err != nil {
		return i.fail("rename", err)
	}
	renamed = true
	return nil
}

func (i *Initializer) fail(op string, err error) error {
	i.metrics.RecordInit("error")
	ierr := &InitError{Op: op, Path: i.path, Err: err}
	i.log.Error("%v", ierr)
	return ierr
}

// populate opens path for writing and applies the schema and seed rows.
func populate(ctx context.Context, path string) (err error) {
	s := sqlite.New(path, sqlite.SchemaVersion)
	if err := s.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	}()

	if err := s.InitSchema(ctx, sqlite.SchemaVersion); err != nil {
		return err
	}
	return s.Seed(ctx)
}
