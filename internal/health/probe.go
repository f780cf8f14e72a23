package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maloquacious/gamingdb/internal/store"
	"github.com/maloquacious/gamingdb/internal/store/sqlite"
)

// DefaultProbeTimeout bounds a single database probe.
const DefaultProbeTimeout = 2 * time.Second

var (
	ErrNotFound        = errors.New("database file not found")
	ErrEmpty           = errors.New("database file is empty")
	ErrNotRegular      = errors.New("database path is not a regular file")
	ErrUnreadable      = errors.New("database is not readable")
	ErrCorrupt         = errors.New("database failed integrity check")
	ErrUninitialized   = errors.New("database schema is not initialized")
	ErrVersionMismatch = errors.New("database schema version mismatch")
	ErrProbeTimeout    = errors.New("database probe timed out")
)

// ProbeError reports why the database at Path is not usable.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// CheckFunc probes a component. It returns a short detail string on success.
type CheckFunc func(ctx context.Context) (string, error)

// DatabaseCheck returns a CheckFunc that probes the SQLite file at path
// without creating or modifying it. busyTimeout bounds waits on a locked file.
func DatabaseCheck(path string, busyTimeout time.Duration) CheckFunc {
	return func(ctx context.Context) (string, error) {
		fail := func(err error) (string, error) {
			return "", &ProbeError{Path: path, Err: err}
		}

		state, err := store.CheckFile(path)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrNotRegular, err))
		}
		switch state {
		case store.FileMissing:
			return fail(ErrNotFound)
		case store.FileEmpty:
			return fail(ErrEmpty)
		}

		s := sqlite.New(path, sqlite.SchemaVersion)
		if err := s.OpenReadOnly(busyTimeout); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrUnreadable, err))
		}
		defer s.Close()

		verdict, err := s.QuickCheck(ctx)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrUnreadable, err))
		}
		if verdict != "ok" {
			return fail(fmt.Errorf("%w: %s", ErrCorrupt, verdict))
		}

		dbState, err := s.CheckState(ctx)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrUnreadable, err))
		}
		switch dbState {
		case store.StateUninitialized:
			return fail(ErrUninitialized)
		case store.StateVersionMismatch:
			version, _ := s.GetSchemaVersion(ctx)
			return fail(fmt.Errorf("%w: have %q, want %q", ErrVersionMismatch, version, sqlite.SchemaVersion))
		}

		return verdict, nil
	}
}

// runCheck executes check with a timeout. A check that does not return in
// time is abandoned and reported as ErrProbeTimeout; check sees the same
// deadline through its context.
func runCheck(ctx context.Context, path string, check CheckFunc, timeout time.Duration) (string, error) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		detail string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		detail, err := check(checkCtx)
		done <- result{detail, err}
	}()

	select {
	case res := <-done:
		return res.detail, res.err
	case <-checkCtx.Done():
		return "", &ProbeError{Path: path, Err: fmt.Errorf("%w after %s", ErrProbeTimeout, timeout)}
	}
}
