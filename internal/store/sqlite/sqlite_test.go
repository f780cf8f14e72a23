package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maloquacious/gamingdb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSeededStore creates, initializes and seeds a database in a temp dir.
func newSeededStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	s := New(filepath.Join(t.TempDir(), store.DefaultDBFile), SchemaVersion)
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.InitSchema(ctx, SchemaVersion))
	require.NoError(t, s.Seed(ctx))
	return s
}

func TestInitSchemaAndSeed(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics_events", "app_info", "game_scores", "games", "schema_migrations", "users"}, tables)

	want := map[string]int{
		"app_info":         len(seedAppInfo),
		"users":            len(seedUsers),
		"games":            len(seedGames),
		"game_scores":      len(seedScores),
		"analytics_events": len(seedEvents),
	}
	for table, n := range want {
		got, err := s.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, n, got, table)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Tables: 6, AppInfoRecords: len(seedAppInfo)}, st)
}

func TestSeedIsRepeatable(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)

	before := map[string]int{}
	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	for _, table := range tables {
		before[table], err = s.CountRows(ctx, table)
		require.NoError(t, err)
	}

	require.NoError(t, s.InitSchema(ctx, SchemaVersion))
	require.NoError(t, s.Seed(ctx))

	for _, table := range tables {
		n, err := s.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, before[table], n, table)
	}
}

func TestCheckState(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "blank.db"), SchemaVersion)
		require.NoError(t, s.Open())
		defer s.Close()

		state, err := s.CheckState(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.StateUninitialized, state)
	})

	t.Run("ready", func(t *testing.T) {
		s := newSeededStore(t)
		state, err := s.CheckState(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.StateReady, state)

		version, err := s.GetSchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, version)
	})

	t.Run("version mismatch", func(t *testing.T) {
		s := newSeededStore(t)
		s.expectedSchema = "99"
		state, err := s.CheckState(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.StateVersionMismatch, state)
	})

	t.Run("not opened", func(t *testing.T) {
		s := New("unused.db", SchemaVersion)
		state, err := s.CheckState(ctx)
		assert.Error(t, err)
		assert.Equal(t, store.StateMissing, state)
	})
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	rw := newSeededStore(t)
	require.NoError(t, rw.Close())

	ro := New(rw.Path(), SchemaVersion)
	require.NoError(t, ro.OpenReadOnly(2*time.Second))
	defer ro.Close()

	verdict, err := ro.QuickCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", verdict)

	state, err := ro.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)

	err = ro.Seed(ctx)
	assert.Error(t, err, "writes must fail on a read-only handle")
}

func TestReadOnlyDoesNotCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")

	s := New(path, SchemaVersion)
	require.NoError(t, s.OpenReadOnly(time.Second))
	defer s.Close()

	_, err := s.QuickCheck(context.Background())
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "read-only open must not create the file")
}

func TestQuickCheckRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i*31 + 7)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	s := New(path, SchemaVersion)
	require.NoError(t, s.OpenReadOnly(time.Second))
	defer s.Close()

	_, err := s.QuickCheck(context.Background())
	assert.Error(t, err)
}

func TestUnusualFileNames(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"q?x.db", "50%.db", "a#b.db", "my app.db", "odd ?%# name.db"} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "sub dir")
			require.NoError(t, os.Mkdir(dir, 0o755))
			path := filepath.Join(dir, name)

			rw := New(path, SchemaVersion)
			require.NoError(t, rw.Open())
			require.NoError(t, rw.InitSchema(ctx, SchemaVersion))
			require.NoError(t, rw.Seed(ctx))
			require.NoError(t, rw.Close())

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, name, entries[0].Name())

			ro := New(path, SchemaVersion)
			require.NoError(t, ro.OpenReadOnly(time.Second))
			defer ro.Close()

			state, err := ro.CheckState(ctx)
			require.NoError(t, err)
			assert.Equal(t, store.StateReady, state)
		})
	}
}
