package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/gamingdb/internal/bootstrap"
	"github.com/maloquacious/gamingdb/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error", "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestDBCreateThenVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, store.DefaultDBFile)

	_, err := run(t, "db", "create", "--db", path, "--conn-info")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, bootstrap.ConnInfoFile))

	out, err := run(t, "db", "verify", "--db", path)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ok", report["status"])
	assert.Equal(t, float64(6), report["tables"])
	assert.Equal(t, "1", report["schemaVersion"])
	rows, ok := report["rows"].(map[string]any)
	require.True(t, ok, out)
	assert.Len(t, rows, 6)
	assert.Equal(t, report["appInfoRecords"], rows["app_info"])
}

func TestDBVerifyMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	_, err := run(t, "db", "verify", "--db", path)
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "verify must not create the database")
}

func TestDBUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	_, err := run(t, "db", "upgrade", "--db", path)
	require.NoError(t, err)
	_, err = run(t, "db", "upgrade", "--db", path)
	require.NoError(t, err)

	_, err = run(t, "db", "verify", "--db", path)
	assert.NoError(t, err)
}

func TestServeInitializesAndExits(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	_, err := run(t, "serve",
		"--db", path,
		"--port", strconv.Itoa(freePort(t)),
		"--admin-port", "0",
		"--exit-after", "200ms",
	)
	require.NoError(t, err)

	exists, err := store.CheckExists(path)
	require.NoError(t, err)
	assert.True(t, exists)
}

// serveAsync runs serve with args in the background and returns its result.
func serveAsync(t *testing.T, args ...string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := run(t, append([]string{"serve"}, args...)...)
		done <- err
	}()
	return done
}

// getHealth polls url until the server answers and returns the decoded body.
func getHealth(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	var code int
	var body map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		code = resp.StatusCode
		body = nil
		return json.NewDecoder(resp.Body).Decode(&body) == nil
	}, 5*time.Second, 20*time.Millisecond)
	return code, body
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not exit")
		return nil
	}
}

func TestServeStartupInitFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", store.DefaultDBFile)
	port := freePort(t)

	done := serveAsync(t,
		"--db", path,
		"--port", strconv.Itoa(port),
		"--admin-port", "0",
		"--exit-after", "2s",
	)

	code, body := getHealth(t, fmt.Sprintf("http://127.0.0.1:%d/health", port))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body["status"])
	assert.NotEmpty(t, body["reason"])

	assert.NoError(t, waitServe(t, done))
}

func TestServeAdminPortBusy(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	adminPort := busy.Addr().(*net.TCPAddr).Port

	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	port := freePort(t)

	done := serveAsync(t,
		"--db", path,
		"--port", strconv.Itoa(port),
		"--admin-port", strconv.Itoa(adminPort),
		"--exit-after", "2s",
	)

	code, body := getHealth(t, fmt.Sprintf("http://127.0.0.1:%d/ready", port))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	assert.NoError(t, waitServe(t, done))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1", info["schemaVersion"])
	assert.NotEmpty(t, info["version"])
}
