package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnInfoFile is written beside the database by WriteConnInfo.
const ConnInfoFile = "db_connection.txt"

// ConnectionString returns the sqlite:/// URL for an absolute database path.
func ConnectionString(dbPath string) string {
	return "sqlite:///" + strings.TrimPrefix(filepath.ToSlash(dbPath), "/")
}

// WriteConnInfo records how to reach the database in a text file in the
// database's directory and returns the file's path.
func WriteConnInfo(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", dbPath, err)
	}

	var b strings.Builder
	b.WriteString("# SQLite connection methods:\n")
	fmt.Fprintf(&b, "# Go: sql.Open(\"sqlite\", %q)\n", abs)
	fmt.Fprintf(&b, "# Connection string: %s\n", ConnectionString(abs))
	fmt.Fprintf(&b, "# File path: %s\n", abs)

	out := filepath.Join(filepath.Dir(abs), ConnInfoFile)
	if err := os.WriteFile(out, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}
