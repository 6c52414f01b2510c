package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Create database
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	// Reopen database
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	// Verify we can query it
	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	// Final open should work
	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	// Verify schema is intact
	tables := []string{"summaries", "runs", "value_types", "unhandled_calls"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Try to open in non-existent directory
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	err := s.Close()
	if err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// First close should succeed
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close should not panic (though may error)
	// We just verify it doesn't panic
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	db := s.DB()
	if db == nil {
		t.Error("DB() returned nil")
	}

	// Verify it's usable
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema table tests

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	tables := map[string][]string{
		"summaries":       {"key", "scc", "constraints", "pni_map", "seq"},
		"runs":            {"id", "seq", "program_hash", "memory", "declarations", "diagnostics"},
		"value_types":     {"run_id", "value", "upper", "lower", "size"},
		"unhandled_calls": {"run_id", "call", "caller", "callee", "reason"},
	}
	for table, expected := range tables {
		columns := getTableColumns(t, s.db, table)
		for _, col := range expected {
			if !contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestSchema_SummariesIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "summaries")
	if !contains(indexes, "idx_summaries_scc") {
		t.Errorf("summaries table missing index idx_summaries_scc, indexes: %v", indexes)
	}
}

// Constraint tests

func TestConstraint_ForeignKeyValueTypeToRun(t *testing.T) {
	s := createTestStore(t)

	// Try to insert a value type of a run that does not exist
	_, err := s.db.Exec(`
		INSERT INTO value_types (run_id, value, upper, lower, size)
		VALUES ('nonexistent', 'f#ret', 'int32_t', '', 32)
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

func TestConstraint_ForeignKeyUnhandledCallToRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO unhandled_calls (run_id, call, caller, callee, reason)
		VALUES ('nonexistent', 'main/c0', 'main', '', 'indirect call')
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

func TestConstraint_RunSeqUnique(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO runs (id, seq, program_hash) VALUES ('run-1', 1, 'hash1')
	`)
	if err != nil {
		t.Fatalf("failed to insert run: %v", err)
	}

	// Two runs can never share a position in the log
	_, err = s.db.Exec(`
		INSERT INTO runs (id, seq, program_hash) VALUES ('run-2', 1, 'hash1')
	`)
	if err == nil {
		t.Error("expected UNIQUE constraint violation on seq, got nil")
	}
}

// Migration tests

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	return version
}

// openAtVersion creates a database with the base schema and the
// migrations up to version, bypassing Open.
func openAtVersion(t *testing.T, version int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	for _, m := range migrations {
		if m.version > version {
			break
		}
		if err := applyMigration(db, m); err != nil {
			t.Fatalf("applyMigration(v%d) failed: %v", m.version, err)
		}
	}
	if got := userVersion(t, db); got != version {
		t.Fatalf("user_version = %d, want %d", got, version)
	}
	return path
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	if got := userVersion(t, s.db); got != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", got, currentSchemaVersion)
	}
	if currentSchemaVersion != 2 {
		t.Errorf("currentSchemaVersion = %d, want 2", currentSchemaVersion)
	}
}

func TestMigration_VersionsAscending(t *testing.T) {
	for i, m := range migrations {
		if m.version != i+1 {
			t.Errorf("migrations[%d].version = %d, want %d", i, m.version, i+1)
		}
		if len(m.stmts) == 0 {
			t.Errorf("migration v%d has no statements", m.version)
		}
	}
}

func TestMigration_IndexesExist(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		table string
		index string
	}{
		{"runs", "idx_runs_program_hash"},
		{"value_types", "idx_value_types_value"},
		{"unhandled_calls", "idx_unhandled_calls_caller"},
	}
	for _, tt := range tests {
		if indexes := getTableIndexes(t, s.db, tt.table); !contains(indexes, tt.index) {
			t.Errorf("%s missing index %s, indexes: %v", tt.table, tt.index, indexes)
		}
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if got := userVersion(t, s.db); got != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, got, currentSchemaVersion)
		}
		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := openAtVersion(t, 0)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if got := userVersion(t, s.db); got != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", got, currentSchemaVersion)
	}
	if indexes := getTableIndexes(t, s.db, "runs"); !contains(indexes, "idx_runs_program_hash") {
		t.Errorf("expected idx_runs_program_hash after migration, got indexes: %v", indexes)
	}
}

func TestMigration_UpgradeFromV1(t *testing.T) {
	path := openAtVersion(t, 1)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if contains(getTableIndexes(t, db, "value_types"), "idx_value_types_value") {
		t.Fatalf("v1 database should not have idx_value_types_value")
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if got := userVersion(t, s.db); got != 2 {
		t.Errorf("user_version = %d, want 2", got)
	}
	if !contains(getTableIndexes(t, s.db, "value_types"), "idx_value_types_value") {
		t.Errorf("expected idx_value_types_value after upgrade")
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
