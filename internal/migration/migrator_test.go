package migration

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrate-test.db")
	m, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, path, "", "", ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMigrator_UpAndVersion(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := t.Context()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// A second Up is a no-op.
	require.NoError(t, m.Up(ctx))
}

func TestMigrator_TablesExist(t *testing.T) {
	m := newSQLiteMigrator(t)
	require.NoError(t, m.Up(t.Context()))

	for _, table := range []string{"graphs", "runs"} {
		var name string
		row := m.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table)
		require.NoError(t, row.Scan(&name), "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrator_DownSteps(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := t.Context()
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_Goto(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := t.Context()

	require.NoError(t, m.Goto(ctx, 1))
	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestMigrator_StatusAndInfo(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := t.Context()

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "create_graphs", statuses[0].Name)
	assert.Equal(t, "create_runs", statuses[1].Name)
	assert.False(t, statuses[0].Applied)

	require.NoError(t, m.Up(ctx))

	statuses, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, statuses[0].Applied)
	assert.True(t, statuses[1].Applied)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 2, info.TotalMigrations)
	assert.Equal(t, 2, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)
}

func TestNewMigrator_Validation(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.Error(t, err)

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.Error(t, err)
}

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		in      string
		want    DatabaseType
		wantErr bool
	}{
		{in: "postgres", want: DatabaseTypePostgres},
		{in: "postgresql", want: DatabaseTypePostgres},
		{in: "MySQL", want: DatabaseTypeMySQL},
		{in: "sqlite3", want: DatabaseTypeSQLite},
		{in: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://user:pass@db:5432/workflow?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "workflow", "user", "pass", "disable"))
	assert.Equal(t,
		"user:pass@tcp(db:3306)/workflow?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "workflow", "user", "pass", ""))
	assert.Equal(t,
		"file:workflow.db?mode=rwc",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "workflow.db", "", "", ""))
}

func TestCLI_RunUpAndStatus(t *testing.T) {
	m := newSQLiteMigrator(t)
	cli := NewCLI(m)

	var out bytes.Buffer
	cli.SetOutput(&out)

	require.NoError(t, cli.RunUp(t.Context()))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, cli.RunStatus(t.Context()))
	assert.Contains(t, out.String(), "create_graphs")
	assert.Contains(t, out.String(), "Applied: 2")
}
