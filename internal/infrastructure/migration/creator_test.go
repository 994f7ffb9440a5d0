package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/musicschool/ledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add payments index", "add_payments_index"},
		{"Add-Payments-Index", "add_payments_index"},
		{"ADD_PAYMENTS_INDEX", "add_payments_index"},
		{"add__payments__index", "add_payments_index"},
		{"Invoice Lines 2", "invoice_lines_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add payments index", "Index payments by method")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_payments_index.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_payments_index.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add payments index")
	assert.Contains(t, string(up), "Index payments by method")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	second, err := CreateMigration(dir, "drop legacy column", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
	assert.Equal(t, "000002_drop_legacy_column", second.String())
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000010_add_notes.up.sql":              {Data: []byte("--")},
		"000010_add_notes.down.sql":            {Data: []byte("--")},
		"000001_create_ledger_tables.up.sql":   {Data: []byte("--")},
		"000001_create_ledger_tables.down.sql": {Data: []byte("--")},
		"000002_add_invoice_indexes.up.sql":    {Data: []byte("--")},
		"000002_add_invoice_indexes.down.sql":  {Data: []byte("--")},
		"README.md":                            {Data: []byte("docs")},
		"draft.up.sql":                         {Data: []byte("--")},
		"subdir.up.sql/000003_nested.up.sql":   {Data: []byte("--")},
	}

	got, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: 1, Name: "create_ledger_tables"},
		{Version: 2, Name: "add_invoice_indexes"},
		{Version: 10, Name: "add_notes"},
	}, got)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	got, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPendingAfter(t *testing.T) {
	all := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	assert.Equal(t, all, PendingAfter(all, 0))
	assert.Equal(t, []Migration{{Version: 3, Name: "c"}}, PendingAfter(all, 2))
	assert.Empty(t, PendingAfter(all, 3))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	got, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, uint(1), got[0].Version)

	for _, m := range got {
		_, err := migrations.FS.Open(m.String() + ".down.sql")
		assert.NoError(t, err, "missing down migration for %s", m)
	}
}
