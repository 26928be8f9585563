package repository_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campusconnect-mailer/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "mailer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func seedUser(t *testing.T, d *db.DB, id, name, email, role, status string, wantsEmail bool) {
	t.Helper()
	_, err := d.Exec(
		`INSERT INTO users (id, full_name, email, role, status, email_notifications) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, email, role, status, wantsEmail,
	)
	require.NoError(t, err)
}
