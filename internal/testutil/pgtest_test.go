package testutil

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/migrations"
)

func TestTruncateStatement(t *testing.T) {
	stmt := truncateStatement()
	assert.Contains(t, stmt, "wallet_transactions")
	assert.Contains(t, stmt, "fraud_assessments")
	assert.True(t, len(stmt) > len("TRUNCATE  CASCADE"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 6)

	for _, f := range files {
		data, err := fs.ReadFile(migrations.FS, f)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", f)
		assert.Contains(t, string(data), "-- +goose Down", f)
	}
}
