package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURLRewritesScheme(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/finhub?sslmode=disable", migrateURL("postgres://u:p@db:5432/finhub?sslmode=disable"))
	require.Equal(t, "pgx5://db/finhub", migrateURL("postgresql://db/finhub"))
	require.Equal(t, "pgx5://db/finhub", migrateURL("pgx5://db/finhub"))
}

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
