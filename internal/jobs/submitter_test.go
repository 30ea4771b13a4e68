package jobs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/yscope/log-ingestor/internal/compression"
	"github.com/yscope/log-ingestor/internal/model"
	"github.com/yscope/log-ingestor/internal/platform/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	pool, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	_, err = pool.Exec(`CREATE TABLE compression_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		clp_config BLOB NOT NULL
	)`)
	require.NoError(t, err)
	return &database.DB{DB: pool, Driver: database.DriverSQLite}
}

func testConfig(keys ...string) compression.JobConfig {
	return compression.NewJobConfig(
		model.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "shh"},
		"bucket", "logs", "", "us-east-2", keys,
	)
}

func TestSubmitInsertsRowAndReturnsID(t *testing.T) {
	db := openTestDB(t)
	sub := NewDBSubmitter(db)

	id, err := sub.Submit(context.Background(), testConfig("p/a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	id, err = sub.Submit(context.Background(), testConfig("p/b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestSubmitPersistsEncodedConfig(t *testing.T) {
	db := openTestDB(t)
	sub := NewDBSubmitter(db)
	cfg := testConfig("p/a", "p/b")

	id, err := sub.Submit(context.Background(), cfg)
	require.NoError(t, err)

	var stored []byte
	require.NoError(t, db.QueryRow(`SELECT clp_config FROM compression_jobs WHERE id = ?`, id).Scan(&stored))

	expected, err := cfg.Encode()
	require.NoError(t, err)
	assert.Equal(t, expected, stored)
}
