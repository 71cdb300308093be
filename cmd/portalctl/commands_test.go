package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/ledger"
)

func testConfig(t *testing.T) func() (*config.Config, error) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		LogLevel:          "error",
		DBDriver:          "sqlite",
		DBDSN:             filepath.Join(dir, "ctl.db"),
		QueueRedisURL:     "redis://127.0.0.1:6379/0",
		CacheBackend:      "memory",
		StorageBackend:    "local",
		StorageRoot:       filepath.Join(dir, "artifacts"),
		WorkDir:           filepath.Join(dir, "work"),
		WorkerConcurrency: 2,
		RetentionDays:     7,
		PublicBaseURL:     "http://localhost:8080",
	}
	return func() (*config.Config, error) { return cfg, nil }
}

func execute(t *testing.T, load func() (*config.Config, error), args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	s := newSession(load, &out)
	cmd := newRootCommand(s)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, s.close())
	return out.String(), err
}

func TestMigrateThenSweepAndList(t *testing.T) {
	load := testConfig(t)

	out, err := execute(t, load, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migration completed")

	out, err = execute(t, load, "sweep", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"candidates": 0`)

	out, err = execute(t, load, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")

	_, err = execute(t, load, "list", "--status", "bogus")
	assert.Error(t, err)
}

func TestRebuildCacheRunsInline(t *testing.T) {
	load := testConfig(t)
	_, err := execute(t, load, "migrate")
	require.NoError(t, err)

	out, err := execute(t, load, "rebuild-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "map cache rebuilt")
}

func TestExportReportsUnknownRequest(t *testing.T) {
	load := testConfig(t)
	_, err := execute(t, load, "migrate")
	require.NoError(t, err)

	_, err = execute(t, load, "export", "42")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = execute(t, load, "export", "abc")
	assert.Error(t, err)
}

func TestImportCKANDryRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/3/action/datastore_search" && r.URL.Query().Get("offset") == "0":
			_, _ = w.Write([]byte(`{"success":true,"result":{"records":[
				{"eventID":"E1","dataID":"D1","locationID":"GD01","measurementDeterminedDate":"2023-05-01","scientificName":"Passer montanus"},
				{"eventID":"E1","locationID":"GD01","measurementDeterminedDate":"2023-05-01"}
			]}}`))
		case r.URL.Path == "/api/3/action/datastore_search":
			_, _ = w.Write([]byte(`{"success":true,"result":{"records":[]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	load := testConfig(t)
	cfg, _ := load()
	cfg.CKANBaseURL = srv.URL + "/api/3/action"

	_, err := execute(t, load, "migrate")
	require.NoError(t, err)

	out, err := execute(t, load, "import-birdnetsound", "--resource-id", "r1", "--unique-fields", "eventID,dataID", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, `"inserted": 1`)
	assert.Contains(t, out, `"skipped": 1`)

	_, err = execute(t, load, "import-ckan", "--unique-fields", "eventID")
	assert.Error(t, err, "a package or resource id is required")

	_, err = execute(t, load, "import-ckan", "--resource-id", "r1", "--package-id", "p", "--unique-fields", "eventID")
	assert.Error(t, err)

	_, err = execute(t, load, "import-ckan", "--resource-id", "r1", "--unique-fields", "eventID", "--category", "nope")
	assert.Error(t, err)

	_, err = execute(t, load, "import-ckan", "--package-id", "missing", "--unique-fields", "eventID", "--dry-run")
	assert.Error(t, err, "package_show 404 is reported")
}
