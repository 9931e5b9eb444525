package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geodata/featuretxn/internal/config"
)

func TestParseOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "featuretxn.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
addr = "127.0.0.1:1"
[log]
level = "warn"
[[collection]]
id = "1"
`), 0644))

	cfg, err := parseOptions([]string{"-C", path, "--listen", "127.0.0.1:2", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2", cfg.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Collections, 1)

	_, err = parseOptions([]string{"--backend", "postgres"})
	assert.Error(t, err)

	_, err = parseOptions([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StorePath = filepath.Join(t.TempDir(), "txn.db")
	cfg.Collections = []config.CollectionConfig{{ID: "1", Versioned: true}}

	d, err := newDaemon(cfg, zap.NewNop())
	require.NoError(t, err)
	defer d.close()

	srv := httptest.NewServer(d.server.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/resource/1/feature/transaction/", "application/json",
		strings.NewReader(`{"epoch": 1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	body, err := ioutil.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "featuretxn_engine_created_total")
}
