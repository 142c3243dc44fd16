package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/config"
)

func loadTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	listPath := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte(`
- name: 7-Zip
  category: Utilities
  version: "23.01"
  download_url: https://www.7-zip.org/a/7z2301-x64.exe
- name: Mystery
  fetcher: fetch_unknown
`), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	body := "logging:\n  development: false\n  level: error\n" +
		"catalog:\n  static_list_path: " + listPath + "\n" +
		"storage:\n  backend: memory\n" + extra
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return &cfg
}

func TestBuildServesCatalog(t *testing.T) {
	cfg := loadTestConfig(t, "")
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view catalog.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view, 2)
	require.Equal(t, "7-Zip", view[0].Name)
	require.Equal(t, "23.01", view[0].Version)
}

func TestBuildCrawlSkipsUnknownFetchers(t *testing.T) {
	cfg := loadTestConfig(t, "")
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	report, err := app.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Upserted)
	require.Equal(t, []string{"fetch_unknown"}, report.Skipped)
	require.Equal(t, 1, report.Requested)
}

func TestBuildWithBoltStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tools.db")
	cfg := loadTestConfig(t, "store:\n  backend: bolt\n  bolt_path: "+dbPath+"\n")
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, app.store.Insert(context.Background(), catalog.ToolRecord{Name: "Git", Version: "2.45.1"}))
	require.NoError(t, app.Close(context.Background()))
	require.FileExists(t, dbPath)
}

func TestBuildMissingStaticList(t *testing.T) {
	cfg := loadTestConfig(t, "")
	cfg.Catalog.StaticListPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "static list init failed")
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewApp(nil, nil)
	require.Error(t, err)
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := loadTestConfig(t, "server:\n  port: "+strconv.Itoa(port)+"\n")
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "http server")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
}
