package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varshaa-Selva/Languard-ai/pkg/config"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	var served [][]string
	orig := startServer
	startServer = func(args []string, _, _ io.Writer) int {
		served = append(served, args)
		return 0
	}
	t.Cleanup(func() { startServer = orig })

	code, _, _ := run(t)
	assert.Equal(t, 0, code)
	code, _, _ = run(t, "serve", "--port", "9090")
	assert.Equal(t, 0, code)
	code, _, _ = run(t, "--port", "9091")
	assert.Equal(t, 0, code)
	assert.Equal(t, [][]string{nil, {"--port", "9090"}, {"--port", "9091"}}, served)

	code, out, _ := run(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "evaluate")

	code, out, _ = run(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "landguard "+version+"\n", out)

	code, _, errOut := run(t, "demolish")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: demolish")
}

func TestFeeCmd(t *testing.T) {
	code, out, _ := run(t, "fee", "--area", "2000", "--floors", "3", "--zone", "Commercial")
	require.Equal(t, 0, code)
	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, float64(1425), q["amount"])

	code, _, _ = run(t, "fee", "--area", "0", "--floors", "3")
	assert.Equal(t, 2, code)
}

func TestScoreCmd(t *testing.T) {
	code, out, _ := run(t, "score", "--rejected", "--land-cover", "30")
	require.Equal(t, 0, code)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(75), res["score"])
	assert.Equal(t, "HIGH", res["band"])
	assert.Equal(t, "Excessive land cover change", res["flag_reason"])

	code, out, _ = run(t, "score", "--old-elevation", "100", "--new-elevation", "106")
	require.Equal(t, 0, code)
	res = nil
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(18), res["score"])
	assert.Equal(t, true, res["vertical_construction_flag"])
}

func TestZonesCmd(t *testing.T) {
	code, out, _ := run(t, "zones")
	require.Equal(t, 0, code)
	var res struct {
		Version string           `json:"version"`
		Zones   []map[string]any `json:"zones"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Zones, 4)

	code, out, _ = run(t, "zones", "--catalog", filepath.Join("..", "..", "pkg", "regulation", "testdata", "zones.yaml"))
	require.Equal(t, 0, code)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "1.2.0", res.Version)
	assert.Len(t, res.Zones, 5)

	code, _, _ = run(t, "zones", "--catalog", "missing.yaml")
	assert.Equal(t, 1, code)
}

func writeApplication(t *testing.T, floors int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.json")
	body := map[string]any{
		"owner_name":      "Meena Raghavan",
		"survey_number":   "SY/2026/77",
		"plot_area_sqm":   2000,
		"proposed_floors": floors,
		"zone_id":         "Residential",
		"has_basement":    false,
		"coordinates":     "12.9716, 77.5946",
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestEvaluateCmd(t *testing.T) {
	code, out, _ := run(t, "evaluate", "--file", writeApplication(t, 3))
	require.Equal(t, 0, code)
	var d contracts.ComplianceDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, d.Approved)
	assert.Regexp(t, `^APP-\d{4}-[0-9A-F]{8}$`, d.ApplicationID)

	code, out, _ = run(t, "evaluate", "--file", writeApplication(t, 6))
	require.Equal(t, 0, code)
	d = contracts.ComplianceDecision{}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.False(t, d.Approved)
	assert.Len(t, d.Violations, 2)

	code, _, errOut := run(t, "evaluate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--file is required")

	code, _, _ = run(t, "evaluate", "--file", filepath.Join(t.TempDir(), "none.json"))
	assert.Equal(t, 1, code)
}

func TestPreCheckCmd(t *testing.T) {
	code, out, _ := run(t, "precheck", "--file", writeApplication(t, 3))
	require.Equal(t, 0, code)
	assert.Contains(t, out, "LIKELY_APPROVED")
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "db", "ledger.db")
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("DATA_DIR", dir)
	return path
}

func seedLedger(t *testing.T, path string) *ledger.SQLStore {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	store, err := ledger.OpenSQLStore(ctx, ledger.DialectSQLite, path)
	require.NoError(t, err)
	rec, err := ledger.Open(ctx, store)
	require.NoError(t, err)
	ts := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	_, err = rec.Append(ctx, "APP-2026-00000001", contracts.VerdictApproved, ts)
	require.NoError(t, err)
	_, err = rec.Append(ctx, "APP-2026-00000002", contracts.VerdictRejected, ts.Add(time.Minute))
	require.NoError(t, err)
	return store
}

func TestVerifyCmd(t *testing.T) {
	path := sqliteEnv(t)
	store := seedLedger(t, path)

	code, out, _ := run(t, "verify")
	require.Equal(t, 0, code, out)
	var v ledger.Verification
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.Valid)
	assert.Equal(t, 2, v.Checked)

	_, err := store.DB().Exec(`UPDATE ledger_entries SET decision = 'APPROVED' WHERE sequence_no = 1`)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	code, out, _ = run(t, "verify")
	assert.Equal(t, 1, code)
	v = ledger.Verification{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.False(t, v.Valid)
	require.NotNil(t, v.FirstBrokenIndex)
	assert.Equal(t, 1, *v.FirstBrokenIndex)
}

func TestVerifyCmd_BadConfig(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "oracle")
	code, _, errOut := run(t, "verify")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "LEDGER_DRIVER")
}

func TestExportCmd(t *testing.T) {
	path := sqliteEnv(t)
	require.NoError(t, seedLedger(t, path).Close())

	code, out, errOut := run(t, "export")
	require.Equal(t, 0, code, errOut)
	var pack map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &pack))
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, pack["ref"])
	assert.Equal(t, float64(2), pack["entry_count"])
	assert.Contains(t, errOut, "AUDIT: ")
}

func TestNewApp_MemoryDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("JWT_SECRET", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestNewApp_FailsOnBadCatalog(t *testing.T) {
	t.Setenv("CATALOG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := config.Load()
	require.NoError(t, err)
	_, err = newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "load catalog")
}
