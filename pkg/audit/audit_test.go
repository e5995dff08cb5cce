package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varshaa-Selva/Languard-ai/pkg/artifacts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/auth"
	"github.com/Varshaa-Selva/Languard-ai/pkg/canonicalize"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
)

func TestLogger_WritesPrefixedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{ID: "officer-7", Roles: []string{auth.RoleOfficer}})
	require.NoError(t, l.Record(ctx, EventDecision, "application.evaluate", "APP-2026-0000abcd", map[string]any{"verdict": "APPROVED"}))

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))
	require.True(t, strings.HasSuffix(line, "\n"))

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(line, "AUDIT: "), "\n")), &evt))
	assert.Equal(t, "officer-7", evt.ActorID)
	assert.Equal(t, EventDecision, evt.Type)
	assert.Equal(t, "APP-2026-0000abcd", evt.Resource)
	assert.Equal(t, "APPROVED", evt.Metadata["verdict"])
	assert.Len(t, evt.ID, 36)
}

func TestLogger_Actors(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	require.NoError(t, l.Record(context.Background(), EventSubmission, "application.submit", "x", nil))
	require.NoError(t, l.Record(AsSystem(context.Background()), EventIntegrity, "ledger.verify", "ledger", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"actor_id":"anonymous"`)
	assert.Contains(t, lines[1], `"actor_id":"system"`)
}

type staticSource struct {
	entries []ledger.Entry
	err     error
}

func (s staticSource) Entries(context.Context) ([]ledger.Entry, error) { return s.entries, s.err }

func chain(t *testing.T, n int) []ledger.Entry {
	t.Helper()
	store := ledger.NewMemoryStore()
	rec, err := ledger.Open(context.Background(), store)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := rec.Append(context.Background(), "APP-2026-0000000"+string(rune('0'+i)), contracts.VerdictApproved, ts.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	entries, err := rec.Entries(context.Background())
	require.NoError(t, err)
	return entries
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = b
	}
	return files
}

func TestExporter_StoresVerifiedPack(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	var auditBuf bytes.Buffer
	fixed := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	entries := chain(t, 3)
	exp := NewExporter(staticSource{entries: entries}, store, NewLoggerWithWriter(&auditBuf)).
		WithClock(func() time.Time { return fixed })

	pack, err := exp.Export(context.Background())
	require.NoError(t, err)
	assert.True(t, pack.Valid)
	assert.Equal(t, 3, pack.EntryCount)
	assert.Equal(t, entries[2].Hash, pack.Head)
	assert.Equal(t, artifacts.Ref(mustGet(t, store, pack.Ref)), pack.Ref)
	assert.Contains(t, auditBuf.String(), `"action":"ledger.export"`)

	files := readZip(t, mustGet(t, store, pack.Ref))
	require.Contains(t, files, "entries.json")
	require.Contains(t, files, "verification.json")
	require.Contains(t, files, "manifest.json")

	var m manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &m))
	assert.Equal(t, 3, m.EntryCount)
	assert.Equal(t, canonicalize.HashBytes(files["entries.json"]), m.Files["entries.json"])
	assert.Equal(t, canonicalize.HashBytes(files["verification.json"]), m.Files["verification.json"])

	again, err := exp.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pack.Ref, again.Ref)
}

func TestExporter_RecordsBrokenChain(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	entries := chain(t, 3)
	entries[1].Decision = contracts.VerdictRejected

	pack, err := NewExporter(staticSource{entries: entries}, store, nil).Export(context.Background())
	require.NoError(t, err)
	assert.False(t, pack.Valid)
	require.NotNil(t, pack.Report.FirstBrokenIndex)
	assert.Equal(t, 1, *pack.Report.FirstBrokenIndex)
}

func TestExporter_Errors(t *testing.T) {
	_, err := NewExporter(staticSource{}, nil, nil).Export(context.Background())
	assert.ErrorIs(t, err, ErrStoreNotConfigured)

	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	boom := errors.New("db down")
	_, err = NewExporter(staticSource{err: boom}, store, nil).Export(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestBuildPack_EmptyLedger(t *testing.T) {
	data, err := BuildPack(nil, ledger.Verify(nil), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	files := readZip(t, data)
	assert.JSONEq(t, "[]", string(files["entries.json"]))
}

func mustGet(t *testing.T, s artifacts.Store, ref string) []byte {
	t.Helper()
	b, err := s.Get(context.Background(), ref)
	require.NoError(t, err)
	return b
}
