package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/artifacts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/canonicalize"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
)

// ErrStoreNotConfigured is returned when an export has nowhere to go.
var ErrStoreNotConfigured = errors.New("audit: artifact store not configured (fail-closed)")

// EntrySource supplies the ledger entries to export.
type EntrySource interface {
	Entries(ctx context.Context) ([]ledger.Entry, error)
}

// EvidencePack describes a stored export.
type EvidencePack struct {
	Ref         string              `json:"ref"`
	Checksum    string              `json:"checksum"`
	GeneratedAt time.Time           `json:"generated_at"`
	EntryCount  int                 `json:"entry_count"`
	Head        string              `json:"chain_head"`
	Valid       bool                `json:"valid"`
	Report      ledger.Verification `json:"verification"`
}

type manifest struct {
	GeneratedAt time.Time         `json:"generated_at"`
	EntryCount  int               `json:"entry_count"`
	ChainHead   string            `json:"chain_head"`
	Valid       bool              `json:"valid"`
	Files       map[string]string `json:"files"`
}

// Exporter bundles the ledger into a zip evidence pack and stores it.
type Exporter struct {
	source EntrySource
	store  artifacts.Store
	audit  Logger
	clock  func() time.Time
}

// NewExporter wires an exporter. A nil audit logger records nothing.
func NewExporter(source EntrySource, store artifacts.Store, audit Logger) *Exporter {
	if audit == nil {
		audit = Nop{}
	}
	return &Exporter{source: source, store: store, audit: audit, clock: time.Now}
}

// WithClock overrides the export timestamp source.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export verifies the current chain, packs it and stores the pack. A broken
// chain is still exported; the pack records the verification failure.
func (e *Exporter) Export(ctx context.Context) (EvidencePack, error) {
	if e.store == nil || e.source == nil {
		return EvidencePack{}, ErrStoreNotConfigured
	}
	entries, err := e.source.Entries(ctx)
	if err != nil {
		return EvidencePack{}, fmt.Errorf("audit: load ledger: %w", err)
	}
	report := ledger.Verify(entries)
	generated := e.clock().UTC()

	data, err := BuildPack(entries, report, generated)
	if err != nil {
		return EvidencePack{}, err
	}
	ref, err := e.store.Put(ctx, data, "application/zip")
	if err != nil {
		return EvidencePack{}, fmt.Errorf("audit: store pack: %w", err)
	}

	pack := EvidencePack{
		Ref:         ref,
		Checksum:    canonicalize.HashBytes(data),
		GeneratedAt: generated,
		EntryCount:  len(entries),
		Head:        report.Head,
		Valid:       report.Valid,
		Report:      report,
	}
	_ = e.audit.Record(ctx, EventExport, "ledger.export", ref, map[string]any{
		"entries": pack.EntryCount,
		"valid":   pack.Valid,
	})
	return pack, nil
}

// BuildPack writes entries.json, verification.json and manifest.json into a
// zip. Output is byte-identical for identical inputs.
func BuildPack(entries []ledger.Entry, report ledger.Verification, generated time.Time) ([]byte, error) {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entries: %w", err)
	}
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal verification: %w", err)
	}
	m := manifest{
		GeneratedAt: generated,
		EntryCount:  len(entries),
		ChainHead:   report.Head,
		Valid:       report.Valid,
		Files: map[string]string{
			"entries.json":      canonicalize.HashBytes(entriesJSON),
			"verification.json": canonicalize.HashBytes(reportJSON),
		},
	}
	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"entries.json", entriesJSON},
		{"verification.json", reportJSON},
		{"manifest.json", manifestJSON},
	} {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: generated})
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
