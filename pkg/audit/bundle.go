// Package audit exports the ledgers as a self-verifying evidence bundle and
// verifies bundles received from elsewhere.
//
// A bundle is a zip archive:
//
//	manifest.json          format version, counts, chain heads, file checksums
//	vessels.json           registry snapshot
//	notices.json           the whole notice log
//	histories/NNNN.json    one emission history per vessel
//	README.txt
package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/canonicalize"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// FormatVersion is the bundle layout version written by this package.
const FormatVersion = "1.0.0"

var (
	// ErrStoreNotConfigured is returned when export is invoked without a backing store.
	ErrStoreNotConfigured = errors.New("audit: store not configured (fail-closed)")
	// ErrUnknownVessel is returned when an export names a vessel the registry does not know.
	ErrUnknownVessel = errors.New("audit: vessel not registered")
)

// HistoryEntry describes one vessel history file in the bundle.
type HistoryEntry struct {
	VesselID string `json:"vessel_id"`
	File     string `json:"file"`
	Records  int    `json:"records"`
	Head     string `json:"head"`
}

// Manifest is the bundle's table of contents.
type Manifest struct {
	BundleID        string            `json:"bundle_id"`
	FormatVersion   string            `json:"format_version"`
	GeneratedAt     time.Time         `json:"generated_at"`
	VesselCount     int               `json:"vessel_count"`
	RecordCount     int               `json:"record_count"`
	NoticeCount     int               `json:"notice_count"`
	NoticeChainHead string            `json:"notice_chain_head"`
	Histories       []HistoryEntry    `json:"histories"`
	Files           map[string]string `json:"files"` // name -> sha256
}

// ExportRequest selects the vessels whose histories are exported.
// An empty selection exports every registered vessel. The notice log is
// always exported whole so its chain can be verified.
type ExportRequest struct {
	VesselIDs []string `json:"vessel_ids,omitempty"`
}

// Exporter builds evidence bundles from a store.
type Exporter struct {
	store  store.Store
	clock  func() time.Time
	logger *slog.Logger
}

func NewExporter(st store.Store) *Exporter {
	return &Exporter{
		store:  st,
		clock:  time.Now,
		logger: slog.Default().With("component", "audit"),
	}
}

// WithClock overrides the bundle generation clock.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

type bundleFile struct {
	name string
	data []byte
}

// GenerateBundle creates the zip bundle and returns it with its manifest.
// All ledgers are read from one store snapshot, so the bundle is consistent
// and recordings are not held up while it is built.
func (e *Exporter) GenerateBundle(ctx context.Context, req ExportRequest) ([]byte, *Manifest, error) {
	if e.store == nil {
		return nil, nil, ErrStoreNotConfigured
	}

	var (
		vessels   []contracts.Vessel
		notices   []contracts.ComplianceNotice
		histories [][]contracts.EmissionRecord
	)
	err := e.store.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		if vessels, err = e.selectVessels(ctx, req); err != nil {
			return err
		}
		if notices, err = e.store.ListNotices(ctx); err != nil {
			return err
		}
		histories = make([][]contracts.EmissionRecord, len(vessels))
		for i, v := range vessels {
			if histories[i], err = e.store.ListRecords(ctx, v.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	manifest := &Manifest{
		BundleID:        uuid.New().String(),
		FormatVersion:   FormatVersion,
		GeneratedAt:     e.clock().UTC(),
		VesselCount:     len(vessels),
		NoticeCount:     len(notices),
		NoticeChainHead: contracts.GenesisHash,
		Histories:       make([]HistoryEntry, 0, len(vessels)),
		Files:           make(map[string]string),
	}
	if len(notices) > 0 {
		manifest.NoticeChainHead = notices[len(notices)-1].Hash
	}

	var files []bundleFile
	add := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("audit: marshal %s: %w", name, err)
		}
		files = append(files, bundleFile{name: name, data: data})
		manifest.Files[name] = canonicalize.HashBytes(data)
		return nil
	}

	if err := add("vessels.json", vessels); err != nil {
		return nil, nil, err
	}
	if err := add("notices.json", notices); err != nil {
		return nil, nil, err
	}
	for i, v := range vessels {
		entry := HistoryEntry{
			VesselID: v.ID,
			File:     fmt.Sprintf("histories/%04d.json", i+1),
			Records:  len(histories[i]),
			Head:     contracts.GenesisHash,
		}
		if n := len(histories[i]); n > 0 {
			entry.Head = histories[i][n-1].Hash
		}
		manifest.Histories = append(manifest.Histories, entry)
		manifest.RecordCount += entry.Records
		if err := add(entry.File, histories[i]); err != nil {
			return nil, nil, err
		}
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("audit: failed to marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	write := func(name string, data []byte) error {
		f, err := w.Create(name)
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	}
	if err := write("manifest.json", manifestJSON); err != nil {
		return nil, nil, err
	}
	for _, f := range files {
		if err := write(f.name, f.data); err != nil {
			return nil, nil, err
		}
	}
	readme := fmt.Sprintf("Emission compliance evidence bundle %s\nGenerated at %s\nVessels: %d, records: %d, notices: %d\n",
		manifest.BundleID, manifest.GeneratedAt.Format(time.RFC3339), manifest.VesselCount, manifest.RecordCount, manifest.NoticeCount)
	if err := write("README.txt", []byte(readme)); err != nil {
		return nil, nil, err
	}
	if err := w.Close(); err != nil {
		return nil, nil, err
	}

	e.logger.InfoContext(ctx, "evidence bundle generated",
		"bundle_id", manifest.BundleID,
		"vessels", manifest.VesselCount,
		"records", manifest.RecordCount,
		"notices", manifest.NoticeCount,
	)
	return buf.Bytes(), manifest, nil
}

func (e *Exporter) selectVessels(ctx context.Context, req ExportRequest) ([]contracts.Vessel, error) {
	if len(req.VesselIDs) == 0 {
		return e.store.ListVessels(ctx)
	}
	out := make([]contracts.Vessel, 0, len(req.VesselIDs))
	seen := make(map[string]bool, len(req.VesselIDs))
	for _, id := range req.VesselIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		v, err := e.store.GetVessel(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownVessel, id)
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
