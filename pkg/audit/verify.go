package audit

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/canonicalize"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/notice"
)

// SupportedFormats is the range of bundle format versions VerifyBundle reads.
const SupportedFormats = "^1.0"

var (
	ErrUnsupportedFormat = errors.New("audit: unsupported bundle format")
	ErrChecksumMismatch  = errors.New("audit: bundle checksum mismatch")
	ErrMalformedBundle   = errors.New("audit: malformed bundle")
)

// maxBundleFile bounds a single decompressed bundle entry.
const maxBundleFile = 256 << 20

// VerifyBundle checks a bundle produced by GenerateBundle: format version,
// per-file checksums, the notice chain and every vessel history chain.
func VerifyBundle(data []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrMalformedBundle, f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxBundleFile+1))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrMalformedBundle, f.Name, err)
		}
		if len(content) > maxBundleFile {
			return nil, fmt.Errorf("%w: %s too large", ErrMalformedBundle, f.Name)
		}
		files[f.Name] = content
	}

	raw, ok := files["manifest.json"]
	if !ok {
		return nil, fmt.Errorf("%w: manifest.json missing", ErrMalformedBundle)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrMalformedBundle, err)
	}
	if err := checkFormat(m.FormatVersion); err != nil {
		return nil, err
	}

	for name, want := range m.Files {
		content, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s listed but missing", ErrMalformedBundle, name)
		}
		if got := canonicalize.HashBytes(content); got != want {
			return nil, fmt.Errorf("%w: %s (manifest %s, content %s)", ErrChecksumMismatch, name, want, got)
		}
	}

	var notices []contracts.ComplianceNotice
	if err := decodeListed(files, m, "notices.json", &notices); err != nil {
		return nil, err
	}
	if len(notices) != m.NoticeCount {
		return nil, fmt.Errorf("%w: manifest lists %d notices, bundle has %d", ErrMalformedBundle, m.NoticeCount, len(notices))
	}
	if err := notice.VerifyChain(notices); err != nil {
		return nil, err
	}
	head := contracts.GenesisHash
	if len(notices) > 0 {
		head = notices[len(notices)-1].Hash
	}
	if head != m.NoticeChainHead {
		return nil, fmt.Errorf("%w: notice chain head %s, manifest %s", contracts.ErrChainBroken, head, m.NoticeChainHead)
	}

	var vessels []contracts.Vessel
	if err := decodeListed(files, m, "vessels.json", &vessels); err != nil {
		return nil, err
	}
	if len(vessels) != m.VesselCount || len(m.Histories) != m.VesselCount {
		return nil, fmt.Errorf("%w: vessel count mismatch", ErrMalformedBundle)
	}

	total := 0
	for _, h := range m.Histories {
		var history []contracts.EmissionRecord
		if err := decodeListed(files, m, h.File, &history); err != nil {
			return nil, err
		}
		if len(history) != h.Records {
			return nil, fmt.Errorf("%w: %s lists %d records, file has %d", ErrMalformedBundle, h.VesselID, h.Records, len(history))
		}
		if err := emission.VerifyChain(h.VesselID, history); err != nil {
			return nil, err
		}
		head := contracts.GenesisHash
		if len(history) > 0 {
			head = history[len(history)-1].Hash
		}
		if head != h.Head {
			return nil, fmt.Errorf("%w: vessel %s head %s, manifest %s", contracts.ErrChainBroken, h.VesselID, head, h.Head)
		}
		total += len(history)
	}
	if total != m.RecordCount {
		return nil, fmt.Errorf("%w: manifest lists %d records, bundle has %d", ErrMalformedBundle, m.RecordCount, total)
	}

	return &m, nil
}

func checkFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedFormat, version, err)
	}
	c, err := semver.NewConstraint(SupportedFormats)
	if err != nil {
		return fmt.Errorf("audit: bad format constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedFormat, version, SupportedFormats)
	}
	return nil
}

// decodeListed decodes a file only if the manifest covers it with a checksum.
func decodeListed(files map[string][]byte, m Manifest, name string, v any) error {
	if _, ok := m.Files[name]; !ok {
		return fmt.Errorf("%w: %s not covered by manifest", ErrMalformedBundle, name)
	}
	if err := json.Unmarshal(files[name], v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedBundle, name, err)
	}
	return nil
}
