package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

type harness struct {
	t   *testing.T
	dir string
	dsn string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EMISSION_ARCHIVE_DIR", filepath.Join(dir, "archive"))
	return &harness{t: t, dir: dir, dsn: filepath.Join(dir, "ledger.db")}
}

// run executes one emissionctl invocation against the harness database.
func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args,
		"--store", "sqlite",
		"--dsn", h.dsn,
		"--admin", "0xadmin",
		"--identity", "0xledger",
		"--log-level", "error",
	)
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run(args...)
	require.Equal(h.t, exitOK, code, "args %v\nstderr: %s", args, errOut)
	return out
}

func (h *harness) initWithVessel() {
	h.t.Helper()
	h.mustRun("init")
	h.mustRun("vessel", "register", "IMO1234567", "--owner", "0xowner", "--flag-state", "Panama")
}

func TestRun_ViolationScenario(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()

	out := h.mustRun("record", "--as", "0xowner", "--vessel", "IMO1234567",
		"--sulfur", "170", "--eca", "--position", "40.7N,74.0W", "--port-state", "USA")
	var rec contracts.EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.False(t, rec.IsCompliant)
	assert.Equal(t, uint64(1), rec.Sequence)

	var notices []contracts.ComplianceNotice
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("notices", "list")), &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, "IMO1234567", notices[0].VesselID)
	assert.Equal(t, "Panama", notices[0].FlagState)
	assert.Equal(t, "USA", notices[0].PortState)
	assert.Equal(t, contracts.Identity("0xledger"), notices[0].FiledBy)

	h.mustRun("record", "--as", "0xowner", "--vessel", "IMO1234567", "--sulfur", "90", "--eca", "--port-state", "USA")

	var history []contracts.EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("history", "IMO1234567")), &history))
	require.Len(t, history, 2)
	assert.Equal(t, uint64(170), history[0].SulfurContent)
	assert.Equal(t, uint64(90), history[1].SulfurContent)

	require.NoError(t, json.Unmarshal([]byte(h.mustRun("notices", "list")), &notices))
	assert.Len(t, notices, 1)

	out = h.mustRun("verify")
	assert.Contains(t, out, "1 vessel histories intact")
}

func TestRun_Filters(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()
	for _, sulfur := range []string{"170", "90", "120"} {
		h.mustRun("record", "--as", "0xowner", "--vessel", "IMO1234567", "--sulfur", sulfur, "--eca", "--port-state", "USA")
	}

	var history []contracts.EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("history", "IMO1234567", "--filter", "!record.is_compliant")), &history))
	assert.Len(t, history, 2)

	var notices []contracts.ComplianceNotice
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("notices", "list", "--filter", `notice.flag_state == "Liberia"`)), &notices))
	assert.Empty(t, notices)

	code, _, _ := h.run("notices", "list", "--filter", "notice.flag_state ==")
	assert.Equal(t, exitUsage, code)
}

func TestRun_ExitCodes(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"non-owner", []string{"record", "--as", "0xstranger", "--vessel", "IMO1234567", "--sulfur", "50", "--eca"}, exitNotVesselOwner},
		{"unregistered", []string{"record", "--as", "0xowner", "--vessel", "IMO_GHOST", "--sulfur", "50"}, exitUnregisteredVessel},
		{"missing vessel", []string{"record", "--as", "0xowner", "--sulfur", "50"}, exitInvalidInput},
		{"missing caller", []string{"record", "--vessel", "IMO1234567", "--sulfur", "50"}, exitNotVesselOwner},
		{"non-owner with oversized position", []string{"record", "--as", "0xstranger", "--vessel", "IMO1234567", "--sulfur", "50", "--position", strings.Repeat("N", 300)}, exitNotVesselOwner},
		{"bad port state", []string{"record", "--as", "0xowner", "--vessel", "IMO1234567", "--sulfur", "50", "--port-state", strings.Repeat("P", 300)}, exitInvalidInput},
		{"register as non-admin", []string{"vessel", "register", "IMO7654321", "--as", "0xowner", "--owner", "0xowner", "--flag-state", "Malta"}, exitNotAdministrator},
		{"filer set as non-admin", []string{"filer", "set", "0xrogue", "--as", "0xowner"}, exitNotAdministrator},
		{"unknown vessel", []string{"vessel", "show", "IMO_GHOST"}, exitVesselNotFound},
		{"unknown command", []string{"launch"}, exitUsage},
		{"unknown flag", []string{"record", "--tonnage", "5"}, exitUsage},
		{"extra args", []string{"vessel", "show", "a", "b"}, exitUsage},
		{"export without target", []string{"export"}, exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := h.run(tt.args...)
			assert.Equal(t, tt.want, code, stderr)
			assert.Contains(t, stderr, "Error:")
		})
	}

	// Rejections leave nothing behind.
	var history []contracts.EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("history", "IMO1234567")), &history))
	assert.Empty(t, history)
}

func TestRun_InitIsIdempotentButAdminIsFixed(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("init")

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"init", "--store", "sqlite", "--dsn", h.dsn, "--admin", "0xusurper"}, &stdout, &stderr)
	assert.Equal(t, exitNotAdministrator, code)
}

func TestRun_InitSeedsFleet(t *testing.T) {
	h := newHarness(t)
	fleet := filepath.Join(h.dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(fleet, []byte(`
vessels:
  - id: IMO1000001
    owner: "0xowner"
    flag_state: Panama
  - id: IMO1000002
    owner: "0xother"
    flag_state: Liberia
`), 0o600))

	out := h.mustRun("init", "--fleet", fleet)
	assert.Contains(t, out, "vessels seeded: 2")

	var vessels []contracts.Vessel
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("vessel", "list")), &vessels))
	require.Len(t, vessels, 2)
	assert.Equal(t, "Liberia", vessels[1].FlagState)
}

func TestRun_Filer(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()
	assert.Contains(t, h.mustRun("filer", "show"), "notice filer: 0xledger")

	h.mustRun("filer", "set", "0xsomeoneelse")
	code, _, _ := h.run("record", "--as", "0xowner", "--vessel", "IMO1234567", "--sulfur", "170", "--eca", "--port-state", "USA")
	assert.Equal(t, exitNotAuthorizedFiler, code)
}

func TestRun_ExportAndVerify(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()
	h.mustRun("record", "--as", "0xowner", "--vessel", "IMO1234567", "--sulfur", "600", "--port-state", "NLD")

	bundle := filepath.Join(h.dir, "bundle.zip")
	out := h.mustRun("export", "--out", bundle, "--archive")
	assert.Contains(t, out, "1 vessels, 1 records, 1 notices")

	var hash string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "archived: "); ok {
			hash = v
		}
	}
	require.True(t, strings.HasPrefix(hash, "sha256:"), out)

	assert.Contains(t, h.mustRun("verify", "--bundle", bundle), "verified")
	assert.Contains(t, h.mustRun("verify", "--hash", hash), "verified")

	corrupt := filepath.Join(h.dir, "corrupt.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a bundle"), 0o600))
	code, _, _ := h.run("verify", "--bundle", corrupt)
	assert.Equal(t, exitVerifyFailed, code)

	code, _, _ = h.run("verify", "--bundle", bundle, "--hash", hash)
	assert.Equal(t, exitUsage, code)
}

func TestRun_Import(t *testing.T) {
	h := newHarness(t)
	h.initWithVessel()

	batch := filepath.Join(h.dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(batch, []byte(strings.Join([]string{
		`# morning readings`,
		`{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":170,"is_eca":true,"port_state":"USA"}`,
		`{"caller":"0xowner","vessel_id":"IMO1234567","sulfur_content":40,"is_eca":true,"port_state":"USA"}`,
	}, "\n")), 0o600))

	out := h.mustRun("import", batch)
	assert.Contains(t, out, "accepted: 2")
	assert.Contains(t, out, "violations: 1")

	bad := filepath.Join(h.dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte(
		`{"caller":"0xstranger","vessel_id":"IMO1234567","sulfur_content":10,"is_eca":true,"port_state":"USA"}`+"\n"), 0o600))
	code, out, stderr := h.run("import", bad)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "rejected: 1")
	assert.Contains(t, stderr, "line 1")

	var history []contracts.EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("history", "IMO1234567")), &history))
	assert.Len(t, history, 2)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitUsage, exitCode(usageError{assert.AnError}))
	assert.Equal(t, exitNotVesselOwner, exitCode(contracts.Reject(contracts.ErrNotVesselOwner, "record", "IMO1", "0xa", "")))
	assert.Equal(t, exitFailure, exitCode(assert.AnError))
}
