package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/manifest"
	"example.com/edidgen/internal/report"
	"example.com/edidgen/internal/rules"
)

func TestGenerateCmdWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "request.yaml")
	doc := "defaultMode: 1920x1080@60\nmodes:\n  - 1280x720@60\naudio: true\n"
	if err := os.WriteFile(reqPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile request: %v", err)
	}
	binPath := filepath.Join(dir, "edid.bin")
	hexPath := filepath.Join(dir, "edid.hex")
	repPath := filepath.Join(dir, "report.json")
	cborPath := filepath.Join(dir, "report.cbor")
	manPath := filepath.Join(dir, "manifest.json")

	var stdout bytes.Buffer
	err := generateCmd([]string{
		"--request", reqPath,
		"--mode", "2560x1440@60",
		"--out", binPath,
		"--hex", hexPath,
		"--report", repPath,
		"--cbor", cborPath,
		"--manifest", manPath,
		"--year", "2024",
	}, &stdout)
	if err != nil {
		t.Fatalf("generateCmd: %v", err)
	}
	if !strings.Contains(stdout.String(), "Preferred timing: 1920x1080 @ 60Hz (DTD)") {
		t.Fatalf("summary missing from output:\n%s", stdout.String())
	}

	bin, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatalf("ReadFile bin: %v", err)
	}
	if len(bin) != 256 || bin[17] != byte(2024-1990) {
		t.Fatalf("unexpected edid: %d bytes, year byte %d", len(bin), bin[17])
	}
	hexData, err := os.ReadFile(hexPath)
	if err != nil {
		t.Fatalf("ReadFile hex: %v", err)
	}
	parsed, err := edid.ParseHex(string(hexData))
	if err != nil || !bytes.Equal(parsed, bin) {
		t.Fatalf("hex dump does not round trip: %v", err)
	}

	rep, err := report.LoadJSON(repPath)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if rep.Size != 256 || !rep.Acceptance.Summary.Pass {
		t.Fatalf("unexpected report: size=%d acceptance=%+v", rep.Size, rep.Acceptance.Summary)
	}
	want := []string{"1920x1080@60", "1280x720@60", "2560x1440@60"}
	if strings.Join(rep.AdvertisedModes, ",") != strings.Join(want, ",") {
		t.Fatalf("advertised = %v, want %v", rep.AdvertisedModes, want)
	}

	m, err := manifest.Load(manPath)
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if len(m.Items) != 4 {
		t.Fatalf("manifest has %d items, want 4", len(m.Items))
	}
	if problems := manifest.Verify(m, ""); len(problems) != 0 {
		t.Fatalf("Verify: %v", problems)
	}
}

func TestGenerateCmdRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"no default":  {},
		"bad mode":    {"--default", "1920x1080@0"},
		"bad policy":  {"--default", "1920x1080@60", "--dsc", "maybe"},
		"bad lang":    {"--default", "1920x1080@60", "--lang", "xx"},
		"missing req": {"--request", filepath.Join(t.TempDir(), "absent.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if err := generateCmd(args, &bytes.Buffer{}); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestGenerateCmdRawStdout(t *testing.T) {
	var stdout bytes.Buffer
	if err := generateCmd([]string{"--default", "1920x1080@60", "--out", "-"}, &stdout); err != nil {
		t.Fatalf("generateCmd: %v", err)
	}
	// A buffer is not a terminal, so the raw blob is written.
	if stdout.Len() != 256 || !bytes.Equal(stdout.Bytes()[:8], edid.Header) {
		t.Fatalf("stdout = %d bytes, want a raw 256-byte EDID", stdout.Len())
	}
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "edid.bin")
	if err := generateCmd([]string{"--default", "3840x2160@60", "--hdr", "--out", binPath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("generateCmd: %v", err)
	}
	accPath := filepath.Join(dir, "acceptance.json")
	diagPath := filepath.Join(dir, "diagnostics.jsonl")
	var stdout bytes.Buffer
	if err := validateCmd([]string{"--in", binPath, "--out", diagPath, "--acceptance", accPath}, &stdout); err != nil {
		t.Fatalf("validateCmd: %v\n%s", err, stdout.String())
	}
	data, err := os.ReadFile(accPath)
	if err != nil {
		t.Fatalf("ReadFile acceptance: %v", err)
	}
	var rep rules.AcceptanceReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("Unmarshal acceptance: %v", err)
	}
	if !rep.Summary.Pass || rep.Summary.Errors != 0 {
		t.Fatalf("unexpected acceptance summary: %+v", rep.Summary)
	}
	if _, err := os.Stat(diagPath); err != nil {
		t.Fatalf("diagnostics missing: %v", err)
	}

	bin, _ := os.ReadFile(binPath)
	bin[200] ^= 0xFF
	hexPath := filepath.Join(dir, "broken.hex")
	if err := os.WriteFile(hexPath, []byte(edid.FormatHex(bin)), 0o644); err != nil {
		t.Fatalf("WriteFile hex: %v", err)
	}
	stdout.Reset()
	if err := validateCmd([]string{"--in", hexPath}, &stdout); err != errInvalid {
		t.Fatalf("validateCmd on broken blob = %v, want errInvalid", err)
	}
	if !strings.Contains(stdout.String(), "ISSUE: Checksum failed in block 1.") {
		t.Fatalf("missing checksum issue:\n%s", stdout.String())
	}

	// A pack without the checksum rule lets the broken blob pass.
	packPath := filepath.Join(dir, "rulepack.json")
	pack := `{"rulePackId":"header-only","rules":[{"ruleId":"EDID-HDR-001","severity":"ERROR","check":"CheckHeader"}]}`
	if err := os.WriteFile(packPath, []byte(pack), 0o644); err != nil {
		t.Fatalf("WriteFile pack: %v", err)
	}
	if err := validateCmd([]string{"--in", hexPath, "--rules", packPath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("validateCmd with header-only pack: %v", err)
	}
}

func TestVICCmd(t *testing.T) {
	var stdout bytes.Buffer
	if err := vicCmd([]string{"--mode", "1920x1080@60"}, &stdout); err != nil {
		t.Fatalf("vicCmd: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "16 ") {
		t.Fatalf("unexpected vic output:\n%s", stdout.String())
	}

	tablePath := filepath.Join(t.TempDir(), "table.yaml")
	table := "- vic: 1\n  width: 640\n  height: 480\n  refresh: 60\n  pixclk: 25175\n  hfreq: 31469\n  aspect: \"4:3\"\n"
	if err := os.WriteFile(tablePath, []byte(table), 0o644); err != nil {
		t.Fatalf("WriteFile table: %v", err)
	}
	stdout.Reset()
	if err := vicCmd([]string{"--table", tablePath}, &stdout); err != nil {
		t.Fatalf("vicCmd with table: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(stdout.String()), "\n")); n != 2 {
		t.Fatalf("expected header and one entry, got %d lines", n)
	}
	if err := vicCmd([]string{"--mode", "1x1@1"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected no match for 1x1@1")
	}
}

func TestManifestCmdVerify(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(a, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out := filepath.Join(dir, "manifest.json")
	if err := manifestCmd([]string{"--inputs", a, "--out", out}, &bytes.Buffer{}); err != nil {
		t.Fatalf("manifestCmd: %v", err)
	}
	if err := manifestCmd([]string{"--verify", out}, &bytes.Buffer{}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := os.WriteFile(a, []byte{9}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := manifestCmd([]string{"--verify", out}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected verification failure after modification")
	}
}
