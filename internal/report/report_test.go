package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/timing"
)

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func sampleReport(t *testing.T) Report {
	t.Helper()
	req := edid.Request{
		DefaultMode: timing.Mode{Width: 3840, Height: 2160, Refresh: 60},
		Modes:       []timing.Mode{{Width: 1920, Height: 1080, Refresh: 60}, {Width: 2560, Height: 1440, Refresh: 144}},
		HDR:         true,
		VRR:         true,
	}
	g := edid.NewGenerator(edid.Options{Now: func() time.Time { return testNow }})
	rep, err := New(req, g.Generate(req), testNow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rep
}

func TestNewReport(t *testing.T) {
	rep := sampleReport(t)
	if rep.Size == 0 || rep.Size%128 != 0 {
		t.Fatalf("size = %d", rep.Size)
	}
	if len(rep.SHA256) != 64 {
		t.Fatalf("sha256 = %q", rep.SHA256)
	}
	if !rep.Acceptance.Summary.Pass {
		t.Fatalf("acceptance failed: %+v", rep.Acceptance.Findings)
	}
	if rep.PreferredMode != "3840x2160@60" {
		t.Fatalf("preferred = %q", rep.PreferredMode)
	}
	if len(rep.AdvertisedModes) != 3 {
		t.Fatalf("advertised = %v", rep.AdvertisedModes)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	rep := sampleReport(t)
	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveJSON(rep, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	back, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if back.SHA256 != rep.SHA256 || back.Hex != rep.Hex || !back.GeneratedAt.Equal(rep.GeneratedAt) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	rep := sampleReport(t)
	a, err := MarshalCBOR(rep)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	b, err := MarshalCBOR(rep)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding is not deterministic")
	}
	back, err := UnmarshalCBOR(a)
	if err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	if back.SHA256 != rep.SHA256 || back.Size != rep.Size || back.Metadata.HDMIVersion != rep.Metadata.HDMIVersion {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if back.Metadata.VRR == nil || *back.Metadata.VRR != *rep.Metadata.VRR {
		t.Fatalf("vrr lost: %+v", back.Metadata.VRR)
	}

	path := filepath.Join(t.TempDir(), "report.cbor")
	if err := SaveCBOR(rep, path); err != nil {
		t.Fatalf("SaveCBOR: %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(onDisk, a) {
		t.Fatalf("SaveCBOR wrote different bytes (err=%v)", err)
	}
}

func TestRenderPDF(t *testing.T) {
	rep := sampleReport(t)
	for _, lang := range Languages() {
		t.Run(string(lang), func(t *testing.T) {
			out, err := RenderPDF(rep, lang)
			if err != nil {
				t.Fatalf("RenderPDF: %v", err)
			}
			if !bytes.HasPrefix(out, []byte("%PDF")) {
				t.Fatalf("output is not a PDF")
			}
		})
	}
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := SavePDF(rep, LangEnglish, path); err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		t.Fatalf("pdf not written: %v", err)
	}
}

func TestHashToQR(t *testing.T) {
	png, err := HashToQR("ab:cd-EF 01", 0)
	if err != nil {
		t.Fatalf("HashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("not a png")
	}
	if _, err := HashToQR("zz", 64); err == nil {
		t.Fatalf("expected error for empty hash")
	}
	if got := sanitizeHash("ab:cd-EF 01"); got != "ABCDEF01" {
		t.Fatalf("sanitizeHash = %q", got)
	}
}

func TestTranslator(t *testing.T) {
	lang, err := ParseLanguage("TR")
	if err != nil || lang != LangTurkish {
		t.Fatalf("ParseLanguage(TR) = %v, %v", lang, err)
	}
	if _, err := ParseLanguage("de"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	tr := NewTranslator(LangTurkish)
	if tr.T("title") == NewTranslator(LangEnglish).T("title") {
		t.Fatalf("turkish title not localized")
	}
	if tr.T("no.such.key") != "no.such.key" {
		t.Fatalf("missing key should echo")
	}
	if got := NewTranslator(LangEnglish).Format("value.bytes", 256); got != "256 bytes" {
		t.Fatalf("Format = %q", got)
	}
	if NewTranslator("xx").Lang() != LangEnglish {
		t.Fatalf("unknown language should fall back to English")
	}
	for key := range locales[LangEnglish] {
		if _, ok := locales[LangTurkish][key]; !ok {
			t.Fatalf("turkish locale missing %q", key)
		}
	}
}
