package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SavePDF renders rep into a PDF document at out.
func SavePDF(rep Report, lang Language, out string) error {
	pdf, err := buildPDF(rep, NewTranslator(lang))
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// RenderPDF returns the PDF bytes for rep.
func RenderPDF(rep Report, lang Language) ([]byte, error) {
	pdf, err := buildPDF(rep, NewTranslator(lang))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildPDF(rep Report, tr Translator) (*gofpdf.Fpdf, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252. Runes outside it degrade rather than fail.
	utf := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr.T("title"), true)
	pdf.SetAuthor("edidctl", false)
	pdf.SetCreator("edidctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, utf(tr.T("title")))
	if err := addOverviewSection(pdf, rep, tr, utf); err != nil {
		return nil, err
	}
	addListSection(pdf, utf(tr.T("section.summary")), rep.Summary, "", utf)
	addListSection(pdf, utf(tr.T("section.warnings")), rep.Warnings, tr.T("warnings.none"), utf)
	addAcceptanceSection(pdf, rep, tr, utf)
	addHexSection(pdf, utf(tr.T("section.hex")), rep.Hex)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func addOverviewSection(pdf *gofpdf.Fpdf, rep Report, tr Translator, utf func(string) string) error {
	addSectionHeader(pdf, utf(tr.T("section.overview")))

	top := pdf.GetY()
	if rep.SHA256 != "" {
		png, err := HashToQR(rep.SHA256, 256)
		if err != nil {
			return fmt.Errorf("qr: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("sha256-qr", opts, bytes.NewReader(png))
		pdf.ImageOptions("sha256-qr", 160, top, 35, 35, false, opts, 0, "")
	}

	dsc := tr.T("value.off")
	if rep.Metadata.DSCEnabled {
		dsc = tr.T("value.on")
	}
	vrr := tr.T("value.off")
	if rep.Metadata.VRR != nil {
		vrr = rep.Metadata.VRR.String()
	}
	frl := emptyFallback(rep.Metadata.FRLRate, tr.T("value.none"))
	items := []struct {
		label string
		value string
	}{
		{label: tr.T("label.generated"), value: rep.GeneratedAt.Format(time.RFC3339)},
		{label: tr.T("label.size"), value: tr.Format("value.bytes", rep.Size)},
		{label: tr.T("label.blocks"), value: strconv.Itoa(rep.Size / 128)},
		{label: tr.T("label.preferred"), value: rep.PreferredMode},
		{label: tr.T("label.link"), value: string(rep.Metadata.HDMIVersion)},
		{label: tr.T("label.frl"), value: frl},
		{label: tr.T("label.dsc"), value: dsc},
		{label: tr.T("label.vrr"), value: vrr},
		{label: tr.T("label.valid"), value: passLabel(rep.Acceptance.Summary.Pass, tr)},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(45, 6, utf(item.label), "", 0, "L", false, 0, "")
		pdf.CellFormat(95, 6, utf(item.value), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Courier", "", 8)
	pdf.CellFormat(45, 5, tr.T("label.sha256"), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, rep.SHA256, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 4, utf(tr.T("qr.caption")), "", "R", false)
	pdf.SetY(max(pdf.GetY(), top+38))
	return nil
}

func addListSection(pdf *gofpdf.Fpdf, title string, lines []string, empty string, utf func(string) string) {
	addSectionHeader(pdf, title)
	pdf.SetFont("Helvetica", "", 10)
	if len(lines) == 0 {
		if empty != "" {
			pdf.MultiCell(0, 5, utf(empty), "", "L", false)
		}
		pdf.Ln(3)
		return
	}
	for _, l := range lines {
		pdf.MultiCell(0, 5, utf("- "+strings.TrimSpace(l)), "", "L", false)
	}
	pdf.Ln(3)
}

func addAcceptanceSection(pdf *gofpdf.Fpdf, rep Report, tr Translator, utf func(string) string) {
	addSectionHeader(pdf, utf(tr.T("section.acceptance")))

	widths := []float64{60, 30}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0], 7, utf(tr.T("table.rule")), "1", 0, "L", true, 0, "")
	pdf.CellFormat(widths[1], 7, utf(tr.T("table.pass")), "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rep.Acceptance.GateMatrix {
		id, _ := row["ruleId"].(string)
		pass, _ := row["pass"].(bool)
		pdf.CellFormat(widths[0], 6, emptyFallback(id, "-"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, utf(passLabel(pass, tr)), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addHexSection(pdf *gofpdf.Fpdf, title string, hex string) {
	addSectionHeader(pdf, title)
	pdf.SetFont("Courier", "", 8)
	for i, line := range strings.Split(hex, "\n") {
		if i > 0 && i%8 == 0 {
			pdf.Ln(1)
		}
		pdf.CellFormat(0, 3.6, fmt.Sprintf("%04x  %s", i*16, line), "", 1, "L", false, 0, "")
	}
}

func passLabel(pass bool, tr Translator) string {
	if pass {
		return tr.T("value.pass")
	}
	return tr.T("value.fail")
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
