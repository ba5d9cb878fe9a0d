package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const qrImageName = "record-qr"

// SavePDF renders rep into a PDF file at out.
func SavePDF(rep Report, lang Language, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := WritePDF(rep, lang, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePDF renders rep as a PDF document to w.
func WritePDF(rep Report, lang Language, w io.Writer) error {
	tr := NewTranslator(lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	enc := pdf.UnicodeTranslatorFromDescriptor("")
	// Core fonts index widths by byte, so every string is reduced to cp1252
	// bytes before it reaches gofpdf.
	clean := func(s string) string { return enc(strings.ToValidUTF8(s, "?")) }
	label := func(key string) string { return clean(tr.T(key)) }

	pdf.SetTitle(label("title"), false)
	pdf.SetAuthor("cperctl", false)
	pdf.SetCreator("cperctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, label("title"))
	if err := addQR(pdf, rep); err != nil {
		return err
	}
	addSummarySection(pdf, rep, tr, clean)
	addSectionTable(pdf, rep.Sections, tr, clean)
	addDiagnostics(pdf, rep.Lines, tr, clean)

	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4, clean(tr.Format("generated", rep.CreatedAt.Format(time.RFC3339))), "", "L", false)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

// addQR stamps the record QR code in the top right corner.
func addQR(pdf *gofpdf.Fpdf, rep Report) error {
	png, err := RecordQR(rep.RecordID, rep.Fingerprint, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	const side = 28.0
	pdf.ImageOptions(qrImageName, pageW-right-side, 12, side, side, false, opts, 0, "")
	return nil
}

func addSummarySection(pdf *gofpdf.Fpdf, rep Report, tr Translator, clean func(string) string) {
	label := func(key string) string { return tr.T(key) }
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, clean(label("summary")))
	pdf.Ln(8)

	status := label("valid")
	if !rep.Valid {
		status = label("rejected")
	}
	s := rep.Summary
	items := []struct {
		label string
		value string
	}{
		{label: label("record_id"), value: fmt.Sprintf("0x%016x", rep.RecordID)},
		{label: label("source"), value: emptyFallback(rep.Source, "-")},
		{label: label("offset"), value: strconv.Itoa(rep.Offset)},
		{label: label("size"), value: strconv.Itoa(rep.Size) + " B"},
		{label: label("fingerprint"), value: rep.Fingerprint},
		{label: label("sha256"), value: rep.Sha256},
		{label: label("status"), value: status},
	}
	if rep.Valid {
		items = append(items,
			struct{ label, value string }{label("severity"), rep.Severity},
			struct{ label, value string }{label("sections"),
				tr.Format("section_counts", s.Sections, s.Processor, s.Memory, s.PCIe, s.Unknown, s.TooSmall)},
		)
	} else {
		items = append(items, struct{ label, value string }{label("error"), rep.Error})
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.CellFormat(40, 6, clean(item.label), "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, clean(item.value), "", "L", false)
	}
	pdf.Ln(4)
}

func addSectionTable(pdf *gofpdf.Fpdf, rows []SectionView, tr Translator, clean func(string) string) {
	label := func(key string) string { return clean(tr.T(key)) }
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, label("sections"))
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, label("no_sections"), "", "L", false)
		pdf.Ln(2)
		return
	}

	headers := []string{label("col.index"), label("col.kind"), label("col.severity"),
		label("col.type"), label("col.length"), label("col.fru")}
	widths := []float64{10, 24, 24, 68, 20, 34}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range rows {
		kind := row.Kind
		if row.TooSmall {
			kind += " (" + tr.T("too_small") + ")"
		}
		values := []string{
			strconv.Itoa(row.Index),
			kind,
			row.Severity,
			row.Type,
			strconv.FormatUint(uint64(row.Length), 10),
			fruLabel(row),
		}
		renderTableRow(pdf, widths, values, 5, clean)
	}
	pdf.Ln(4)
}

func addDiagnostics(pdf *gofpdf.Fpdf, lines []string, tr Translator, clean func(string) string) {
	if len(lines) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, clean(tr.T("diagnostics")))
	pdf.Ln(9)

	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, clean(strings.Join(lines, "\n")), "", "L", false)
	pdf.Ln(4)
}

// renderTableRow draws one bordered row; clean maps each value to the
// single-byte encoding the core fonts measure.
func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64, clean func(string) string) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		var lines []string
		for _, l := range pdf.SplitLines([]byte(clean(text)), widths[i]-2) {
			lines = append(lines, string(l))
		}
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func fruLabel(row SectionView) string {
	switch {
	case row.FRUText != "" && row.FRUID != "":
		return row.FRUText + " " + row.FRUID
	case row.FRUText != "":
		return row.FRUText
	default:
		return emptyFallback(row.FRUID, "-")
	}
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
