package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfFont    = "Arial"
	pdfMargin  = 15.0
	pdfLineH   = 5.0
	maxCellLen = 40
)

// WritePDF renders the merged content followed by the change log and the audit trail.
func WritePDF(w io.Writer, r Review) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, 20, pdfMargin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(r.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.SetFont(pdfFont, "", 10)
	pdf.SetTextColor(100, 100, 100)
	subtitle := fmt.Sprintf("Document %s", r.DocumentID)
	if r.Stage != "" {
		subtitle += " - stage " + r.Stage
	}
	pdf.CellFormat(0, 6, tr(subtitle), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+formatValue(r.GeneratedAt), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(pdfFont, "", 10)
	pdf.MultiCell(0, pdfLineH, tr(r.Content), "", "L", false)

	for _, t := range []table{changesTable(r.Changes, r.Positions), auditTable(r.Entries)} {
		pdf.AddPage()
		pdf.SetFont(pdfFont, "B", 12)
		pdf.CellFormat(0, 8, t.name, "", 1, "L", false, 0, "")
		writeTable(pdf, tr, t)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return pdf.Output(w)
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, t table) {
	pageW, _ := pdf.GetPageSize()
	width := (pageW - 2*pdfMargin) / float64(len(t.columns))

	pdf.SetFont(pdfFont, "B", 8)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range t.columns {
		pdf.CellFormat(width, 7, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(pdfFont, "", 7)
	pdf.SetTextColor(0, 0, 0)
	for i, row := range t.rows {
		if i%2 == 1 {
			pdf.SetFillColor(242, 242, 242)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for _, val := range row {
			pdf.CellFormat(width, 6, tr(truncate(formatValue(val), maxCellLen)), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
