package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfPrintableWidth = 277.0

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Renderer.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Renderer.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with an optional title and table body. The
// last column takes a third of the page and every cell wraps.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	widths := columnWidths(len(data.Headers))
	pdf.SetFont("Arial", "B", 8)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 7, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		values := record(data, row)
		lines := 1
		for i, value := range values {
			if n := len(pdf.SplitLines([]byte(tr(value)), widths[i])); n > lines {
				lines = n
			}
		}
		height := 5.0 * float64(lines)
		x, y := pdf.GetXY()
		if y+height > pageHeight-bottom {
			pdf.AddPage()
			x, y = pdf.GetXY()
		}
		offset := x
		for i, value := range values {
			pdf.Rect(offset, y, widths[i], height, "D")
			pdf.SetXY(offset, y)
			pdf.MultiCell(widths[i], 5, tr(value), "", "", false)
			offset += widths[i]
		}
		pdf.SetXY(x, y+height)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(n int) []float64 {
	widths := make([]float64, n)
	if n == 1 {
		widths[0] = pdfPrintableWidth
		return widths
	}
	// the last column gets a third of the page, the rest share the remainder
	lastWidth := pdfPrintableWidth / 3
	each := (pdfPrintableWidth - lastWidth) / float64(n-1)
	for i := range widths {
		widths[i] = each
	}
	widths[n-1] = lastWidth
	return widths
}
