package label

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"
)

// BatchLabelData is what gets printed on the physical lot label when a
// batch is created during receiving.
type BatchLabelData struct {
	Code     string
	PONumber string
	Supplier string
	ItemName string
}

// RenderBatchLabelPDF produces a single A6 landscape label with a
// Code128 barcode of the batch code.
func RenderBatchLabelPDF(data BatchLabelData, printedAt time.Time) ([]byte, error) {
	code := strings.TrimSpace(data.Code)
	if code == "" {
		return nil, fmt.Errorf("batch code is required")
	}

	barcodePNG, err := renderCode128PNG(code, 900, 220)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A6", "")
	pdf.SetTitle("Batch Label", false)
	pdf.AddPage()

	itemName := strings.TrimSpace(data.ItemName)
	if itemName == "" {
		itemName = "Unknown Item"
	}

	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(0, 13, itemName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "PO: "+data.PONumber, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Supplier: "+data.Supplier, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Printed: "+printedAt.Format("02/01/2006"), "", 1, "C", false, 0, "")

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	imageName := "batch-barcode-" + code
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
	pageW, _ := pdf.GetPageSize()
	imgW := 110.0
	imgH := 26.0
	x := (pageW - imgW) / 2
	y := 50.0
	pdf.ImageOptions(imageName, x, y, imgW, imgH, false, opt, 0, "")

	pdf.SetY(y + imgH + 3)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, code, "", 1, "C", false, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	encoded, err := code128.EncodeWithColor(value, barcode.ColorScheme8)
	if err != nil {
		return nil, fmt.Errorf("encode barcode: %w", err)
	}
	scaled, err := barcode.Scale(encoded, width, height)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("render barcode png: %w", err)
	}
	return buf.Bytes(), nil
}
