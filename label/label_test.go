package label

import (
	"bytes"
	"testing"
	"time"
)

func TestRenderBatchLabelPDF(t *testing.T) {
	data := BatchLabelData{
		Code:     "B-2024-0042",
		PONumber: "PO1001",
		Supplier: "Acme Chemicals",
		ItemName: "Solvent X",
	}
	pdfBytes, err := RenderBatchLabelPDF(data, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("render label: %v", err)
	}
	if len(pdfBytes) == 0 {
		t.Fatalf("expected non-empty pdf")
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		t.Fatalf("expected PDF header, got %q", pdfBytes[:4])
	}
}

func TestRenderBatchLabelPDFRequiresCode(t *testing.T) {
	if _, err := RenderBatchLabelPDF(BatchLabelData{PONumber: "PO1"}, time.Now()); err == nil {
		t.Fatalf("expected blank code rejection")
	}
}
