package pdf

import (
	"bytes"
	"context"
	"testing"
)

func TestGenerateReceipt(t *testing.T) {
	out, err := New().GenerateReceipt(context.Background(), ReceiptData{
		ShopName:      "Campus Prints",
		ReceiptNumber: "R-1",
		OrderID:       "42",
		CustomerID:    "user-1",
		OrderedAt:     "2026-03-01 09:00",
		CompletedAt:   "2026-03-01 09:30",
		FileRef:       "uploads/notes.pdf",
		Lines: []ReceiptLine{
			{Description: "Pages", Detail: "10"},
			{Description: "Copies", Detail: "2"},
		},
		Currency: "INR",
		Total:    "45",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("expected a PDF document")
	}
}

func TestGenerateReceiptRequiresOrderAndTotal(t *testing.T) {
	if _, err := New().GenerateReceipt(context.Background(), ReceiptData{}); err != ErrEmptyReceipt {
		t.Fatalf("expected empty receipt error, got %v", err)
	}
}
