package pdf

import "context"

// Provider renders customer facing documents.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

func New() Provider {
	return &PDFProvider{}
}

type PDFProvider struct{}
