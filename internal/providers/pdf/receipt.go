package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyReceipt = errors.New("empty_receipt")

// ReceiptData is pre-formatted; the provider does no money or date math.
type ReceiptData struct {
	ShopName      string
	ReceiptNumber string
	OrderID       string
	CustomerID    string
	OrderedAt     string
	CompletedAt   string
	FileRef       string

	Lines []ReceiptLine

	Currency string
	Total    string
}

type ReceiptLine struct {
	Description string
	Detail      string
}

func (p *PDFProvider) GenerateReceipt(_ context.Context, data ReceiptData) ([]byte, error) {
	if data.OrderID == "" || data.Total == "" {
		return nil, ErrEmptyReceipt
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, data.ShopName, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Receipt", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Order: "+data.OrderID, props.Text{Top: 4}),
			text.New("Customer: "+data.CustomerID, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Ordered: "+data.OrderedAt, props.Text{Top: 0, Align: align.Right}),
			text.New("Completed: "+data.CompletedAt, props.Text{Top: 4, Align: align.Right}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, "File: "+data.FileRef, props.Text{Size: 9}),
	)

	m.AddRow(10,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(6, "Detail", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range data.Lines {
		m.AddRow(8,
			text.NewCol(6, line.Description, props.Text{Size: 9}),
			text.NewCol(6, line.Detail, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(14,
		col.New(6),
		text.NewCol(3, "Total paid", props.Text{Style: fontstyle.Bold, Size: 10, Top: 4}),
		text.NewCol(3, data.Currency+" "+data.Total, props.Text{Style: fontstyle.Bold, Size: 10, Top: 4, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
