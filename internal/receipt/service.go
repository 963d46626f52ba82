// Package receipt renders PDF receipts for completed print orders from the
// order history.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
	"github.com/smallbiznis/printdesk/internal/providers/pdf"
	shopdomain "github.com/smallbiznis/printdesk/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const timeLayout = "2006-01-02 15:04 MST"

var ErrReceiptUnavailable = errors.New("receipt_unavailable")

type File struct {
	Name        string
	ContentType string
	Content     []byte
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Orders   orderdomain.Service
	ShopRepo shopdomain.Repository
	PDF      pdf.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	orders   orderdomain.Service
	shopRepo shopdomain.Repository
	pdf      pdf.Provider
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("receipt.service"),
		orders:   p.Orders,
		shopRepo: p.ShopRepo,
		pdf:      p.PDF,
	}
}

// Generate renders the receipt of ownerID's order from its latest completed
// history record. Orders that never completed have no receipt.
func (s *Service) Generate(ctx context.Context, ownerID string, orderID snowflake.ID) (File, error) {
	history, err := s.orders.ListHistory(ctx, ownerID, orderID)
	if err != nil {
		return File{}, err
	}
	var record *orderdomain.HistoryRecord
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status == orderdomain.StatusCompleted {
			record = &history[i]
			break
		}
	}
	if record == nil {
		return File{}, ErrReceiptUnavailable
	}

	shop, err := s.shopRepo.FindByID(ctx, s.db.WithContext(ctx), record.ShopID)
	if err != nil {
		return File{}, err
	}
	shopName := "printdesk"
	if shop != nil && shop.Name != "" {
		shopName = shop.Name
	}

	content, err := s.pdf.GenerateReceipt(ctx, receiptData(shopName, *record))
	if err != nil {
		s.log.Error("failed to render receipt", zap.String("order_id", orderID.String()), zap.Error(err))
		return File{}, fmt.Errorf("render receipt: %w", err)
	}

	return File{
		Name:        fmt.Sprintf("%s-receipt-%s.pdf", slug.Make(shopName), record.OrderID),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func receiptData(shopName string, record orderdomain.HistoryRecord) pdf.ReceiptData {
	lines := []pdf.ReceiptLine{
		{Description: "Paper", Detail: string(record.PaperSize)},
		{Description: "Sides", Detail: string(record.Duplex)},
		{Description: "Color", Detail: string(record.ColorMode)},
		{Description: "Pages", Detail: strconv.Itoa(record.PageCount)},
		{Description: "Copies", Detail: strconv.Itoa(record.Copies)},
	}
	if record.Binding != "" {
		lines = append(lines, pdf.ReceiptLine{Description: "Binding", Detail: string(record.Binding)})
	}
	if record.ExtraColorPages > 0 {
		lines = append(lines, pdf.ReceiptLine{Description: "Color pages", Detail: strconv.Itoa(record.ExtraColorPages)})
	}
	switch {
	case record.Emergency:
		lines = append(lines, pdf.ReceiptLine{Description: "Service", Detail: "rush"})
	case record.AfterDark:
		lines = append(lines, pdf.ReceiptLine{Description: "Service", Detail: "after dark"})
	}

	return pdf.ReceiptData{
		ShopName:      shopName,
		ReceiptNumber: "R-" + record.ID.String(),
		OrderID:       record.OrderID.String(),
		CustomerID:    record.OwnerID,
		OrderedAt:     record.OrderCreatedAt.UTC().Format(timeLayout),
		CompletedAt:   record.HistoryTimestamp.UTC().Format(timeLayout),
		FileRef:       record.FileRef,
		Lines:         lines,
		Currency:      record.Currency,
		Total:         strconv.FormatInt(record.TotalCost, 10),
	}
}
