package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
	pricingdomain "github.com/smallbiznis/printdesk/internal/pricing/domain"
)

type quoteRequest struct {
	ShopID    string                      `json:"shop_id"`
	PageCount int                         `json:"page_count"`
	Settings  pricingdomain.PrintSettings `json:"settings"`
}

type createOrderRequest struct {
	ShopID    string                      `json:"shop_id"`
	FileRef   string                      `json:"file_ref"`
	PageCount int                         `json:"page_count"`
	Settings  pricingdomain.PrintSettings `json:"settings"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	shopID, err := parseID(req.ShopID)
	if err != nil {
		AbortWithError(c, newValidationError("shop_id", "invalid_shop_id", "invalid shop_id"))
		return
	}

	quote, err := s.orderSvc.Quote(c.Request.Context(), orderdomain.QuoteRequest{
		ShopID:    shopID,
		PageCount: req.PageCount,
		Settings:  req.Settings,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) CreateOrder(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	shopID, err := parseID(req.ShopID)
	if err != nil {
		AbortWithError(c, newValidationError("shop_id", "invalid_shop_id", "invalid shop_id"))
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		OwnerID:   identity.Subject,
		ShopID:    shopID,
		FileRef:   strings.TrimSpace(req.FileRef),
		PageCount: req.PageCount,
		Settings:  req.Settings,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) GetOrder(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), identity.Subject, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) ListOrderHistory(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	records, err := s.orderSvc.ListHistory(c.Request.Context(), identity.Subject, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) GetOrderReceipt(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	file, err := s.receiptSvc.Generate(c.Request.Context(), identity.Subject, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
