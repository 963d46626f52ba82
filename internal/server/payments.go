package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/printdesk/internal/payment/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

type createIntentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	OrderID        string          `json:"order_id"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	}

	var orderID *snowflake.ID
	if raw := strings.TrimSpace(req.OrderID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order_id"))
			return
		}
		orderID = &id
	}

	resp, err := s.intentSvc.CreateIntent(c.Request.Context(), paymentdomain.CreateIntentRequest{
		OwnerID:        identity.Subject,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
		OrderID:        orderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	identity, ok := s.identity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.intentSvc.VerifyClientPayment(c.Request.Context(), paymentdomain.VerifyPaymentRequest{
		OwnerID:          identity.Subject,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
