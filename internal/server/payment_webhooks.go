package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/printdesk/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook passes the raw body to the webhook service untouched
// so the signature is checked over the exact bytes the gateway signed.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.Set("webhook_outcome", "rejected")
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		c.Set("webhook_outcome", webhookFailureOutcome(err))
		AbortWithError(c, err)
		return
	}

	c.Set("webhook_outcome", result.Outcome)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": result.Outcome})
}

func webhookFailureOutcome(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return "rejected"
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return "malformed"
	case errors.Is(err, paymentdomain.ErrIntentNotReady):
		return "deferred"
	default:
		return "failed"
	}
}
