package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/authorization"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
)

type transitionOrderRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
}

func (s *Server) TransitionOrder(c *gin.Context) {
	var req transitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	target := orderdomain.Status(strings.ToLower(strings.TrimSpace(req.TargetStatus)))
	if !target.Valid() {
		AbortWithError(c, newValidationError("target_status", "invalid_status", "invalid target_status"))
		return
	}

	order, ok := s.authorizedOrder(c, authorization.ObjectOrder, authorization.ActionOrderTransition)
	if !ok {
		return
	}
	identity, _ := s.identity(c)

	result, err := s.orderSvc.Transition(c.Request.Context(), orderdomain.TransitionRequest{
		OrderID: order.ID,
		Target:  target,
		Actor: orderdomain.Actor{
			Type: string(auditdomain.ActorTypeOperator),
			ID:   identity.Subject,
		},
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
