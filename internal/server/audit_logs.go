package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/printdesk/internal/authorization"
)

func (s *Server) ListOrderAudit(c *gin.Context) {
	order, ok := s.authorizedOrder(c, authorization.ObjectAuditLog, authorization.ActionAuditLogView)
	if !ok {
		return
	}

	logs, err := s.auditSvc.ListByTarget(c.Request.Context(), "order", order.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
