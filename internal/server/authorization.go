package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
)

// authorizedOrder loads the order named by the :id param and checks that the
// caller may perform action on object within the order's shop.
func (s *Server) authorizedOrder(c *gin.Context, object, action string) (orderdomain.Order, bool) {
	if _, ok := s.identity(c); !ok {
		AbortWithError(c, ErrUnauthorized)
		return orderdomain.Order{}, false
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return orderdomain.Order{}, false
	}

	order, err := s.orderSvc.Get(c.Request.Context(), "", id)
	if err != nil {
		AbortWithError(c, err)
		return orderdomain.Order{}, false
	}

	if err := s.authorizeForShop(c, order.ShopID, object, action); err != nil {
		AbortWithError(c, err)
		return orderdomain.Order{}, false
	}
	return order, true
}

func (s *Server) authorizeForShop(c *gin.Context, shopID snowflake.ID, object, action string) error {
	identity, ok := s.identity(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), identity, shopID, strings.TrimSpace(object), strings.TrimSpace(action))
}
