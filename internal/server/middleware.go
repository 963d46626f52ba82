package server

import (
	"context"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/printdesk/internal/auth/domain"
	obscontext "github.com/smallbiznis/printdesk/internal/observability/context"
)

const (
	headerAuthorization = "Authorization"
	headerOrigin        = "Origin"
	bearerPrefix        = "bearer "
)

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader(headerAuthorization))
		if raw == "" {
			AbortWithError(c, authdomain.ErrMissingToken)
			return
		}

		identity, err := s.tokens.Verify(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := authdomain.WithIdentity(c.Request.Context(), identity)
		ctx = obscontext.WithActor(ctx, string(identity.Role), identity.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// StaffRequired admits operators and owners bound to a shop. It must run
// after AuthRequired.
func (s *Server) StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authdomain.IdentityFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !identity.IsStaff() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// OriginRequired rejects browser calls from origins outside the allowlist.
// An empty allowlist disables the check.
func (s *Server) OriginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.origins) == 0 {
			c.Next()
			return
		}
		origin := normalizeOrigin(c.GetHeader(headerOrigin))
		if origin == "" {
			origin = normalizeOrigin(c.GetHeader("Referer"))
		}
		if _, ok := s.origins[origin]; !ok || origin == "" {
			AbortWithError(c, ErrOriginNotAllowed)
			return
		}
		c.Next()
	}
}

func (s *Server) RequestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) identity(c *gin.Context) (authdomain.Identity, bool) {
	return authdomain.IdentityFromContext(c.Request.Context())
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func originSet(origins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if normalized := normalizeOrigin(origin); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

// normalizeOrigin reduces an Origin or Referer value to scheme://host.
func normalizeOrigin(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return ""
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}
