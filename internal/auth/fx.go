package auth

import (
	"github.com/smallbiznis/printdesk/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(token.NewVerifier),
)
