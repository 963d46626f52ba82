package shop

import (
	"github.com/smallbiznis/printdesk/internal/shop/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("shop.repository",
	fx.Provide(repository.Provide),
)
