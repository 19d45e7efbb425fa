package entitlement

import (
	"github.com/smallbiznis/firmbill/internal/entitlement/catalog"
	"github.com/smallbiznis/firmbill/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(catalog.New),
	fx.Provide(service.NewService),
)
