package billing

import (
	"github.com/smallbiznis/firmbill/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.facade",
	fx.Provide(service.NewService),
)
