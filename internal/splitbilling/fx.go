package splitbilling

import (
	"github.com/smallbiznis/firmbill/internal/splitbilling/service"
	"go.uber.org/fx"
)

var Module = fx.Module("splitbilling.service",
	fx.Provide(service.NewService),
)
