package config

import "go.uber.org/fx"

// Module wires application and policy configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPolicyConfigHolder,
	),
)
