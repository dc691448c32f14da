package config

import "go.uber.org/fx"

// Module provides application configuration and the tunable policy holder.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		DBConfig,
		NewPolicyHolder,
	),
)
