package analytics

import (
	"github.com/openutility/wattshare/internal/analytics/repository"
	"github.com/openutility/wattshare/internal/analytics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
