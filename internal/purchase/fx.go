package purchase

import (
	"github.com/openutility/wattshare/internal/purchase/repository"
	"github.com/openutility/wattshare/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
