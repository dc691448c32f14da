package reading

import (
	"github.com/openutility/wattshare/internal/reading/repository"
	"github.com/openutility/wattshare/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
