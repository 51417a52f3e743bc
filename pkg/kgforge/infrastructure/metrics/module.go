package metrics

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the Prometheus metric recorder.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
)
