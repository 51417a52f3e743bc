package jobapi

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the OpenAI job API client.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewOpenAIClient,
		fx.As(new(Client)),
	)),
)
