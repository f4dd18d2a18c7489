package logging

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Ctx returns the global logger tagged with the request id carried by ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if id := middleware.GetReqID(ctx); id != "" {
		logger = logger.With().Str("request_id", id).Logger()
	}
	return &logger
}
