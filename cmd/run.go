package cmd

import (
	"context"

	"github.com/easel-ai/easel/internal/app"
)

// withApp builds the full application, runs fn, and tears the
// application down afterwards. Commands that need the durable store go
// through this helper so setup and shutdown stay in one place.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown error", "error", cerr)
		}
	}()

	return fn(ctx, a)
}
