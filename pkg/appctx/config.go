// Package appctx carries process-wide handles on a context.Context.
package appctx

import (
	"context"

	"github.com/vulntor/memsift/pkg/config"
)

type key string

const configKey key = "memsift.config.manager"

// WithConfig stores the loaded config manager on ctx.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the config manager stored by WithConfig.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// ConfigOrDefault returns the stored configuration, or the built-in
// defaults when no manager is on ctx.
func ConfigOrDefault(ctx context.Context) config.Config {
	if mgr, ok := Config(ctx); ok {
		return mgr.Get()
	}
	return config.DefaultConfig()
}
