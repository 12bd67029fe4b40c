package appctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/memsift/pkg/config"
)

func TestWithConfig(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		manager := config.NewManager()
		got, ok := Config(WithConfig(context.Background(), manager))
		require.True(t, ok)
		require.Same(t, manager, got)
	})

	t.Run("nil context", func(t *testing.T) {
		manager := config.NewManager()
		//nolint:staticcheck
		got, ok := Config(WithConfig(nil, manager))
		require.True(t, ok)
		require.Same(t, manager, got)
	})

	t.Run("nil manager is absent", func(t *testing.T) {
		_, ok := Config(WithConfig(context.Background(), nil))
		require.False(t, ok)
	})
}

func TestConfig_Missing(t *testing.T) {
	_, ok := Config(context.Background())
	require.False(t, ok)

	//nolint:staticcheck
	_, ok = Config(nil)
	require.False(t, ok)
}

func TestConfigOrDefault(t *testing.T) {
	require.Equal(t, config.DefaultConfig(), ConfigOrDefault(context.Background()))

	manager := config.NewManager()
	require.NoError(t, manager.Load(nil, ""))
	got := ConfigOrDefault(WithConfig(context.Background(), manager))
	require.Equal(t, manager.Get(), got)
}
