package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/config"
	"github.com/vulntor/memsift/pkg/forward"
	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/logging"
	"github.com/vulntor/memsift/pkg/runner"
)

func loadCatalog(cfg config.Config) (catalog.Table, error) {
	if cfg.Catalog.File == "" {
		return catalog.DefaultTable(), nil
	}
	table, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	log.Debug().Str("file", cfg.Catalog.File).Int("plugins", table.Len()).Msg("catalog loaded")
	return table, nil
}

func newGate(cfg config.Config) (*gate.Gate, error) {
	logger := logging.NewLogger("gate", log.Logger.GetLevel())
	return gate.New(gate.Options{
		CounterPath: cfg.Gate.CounterFile,
		Capacity:    cfg.Gate.Capacity,
		StaleAfter:  cfg.Gate.StaleAfter,
		Logger:      &logger,
	})
}

func newRunner(cfg config.Config) (*runner.Runner, error) {
	logger := logging.NewLogger("runner", log.Logger.GetLevel())
	return runner.New(runner.Options{
		Interpreter: cfg.Tool.Interpreter,
		ToolPath:    cfg.Tool.Path,
		OutputFlag:  cfg.Tool.OutputFlag,
		Timeout:     cfg.Tool.Timeout,
		Logger:      &logger,
	})
}

func newForwarder(cfg config.Config) (*forward.Forwarder, error) {
	logger := logging.NewLogger("forward", log.Logger.GetLevel())
	return forward.New(forward.Options{
		URL:                cfg.Sink.URL,
		Token:              cfg.Sink.Token,
		Scheme:             cfg.Sink.Scheme,
		Index:              cfg.Sink.Index,
		SourceType:         cfg.Sink.SourceType,
		InsecureSkipVerify: cfg.Sink.InsecureSkipVerify,
		Timeout:            cfg.Sink.Timeout,
		Logger:             &logger,
	})
}
