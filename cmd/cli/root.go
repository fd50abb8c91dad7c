package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forge-endpointify/internal/config"
	"forge-endpointify/internal/service"
	"forge-endpointify/pkg/logger"
)

const version = "0.3.0"

// app carries what the subcommands share. build is swapped in tests.
type app struct {
	out        io.Writer
	configPath string
	logLevel   string
	build      func(config.Config, *zap.Logger) (*service.Service, error)

	cfg    config.Config
	logger *zap.Logger
	svc    *service.Service
}

func newApp(out io.Writer) *app {
	return &app{out: out, build: service.FromConfig}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "endpointify",
		Short: "endpointify: turn web pages into component maps",
		Long: `endpointify analyzes a URL and returns the interactive components it exposes
(search fields, filters, buttons, tables, pagination).

Usage:
  endpointify extract <url> [flags]
  endpointify batch --input urls.csv [flags]
  endpointify mcp`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newExtractCmd(a), newBatchCmd(a), newMCPCmd(a))
	return root
}

func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	svc, err := a.build(cfg, l)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.svc = cfg, l, svc
	return nil
}

// teardown cancels any warm refresh still running; the process is about
// to exit and its outcome would be discarded anyway.
func (a *app) teardown() {
	if a.svc != nil {
		a.svc.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
