package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/bootstrap"
	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/sla"
)

// cli carries state shared by every subcommand. cfg is loaded from the
// environment unless preset.
type cli struct {
	cfg    *config.Config
	out    io.Writer
	json   bool
	logger *zap.Logger
	engine *sla.Engine
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ansctl",
		Short: "Operator tool for the incident SLA engine",
		Long: `ansctl inspects the business-hours SLA (ANS) configuration, computes
deadlines offline and moves tickets in and out of the store as CSV.
Configuration is read from the same environment variables as the API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().BoolVar(&c.json, "json", false, "output JSON")
	root.AddCommand(
		prioritiesCmd(c),
		holidaysCmd(c),
		deadlineCmd(c),
		importCmd(c),
		exportCmd(c),
	)
	return root
}

func (c *cli) init() error {
	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	if c.logger == nil {
		// Logs go to stderr so they never mix with CSV or JSON output.
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err := zapCfg.Build()
		if err != nil {
			return err
		}
		c.logger = logger
	}
	calendar, err := bootstrap.LoadCalendar(c.cfg.SLA)
	if err != nil {
		return fmt.Errorf("load business calendar: %w", err)
	}
	engine, err := sla.NewEngine(calendar, c.logger)
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *cli) withStore(ctx context.Context, fn func(*bootstrap.Backend) error) error {
	backend, err := bootstrap.OpenStore(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.AppendHeader(header)
	return tw
}
