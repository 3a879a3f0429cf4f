package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/maruel/modelprov/internal/buildinfo"
	"github.com/maruel/modelprov/internal/inference"
	"github.com/maruel/modelprov/internal/logging"
	"github.com/maruel/modelprov/internal/storage"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dataDir  string
	logLevel string
	level    *slog.LevelVar
}

// open loads the server configuration of the data directory and opens its
// registry, so the CLI and the daemon share limits and history settings.
func (g *globalFlags) open() (*storage.Registry, *storage.ServerConfig, error) {
	cfg, err := storage.LoadServerConfig(g.dataDir)
	if err != nil {
		return nil, nil, err
	}
	reg, err := storage.Open(cfg.Storage(g.dataDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return reg, cfg, nil
}

// dispatcher opens the registry and returns a dispatcher over it.
func (g *globalFlags) dispatcher() (*inference.Dispatcher, error) {
	reg, cfg, err := g.open()
	if err != nil {
		return nil, err
	}
	return inference.New(reg, cfg.Workers), nil
}

func newRootCmd(level *slog.LevelVar) *cobra.Command {
	g := &globalFlags{level: level}
	root := &cobra.Command{
		Use:   "modelprov",
		Short: "Model provenance registry",
		Long:  "modelprov fingerprints model artifacts, records who registered them\nand audits every inference made against them.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.level == nil {
				return nil
			}
			return logging.SetLevel(g.level, g.logLevel)
		},
		Version: buildinfo.Get().Version,
	}
	f := root.PersistentFlags()
	f.StringVar(&g.dataDir, "data-dir", "./data", "Data directory")
	f.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newUploadCmd(g),
		newListCmd(g),
		newShowCmd(g),
		newInferCmd(g),
		newEvaluateCmd(g),
		newVerifyCmd(g),
		newUsageCmd(g),
		newSchemaCmd(),
		newHistoryCmd(g),
		newTokenCmd(g),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
