package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/aeshef/knowledge-bot/internal"
	pkgconfig "github.com/aeshef/knowledge-bot/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{internal.WithConfig(cfg)}
	if cmd.Bool("mcp") {
		opts = append(opts, internal.WithMCP())
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runBatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: batch <input-file>")
	}
	return internal.RunBatch(ctx, cfg, cmd.Args().First(), cmd.String("output"))
}

func runFillExamples(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: fill-examples <examples.csv>")
	}
	inPath := cmd.Args().First()
	outPath := cmd.String("output")
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, filepath.Ext(inPath)) + "_filled.csv"
	}
	return internal.RunFillExamples(ctx, cfg, inPath, outPath, cmd.Bool("force"))
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "knowledge-bot",
		Usage: "LLM-assisted capture pipeline committing Markdown notes into a vault",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (or the MCP stdio server with --mcp)",
				Action: serve,
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "mcp",
						Usage: "Serve MCP over stdio instead of HTTP",
					},
				},
			},
			{
				Name:      "batch",
				Usage:     "Ingest a file of inputs (one text, URL or file path per line) and commit notes directly",
				ArgsUsage: "<input-file>",
				Action:    runBatch,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "output",
						Usage: "Write notes under this directory instead of the configured vault",
					},
				},
			},
			{
				Name:      "fill-examples",
				Usage:     "Run the pipeline over an examples CSV and fill the expected_* columns",
				ArgsUsage: "<examples.csv>",
				Action:    runFillExamples,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output CSV path (defaults to <input>_filled.csv)",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Refill rows that already have an expected_type",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
