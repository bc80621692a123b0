package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/seedkeeper/internal"
	pkgconfig "github.com/starford/seedkeeper/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// cliOptions builds options for one-shot commands. Their logs go to stderr
// so stdout carries only the result.
func cliOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(cmd.String("config")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runJob(ctx context.Context, cmd *cli.Command) error {
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	report, err := internal.RunJob(ctx, cmd.String("job"), opts...)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func strikes(ctx context.Context, cmd *cli.Command) error {
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	entries, th, err := internal.Strikes(ctx, cmd.String("job"), opts...)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"job":              cmd.String("job"),
		"required_strikes": th.RequiredStrikes,
		"min_strike_days":  th.MinStrikeDays,
		"entries":          entries,
	})
}

func reset(ctx context.Context, cmd *cli.Command) error {
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ResetStrikes(ctx, cmd.String("job"), cmd.String("id"), opts...)
}

func checkLinks(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: check-links <path>")
	}
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	rep, err := internal.CheckLinks(ctx, path, opts...)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func jobFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "job",
		Aliases:  []string{"j"},
		Usage:    "Job name (delete_forgotten, delete_not_working_trackers, delete_orphaned)",
		Required: true,
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "seedkeeper",
		Usage:  "Prunes forgotten, dead and orphaned torrents that the media library no longer uses",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("SEEDKEEPER_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the scheduler and the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "run",
				Usage:  "Run one pass of a job now and print its report",
				Flags:  []cli.Flag{jobFlag()},
				Action: runJob,
			},
			{
				Name:   "strikes",
				Usage:  "Print the strike history of a job",
				Flags:  []cli.Flag{jobFlag()},
				Action: strikes,
			},
			{
				Name:  "reset",
				Usage: "Clear the strike history of one torrent hash or path",
				Flags: []cli.Flag{
					jobFlag(),
					&cli.StringFlag{Name: "id", Usage: "Entity id", Required: true},
				},
				Action: reset,
			},
			{
				Name:      "check-links",
				Usage:     "Show whether a path is hard-linked into the media library",
				ArgsUsage: "<path>",
				Action:    checkLinks,
			},
			{
				Name:   "mcp",
				Usage:  "Serve jobs and ledgers to MCP clients over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
