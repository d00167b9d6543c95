package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/othala/internal"
	pkgconfig "github.com/starford/othala/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
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
		Name:  "othala",
		Usage: "Local-first Markdown vault with a migrating SQLite index and hybrid search",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.Run(ctx, internal.WithConfig(cfg))
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run pending schema migrations and print the result",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Migrate(ctx, cfg)
				},
			},
			{
				Name:  "reindex",
				Usage: "Force a full rescan of the vault",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Reindex(ctx, cfg)
				},
			},
			{
				Name:  "search",
				Usage: "Run a simple search query",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Filter by note type"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 20},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					query := ""
					if cmd.Args().Len() > 0 {
						query = cmd.Args().First()
					}
					return internal.Search(ctx, cfg, query, cmd.String("type"), int(cmd.Int("limit")))
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve the MCP tool interface over stdio",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.ServeMCP(ctx, cfg)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
