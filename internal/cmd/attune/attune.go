// Package attune parses analysis service flags and launches the service.
package attune

import (
	"context"
	"flag"
	"time"

	server "github.com/quietloop/attune/internal/app/server"
	entrypoint "github.com/quietloop/attune/internal/platform/cmd"
)

// Config holds attune command configuration.
type Config struct {
	Port               int           `env:"ATTUNE_PORT" envDefault:"8080"`
	DBPath             string        `env:"ATTUNE_DB_PATH" envDefault:"attune.db"`
	CheckpointPath     string        `env:"ATTUNE_CHECKPOINT_PATH"`
	OpenAIKey          string        `env:"ATTUNE_OPENAI_API_KEY"`
	OpenAIModel        string        `env:"ATTUNE_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	SessionIdleTimeout time.Duration `env:"ATTUNE_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The analysis HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The sqlite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the analysis HTTP service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAttune, func(context.Context) error {
		return server.Run(ctx, server.Config{
			Port:               cfg.Port,
			DBPath:             cfg.DBPath,
			CheckpointPath:     cfg.CheckpointPath,
			OpenAIKey:          cfg.OpenAIKey,
			OpenAIModel:        cfg.OpenAIModel,
			SessionIdleTimeout: cfg.SessionIdleTimeout,
		})
	})
}
