package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/guildmod/automod/rulestore"
	"github.com/bluesky-social/guildmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "guildmod",
		Usage:   "auto-moderation daemon and rule management for chat guilds",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GUILDMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "SQL database for rule storage (sqlite:// or postgres://). Takes precedence over redis and the rules file",
			EnvVars: []string{"GUILDMOD_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"GUILDMOD_MAX_DB_CONNECTIONS"},
			Value:   10,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for counters and caches, and rule storage if no database is configured",
			EnvVars: []string{"GUILDMOD_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "rules-file",
			Usage:   "JSON file for rule storage, used if neither a database nor redis is configured",
			Value:   "data/guildmod/rules.json",
			EnvVars: []string{"GUILDMOD_RULES_FILE"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(os.Stdout, cliutil.LogOptions{LogLevel: cctx.String("log-level")})
		return err
	}

	app.Commands = []*cli.Command{
		runCmd,
		rulesCmd,
	}

	return app.Run(args)
}

// Picks the rule storage backend from global flags: database, then redis, then a local JSON file.
func openRepository(cctx *cli.Context) (rulestore.Repository, error) {
	if dburl := cctx.String("database-url"); dburl != "" {
		db, err := cliutil.SetupDatabase(dburl, cctx.Int("max-db-connections"))
		if err != nil {
			return nil, err
		}
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
		return rulestore.NewGormRepository(db)
	}
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		return rulestore.NewRedisRepository(redisURL)
	}
	return rulestore.NewFileRepository(cctx.String("rules-file")), nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the chat platform",
			Required: true,
			EnvVars:  []string{"GUILDMOD_DISCORD_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "sets-file",
			Usage:   "JSON file with initial keyword lists (\"whitelist\" and \"blacklist\" arrays), merged in to stored lists",
			EnvVars: []string{"GUILDMOD_SETS_FILE"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "classifier-url",
			Usage:   "base URL of the AI content classifier service; screening is disabled if not set",
			EnvVars: []string{"GUILDMOD_CLASSIFIER_URL"},
		},
		&cli.StringFlag{
			Name:    "classifier-token",
			Usage:   "bearer token for the AI content classifier",
			EnvVars: []string{"GUILDMOD_CLASSIFIER_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "classifier-threshold",
			Usage:   "minimum confidence for a classifier verdict to count as a violation",
			Value:   0.8,
			EnvVars: []string{"GUILDMOD_CLASSIFIER_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "classifier-timeout",
			Value:   5 * time.Second,
			EnvVars: []string{"GUILDMOD_CLASSIFIER_TIMEOUT"},
		},
		&cli.Float64Flag{
			Name:    "classifier-rate-limit",
			Usage:   "max classifier requests per second",
			Value:   5,
			EnvVars: []string{"GUILDMOD_CLASSIFIER_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "save-delay",
			Usage:   "debounce period for writing rule changes to storage (0 saves on every change)",
			Value:   2 * time.Second,
			EnvVars: []string{"GUILDMOD_SAVE_DELAY"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"GUILDMOD_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()

		shutdownTracing, err := setupTracing(ctx)
		if err != nil {
			return err
		}
		defer shutdownTracing()

		repo, err := openRepository(cctx)
		if err != nil {
			return fmt.Errorf("opening rule storage: %w", err)
		}

		srv, err := NewServer(ctx, repo, Config{
			DiscordToken:        cctx.String("discord-token"),
			SetsFileJSON:        cctx.String("sets-file"),
			RedisURL:            cctx.String("redis-url"),
			SlackWebhookURL:     cctx.String("slack-webhook-url"),
			ClassifierURL:       cctx.String("classifier-url"),
			ClassifierToken:     cctx.String("classifier-token"),
			ClassifierThreshold: cctx.Float64("classifier-threshold"),
			ClassifierTimeout:   cctx.Duration("classifier-timeout"),
			ClassifierRateLimit: cctx.Float64("classifier-rate-limit"),
			SaveDelay:           cctx.Duration("save-delay"),
			Logger:              logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run automod service: %w", err)
		}
		return nil
	},
}
