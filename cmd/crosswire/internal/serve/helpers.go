package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal"
	"github.com/tinyland-inc/crosswire/pkg/channels"
	"github.com/tinyland-inc/crosswire/pkg/commands"
	"github.com/tinyland-inc/crosswire/pkg/engine"
	"github.com/tinyland-inc/crosswire/pkg/linkstore"
	"github.com/tinyland-inc/crosswire/pkg/registry"
	"github.com/tinyland-inc/crosswire/pkg/retention"
	"github.com/tinyland-inc/crosswire/pkg/storage"
)

func serveCmd(debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel, debug)

	if cfg.EnabledCount() < 2 {
		return fmt.Errorf("at least two channels must be enabled to relay, got %d", cfg.EnabledCount())
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	log.Info().Str("path", cfg.Storage.Path).Msg("storage opened")

	reg := registry.New(db)
	links := linkstore.New(db)
	cmdHandler := commands.NewHandler(reg, log)

	manager := channels.NewManager(log)
	eng := engine.New(reg, links, manager, log)

	if cfg.Channels.Discord.Enabled {
		manager.Add(channels.NewDiscordChannel(cfg.Channels.Discord, eng, cmdHandler, log))
	}
	if cfg.Channels.Telegram.Enabled {
		manager.Add(channels.NewTelegramChannel(cfg.Channels.Telegram, eng, cmdHandler, log))
	}
	if cfg.Channels.Slack.Enabled {
		manager.Add(channels.NewSlackChannel(cfg.Channels.Slack, eng, cmdHandler, log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		manager.StopAll(context.Background())
		return err
	}
	log.Info().Strs("channels", manager.EnabledPlatforms()).Msg("gateway started")

	if cfg.Retention.Enabled {
		sweeper := retention.NewSweeper(
			links,
			cfg.Retention.Schedule,
			time.Duration(cfg.Retention.MaxAgeDays)*24*time.Hour,
			log,
		)
		go sweeper.Run(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Stop consuming first, then let in-flight relays finish so every
	// send the remote side accepted gets linked.
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	manager.StopAll(stopCtx)
	eng.Drain()

	log.Info().Msg("gateway stopped")
	return nil
}

func newLogger(level string, debug bool) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	if debug {
		logLevel = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(logLevel).With().Timestamp().Logger()
}
