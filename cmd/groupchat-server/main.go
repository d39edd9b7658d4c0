package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/christopherjohns/groupchat/internal/config"
	"github.com/christopherjohns/groupchat/internal/message"
	"github.com/christopherjohns/groupchat/internal/server"
)

var rootCmd = &cobra.Command{
	Use:          "groupchat-server",
	Short:        "Reference group chat server (message API + live channel)",
	SilenceUsage: true,
	RunE:         runServer,
}

var (
	flagConfig    string
	flagAddr      string
	flagRedisAddr string
	flagDataPath  string
	flagMaxConns  int
	flagLogLevel  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "optional YAML config file")
	flags.StringVar(&flagAddr, "addr", ":5000", "listen address")
	flags.StringVar(&flagRedisAddr, "redis-addr", "", "store messages in Redis at this address")
	flags.StringVar(&flagDataPath, "data-path", "", "directory to persist messages via PebbleDB")
	flags.IntVar(&flagMaxConns, "max-conns", 0, "maximum live connections; 0 is unlimited")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("groupchat-server")
	}
}

func loadConfig(cmd *cobra.Command) (config.Server, error) {
	cfg, err := config.LoadServer(flagConfig)
	if err != nil {
		return config.Server{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = flagAddr
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr = flagRedisAddr
	}
	if flags.Changed("data-path") {
		cfg.DataPath = flagDataPath
	}
	if flags.Changed("max-conns") {
		cfg.MaxConns = flagMaxConns
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Server{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Server) (message.Store, error) {
	switch {
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("store: using redis")
		return message.NewRedisStore(rdb, cfg.MaxMessages), nil
	case cfg.DataPath != "":
		s, err := message.OpenPebbleStore(cfg.DataPath, cfg.MaxMessages)
		if err != nil {
			return nil, err
		}
		n, _ := s.Count()
		log.Info().Str("path", cfg.DataPath).Int("messages", n).Msg("store: using pebble")
		return s, nil
	default:
		log.Info().Int("max", cfg.MaxMessages).Msg("store: using memory")
		return message.NewMemoryStore(cfg.MaxMessages), nil
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("store: close")
		}
	}()

	srv := server.New(cfg.Addr,
		server.WithStore(store),
		server.WithRateLimit(cfg.RateLimit, cfg.RateWindow),
		server.WithMaxConns(cfg.MaxConns),
		server.WithOrigins(cfg.AllowedOrigins...),
	)
	return srv.Run(ctx)
}
