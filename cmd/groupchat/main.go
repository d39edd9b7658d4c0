package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/christopherjohns/groupchat/internal/api"
	"github.com/christopherjohns/groupchat/internal/chat"
	"github.com/christopherjohns/groupchat/internal/config"
	"github.com/christopherjohns/groupchat/internal/live"
	"github.com/christopherjohns/groupchat/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:          "groupchat",
	Short:        "Terminal client for a shared group chat",
	SilenceUsage: true,
	RunE:         runTUI,
}

var (
	flagConfig         string
	flagURL            string
	flagLiveURL        string
	flagLivePort       int
	flagUsername       string
	flagReconnectDelay time.Duration
	flagDialTimeout    time.Duration
	flagLogLevel       string
	flagLogFile        string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "optional YAML config file")
	flags.StringVar(&flagURL, "url", "", "chat server page url (default http://localhost:5000)")
	flags.StringVar(&flagLiveURL, "live-url", "", "live channel url; derived from --url when empty")
	flags.IntVar(&flagLivePort, "live-port", live.DefaultPort, "live channel port used when deriving the url")
	flags.StringVar(&flagUsername, "username", "", "display name (default User_<n>)")
	flags.DurationVar(&flagReconnectDelay, "reconnect-delay", live.DefaultReconnectDelay, "delay between live channel reconnect attempts")
	flags.DurationVar(&flagDialTimeout, "dial-timeout", 0, "live channel dial timeout; 0 waits indefinitely")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&flagLogFile, "log-file", "", "write logs to this file in interactive mode")

	rootCmd.AddCommand(tailCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers command-line flags that were set explicitly over the
// file and environment configuration.
func loadConfig(cmd *cobra.Command) (config.Client, error) {
	cfg, err := config.LoadClient(flagConfig)
	if err != nil {
		return config.Client{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = flagURL
	}
	if flags.Changed("live-url") {
		cfg.LiveURL = flagLiveURL
	}
	if flags.Changed("live-port") {
		cfg.LivePort = flagLivePort
	}
	if flags.Changed("username") {
		cfg.Username = flagUsername
	}
	if flags.Changed("reconnect-delay") {
		cfg.ReconnectDelay = flagReconnectDelay
	}
	if flags.Changed("dial-timeout") {
		cfg.DialTimeout = flagDialTimeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	if err := cfg.Validate(); err != nil {
		return config.Client{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newSession(cfg config.Client) (*chat.Session, error) {
	client, err := api.New(cfg.URL, api.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	endpoint, err := cfg.LiveEndpoint()
	if err != nil {
		return nil, err
	}
	opts := []live.Option{live.WithReconnectDelay(cfg.ReconnectDelay)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, live.WithDialTimeout(cfg.DialTimeout))
	}
	return chat.New(chat.Options{
		API:      client,
		Live:     live.New(endpoint, opts...),
		Username: cfg.Username,
	}), nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	if err := config.SetupLogging(cfg.LogLevel, logOut); err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	log.Info().Str("url", cfg.URL).Str("username", sess.Username()).Msg("groupchat: starting")
	return tui.Run(sess)
}
