package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/christopherjohns/groupchat/internal/chat"
	"github.com/christopherjohns/groupchat/internal/config"
	"github.com/christopherjohns/groupchat/internal/feed"
	"github.com/christopherjohns/groupchat/internal/live"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the chat history and follow new messages",
	Args:  cobra.NoArgs,
	RunE:  runTail,
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a single message and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	p := &printer{out: cmd.OutOrStdout(), sess: sess}
	sess.OnUpdate(p.update)

	if err := sess.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("tail: history unavailable, following live messages only")
	}

	<-ctx.Done()
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
	defer cancel()
	if err := sess.Send(ctx, strings.Join(args, " ")); err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return err
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// printer writes feed entries as lines, each at most once.
type printer struct {
	out  io.Writer
	sess *chat.Session

	mu      sync.Mutex
	printed int
	status  live.State
}

func (p *printer) update(u chat.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case chat.UpdateStatus:
		if u.Status != p.status {
			p.status = u.Status
			log.Info().Str("status", u.Status.String()).Msg("tail: live channel")
		}
	case chat.UpdateFeed:
		entries := p.sess.Feed().Entries()
		// A snapshot replace can shrink the feed; start over from it.
		if len(entries) < p.printed {
			p.printed = 0
		}
		for _, e := range entries[p.printed:] {
			fmt.Fprintln(p.out, formatLine(e))
		}
		p.printed = len(entries)
	}
}

func formatLine(e feed.Entry) string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp, e.Username, e.Text)
}
