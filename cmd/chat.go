package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wisochat/pkg/config"
	"wisochat/pkg/logger"
	"wisochat/pkg/protocol"
	"wisochat/pkg/session"
	"wisochat/pkg/transport"
	"wisochat/pkg/transport/loopback"
	"wisochat/pkg/transport/telegram"
	"wisochat/pkg/transport/ws"
	chatui "wisochat/pkg/ui/chat"

	"github.com/spf13/cobra"
)

const (
	dialTimeout = 10 * time.Second
	echoPrefix  = "echo: "
)

type chatOptions struct {
	offline  bool
	echo     bool
	telegram bool
	relayURL string
}

var chatFlags chatOptions

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the terminal chat client",
	Long:  "Connects to the relay and opens the chat UI. With --offline the client runs against an in-process loopback; with --telegram it joins the configured Telegram group.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		applyChatFlags(cfg, chatFlags)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("invalid config: %v\n", err)
			return
		}

		appLogger, closeLog, err := newChatLogger(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer func() { _ = closeLog() }()
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.chat")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		adapter, info, closeAdapter, err := buildAdapter(runCtx, cfg, chatFlags, log)
		if err != nil {
			fmt.Printf("failed to connect: %v\n", err)
			return
		}
		defer closeAdapter()

		sess := session.New(adapter, session.WithLogger(appLogger))
		if err := chatui.Run(runCtx, sess, info); err != nil {
			log.Error("Chat UI failed", "error", err)
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatFlags.offline, "offline", false, "use an in-process loopback instead of the relay")
	chatCmd.Flags().BoolVar(&chatFlags.echo, "echo", false, "echo sent messages back as peer messages (implies --offline)")
	chatCmd.Flags().BoolVar(&chatFlags.telegram, "telegram", false, "chat in the configured Telegram group instead of the relay")
	chatCmd.Flags().StringVar(&chatFlags.relayURL, "relay", "", "relay WebSocket URL (overrides relay.url)")
}

func applyChatFlags(cfg *config.Config, opts chatOptions) {
	if value := strings.TrimSpace(opts.relayURL); value != "" {
		cfg.Relay.URL = value
	}
}

// newChatLogger keeps log output off the terminal the UI draws on.
func newChatLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return logger.Discard(), func() error { return nil }, nil
	}

	return logger.New(cfg)
}

func buildAdapter(ctx context.Context, cfg *config.Config, opts chatOptions, log *slog.Logger) (transport.Adapter, chatui.RuntimeInfo, func(), error) {
	info := chatui.RuntimeInfo{
		Title:  cfg.UI.Title,
		Emojis: cfg.UI.Emojis,
	}

	if opts.offline || opts.echo {
		var loopOpts []loopback.Option
		if opts.echo {
			loopOpts = append(loopOpts, loopback.WithEcho(echoPrefix))
		}
		log.Info("Running offline", "echo", opts.echo)
		return loopback.New(loopOpts...), info, func() {}, nil
	}

	if opts.telegram {
		room, err := telegram.New(cfg.Telegram, log)
		if err != nil {
			return nil, info, func() {}, err
		}

		runCtx, cancel := context.WithCancel(ctx)
		go func() {
			if err := room.Run(runCtx); err != nil {
				log.Error("Telegram room stopped", "error", err)
			}
		}()

		info.Relay = room.Name()
		return room, info, cancel, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ws.Dial(dialCtx, cfg.Relay.URL,
		ws.WithLogger(log),
		ws.WithBackoff(cfg.Relay.ReconnectMin(), cfg.Relay.ReconnectMax()),
		ws.WithPresence(func(frame protocol.Frame) {
			log.Info("Peer presence", "kind", frame.Kind.String(), "peer", frame.From)
		}),
	)
	if err != nil {
		return nil, info, func() {}, err
	}

	info.Relay = cfg.Relay.URL
	info.Connected = client.Connected
	return client, info, func() { _ = client.Close() }, nil
}
