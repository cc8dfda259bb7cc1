package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/echo-chat/client/internal/app"
	"github.com/echo-chat/client/internal/config"
	"github.com/echo-chat/client/internal/logging"
	"github.com/echo-chat/client/internal/session"
	"github.com/echo-chat/client/internal/transport"
)

type rootOptions struct {
	configPath string
	url        string
	token      string
	logLevel   string
	logFile    string
	noConnect  bool

	cfg       *config.Config
	logCloser io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}

	root := &cobra.Command{
		Use:           "echo-chat",
		Short:         "Chat with a WebSocket echo server from the terminal",
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ro.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ro.logCloser != nil {
				return ro.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(ro.cfg, !ro.noConnect)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&ro.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&ro.url, "url", "", "WebSocket URL of the echo server (default "+config.DefaultURL+")")
	f.StringVar(&ro.token, "token", "", "auth token sent as a bearer header")
	f.StringVar(&ro.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	f.StringVar(&ro.logFile, "log-file", "", "log file (the TUI defaults to a file in the temp dir)")
	root.Flags().BoolVar(&ro.noConnect, "no-connect", false, "start disconnected")

	root.AddCommand(newServeCmd(ro), newSendCmd(ro))
	return root
}

// setup loads configuration, applies flag overrides and starts logging.
// Only the TUI logs to a file by default; subcommands log to stderr unless
// --log-file is given.
func (ro *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = ro.url
	}
	if flags.Changed("token") {
		cfg.Server.Token = ro.token
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = ro.logLevel
	}
	logPath := cfg.Log.File
	if cmd != cmd.Root() {
		logPath = ""
	}
	if flags.Changed("log-file") {
		logPath = ro.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Log.Level, logPath)
	if err != nil {
		return err
	}
	ro.cfg = cfg
	ro.logCloser = closer
	return nil
}

func newTransport(cfg *config.Config) *transport.WS {
	var header http.Header
	if cfg.Server.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + cfg.Server.Token}}
	}
	return transport.NewWS(transport.Options{
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		CloseTimeout:     cfg.Transport.CloseTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		SendBuffer:       cfg.Transport.SendBuffer,
		Header:           header,
	}, logging.Component("transport"))
}

// closeSession tears s down, giving an in-flight close handshake one close
// timeout to finish.
func closeSession(cfg *config.Config, s *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Transport.CloseTimeout+time.Second)
	defer cancel()
	return s.Close(ctx)
}

func runTUI(cfg *config.Config, autoConnect bool) error {
	sess := session.New(cfg.Server.URL, newTransport(cfg), logging.Component("session"))
	log.Info().Str("url", cfg.Server.URL).Str("session_id", sess.ID()).Msg("starting tui")

	m := app.New(sess, app.Options{
		AutoConnect:         autoConnect,
		MaxMessagesRendered: cfg.UI.MaxMessagesRendered,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, runErr := p.Run()
	if fm, ok := final.(app.Model); ok {
		fm.Unsubscribe()
	} else {
		m.Unsubscribe()
	}

	if err := closeSession(cfg, sess); err != nil {
		log.Warn().Err(err).Msg("session teardown incomplete")
	}
	if runErr != nil {
		return errors.Wrap(runErr, "run tui")
	}
	return nil
}
