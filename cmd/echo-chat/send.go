package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/echo-chat/client/internal/config"
	"github.com/echo-chat/client/internal/logging"
	"github.com/echo-chat/client/internal/session"
)

func newSendCmd(ro *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Connect, send each argument, wait for the echoes and print the log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSend(ctx, ro.cfg, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")
	return cmd
}

// runSend drives one session headlessly. It always prints the message log,
// even when the exchange fails.
func runSend(ctx context.Context, cfg *config.Config, texts []string, out io.Writer) (err error) {
	sess := session.New(cfg.Server.URL, newTransport(cfg), logging.Component("session"))
	defer func() {
		for _, line := range sess.Messages() {
			fmt.Fprintln(out, line)
		}
		if cerr := closeSession(cfg, sess); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close session")
		}
	}()

	statusCh, cancelStatus := sess.SubscribeStatus()
	defer cancelStatus()
	messagesCh, cancelMessages := sess.SubscribeMessages()
	defer cancelMessages()

	sess.Connect()
	if err := waitConnected(ctx, statusCh); err != nil {
		return err
	}

	pending := make(map[string]int, len(texts))
	for _, text := range texts {
		pending[text]++
		sess.Send(text)
	}

	if err := waitEchoes(ctx, statusCh, messagesCh, pending, len(texts)); err != nil {
		return err
	}
	sess.Disconnect()
	return nil
}

func waitConnected(ctx context.Context, statusCh <-chan session.Status) error {
	for {
		select {
		case st := <-statusCh:
			switch st.State {
			case session.Connected:
				return nil
			case session.Failed:
				return errors.Errorf("connect failed: %s", st.Message)
			case session.Closing, session.Disconnected:
				return errors.New("connection closed before it opened")
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for connection")
		}
	}
}

// waitEchoes consumes log snapshots until every sent text has come back.
// Lines that match nothing pending, such as a server greeting, are skipped.
func waitEchoes(ctx context.Context, statusCh <-chan session.Status, messagesCh <-chan []string,
	pending map[string]int, want int) error {
	seen := 0
	for want > 0 {
		select {
		case lines := <-messagesCh:
			for _, line := range lines[seen:] {
				text, ok := strings.CutPrefix(line, session.ReceivedPrefix)
				if ok && pending[text] > 0 {
					pending[text]--
					want--
				}
			}
			seen = len(lines)
		case st := <-statusCh:
			switch st.State {
			case session.Failed:
				return errors.Errorf("connection failed: %s", st.Message)
			case session.Disconnected, session.Closing:
				return errors.Errorf("connection closed by server (%d)", st.Code)
			}
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for %d echoes", want)
		}
	}
	return nil
}
