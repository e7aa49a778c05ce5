package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/dmchat/internal/client"
)

func newSmokeCmd(opts *rootOptions) *cobra.Command {
	var (
		from    string
		to      string
		text    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that a running server delivers a direct message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(os.Stderr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSmoke(ctx, cfg.Client.ServerURL, from, to, text, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("server", "", "websocket URL of the chat server")
	flags.StringVar(&from, "from", "smoke-a", "sending user")
	flags.StringVar(&to, "to", "smoke-b", "receiving user")
	flags.StringVar(&text, "text", "hello from smoke test", "message text to send")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	_ = opts.v.BindPFlag("client.server_url", flags.Lookup("server"))

	return cmd
}

// runSmoke connects two users, sends text from one to the other and waits
// for the delivery.
func runSmoke(ctx context.Context, serverURL, from, to, text string, out io.Writer) error {
	connect := func(user string) (*client.Manager, error) {
		m, err := client.NewManager(client.NewWebSocketTransport(serverURL, 0), client.Options{User: user})
		if err != nil {
			return nil, err
		}
		if err := m.Connect(ctx); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("connect %s: %w", user, err)
		}
		return m, nil
	}

	receiver, err := connect(to)
	if err != nil {
		return err
	}
	defer receiver.Close()
	inbox, err := client.NewSelector(receiver, client.StaticDirectory{}, 8).Select(ctx, from)
	if err != nil {
		return fmt.Errorf("join as %s: %w", to, err)
	}

	sender, err := connect(from)
	if err != nil {
		return err
	}
	defer sender.Close()
	if _, err := client.NewSelector(sender, client.StaticDirectory{}, 8).Select(ctx, to); err != nil {
		return fmt.Errorf("join as %s: %w", from, err)
	}

	// The receiver's join is not acknowledged; resend until it lands.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := sender.Send(ctx, sender.ActiveRoom(), text); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		select {
		case entry := <-inbox:
			fmt.Fprintf(out, "delivered: room=%s from=%s seq=%d body=%q\n",
				entry.Message.Room, entry.Message.From, entry.Message.Seq, entry.Message.Body)
			return nil
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("no delivery: %w", ctx.Err())
		}
	}
}
