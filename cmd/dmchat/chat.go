package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/dmchat/internal/client"
	"github.com/vovakirdan/dmchat/internal/config"
	applog "github.com/vovakirdan/dmchat/internal/log"
)

const chatHelp = `Commands:
  /peers         list peers
  /peer <user>   open the conversation with user
  /leave         close the active conversation
  /quit          exit
Anything else is sent to the active conversation.`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		password string
		peer     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(os.Stderr)
			if err != nil {
				return err
			}
			logger := applog.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, cfg.Client, password, peer, os.Stdin, cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.String("server", "", "websocket URL of the chat server")
	flags.String("api", "", "base URL of the REST API")
	flags.String("user", "", "local user id")
	flags.String("token", "", "JWT to authenticate with")
	flags.StringVar(&password, "password", "", "log in with this password when no token is set")
	flags.StringVar(&peer, "peer", "", "open the conversation with this user on start")
	_ = opts.v.BindPFlag("client.server_url", flags.Lookup("server"))
	_ = opts.v.BindPFlag("client.api_url", flags.Lookup("api"))
	_ = opts.v.BindPFlag("client.user", flags.Lookup("user"))
	_ = opts.v.BindPFlag("client.token", flags.Lookup("token"))

	return cmd
}

func runChat(ctx context.Context, cfg config.ClientConfig, password, peer string, in io.Reader, out io.Writer, logger *zerolog.Logger) error {
	out = &syncWriter{w: out}
	if cfg.User == "" {
		return errors.New("client user is required (--user or client.user)")
	}

	token := cfg.Token
	if token == "" && password != "" {
		var err error
		token, err = client.Login(ctx, nil, cfg.APIURL, cfg.User, password)
		if err != nil {
			return err
		}
	}

	manager, err := client.NewManager(client.NewWebSocketTransport(cfg.ServerURL, cfg.DialTimeout), client.Options{
		User:              cfg.User,
		Token:             token,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectBackoff:  cfg.ReconnectBackoff,
		Logger:            applog.Component(logger, "client"),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Connect(ctx); err != nil {
		return err
	}

	var directory client.Directory = client.StaticDirectory{}
	if token != "" {
		directory = client.NewHTTPDirectory(cfg.APIURL, token, nil)
	}
	selector := client.NewSelector(manager, directory, 64)
	defer selector.Close(context.Background())

	fmt.Fprintf(out, "Connected to %s as %s\n%s\n", cfg.ServerURL, cfg.User, chatHelp)

	sh := &chatShell{manager: manager, selector: selector, out: out}
	if peer != "" {
		sh.open(ctx, peer)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := sh.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

type chatShell struct {
	manager  *client.Manager
	selector *client.Selector
	out      io.Writer
}

// handle runs one input line and reports whether the shell should exit.
func (s *chatShell) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/peers":
		s.listPeers(ctx)
	case strings.HasPrefix(line, "/peer "):
		s.open(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/peer ")))
	case line == "/leave":
		if err := s.selector.Close(ctx); err != nil {
			fmt.Fprintf(s.out, "leave: %v\n", err)
		}
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(s.out, chatHelp)
	default:
		s.send(ctx, line)
	}
	return false
}

func (s *chatShell) listPeers(ctx context.Context) {
	peers, err := s.selector.Peers(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "peers: %v\n", err)
		return
	}
	if len(peers) == 0 {
		fmt.Fprintln(s.out, "no peers")
		return
	}
	for _, p := range peers {
		status := "offline"
		if p.Online {
			status = "online"
		}
		fmt.Fprintf(s.out, "  %s (%s)\n", p.User, status)
	}
}

func (s *chatShell) open(ctx context.Context, peer string) {
	entries, err := s.selector.Select(ctx, peer)
	if err != nil {
		fmt.Fprintf(s.out, "open %s: %v\n", peer, err)
		if entries == nil {
			return
		}
	}
	fmt.Fprintf(s.out, "Chatting with %s\n", peer)

	go func() {
		for entry := range entries {
			if entry.Local {
				continue
			}
			fmt.Fprintf(s.out, "%s: %s\n", entry.Message.From, entry.Message.Body)
		}
	}()
}

func (s *chatShell) send(ctx context.Context, body string) {
	_, room, ok := s.selector.Active()
	if !ok {
		fmt.Fprintln(s.out, "no active conversation, use /peer <user>")
		return
	}
	if _, err := s.manager.Send(ctx, room, body); err != nil {
		fmt.Fprintf(s.out, "send: %v\n", err)
	}
}

// syncWriter serializes prompt output and deliveries printed from the
// subscription goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
