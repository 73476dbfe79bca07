package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/wingterm/internal/auth"
	"github.com/ehrlich-b/wingterm/internal/command"
	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/conversation"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/protocol"
	"github.com/ehrlich-b/wingterm/internal/session"
	"github.com/ehrlich-b/wingterm/internal/store"
	"github.com/ehrlich-b/wingterm/internal/transport"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

func connectCmd() *cobra.Command {
	var (
		hostFlag  string
		portFlag  int
		userFlag  string
		retryFlag int
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dir, err := config.GetUserConfigDir()
			if err != nil {
				return err
			}
			creds := auth.NewCredentialStore(dir)
			applyCachedCredentials(cfg, creds)

			if cmd.Flags().Changed("host") {
				cfg.Server.Host = hostFlag
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = portFlag
			}
			if cmd.Flags().Changed("user") {
				cfg.Server.Username = userFlag
			}
			if cfg.Server.Secret == "" {
				secret, err := promptSecret(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				cfg.Server.Secret = secret
			}

			conn := cfg.Connection()
			targets, err := conn.Targets()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			out := newPrinter(os.Stdout)
			log := conversation.NewLog()

			var rec *recorder
			if cfg.History.Enabled {
				path, err := cfg.HistoryPath()
				if err != nil {
					return err
				}
				if err := config.EnsureConfigDir(dir); err != nil {
					return err
				}
				s, err := store.Open(path)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer s.Close()
				rec, err = newRecorder(s, conn)
				if err != nil {
					return err
				}
			}
			log.OnAppend = func(e conversation.Entry) {
				out.Append(e)
				rec.save(e)
			}
			log.OnUpdate = func(e conversation.Entry) {
				out.Update(e)
				rec.save(e)
			}

			mgr := session.NewManager(nil)
			states := make(chan session.State, 16)
			mgr.Subscribe(session.ObserverFuncs{
				State: func(s session.State) {
					announceState(log, s)
					select {
					case states <- s:
					default:
					}
				},
				Event:     log.Apply,
				SessionID: rec.setSession,
			})
			mgr.Subscribe(&credentialSaver{
				cache: creds,
				creds: auth.Credentials{Host: conn.Host, Port: conn.Port, Username: conn.Username},
			})

			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				mgr.Run(ctx)
			}()
			defer func() {
				mgr.Disconnect()
				cancel()
				<-runDone
			}()

			backoff := ws.NewBackoff(500*time.Millisecond, 10*time.Second)
			if err := dial(ctx, mgr, conn, states, retryFlag, backoff); err != nil {
				return err
			}

			enc := command.NewEncoder()
			enc.Language = cfg.AI.Language
			enc.MaxSteps = cfg.AI.MaxSteps
			sh := &shell{
				sess: mgr,
				log:  log,
				enc:  enc,
				up:   transport.NewClient(targets),
				out:  out,
				open: openFile,
			}
			out.Notice(`type /help for commands`, false)
			return sh.run(ctx, os.Stdin)
		},
	}

	cmd.Flags().StringVar(&hostFlag, "host", "", "backend host")
	cmd.Flags().IntVar(&portFlag, "port", config.DefaultPort, "backend port")
	cmd.Flags().StringVar(&userFlag, "user", "", "username")
	cmd.Flags().IntVar(&retryFlag, "retry", 0, "retry a failed connection this many times")

	return cmd
}

// applyCachedCredentials fills connection fields the config left empty
// from the last successful connection.
func applyCachedCredentials(cfg *config.Config, cache credentialCache) {
	c, err := cache.Load()
	if err != nil {
		logger.Warn("load cached credentials", "err", err)
		return
	}
	if c == nil || cfg.Server.Host != "" {
		return
	}
	cfg.Server.Host = c.Host
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if cfg.Server.Username == "" {
		cfg.Server.Username = c.Username
	}
}

func promptSecret(in *os.File, out io.Writer) (string, error) {
	if !term.IsTerminal(int(in.Fd())) {
		return "", nil
	}
	fmt.Fprint(out, "secret: ")
	b, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func announceState(log *conversation.Log, s session.State) {
	switch s.Kind {
	case session.Connected:
		log.AddSystem("connected", false)
	case session.Disconnected:
		log.AddSystem("disconnected", false)
	case session.Failed:
		log.AddSystem("connection failed: "+s.Reason, true)
	}
}

type connector interface {
	Connect(cfg config.Connection) error
}

// dial starts a connection and waits for it to open. A failed attempt is
// retried up to retries times, waiting on b between attempts.
func dial(ctx context.Context, c connector, conn config.Connection, states <-chan session.State, retries int, b *ws.Backoff) error {
	for attempt := 0; ; attempt++ {
		if err := c.Connect(conn); err != nil {
			return err
		}
		s, err := awaitOutcome(ctx, states)
		if err != nil {
			return err
		}
		if s.Kind == session.Connected {
			b.Reset()
			return nil
		}
		reason := s.Reason
		if reason == "" {
			reason = "connection closed"
		}
		if attempt >= retries {
			return fmt.Errorf("connect to %s: %s", conn.Host, reason)
		}
		logger.Info("retrying connection", "attempt", attempt+1, "reason", reason)
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
}

// awaitOutcome skips transitional states until a connection either opens
// or ends.
func awaitOutcome(ctx context.Context, states <-chan session.State) (session.State, error) {
	for {
		select {
		case <-ctx.Done():
			return session.State{}, ctx.Err()
		case s := <-states:
			if s.Kind != session.Connecting {
				return s, nil
			}
		}
	}
}

type credentialCache interface {
	Load() (*auth.Credentials, error)
	Save(c *auth.Credentials) error
}

// credentialSaver remembers the connection settings the first time a
// connection opens. It runs on the manager's Run goroutine.
type credentialSaver struct {
	cache credentialCache
	creds auth.Credentials
	saved bool
}

func (c *credentialSaver) OnState(s session.State) {
	if s.Kind != session.Connected || c.saved {
		return
	}
	c.saved = true
	creds := c.creds
	if err := c.cache.Save(&creds); err != nil {
		logger.Warn("save credentials", "err", err)
	}
}

func (c *credentialSaver) OnEvent(protocol.Event) {}
func (c *credentialSaver) OnSessionID(string)     {}
