package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ehrlich-b/wingterm/internal/auth"
	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/session"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

func TestCredentialSaverSavesOnce(t *testing.T) {
	cache := &mockCredentialCache{}
	want := &auth.Credentials{Host: "box", Port: 9000, Username: "alice"}
	cache.On("Save", want).Return(nil).Once()

	s := &credentialSaver{cache: cache, creds: *want}
	s.OnState(session.State{Kind: session.Connecting})
	s.OnState(session.State{Kind: session.Connected})
	s.OnState(session.State{Kind: session.Disconnected})
	s.OnState(session.State{Kind: session.Connected})

	cache.AssertExpectations(t)
	cache.AssertNumberOfCalls(t, "Save", 1)
}

func TestCredentialSaverToleratesSaveError(t *testing.T) {
	cache := &mockCredentialCache{}
	cache.On("Save", mock.Anything).Return(errors.New("read-only fs")).Once()

	s := &credentialSaver{cache: cache}
	s.OnState(session.State{Kind: session.Connected})
	s.OnState(session.State{Kind: session.Connected})

	cache.AssertNumberOfCalls(t, "Save", 1)
}

func TestApplyCachedCredentials(t *testing.T) {
	cache := &mockCredentialCache{}
	cache.On("Load").Return(&auth.Credentials{Host: "box", Port: 9000, Username: "alice"}, nil)

	cfg := config.Default()
	applyCachedCredentials(cfg, cache)
	if cfg.Server.Host != "box" || cfg.Server.Port != 9000 || cfg.Server.Username != "alice" {
		t.Errorf("server = %+v", cfg.Server)
	}

	// A configured host wins over the cache entirely.
	cfg = config.Default()
	cfg.Server.Host = "other"
	applyCachedCredentials(cfg, cache)
	if cfg.Server.Host != "other" || cfg.Server.Port != config.DefaultPort || cfg.Server.Username != "" {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestApplyCachedCredentialsEmptyCache(t *testing.T) {
	cache := &mockCredentialCache{}
	cache.On("Load").Return(nil, nil).Once()

	cfg := config.Default()
	applyCachedCredentials(cfg, cache)
	if cfg.Server.Host != "" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	cache.AssertExpectations(t)
}

// scriptedConnector plays back one outcome per Connect call.
type scriptedConnector struct {
	states   chan session.State
	outcomes []session.State
	calls    int
	err      error
}

func (c *scriptedConnector) Connect(config.Connection) error {
	if c.err != nil {
		return c.err
	}
	c.states <- session.State{Kind: session.Connecting}
	c.states <- c.outcomes[c.calls]
	c.calls++
	return nil
}

func fastBackoff() *ws.Backoff {
	return ws.NewBackoff(time.Millisecond, 2*time.Millisecond)
}

func TestDialRetriesUntilConnected(t *testing.T) {
	c := &scriptedConnector{
		states: make(chan session.State, 8),
		outcomes: []session.State{
			{Kind: session.Failed, Reason: "connection refused"},
			{Kind: session.Failed, Reason: "connection refused"},
			{Kind: session.Connected},
		},
	}
	err := dial(context.Background(), c, config.Connection{Host: "box"}, c.states, 2, fastBackoff())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
}

func TestDialGivesUp(t *testing.T) {
	c := &scriptedConnector{
		states: make(chan session.State, 8),
		outcomes: []session.State{
			{Kind: session.Failed, Reason: "connection refused"},
			{Kind: session.Disconnected},
		},
	}
	err := dial(context.Background(), c, config.Connection{Host: "box"}, c.states, 1, fastBackoff())
	if err == nil || !strings.Contains(err.Error(), "connection closed") {
		t.Fatalf("err = %v", err)
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
}

func TestDialInvalidEndpoint(t *testing.T) {
	c := &scriptedConnector{err: config.ErrInvalidEndpoint}
	err := dial(context.Background(), c, config.Connection{}, nil, 3, fastBackoff())
	if !errors.Is(err, config.ErrInvalidEndpoint) {
		t.Fatalf("err = %v", err)
	}
}

func TestDialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &scriptedConnector{
		states:   make(chan session.State, 8),
		outcomes: []session.State{{Kind: session.Failed, Reason: "refused"}},
	}
	if err := dial(ctx, c, config.Connection{}, c.states, 5, fastBackoff()); err == nil {
		t.Fatal("expected error")
	}
}
