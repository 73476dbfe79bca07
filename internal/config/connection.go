package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidEndpoint is returned when host or port cannot form a URL.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

const streamPath = "/ws"

// Connection is the per-attempt connection configuration. It is a value
// type; callers rebuild it before every connect or test.
type Connection struct {
	Host     string
	Port     int
	Username string
	Secret   string
}

// Targets are the endpoints and credential derived from a Connection.
type Targets struct {
	RequestURL string // http://host:port, base for one-shot calls
	StreamURL  string // ws://host:port/ws
	AuthToken  string // base64(username:secret), sent as Basic auth
}

// AuthHeader returns the Authorization header value for t.
func (t Targets) AuthHeader() string {
	return "Basic " + t.AuthToken
}

// Targets validates the connection and derives its endpoints.
func (c Connection) Targets() (Targets, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" || strings.ContainsAny(host, "/?#@ \t") {
		return Targets{}, fmt.Errorf("%w: bad host %q", ErrInvalidEndpoint, c.Host)
	}
	// Bracketed IPv6 literals are accepted as-is.
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return Targets{}, fmt.Errorf("%w: bad host %q", ErrInvalidEndpoint, c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return Targets{}, fmt.Errorf("%w: bad port %d", ErrInvalidEndpoint, c.Port)
	}

	hostport := net.JoinHostPort(host, strconv.Itoa(c.Port))
	stream := url.URL{Scheme: "ws", Host: hostport, Path: streamPath}
	if _, err := url.Parse(stream.String()); err != nil {
		return Targets{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	request := url.URL{Scheme: "http", Host: hostport}

	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Secret))
	return Targets{
		RequestURL: request.String(),
		StreamURL:  stream.String(),
		AuthToken:  token,
	}, nil
}
