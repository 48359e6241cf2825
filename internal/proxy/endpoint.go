package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidEndpoint is returned for proxy lines that cannot be parsed.
var ErrInvalidEndpoint = errors.New("invalid proxy endpoint")

// Endpoint is the immutable identity of a proxy.
type Endpoint struct {
	ID       string `json:"id"`
	Scheme   string `json:"scheme"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Username string `json:"-"`
	Password string `json:"-"`
}

// URL returns the proxy URL with credentials, suitable for http.ProxyURL.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: e.Scheme,
		Host:   net.JoinHostPort(e.Address, strconv.Itoa(e.Port)),
	}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// ParseEndpoint accepts "host:port", "user:pass@host:port" and the same
// forms with an http://, https:// or socks5:// prefix.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidEndpoint, portStr)
	}

	e := Endpoint{
		ID:      net.JoinHostPort(host, portStr),
		Scheme:  u.Scheme,
		Address: host,
		Port:    port,
	}
	if u.User != nil {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}
	return e, nil
}

// LoadFile reads one endpoint per line. Blank lines and lines starting with
// '#' are skipped; duplicate ids keep the first occurrence.
func LoadFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var (
		out  []Endpoint
		seen = make(map[string]struct{})
		line int
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		e, parseErr := ParseEndpoint(text)
		if parseErr != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, parseErr)
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return out, nil
}
