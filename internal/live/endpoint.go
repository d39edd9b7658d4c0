package live

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DefaultPort is the port the live channel listens on.
const DefaultPort = 5000

// Endpoint derives the live channel URL from the page origin: the scheme
// mirrors the page's (https ⇒ wss), the host is kept and the port replaced.
func Endpoint(pageURL string, port int) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported page url scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("page url %q has no host", pageURL)
	}
	if port <= 0 {
		port = DefaultPort
	}
	live := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/ws",
	}
	return live.String(), nil
}
