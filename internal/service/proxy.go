package service

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// ResolveProxy normalizes a user-supplied proxy string into a fully
// qualified proxy URL. An empty input falls back to the configured
// default; a value without a scheme gets "http://" prefixed. It never
// fails: a string that is not a URL at all is passed through as-is and
// left for the transport to reject.
func ResolveProxy(raw, fallback string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = strings.TrimSpace(fallback)
	}
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		return "http://" + s
	}
	return s
}

// newTransport builds an HTTP transport routing through proxyURL.
// http/https proxies use the standard CONNECT path; socks5 proxies dial
// through a SOCKS dialer. An empty or unparseable proxy URL yields a
// direct transport.
func newTransport(proxyURL string) *http.Transport {
	tr := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	if proxyURL == "" {
		return tr
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return tr
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil {
			return tr
		}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		tr.Proxy = http.ProxyURL(u)
	}
	return tr
}
