package envprobe

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// probeRealtime reports whether the realtime channel accepts a websocket
// handshake. The identity header is sent so proxies that gate the upgrade
// on identity let it through.
func (p *Prober) probeRealtime(ctx context.Context, base, identity string) bool {
	if p.opts.RealtimePath == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", userAgent)

	if identity != "" && p.opts.IdentityHeader != "" {
		header.Set(p.opts.IdentityHeader, identity)
	}

	wsURL := websocketURL(base + p.opts.RealtimePath)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		p.logger.Debug("realtime probe failed", slog.String("url", wsURL), slog.String("error", err.Error()))
		return false
	}

	_ = conn.CloseNow()

	return true
}

// websocketURL maps an http(s) URL onto the ws(s) scheme.
func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}
