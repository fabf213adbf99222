package envprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Sentinel errors for invalid discovery input. These are programmer errors
// and are never produced by an unreachable target.
var (
	ErrNoCandidates     = errors.New("envprobe: no candidate base URLs")
	ErrInvalidCandidate = errors.New("envprobe: invalid candidate base URL")
)

const (
	defaultProbeTimeout = 3 * time.Second
	userAgent           = "arkprobe/0.1"

	// maxConfigSourceBytes bounds how much config text is scanned.
	maxConfigSourceBytes = 1 << 20

	// maxProbeBodyBytes bounds how much of a probe response is read.
	maxProbeBodyBytes = 64 << 10
)

// Options controls what Discover probes. Zero values fall back to the
// defaults noted on each field.
type Options struct {
	HealthPaths    []string          // default /api/health, /health
	Categories     map[string]string // category name -> probe path
	AuthStatusPath string            // empty disables the auth probe
	RealtimePath   string            // empty disables the websocket probe
	IdentityHeader string            // header carrying AdminEmail on the websocket probe
	AdminEmail     string            // wins over the config-source value
	Timeout        time.Duration     // per probe, default 3s
	Exhaustive     bool              // keep probing health paths after the first 200
	ModeRules      []ModeRule        // default DefaultModeRules
}

// Prober runs discovery passes against candidate base URLs.
type Prober struct {
	client *http.Client
	opts   Options
	logger *slog.Logger

	// nowFunc stamps CapturedAt. Tests override it.
	nowFunc func() time.Time
}

// NewProber creates a Prober. The given client is copied and configured to
// never follow redirects, so a redirecting health check stays visible.
func NewProber(httpClient *http.Client, opts Options, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	noFollow := *httpClient
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if len(opts.HealthPaths) == 0 {
		opts.HealthPaths = []string{"/api/health", "/health"}
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}

	return &Prober{
		client:  &noFollow,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Discover probes every candidate and returns the resulting snapshot.
// Network failures on individual probes are logged and treated as
// unreachable; only invalid input, an unreadable configSource, or a
// canceled context produce an error. configSource may be nil.
func (p *Prober) Discover(ctx context.Context, candidates []string, configSource io.Reader) (*Snapshot, error) {
	bases, err := normalizeCandidates(candidates)
	if err != nil {
		return nil, err
	}

	var source string

	if configSource != nil {
		data, readErr := io.ReadAll(io.LimitReader(configSource, maxConfigSourceBytes))
		if readErr != nil {
			return nil, fmt.Errorf("envprobe: reading config source: %w", readErr)
		}

		source = string(data)
	}

	snap := &Snapshot{
		Mode:          DetectMode(source, p.opts.ModeRules),
		Auth:          AuthUnknown,
		AdminIdentity: p.opts.AdminEmail,
		CapturedAt:    p.nowFunc(),
	}

	if snap.AdminIdentity == "" {
		snap.AdminIdentity = ExtractAdminEmail(source)
	}

	for _, base := range bases {
		p.probeCandidate(ctx, base, snap)
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("envprobe: discovery canceled: %w", ctx.Err())
	}

	if primary, ok := snap.Lookup(CategoryHealth); ok {
		snap.Auth = p.probeAuth(ctx, primary.BaseURL)
		snap.Realtime = p.probeRealtime(ctx, primary.BaseURL, snap.AdminIdentity)
	}

	p.logger.Info("discovery complete",
		slog.Int("candidates", len(bases)),
		slog.Int("reachable", len(snap.Bases())),
		slog.String("mode", string(snap.Mode)),
		slog.String("auth", string(snap.Auth)),
		slog.Bool("realtime", snap.Realtime),
	)

	return snap, nil
}

// normalizeCandidates validates candidate URLs and trims trailing slashes.
func normalizeCandidates(candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	bases := make([]string, 0, len(candidates))

	for _, c := range candidates {
		u, err := url.Parse(strings.TrimSpace(c))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCandidate, c)
		}

		base := strings.TrimRight(u.String(), "/")
		if !slices.Contains(bases, base) {
			bases = append(bases, base)
		}
	}

	return bases, nil
}

// probeCandidate checks the health paths of one candidate and, when it is
// reachable, the configured category paths.
func (p *Prober) probeCandidate(ctx context.Context, base string, snap *Snapshot) {
	var (
		found    []Endpoint
		redirect Endpoint
	)

	for _, path := range p.opts.HealthPaths {
		res, ok := p.get(ctx, base+path)
		if !ok {
			continue
		}

		if isRedirect(res.status) {
			if redirect.URL == "" {
				redirect = Endpoint{
					URL: base + path, BaseURL: base, Path: path, Category: CategoryHealth,
					Latency: res.latency, StatusCode: res.status, Redirect: res.location,
				}
			}

			continue
		}

		if res.status != http.StatusOK {
			continue
		}

		found = append(found, Endpoint{
			URL: base + path, BaseURL: base, Path: path, Category: CategoryHealth,
			Latency: res.latency, StatusCode: res.status,
		})

		if !p.opts.Exhaustive {
			break
		}
	}

	if len(found) == 0 {
		if redirect.URL != "" {
			snap.Redirects = append(snap.Redirects, redirect)
		}

		return
	}

	for i := range found {
		found[i].Redirect = redirect.Redirect
	}

	snap.Endpoints = append(snap.Endpoints, found...)
	snap.Endpoints = append(snap.Endpoints, p.probeCategories(ctx, base)...)
}

// probeCategories records one endpoint per category the candidate serves.
// Any answer except 404, 405 or a server error counts as served; a 401 from
// an admin path still proves the route exists.
func (p *Prober) probeCategories(ctx context.Context, base string) []Endpoint {
	names := make([]string, 0, len(p.opts.Categories))
	for name := range p.opts.Categories {
		names = append(names, name)
	}

	slices.Sort(names)

	var out []Endpoint

	for _, name := range names {
		path := p.opts.Categories[name]

		res, ok := p.get(ctx, base+path)
		if !ok || !servesCategory(res.status) {
			continue
		}

		ep := Endpoint{
			URL: base + path, BaseURL: base, Path: path, Category: name,
			Latency: res.latency, StatusCode: res.status,
		}

		if isRedirect(res.status) {
			ep.Redirect = res.location
		}

		out = append(out, ep)
	}

	return out
}

func servesCategory(status int) bool {
	return status != http.StatusNotFound &&
		status != http.StatusMethodNotAllowed &&
		status < http.StatusInternalServerError
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}

// authStatusBody accepts both the bare and the enveloped status shapes.
type authStatusBody struct {
	Authenticated bool `json:"authenticated"`
	Data          *struct {
		Authenticated bool `json:"authenticated"`
	} `json:"data"`
}

// probeAuth issues one unauthenticated GET to the auth status path.
func (p *Prober) probeAuth(ctx context.Context, base string) AuthSignal {
	if p.opts.AuthStatusPath == "" {
		return AuthUnknown
	}

	res, ok := p.get(ctx, base+p.opts.AuthStatusPath)
	if !ok {
		return AuthUnknown
	}

	switch res.status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthEnforced
	case http.StatusOK:
		var body authStatusBody
		if err := json.Unmarshal(res.body, &body); err != nil {
			p.logger.Debug("auth status body is not JSON", slog.String("error", err.Error()))
			return AuthUnknown
		}

		if body.Authenticated || (body.Data != nil && body.Data.Authenticated) {
			return AuthBypassed
		}

		return AuthUnknown
	default:
		return AuthUnknown
	}
}

// probeResult is what one GET observed.
type probeResult struct {
	status   int
	location string
	latency  time.Duration
	body     []byte
}

// get performs one GET with the per-probe timeout. Failures are logged at
// debug level and reported as ok=false.
func (p *Prober) get(ctx context.Context, rawURL string) (probeResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.logger.Debug("probe request invalid", slog.String("url", rawURL), slog.String("error", err.Error()))
		return probeResult{}, false
	}

	req.Header.Set("User-Agent", userAgent)

	start := time.Now()

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", slog.String("url", rawURL), slog.String("error", err.Error()))
		return probeResult{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err != nil {
		p.logger.Debug("probe body read failed", slog.String("url", rawURL), slog.String("error", err.Error()))
	}

	res := probeResult{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		latency:  time.Since(start),
		body:     body,
	}

	p.logger.Debug("probe answered",
		slog.String("url", rawURL),
		slog.Int("status", res.status),
		slog.Duration("latency", res.latency),
	)

	return res, true
}
