package resolve

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

// rewriteRule corrects one known-bad pattern in a redirect Location,
// judged against the candidate that issued it. It reports whether it
// changed loc.
type rewriteRule struct {
	name  string
	apply func(loc, base *url.URL) bool
}

// rewriteRules run in order, each at most once.
var rewriteRules = []rewriteRule{
	{name: "scheme-relative", apply: func(loc, base *url.URL) bool {
		if loc.Scheme == "" && loc.Host != "" {
			loc.Scheme = base.Scheme
			return true
		}

		return false
	}},
	{name: "host-relative", apply: func(loc, base *url.URL) bool {
		if loc.Host == "" {
			resolved := base.ResolveReference(loc)
			*loc = *resolved

			return true
		}

		return false
	}},
	{name: "https downgrade", apply: func(loc, base *url.URL) bool {
		if base.Scheme != "http" || loc.Scheme != "https" || loc.Hostname() != base.Hostname() {
			return false
		}

		loc.Scheme = "http"
		if loc.Port() == "443" {
			loc.Host = loc.Hostname()
		}

		return true
	}},
	{name: "missing port", apply: func(loc, base *url.URL) bool {
		if base.Port() == "" || loc.Hostname() != base.Hostname() || loc.Port() == base.Port() {
			return false
		}

		if loc.Port() != "" && loc.Port() != "80" {
			return false
		}

		loc.Host = net.JoinHostPort(loc.Hostname(), base.Port())

		return true
	}},
}

// rewriteRedirect corrects the Location recorded on ep and maps it onto
// path. It returns "" when no rule matched. When path is the probed path
// the corrected Location is used whole; otherwise only its origin is kept.
func rewriteRedirect(ep envprobe.Endpoint, path string) (string, []string, error) {
	base, err := url.Parse(ep.URL)
	if err != nil {
		return "", nil, fmt.Errorf("resolve: endpoint URL %q: %w", ep.URL, err)
	}

	loc, err := url.Parse(strings.TrimSpace(ep.Redirect))
	if err != nil {
		return "", nil, fmt.Errorf("resolve: redirect location %q: %w", ep.Redirect, err)
	}

	var applied []string

	for _, rule := range rewriteRules {
		if rule.apply(loc, base) {
			applied = append(applied, rule.name)
		}
	}

	if len(applied) == 0 {
		return "", nil, nil
	}

	if path == ep.Path {
		return loc.String(), applied, nil
	}

	return loc.Scheme + "://" + loc.Host + path, applied, nil
}
