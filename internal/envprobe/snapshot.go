// Package envprobe discovers which candidate endpoints of the target
// application are reachable and classifies the deployment it finds there.
package envprobe

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Mode is the coarse deployment classification inferred from configuration
// text. ModeUnknown is a normal outcome, not an error.
type Mode string

// Deployment modes.
const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTesting     Mode = "testing"
	ModeUnknown     Mode = "unknown"
)

// Modes lists every valid mode in display order.
var Modes = []Mode{ModeDevelopment, ModeProduction, ModeTesting, ModeUnknown}

// ParseMode converts a user-supplied mode name. Matching is case-insensitive
// and accepts the short forms "dev" and "prod".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return ModeDevelopment, nil
	case "production", "prod":
		return ModeProduction, nil
	case "testing", "test":
		return ModeTesting, nil
	case "unknown":
		return ModeUnknown, nil
	default:
		return "", fmt.Errorf("envprobe: unknown mode %q", s)
	}
}

// AuthSignal describes how the target treats a request without credentials.
type AuthSignal string

// Auth signals.
const (
	AuthBypassed AuthSignal = "bypassed"
	AuthEnforced AuthSignal = "enforced"
	AuthUnknown  AuthSignal = "unknown"
)

// CategoryHealth is the category recorded for health-check endpoints.
// Templates without a category resolve against it.
const CategoryHealth = "health"

// Endpoint is one (url, latency, status) observation for a reachable
// candidate. Redirect holds the Location of any 3xx seen for the same
// candidate and path family; it is inspected, never followed.
type Endpoint struct {
	URL        string        `json:"url"`
	BaseURL    string        `json:"base_url"`
	Path       string        `json:"path"`
	Category   string        `json:"category"`
	Latency    time.Duration `json:"latency"`
	StatusCode int           `json:"status_code"`
	Redirect   string        `json:"redirect,omitempty"`
}

// Snapshot is the immutable result of one discovery pass. Nothing mutates
// it after Discover returns.
type Snapshot struct {
	Endpoints     []Endpoint `json:"endpoints"`
	Redirects     []Endpoint `json:"redirects,omitempty"`
	Mode          Mode       `json:"mode"`
	Auth          AuthSignal `json:"auth"`
	AdminIdentity string     `json:"admin_identity,omitempty"`
	Realtime      bool       `json:"realtime"`
	CapturedAt    time.Time  `json:"captured_at"`
}

// Reachable reports whether any candidate answered a health check.
func (s *Snapshot) Reachable() bool {
	_, ok := s.Lookup(CategoryHealth)
	return ok
}

// Bases returns the distinct reachable base URLs in discovery order.
func (s *Snapshot) Bases() []string {
	var out []string

	for _, ep := range s.Endpoints {
		if ep.Category == CategoryHealth && !slices.Contains(out, ep.BaseURL) {
			out = append(out, ep.BaseURL)
		}
	}

	return out
}

// Lookup returns the first endpoint recorded for category. An empty
// category means the health category.
func (s *Snapshot) Lookup(category string) (Endpoint, bool) {
	if category == "" {
		category = CategoryHealth
	}

	for _, ep := range s.Endpoints {
		if ep.Category == category {
			return ep, true
		}
	}

	return Endpoint{}, false
}

// Categories returns the sorted names of the non-health categories served
// by at least one reachable candidate.
func (s *Snapshot) Categories() []string {
	var out []string

	for _, ep := range s.Endpoints {
		if ep.Category != CategoryHealth && !slices.Contains(out, ep.Category) {
			out = append(out, ep.Category)
		}
	}

	slices.Sort(out)

	return out
}
