// Package resolve merges test-case templates with a discovered environment
// snapshot into concrete, self-contained cases. It performs no I/O: the
// same template and snapshot always resolve to the same case.
package resolve

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/suite"
)

// ErrNilInput is returned when Resolve is called without a template or
// snapshot.
var ErrNilInput = errors.New("resolve: nil template or snapshot")

// Case is a template merged with one snapshot. It is executed at most
// once; retries reuse the same expectations.
type Case struct {
	Name     string         `json:"name"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Category string         `json:"category,omitempty"`
	Priority suite.Priority `json:"priority"`

	Expect  []int             `json:"expect"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *suite.Body       `json:"-"`
	Assert  *suite.Assertion  `json:"-"`

	Timeout     time.Duration `json:"timeout"`
	RetryBudget int           `json:"retry_budget"`

	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`

	// SkipKind is KindResolution when no endpoint could serve the case.
	// Deliberate skips (predicates, missing identity) leave it empty.
	SkipKind report.ErrorKind `json:"skip_kind,omitempty"`

	// Needs lists the captured values URL references as {name}; the
	// executor substitutes them. Capture is copied from the template.
	Needs   []string          `json:"needs,omitempty"`
	Capture map[string]string `json:"capture,omitempty"`

	// Adapted is true when the URL, headers or expectations differ from
	// the template's unconditional defaults. Adaptations says how.
	Adapted     bool     `json:"adapted"`
	Adaptations []string `json:"adaptations,omitempty"`
}

// Policy holds the defaults a template falls back to and the per-mode
// adjustments applied on top of them.
type Policy struct {
	// DefaultBaseURL is the base a template is written against. Resolving
	// onto any other base counts as an adaptation.
	DefaultBaseURL string
	DefaultTimeout time.Duration
	DefaultRetries int
	IdentityHeader string

	// TimeoutMultiplier scales the timeout per mode. Missing modes use 1.
	TimeoutMultiplier map[envprobe.Mode]float64

	// ModeRetries sets the retry budget per mode when the template has
	// none. Missing modes use DefaultRetries.
	ModeRetries map[envprobe.Mode]int
}

// DefaultPolicy returns the standard per-mode adjustments: slower
// development builds get longer timeouts and fewer retries, production
// gets the tightest timeouts and the most retries.
func DefaultPolicy() Policy {
	return Policy{
		DefaultBaseURL: "http://localhost:7001",
		DefaultTimeout: 10 * time.Second,
		DefaultRetries: 2,
		IdentityHeader: "CF-Access-Authenticated-User-Email",
		TimeoutMultiplier: map[envprobe.Mode]float64{
			envprobe.ModeDevelopment: 2.0,
			envprobe.ModeTesting:     1.5,
			envprobe.ModeProduction:  1.0,
		},
		ModeRetries: map[envprobe.Mode]int{
			envprobe.ModeDevelopment: 1,
			envprobe.ModeTesting:     2,
			envprobe.ModeProduction:  3,
		},
	}
}

// fallbackTimeout bounds a case when the policy carries no usable default.
const fallbackTimeout = 10 * time.Second

// Resolver applies a Policy. It holds no per-run state.
type Resolver struct {
	policy Policy
}

// New creates a Resolver.
func New(policy Policy) *Resolver {
	policy.DefaultBaseURL = strings.TrimRight(policy.DefaultBaseURL, "/")

	if policy.DefaultTimeout <= 0 {
		policy.DefaultTimeout = fallbackTimeout
	}

	return &Resolver{policy: policy}
}

// Resolve merges t with snap. The error return is reserved for template
// bugs such as a skip predicate that cannot be evaluated; environment
// gaps resolve to a skipped case with a reason.
func (r *Resolver) Resolve(t *suite.Template, snap *envprobe.Snapshot) (*Case, error) {
	if t == nil || snap == nil {
		return nil, ErrNilInput
	}

	c := &Case{
		Name:        t.Name,
		Method:      t.EffectiveMethod(),
		Category:    t.Category,
		Priority:    t.EffectivePriority(),
		Expect:      slices.Clone(t.Expect),
		Headers:     maps.Clone(t.Headers),
		Body:        t.Body,
		Assert:      t.Assert,
		Timeout:     r.timeout(t, snap.Mode),
		RetryBudget: r.retries(t, snap.Mode),
		Needs:       t.PathVars(),
		Capture:     maps.Clone(t.Capture),
	}

	if o, ok := t.Overrides[snap.Mode]; ok {
		c.Expect = slices.Clone(o.Expect)

		if o.Headers != nil {
			c.Headers = maps.Clone(o.Headers)
		}

		if o.Body != nil {
			c.Body = o.Body
		}

		c.adapt("mode override (%s): expect %v", snap.Mode, o.Expect)
	}

	reason, skip, err := t.SkipReason(snap)
	if err != nil {
		return nil, fmt.Errorf("resolve: case %q: %w", t.Name, err)
	}

	if skip {
		c.skip(reason)
		return c, nil
	}

	r.resolveURL(c, t, snap)

	if c.Skipped {
		return c, nil
	}

	if t.Auth {
		if snap.AdminIdentity == "" {
			c.skip("no admin identity available for an authenticated case")
			return c, nil
		}

		if c.Headers == nil {
			c.Headers = make(map[string]string, 1)
		}

		c.Headers[r.policy.IdentityHeader] = snap.AdminIdentity
		c.adapt("identity injected into %s", r.policy.IdentityHeader)
	}

	return c, nil
}

// ResolveAll resolves every template in order against the same snapshot.
func (r *Resolver) ResolveAll(templates []*suite.Template, snap *envprobe.Snapshot) ([]*Case, error) {
	cases := make([]*Case, 0, len(templates))

	for _, t := range templates {
		c, err := r.Resolve(t, snap)
		if err != nil {
			return nil, err
		}

		cases = append(cases, c)
	}

	return cases, nil
}

// resolveURL picks the base URL for a relative template path and applies
// redirect pre-resolution. A Location that cannot be parsed is left for
// the executor to follow.
func (r *Resolver) resolveURL(c *Case, t *suite.Template, snap *envprobe.Snapshot) {
	if t.IsAbsolute() {
		c.URL = t.Path
		return
	}

	ep, ok := snap.Lookup(t.Category)
	if !ok {
		category := t.Category
		if category == "" {
			category = envprobe.CategoryHealth
		}

		c.unresolved(fmt.Sprintf("no reachable endpoint serves category %q", category))

		return
	}

	c.URL = ep.BaseURL + t.Path

	if ep.BaseURL != r.policy.DefaultBaseURL {
		c.adapt("base URL %s (discovered)", ep.BaseURL)
	}

	if ep.Redirect == "" {
		return
	}

	rewritten, rules, err := rewriteRedirect(ep, t.Path)
	if err == nil && rewritten != "" && rewritten != c.URL {
		c.adapt("redirect rewrite (%s): %s -> %s", strings.Join(rules, ", "), c.URL, rewritten)
		c.URL = rewritten
	}
}

func (r *Resolver) timeout(t *suite.Template, mode envprobe.Mode) time.Duration {
	base := t.TimeoutDuration()
	if base == 0 {
		base = r.policy.DefaultTimeout
	}

	if m, ok := r.policy.TimeoutMultiplier[mode]; ok && m > 0 {
		return time.Duration(float64(base) * m)
	}

	return base
}

func (r *Resolver) retries(t *suite.Template, mode envprobe.Mode) int {
	if t.Retries != nil {
		return *t.Retries
	}

	if n, ok := r.policy.ModeRetries[mode]; ok {
		return n
	}

	return r.policy.DefaultRetries
}

func (c *Case) skip(reason string) {
	c.Skipped = true
	c.SkipReason = reason
}

func (c *Case) unresolved(reason string) {
	c.skip(reason)
	c.SkipKind = report.KindResolution
}

func (c *Case) adapt(format string, args ...any) {
	c.Adapted = true
	c.Adaptations = append(c.Adaptations, fmt.Sprintf(format, args...))
}
