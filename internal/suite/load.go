package suite

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

//go:embed default.yaml
var defaultSuite []byte

// Status code bounds for expectations.
const (
	minStatus  = 100
	maxStatus  = 599
	maxRetries = 10
)

var validMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Default returns the built-in suite. It covers health, auth and the file
// flow (upload, download, info, duplicate upload), then admin access and
// the security cases: header injection, path traversal and the realtime
// handshake.
func Default() (*Suite, error) {
	s, err := Load(bytes.NewReader(defaultSuite))
	if err != nil {
		return nil, fmt.Errorf("suite: built-in suite: %w", err)
	}

	return s, nil
}

// DefaultYAML returns the source of the built-in suite.
func DefaultYAML() []byte {
	return slices.Clone(defaultSuite)
}

// LoadFile reads and validates a suite file.
func LoadFile(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("suite: open %s: %w", path, err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// Load decodes a suite with strict unknown-field rejection and validates it.
func Load(r io.Reader) (*Suite, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Suite
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("suite: decode: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Validate checks every template and compiles skip predicates and body
// schemas. All problems are reported together. A suite that fails
// validation must not be run.
func (s *Suite) Validate() error {
	var errs []error

	if len(s.Cases) == 0 {
		errs = append(errs, errors.New("suite: no cases"))
	}

	seen := make(map[string]bool, len(s.Cases))

	for i, t := range s.Cases {
		if t == nil {
			errs = append(errs, fmt.Errorf("suite: cases[%d]: empty case", i))
			continue
		}

		label := fmt.Sprintf("cases[%d]", i)
		if t.Name != "" {
			label = fmt.Sprintf("case %q", t.Name)
		}

		if t.Name != "" && seen[t.Name] {
			errs = append(errs, fmt.Errorf("suite: %s: duplicate name", label))
		}

		seen[t.Name] = true

		for _, err := range t.validate() {
			errs = append(errs, fmt.Errorf("suite: %s: %w", label, err))
		}
	}

	errs = append(errs, s.validateCaptures()...)

	return errors.Join(errs...)
}

// validate checks one template and, when its predicates and schema are
// sound, stores their compiled forms.
func (t *Template) validate() []error {
	var errs []error

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, errors.New("name: must not be empty"))
	}

	if !slices.Contains(validMethods, t.EffectiveMethod()) {
		errs = append(errs, fmt.Errorf("method: unsupported %q", t.Method))
	}

	if err := validatePath(t.Path); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateStatuses("expect", t.Expect)...)

	for mode, o := range t.Overrides {
		parsed, err := envprobe.ParseMode(string(mode))
		if err != nil || parsed != mode {
			errs = append(errs, fmt.Errorf("overrides: unknown mode %q (want development, production, testing or unknown)", mode))
		}

		errs = append(errs, validateStatuses(fmt.Sprintf("overrides.%s.expect", mode), o.Expect)...)

		if err := o.Body.validate(); err != nil {
			errs = append(errs, fmt.Errorf("overrides.%s.%w", mode, err))
		}
	}

	if t.Priority != "" && !slices.Contains(Priorities, t.Priority) {
		errs = append(errs, fmt.Errorf("priority: unknown %q (want critical, important or optional)", t.Priority))
	}

	if t.Timeout != "" {
		if d, err := time.ParseDuration(t.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("timeout: invalid positive duration %q", t.Timeout))
		}
	}

	if t.Retries != nil && (*t.Retries < 0 || *t.Retries > maxRetries) {
		errs = append(errs, fmt.Errorf("retries: must be between 0 and %d, got %d", maxRetries, *t.Retries))
	}

	if err := t.Body.validate(); err != nil {
		errs = append(errs, err)
	}

	programs := make([]*vm.Program, 0, len(t.SkipWhen))

	for _, src := range t.SkipWhen {
		program, err := compilePredicate(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		programs = append(programs, program)
	}

	if len(programs) == len(t.SkipWhen) {
		t.skip = programs
	}

	if t.Assert != nil && t.Assert.Schema != "" {
		sch, err := t.Assert.compileSchema(t.Name + ".schema.json")
		if err != nil {
			errs = append(errs, err)
		} else {
			t.Assert.schema = sch
		}
	}

	return errs
}

func validatePath(p string) error {
	if p == "" {
		return errors.New("path: must not be empty")
	}

	if strings.HasPrefix(p, "/") {
		return nil
	}

	u, err := url.Parse(p)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("path: %q must start with / or be an absolute http(s) URL", p)
	}

	return nil
}

func validateStatuses(field string, codes []int) []error {
	if len(codes) == 0 {
		return []error{fmt.Errorf("%s: must list at least one status", field)}
	}

	var errs []error

	for _, c := range codes {
		if c < minStatus || c > maxStatus {
			errs = append(errs, fmt.Errorf("%s: status %d outside %d-%d", field, c, minStatus, maxStatus))
		}
	}

	return errs
}

func (b *Body) validate() error {
	if b == nil {
		return nil
	}

	if b.JSON != nil && b.Multipart != nil {
		return errors.New("body: json and multipart are mutually exclusive")
	}

	if b.Multipart != nil && b.Multipart.FileName == "" {
		return errors.New("body: multipart.filename must not be empty")
	}

	return nil
}

// IsAbsolute reports whether the template path is a full URL that the
// resolver must use unmodified.
func (t *Template) IsAbsolute() bool {
	return !strings.HasPrefix(t.Path, "/")
}
