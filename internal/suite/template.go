// Package suite defines declarative test-case templates and loads them from
// YAML. Templates are authored statically, validated once, and never
// mutated during a run.
package suite

import (
	"time"

	"github.com/expr-lang/expr/vm"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

// Priority ranks how much a failing case matters to the exit-code gate.
type Priority string

// Priorities.
const (
	PriorityCritical  Priority = "critical"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// Priorities lists every priority from most to least important.
var Priorities = []Priority{PriorityCritical, PriorityImportant, PriorityOptional}

// Suite is a named, ordered list of templates. Order is significant:
// fixture-creating cases come before the cases that consume them, and a
// path may only reference values captured by an earlier case.
type Suite struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Cases       []*Template `yaml:"cases" json:"cases"`
}

// Template describes one behavior under test.
type Template struct {
	Name     string `yaml:"name" json:"name"`
	Method   string `yaml:"method,omitempty" json:"method,omitempty" jsonschema:"default=GET"`
	Path     string `yaml:"path" json:"path" jsonschema:"description=relative path or absolute URL"`
	Category string `yaml:"category,omitempty" json:"category,omitempty"`

	// Expect is the set of acceptable statuses when no override applies.
	Expect    []int                      `yaml:"expect" json:"expect"`
	Overrides map[envprobe.Mode]Override `yaml:"overrides,omitempty" json:"overrides,omitempty"`

	Priority Priority `yaml:"priority,omitempty" json:"priority,omitempty" jsonschema:"enum=critical,enum=important,enum=optional"`
	SkipWhen []string `yaml:"skip_when,omitempty" json:"skip_when,omitempty"`

	// Auth injects the snapshot's admin identity into the identity header.
	Auth    bool              `yaml:"auth,omitempty" json:"auth,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    *Body             `yaml:"body,omitempty" json:"body,omitempty"`
	Assert  *Assertion        `yaml:"assert,omitempty" json:"assert,omitempty"`

	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries *int   `yaml:"retries,omitempty" json:"retries,omitempty"`

	// Capture names values taken from data.<key> of this case's response
	// when it passes. Later cases reference them in paths as {name}.
	Capture map[string]string `yaml:"capture,omitempty" json:"capture,omitempty" jsonschema:"description=name to dotted key under data; later paths use {name}"`

	skip []*vm.Program
}

// Override replaces parts of a template for one deployment mode. Expect
// replaces the base set outright; it is never merged with it.
type Override struct {
	Expect  []int             `yaml:"expect" json:"expect"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    *Body             `yaml:"body,omitempty" json:"body,omitempty"`
}

// Body is a request payload: JSON or a multipart upload, never both.
type Body struct {
	JSON      any        `yaml:"json,omitempty" json:"json,omitempty"`
	Multipart *Multipart `yaml:"multipart,omitempty" json:"multipart,omitempty"`
}

// Multipart describes a single-file multipart upload plus sibling form
// fields such as relative_path or category_id.
type Multipart struct {
	Field       string            `yaml:"field,omitempty" json:"field,omitempty" jsonschema:"default=file"`
	FileName    string            `yaml:"filename" json:"filename"`
	Content     string            `yaml:"content" json:"content"`
	ContentType string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Assertion declares checks on the response envelope. Success nil means
// the envelope's success flag is not checked, so a security probe can
// decide explicitly whether a 200 with success=false counts as rejected.
type Assertion struct {
	Success     *bool    `yaml:"success,omitempty" json:"success,omitempty"`
	RequireData []string `yaml:"require_data,omitempty" json:"require_data,omitempty" jsonschema:"description=dotted keys that must exist under data"`
	Schema      string   `yaml:"schema,omitempty" json:"schema,omitempty" jsonschema:"description=JSON Schema the whole body must satisfy"`

	schema *sjsonschema.Schema
}

// FileFieldDefault is the multipart field name used when none is set.
const FileFieldDefault = "file"

// FieldName returns the multipart file field, defaulting to "file".
func (m *Multipart) FieldName() string {
	if m.Field == "" {
		return FileFieldDefault
	}

	return m.Field
}

// EffectiveMethod returns the method, defaulting to GET.
func (t *Template) EffectiveMethod() string {
	if t.Method == "" {
		return "GET"
	}

	return t.Method
}

// EffectivePriority returns the priority, defaulting to important.
func (t *Template) EffectivePriority() Priority {
	if t.Priority == "" {
		return PriorityImportant
	}

	return t.Priority
}

// TimeoutDuration returns the template timeout, or 0 when unset. Validate
// has already rejected malformed values.
func (t *Template) TimeoutDuration() time.Duration {
	if t.Timeout == "" {
		return 0
	}

	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return 0
	}

	return d
}
