package suite

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

// PredicateEnv exposes a snapshot to skip_when expressions:
//
//	mode        string   development | production | testing | unknown
//	auth        string   bypassed | enforced | unknown
//	realtime    bool     websocket channel accepted a handshake
//	reachable   bool     any candidate answered a health check
//	admin       bool     an admin identity is known
//	categories  []string categories served by a reachable candidate
func PredicateEnv(snap *envprobe.Snapshot) map[string]any {
	categories := snap.Categories()
	if categories == nil {
		categories = []string{}
	}

	return map[string]any{
		"mode":       string(snap.Mode),
		"auth":       string(snap.Auth),
		"realtime":   snap.Realtime,
		"reachable":  snap.Reachable(),
		"admin":      snap.AdminIdentity != "",
		"categories": categories,
	}
}

// compilePredicate type-checks a skip_when expression against the
// predicate environment and requires a boolean result.
func compilePredicate(src string) (*vm.Program, error) {
	program, err := expr.Compile(src, expr.Env(PredicateEnv(&envprobe.Snapshot{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile skip_when %q: %w", src, err)
	}

	return program, nil
}

// SkipReason evaluates the template's skip_when predicates in order and
// returns the first that holds. An evaluation error is a template bug.
func (t *Template) SkipReason(snap *envprobe.Snapshot) (string, bool, error) {
	if len(t.SkipWhen) == 0 {
		return "", false, nil
	}

	env := PredicateEnv(snap)

	for i, src := range t.SkipWhen {
		program, err := t.program(i)
		if err != nil {
			return "", false, err
		}

		out, err := expr.Run(program, env)
		if err != nil {
			return "", false, fmt.Errorf("eval skip_when %q: %w", src, err)
		}

		hit, ok := out.(bool)
		if !ok {
			return "", false, fmt.Errorf("skip_when %q did not return bool (got %T)", src, out)
		}

		if hit {
			return fmt.Sprintf("skip_when matched: %s", src), true, nil
		}
	}

	return "", false, nil
}

// program returns the compiled predicate i, compiling on the fly when the
// template was built in code rather than loaded through Validate.
func (t *Template) program(i int) (*vm.Program, error) {
	if len(t.skip) == len(t.SkipWhen) {
		return t.skip[i], nil
	}

	return compilePredicate(t.SkipWhen[i])
}
