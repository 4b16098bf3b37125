package queue

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program for matching records during queue
// inspection. When constructed from an empty expression, Match always
// returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles a CEL expression over record attributes:
// id, enqueued_at_ms, age_ms, retry_count, last_attempt_ms, size, text,
// json, now_ms.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("enqueued_at_ms", cel.IntType),
		cel.Variable("age_ms", cel.IntType),
		cel.Variable("retry_count", cel.IntType),
		cel.Variable("last_attempt_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against a record. When disabled, returns
// true. Evaluation errors count as no-match.
func (f Filter) Match(rec Record) bool {
	if !f.enabled {
		return true
	}
	now := nowMs()
	var jsonObj any
	_ = json.Unmarshal(rec.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"id":              rec.ID,
		"enqueued_at_ms":  rec.EnqueuedAt,
		"age_ms":          now - rec.EnqueuedAt,
		"retry_count":     int64(rec.RetryCount),
		"last_attempt_ms": rec.LastAttemptAt,
		"size":            int64(len(rec.Payload)),
		"text":            string(rec.Payload),
		"json":            jsonObj,
		"now_ms":          now,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
