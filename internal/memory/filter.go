package memory

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
)

// Filter restricts search results. The zero value (or a nil *Filter)
// matches everything.
type Filter struct {
	// Tags matches records carrying at least one of the listed tags.
	Tags []string `json:"tags,omitempty"`

	// Metadata matches records whose metadata holds every listed
	// key with an equal value.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Expr is a CEL expression evaluated against content, tags,
	// metadata and created_at. It must yield a bool.
	Expr string `json:"expr,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.Tags) == 0 && len(f.Metadata) == 0 && f.Expr == "")
}

// Matcher compiles the filter into a predicate.
func (f *Filter) Matcher() (func(Record) bool, error) {
	if f.IsZero() {
		return func(Record) bool { return true }, nil
	}

	meta, err := NormalizeMetadata(f.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	var prg cel.Program
	if f.Expr != "" {
		prg, err = compileExpr(f.Expr)
		if err != nil {
			return nil, err
		}
	}

	tags := NormalizeTags(f.Tags)
	return func(r Record) bool {
		if len(tags) > 0 && !r.HasAnyTag(tags) {
			return false
		}
		for k, want := range meta {
			if got, ok := r.Metadata[k]; !ok || got != want {
				return false
			}
		}
		if prg != nil {
			return evalExpr(prg, r)
		}
		return true
	}, nil
}

// Apply keeps the results accepted by the filter.
func (f *Filter) Apply(results []Result) ([]Result, error) {
	if f.IsZero() {
		return results, nil
	}
	match, err := f.Matcher()
	if err != nil {
		return nil, err
	}
	kept := results[:0]
	for _, res := range results {
		if match(res.Record) {
			kept = append(kept, res)
		}
	}
	return kept, nil
}

var filterEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("created_at", cel.TimestampType),
	)
})

const maxCachedPrograms = 256

var (
	programsMu sync.Mutex
	programs   = make(map[string]cel.Program)
)

func compileExpr(expr string) (cel.Program, error) {
	programsMu.Lock()
	prg, ok := programs[expr]
	programsMu.Unlock()
	if ok {
		return prg, nil
	}

	env, err := filterEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrInvalidFilter, err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must yield bool, got %s", ErrInvalidFilter, ast.OutputType())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	programsMu.Lock()
	if len(programs) >= maxCachedPrograms {
		clear(programs)
	}
	programs[expr] = prg
	programsMu.Unlock()
	return prg, nil
}

// evalExpr treats evaluation errors (missing keys, type errors) as a
// non-match.
func evalExpr(prg cel.Program, r Record) bool {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"content":    r.Content,
		"tags":       tags,
		"metadata":   meta,
		"created_at": r.CreatedAt,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
