package engine

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter selects descriptors with a CEL expression. The expression sees the
// variables id, filename, uploaded, requireSignedURLs, variants and meta and
// must evaluate to a bool.
type Filter struct {
	expr    string
	program cel.Program
}

func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("filename", cel.StringType),
		cel.Variable("uploaded", cel.TimestampType),
		cel.Variable("requireSignedURLs", cel.BoolType),
		cel.Variable("variants", cel.ListType(cel.StringType)),
		cel.Variable("meta", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

func (f *Filter) String() string {
	return f.expr
}

// Match reports whether desc satisfies the filter.
func (f *Filter) Match(desc ObjectDescriptor) (bool, error) {
	meta := desc.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	variants := desc.Variants
	if variants == nil {
		variants = []string{}
	}
	uploaded := desc.Uploaded
	if uploaded.IsZero() {
		uploaded = time.Unix(0, 0).UTC()
	}

	out, _, err := f.program.Eval(map[string]any{
		"id":                desc.ID,
		"filename":          desc.Name,
		"uploaded":          uploaded,
		"requireSignedURLs": desc.RequireSignedURLs,
		"variants":          variants,
		"meta":              meta,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter for object %s: %w", desc.ID, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T for object %s", out.Value(), desc.ID)
	}
	return matched, nil
}

// Apply returns the descriptors matching the filter, keeping their order.
func (f *Filter) Apply(descs []ObjectDescriptor) ([]ObjectDescriptor, error) {
	kept := make([]ObjectDescriptor, 0, len(descs))
	for _, desc := range descs {
		ok, err := f.Match(desc)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, desc)
		}
	}
	return kept, nil
}
