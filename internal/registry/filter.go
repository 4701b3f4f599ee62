package registry

import (
	"fmt"

	"model-arena/internal/eval"

	"github.com/google/cel-go/cel"
)

// Filter selects model descriptors with a CEL expression. The variables
// name, location and kind are strings, for example:
//
//	kind == "envelope" && !name.startsWith("tmp_")
//	name in ["logistic", "forest"]
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr. The expression must evaluate to a bool.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile model filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("model filter %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build model filter program: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Match reports whether d passes the filter.
func (f *Filter) Match(d eval.ModelDescriptor) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"name":     d.Name,
		"location": d.Location,
		"kind":     d.Kind,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate model filter %q for %s: %w", f.expr, d.Name, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("model filter %q returned %T", f.expr, out.Value())
	}
	return b, nil
}
