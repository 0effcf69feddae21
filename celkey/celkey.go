// Package celkey builds group-by key functions from CEL expressions, so
// the classification of records can come from configuration instead of
// code.
//
// An expression sees the record under the variable name "record":
//
//	c, err := celkey.Compile(`record.level + "/" + record.service`)
//	op := pushstream.GroupBy(downstream, c.Key)
package celkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// ErrEmptyExpression is returned by [Compile] for a blank expression.
var ErrEmptyExpression = errors.New("celkey: empty expression")

// Classifier evaluates a compiled expression against records.
// It is safe for concurrent use.
type Classifier struct {
	expr string
	prog cel.Program
}

// Compile parses and type-checks expr.
func Compile(expr string) (*Classifier, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("celkey: compile %q: %w", expr, iss.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("celkey: program %q: %w", expr, err)
	}
	return &Classifier{expr: expr, prog: prog}, nil
}

// Key evaluates the expression for record. String results are returned
// as they are, anything else is formatted with fmt.Sprint. A missing field
// or a type error is returned as an error, which fails the operator when
// Key is its key function.
func (c *Classifier) Key(record map[string]any) (string, error) {
	out, _, err := c.prog.Eval(map[string]any{"record": record})
	if err != nil {
		return "", fmt.Errorf("celkey: evaluate %q: %w", c.expr, err)
	}
	if s, ok := out.Value().(string); ok {
		return s, nil
	}
	return fmt.Sprint(out.Value()), nil
}

// String returns the source expression.
func (c *Classifier) String() string {
	return c.expr
}
