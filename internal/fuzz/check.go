package fuzz

import (
	"context"
	"errors"
	"fmt"

	"github.com/InsulaLabs/msdscript/pkg/expr"
	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/InsulaLabs/msdscript/pkg/parse"
)

// Mismatch describes a source whose printed form does not behave like the
// source itself.
type Mismatch struct {
	Source string
	Form   string // "canonical" or "pretty"
	Text   string
	Detail string
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("%s form of %q: %s\n%s", m.Form, m.Source, m.Detail, m.Text)
}

// CheckRoundTrip parses src, prints it both ways, and verifies that each
// printed form parses back to an equal tree that evaluates to the same
// outcome.
func CheckRoundTrip(ctx context.Context, src string) error {
	orig, err := parse.ParseString(src)
	if err != nil {
		return fmt.Errorf("source %q does not parse: %w", src, err)
	}
	want := outcome(ctx, orig)

	forms := []struct {
		name string
		text string
	}{
		{"canonical", expr.String(orig)},
		{"pretty", expr.Pretty(orig)},
	}
	for _, f := range forms {
		reparsed, err := parse.ParseString(f.text)
		if err != nil {
			return &Mismatch{Source: src, Form: f.name, Text: f.text, Detail: "does not parse: " + err.Error()}
		}
		if !expr.Equal(orig, reparsed) {
			return &Mismatch{Source: src, Form: f.name, Text: f.text, Detail: "parses to " + expr.String(reparsed)}
		}
		if got := outcome(ctx, reparsed); got != want {
			return &Mismatch{Source: src, Form: f.name, Text: f.text, Detail: fmt.Sprintf("evaluates to %s, want %s", got, want)}
		}
	}
	return nil
}

// outcome is the printed value, or the error kind for a failed evaluation.
func outcome(ctx context.Context, e expr.Expr) string {
	v, err := (&interp.Evaluator{}).Eval(ctx, e, interp.Empty)
	if err != nil {
		var re *interp.RuntimeError
		if errors.As(err, &re) {
			return "error:" + string(re.Kind)
		}
		return "error:" + err.Error()
	}
	return v.String()
}

// RunRoundTrips checks n generated expressions and stops at the first
// failure.
func RunRoundTrips(ctx context.Context, g *Generator, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := CheckRoundTrip(ctx, g.Expr()); err != nil {
			return err
		}
	}
	return nil
}
