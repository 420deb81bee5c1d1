package fuzz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/InsulaLabs/msdscript/internal/runner"
)

// Exit codes of the msdscript command.
const (
	ExitOK           = 0
	ExitParseError   = 2
	ExitRuntimeError = 3
)

type Outcome struct {
	Binary   string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Discrepancy is the first input on which a binary misbehaved or two
// binaries disagreed.
type Discrepancy struct {
	Source   string
	Mode     runner.Mode
	Outcomes []Outcome
}

func (d *Discrepancy) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "discrepancy in --%s mode for %q", d.Mode, d.Source)
	for _, o := range d.Outcomes {
		fmt.Fprintf(&b, "\n  %s (exit %d): %s", o.Binary, o.ExitCode, strings.TrimSpace(o.Stdout+o.Stderr))
	}
	return b.String()
}

// RunBinary runs bin in the given mode with src on stdin.
func RunBinary(ctx context.Context, bin string, mode runner.Mode, src string) (Outcome, error) {
	cmd := exec.CommandContext(ctx, bin, "--"+string(mode))
	cmd.Stdin = strings.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	out := Outcome{Binary: bin}
	err := cmd.Run()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("running %s: %w", bin, err)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// CheckBinary runs a single binary over inputs. Printing must always
// succeed; interpreting may fail only with a runtime error.
func CheckBinary(ctx context.Context, bin string, inputs []string) (*Discrepancy, error) {
	for _, src := range inputs {
		for _, mode := range runner.Modes {
			o, err := RunBinary(ctx, bin, mode, src)
			if err != nil {
				return nil, err
			}
			ok := o.ExitCode == ExitOK || (mode == runner.ModeInterp && o.ExitCode == ExitRuntimeError)
			if !ok {
				return &Discrepancy{Source: src, Mode: mode, Outcomes: []Outcome{o}}, nil
			}
		}
	}
	return nil, nil
}

// CompareBinaries runs two binaries over inputs in every mode and reports
// the first input where their exit codes or standard output differ.
func CompareBinaries(ctx context.Context, a, b string, inputs []string) (*Discrepancy, error) {
	for _, src := range inputs {
		for _, mode := range runner.Modes {
			oa, err := RunBinary(ctx, a, mode, src)
			if err != nil {
				return nil, err
			}
			ob, err := RunBinary(ctx, b, mode, src)
			if err != nil {
				return nil, err
			}
			if oa.ExitCode != ob.ExitCode || oa.Stdout != ob.Stdout {
				return &Discrepancy{Source: src, Mode: mode, Outcomes: []Outcome{oa, ob}}, nil
			}
		}
	}
	return nil, nil
}

// CompareExecutables checks a alone when b is empty, and otherwise compares
// a against b.
func CompareExecutables(ctx context.Context, a, b string, inputs []string) (*Discrepancy, error) {
	if b == "" {
		return CheckBinary(ctx, a, inputs)
	}
	return CompareBinaries(ctx, a, b, inputs)
}
