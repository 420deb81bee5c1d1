package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/internal/fuzz"
	"github.com/InsulaLabs/msdscript/internal/repl"
	"github.com/InsulaLabs/msdscript/internal/runner"
)

const selfTestCount = 1000

var errColor = color.New(color.FgRed)

// runMode reads the whole program from stdin and runs it once.
func runMode(ctx context.Context, cfg *config.Config, mode runner.Mode, stdin io.Reader, stdout, stderr io.Writer) int {
	data, err := io.ReadAll(stdin)
	if err != nil {
		errColor.Fprintf(stderr, "failed to read standard input: %v\n", err)
		return exitFailure
	}
	src := string(data)

	r := runner.New(runner.ConfigFrom(cfg, logger))
	defer r.Close()

	out, err := r.Run(ctx, mode, src)
	if err != nil {
		errColor.Fprintln(stderr, repl.FormatError(err, src))
		return exitCodeFor(err)
	}
	fmt.Fprintln(stdout, out)
	return exitOK
}

func runSelfTest(ctx context.Context, stdout, stderr io.Writer) int {
	seed := uint64(time.Now().UnixNano())
	g := fuzz.NewGenerator(seed)
	logger.Debug("Running round-trip check", "seed", seed, "count", selfTestCount)

	if err := fuzz.RunRoundTrips(ctx, g, selfTestCount); err != nil {
		errColor.Fprintf(stderr, "round-trip check failed (seed %d): %v\n", seed, err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "ok: %d generated programs round-trip\n", selfTestCount)
	return exitOK
}
