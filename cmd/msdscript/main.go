package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/InsulaLabs/msdscript/pkg/parse"
)

// Process exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitParseError   = 2
	exitRuntimeError = 3
)

var logger *slog.Logger

func printGlobalUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: msdscript --interp | --print | --pretty-print | --test\n")
	fmt.Fprintf(w, "       msdscript [global flags] <command> [arguments]\n\n")
	fmt.Fprintf(w, "With a mode flag the program is read from standard input.\n\n")
	fmt.Fprintf(w, "Available commands:\n")
	fmt.Fprintf(w, "  repl      Start an interactive session (--plain for a line editor).\n")
	fmt.Fprintf(w, "  serve     Serve the HTTP and websocket API.\n")
	fmt.Fprintf(w, "  ssh       Serve the interactive session over SSH.\n")
	fmt.Fprintf(w, "  batch     Run several source files concurrently.\n")
	fmt.Fprintf(w, "  fuzz      Test one binary, or compare two, on generated programs.\n")
	fmt.Fprintf(w, "  config    Write a default configuration file (config init <path>).\n\n")
	fmt.Fprintf(w, "Global flags:\n")
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
	return slog.New(handler), nil
}

// loadConfig reads path when given, otherwise msdscript.yaml from the
// working directory if present, otherwise the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		return config.LoadConfig(config.DefaultConfigFile)
	}
	return config.GenerateConfig(), nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("msdscript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		printGlobalUsage(stderr)
		fs.PrintDefaults()
	}

	interpMode := fs.Bool("interp", false, "Interpret the program on standard input and print its value.")
	printMode := fs.Bool("print", false, "Print the program on standard input in canonical form.")
	prettyMode := fs.Bool("pretty-print", false, "Pretty-print the program on standard input.")
	selfTest := fs.Bool("test", false, "Run the round-trip check on generated programs.")
	configPath := fs.String("config", "", "Path to the configuration file. Defaults to ./msdscript.yaml when present.")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error). Overrides the configuration.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger, err = newLogger(stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "invalid log level %q: %v\n", cfg.LogLevel, err)
		return exitFailure
	}
	slog.SetDefault(logger)

	var modes []runner.Mode
	if *interpMode {
		modes = append(modes, runner.ModeInterp)
	}
	if *printMode {
		modes = append(modes, runner.ModePrint)
	}
	if *prettyMode {
		modes = append(modes, runner.ModePrettyPrint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case len(modes) > 1 || (len(modes) == 1 && *selfTest):
		fmt.Fprintln(stderr, "only one of --interp, --print, --pretty-print and --test may be given")
		return exitFailure
	case len(modes) == 1:
		return runMode(ctx, cfg, modes[0], stdin, stdout, stderr)
	case *selfTest:
		return runSelfTest(ctx, stdout, stderr)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitFailure
	}

	cmdArgs := rest[1:]
	switch rest[0] {
	case "repl":
		return runREPL(ctx, cfg, cmdArgs, stderr)
	case "serve":
		return runServe(ctx, cfg)
	case "ssh":
		return runSSH(ctx, cfg)
	case "batch":
		return runBatch(ctx, cfg, cmdArgs, stdout, stderr)
	case "fuzz":
		return runFuzz(ctx, cmdArgs, stdout, stderr)
	case "config":
		return runConfig(cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		fs.Usage()
		return exitFailure
	}
}

// exitCodeFor maps an evaluation error onto the process exit code.
func exitCodeFor(err error) int {
	var pe *parse.ParseError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &pe):
		return exitParseError
	default:
		return exitRuntimeError
	}
}
