package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/internal/fuzz"
	"github.com/InsulaLabs/msdscript/internal/history"
	"github.com/InsulaLabs/msdscript/internal/repl"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/InsulaLabs/msdscript/internal/service"
	"github.com/InsulaLabs/msdscript/internal/sshd"
)

const lineHistoryFile = "line_history"

func openHistory(cfg *config.Config) (*history.Store, error) {
	return history.Open(history.Config{
		Logger:   logger,
		Dir:      cfg.History.Dir,
		InMemory: cfg.History.Dir == "",
	})
}

func sessionConfig(cfg *config.Config, r *runner.Runner, store *history.Store, user string) repl.SessionConfig {
	return repl.SessionConfig{
		Logger:               logger,
		UserID:               user,
		Prompt:               cfg.REPL.Prompt,
		ActiveCursorSymbol:   cfg.REPL.ActiveCursorSymbol,
		InactiveCursorSymbol: cfg.REPL.InactiveCursorSymbol,
		Runner:               r,
		History:              store,
		HistoryLimit:         cfg.History.MaxEntries,
	}
}

func runREPL(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	plain := fs.Bool("plain", false, "Use a line editor instead of the full-screen interface.")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	r := runner.New(runner.ConfigFrom(cfg, logger))
	defer r.Close()

	store, err := openHistory(cfg)
	if err != nil {
		logger.Error("Failed to open history", "error", err)
		return exitFailure
	}
	defer store.Close()

	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	session := repl.NewSession(ctx, sessionConfig(cfg, r, store, user))

	if *plain {
		lineCfg := repl.LineConfig{}
		if cfg.History.Dir != "" {
			lineCfg.HistoryFile = filepath.Join(cfg.History.Dir, lineHistoryFile)
		}
		if err := repl.RunLine(session, lineCfg); err != nil {
			logger.Error("REPL exited with error", "error", err)
			return exitFailure
		}
		return exitOK
	}

	p := tea.NewProgram(repl.NewModel(session), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		session.Close()
		logger.Error("REPL exited with error", "error", err)
		return exitFailure
	}
	return exitOK
}

func runServe(ctx context.Context, cfg *config.Config) int {
	r := runner.New(runner.ConfigFrom(cfg, logger))
	defer r.Close()

	store, err := openHistory(cfg)
	if err != nil {
		logger.Error("Failed to open history", "error", err)
		return exitFailure
	}
	defer store.Close()

	svc, err := service.NewService(ctx, service.ConfigFrom(cfg, logger, r, store))
	if err != nil {
		logger.Error("Failed to create service", "error", err)
		return exitFailure
	}
	if err := svc.Run(); err != nil {
		logger.Error("Service exited with error", "error", err)
		return exitFailure
	}
	logger.Info("Service has shutdown.")
	return exitOK
}

func runSSH(ctx context.Context, cfg *config.Config) int {
	r := runner.New(runner.ConfigFrom(cfg, logger))
	defer r.Close()

	store, err := openHistory(cfg)
	if err != nil {
		logger.Error("Failed to open history", "error", err)
		return exitFailure
	}
	defer store.Close()

	if dir := filepath.Dir(cfg.SSH.HostKeyPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			logger.Error("Failed to create host key directory", "error", err)
			return exitFailure
		}
	}

	srv, err := sshd.New(sshd.Config{
		Logger:         logger,
		Binding:        cfg.SSH.Binding,
		HostKeyPath:    cfg.SSH.HostKeyPath,
		AuthorizedKeys: cfg.SSH.AuthorizedKeys,
		NewSession: func(ctx context.Context, user string) *repl.Session {
			return repl.NewSession(ctx, sessionConfig(cfg, r, store, user))
		},
	})
	if err != nil {
		logger.Error("Failed to create SSH server", "error", err)
		return exitFailure
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("SSH server exited with error", "error", err)
		return exitFailure
	}
	logger.Info("SSH server has shutdown.")
	return exitOK
}

// runBatch runs each file as one program. The exit code is the worst
// outcome across all files.
func runBatch(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	modeName := fs.String("mode", string(runner.ModeInterp), "Mode to run each file in (interp, print, pretty-print).")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: msdscript batch [--mode m] <file>...\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	mode, err := runner.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitFailure
	}

	files := fs.Args()
	sources := make([]string, len(files))
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read source file", "path", path, "error", err)
			return exitFailure
		}
		sources[i] = string(data)
	}

	r := runner.New(runner.ConfigFrom(cfg, logger))
	defer r.Close()

	code := exitOK
	for i, res := range r.Batch(ctx, mode, sources) {
		if res.Err != nil {
			errColor.Fprintf(stderr, "%s: %s\n", files[i], repl.FormatError(res.Err, res.Source))
			code = max(code, exitCodeFor(res.Err))
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", files[i], res.Output)
	}
	return code
}

func runFuzz(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fuzz", flag.ContinueOnError)
	fs.SetOutput(stderr)
	count := fs.Int("n", 100, "Number of programs to generate.")
	seed := fs.Uint64("seed", 0, "Generator seed. Zero picks one from the clock.")
	depth := fs.Int("depth", 4, "Maximum nesting of generated programs.")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall time limit.")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: msdscript fuzz [flags] <binary> [binary2]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return exitFailure
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	g := fuzz.NewGenerator(*seed)
	g.MaxDepth = *depth
	inputs := g.Exprs(*count)

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger.Info("Fuzzing", "binaries", fs.Args(), "count", *count, "seed", *seed)

	d, err := compareConcurrently(ctx, fs.Arg(0), fs.Arg(1), inputs)
	if err != nil {
		logger.Error("Fuzzing failed", "error", err)
		return exitFailure
	}
	if d != nil {
		errColor.Fprintln(stderr, d.Error())
		return exitFailure
	}
	fmt.Fprintf(stdout, "ok: %d programs, seed %d\n", *count, *seed)
	return exitOK
}

// compareConcurrently splits inputs into chunks checked in parallel and
// returns the discrepancy from the earliest failing chunk. An empty b checks
// a on its own.
func compareConcurrently(ctx context.Context, a, b string, inputs []string) (*fuzz.Discrepancy, error) {
	const chunk = 25
	n := (len(inputs) + chunk - 1) / chunk
	found := make([]*fuzz.Discrepancy, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := 0; i < n; i++ {
		part := inputs[i*chunk : min((i+1)*chunk, len(inputs))]
		g.Go(func() error {
			d, err := fuzz.CompareExecutables(gctx, a, b, part)
			found[i] = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, d := range found {
		if d != nil {
			return d, nil
		}
	}
	return nil, nil
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 || args[0] != "init" {
		fmt.Fprintf(stderr, "Usage: msdscript config init <path>\n")
		return exitFailure
	}
	path := args[1]
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "%s already exists\n", path)
		return exitFailure
	}
	if err := config.WriteConfig(path, config.GenerateConfig()); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return exitOK
}
