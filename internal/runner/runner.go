package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/pkg/expr"
	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/InsulaLabs/msdscript/pkg/parse"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeInterp      Mode = "interp"
	ModePrint       Mode = "print"
	ModePrettyPrint Mode = "pretty-print"
)

var Modes = []Mode{ModeInterp, ModePrint, ModePrettyPrint}

var ErrInvalidMode = errors.New("invalid mode")

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want interp, print or pretty-print)", ErrInvalidMode, s)
}

type Config struct {
	Logger        *slog.Logger
	CacheTTL      time.Duration
	CacheCapacity uint64
	MaxParseDepth int
	MaxEvalDepth  int
	EvalTimeout   time.Duration // zero means no timeout
	Concurrency   int           // Batch parallelism; zero means 1
}

// ConfigFrom maps the file configuration onto a runner Config.
func ConfigFrom(cfg *config.Config, logger *slog.Logger) Config {
	return Config{
		Logger:        logger,
		CacheTTL:      cfg.Cache.TTL,
		CacheCapacity: cfg.Cache.Capacity,
		MaxParseDepth: cfg.Limits.MaxParseDepth,
		MaxEvalDepth:  cfg.Limits.MaxEvalDepth,
		EvalTimeout:   cfg.Limits.EvalTimeout,
		Concurrency:   cfg.Batch.Concurrency,
	}
}

// Runner parses and runs source text in one of the three output modes.
// Parsed trees are cached by source text; since trees are never mutated the
// same cached tree is handed to concurrent callers. Programs without any
// variable reference evaluate the same way in every environment, so their
// interp output is cached as well.
type Runner struct {
	cfg    Config
	logger *slog.Logger
	cache  *ttlcache.Cache[string, expr.Expr]
	values *ttlcache.Cache[string, string]
	eval   *interp.Evaluator
}

func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	opts := []ttlcache.Option[string, expr.Expr]{
		ttlcache.WithTTL[string, expr.Expr](cfg.CacheTTL),
	}
	if cfg.CacheCapacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, expr.Expr](cfg.CacheCapacity))
	}
	cache := ttlcache.New(opts...)
	go cache.Start()

	valueOpts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](cfg.CacheTTL),
	}
	if cfg.CacheCapacity > 0 {
		valueOpts = append(valueOpts, ttlcache.WithCapacity[string, string](cfg.CacheCapacity))
	}
	values := ttlcache.New(valueOpts...)
	go values.Start()

	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.WithGroup("runner"),
		cache:  cache,
		values: values,
		eval:   &interp.Evaluator{MaxDepth: cfg.MaxEvalDepth},
	}
}

func (r *Runner) Close() {
	r.cache.Stop()
	r.values.Stop()
}

// Parse returns the tree for src, from the cache when possible. Failed
// parses are not cached.
func (r *Runner) Parse(src string) (expr.Expr, error) {
	if item := r.cache.Get(src); item != nil {
		return item.Value(), nil
	}
	p := &parse.Parser{MaxDepth: r.cfg.MaxParseDepth}
	e, err := p.ParseString(src)
	if err != nil {
		return nil, err
	}
	r.cache.Set(src, e, ttlcache.DefaultTTL)
	return e, nil
}

// Eval evaluates e in env, bounded by the configured timeout.
func (r *Runner) Eval(ctx context.Context, e expr.Expr, env *interp.Env) (interp.Value, error) {
	if r.cfg.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.EvalTimeout)
		defer cancel()
	}
	return r.eval.Eval(ctx, e, env)
}

// Run parses src and renders it in the given mode against the empty
// environment.
func (r *Runner) Run(ctx context.Context, mode Mode, src string) (string, error) {
	return r.RunIn(ctx, mode, src, interp.Empty)
}

// RunIn is Run with a caller supplied environment for interp mode.
func (r *Runner) RunIn(ctx context.Context, mode Mode, src string, env *interp.Env) (string, error) {
	e, err := r.Parse(src)
	if err != nil {
		r.logger.Debug("parse failed", "mode", mode, "error", err)
		return "", err
	}

	switch mode {
	case ModeInterp:
		closed := !expr.HasVariable(e)
		if closed {
			if item := r.values.Get(src); item != nil {
				return item.Value(), nil
			}
		}
		v, err := r.Eval(ctx, e, env)
		if err != nil {
			r.logger.Debug("evaluation failed", "error", err)
			return "", err
		}
		out := v.String()
		if closed {
			r.values.Set(src, out, ttlcache.DefaultTTL)
		}
		return out, nil
	case ModePrint:
		return expr.String(e), nil
	case ModePrettyPrint:
		return expr.Pretty(e), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

type Result struct {
	Source string
	Output string
	Err    error
}

// Batch runs every source independently and concurrently. Results are in
// input order and an error in one input never affects another.
func (r *Runner) Batch(ctx context.Context, mode Mode, sources []string) []Result {
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			out, err := r.Run(gctx, mode, src)
			results[i] = Result{Source: src, Output: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Debug("batch complete", "mode", mode, "inputs", len(sources))
	return results
}

type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
	Values int    `json:"values"` // cached interp outputs
}

func (r *Runner) CacheStats() CacheStats {
	m := r.cache.Metrics()
	return CacheStats{Hits: m.Hits, Misses: m.Misses, Size: r.cache.Len(), Values: r.values.Len()}
}
