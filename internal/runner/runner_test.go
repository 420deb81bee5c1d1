package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/InsulaLabs/msdscript/pkg/parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r := New(cfg)
	t.Cleanup(r.Close)
	return r
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("compile")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_Modes(t *testing.T) {
	r := newTestRunner(t, Config{})
	src := "_let x = 5 _in (_let y = 3 _in y + 2) + x"

	testCases := []struct {
		mode Mode
		want string
	}{
		{ModeInterp, "10"},
		{ModePrint, "(_let x=5 _in ((_let y=3 _in (y+2))+x))"},
		{ModePrettyPrint, "_let x = 5\n_in  (_let y = 3\n      _in  y + 2) + x"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.mode), func(t *testing.T) {
			out, err := r.Run(context.Background(), tc.mode, src)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}

	_, err := r.Run(context.Background(), Mode("bogus"), "1")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_Errors(t *testing.T) {
	r := newTestRunner(t, Config{})

	_, err := r.Run(context.Background(), ModeInterp, "(1 + ")
	var pe *parse.ParseError
	require.ErrorAs(t, err, &pe)

	_, err = r.Run(context.Background(), ModeInterp, "x + 1")
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, interp.KindFreeVariable, re.Kind)

	out, err := r.Run(context.Background(), ModePrint, "x + 1")
	require.NoError(t, err, "printing never evaluates")
	assert.Equal(t, "(x+1)", out)
}

func TestRunIn_UsesEnvironment(t *testing.T) {
	r := newTestRunner(t, Config{})
	env := interp.Extend("x", &interp.NumVal{Value: 41}, interp.Empty)
	out, err := r.RunIn(context.Background(), ModeInterp, "x + 1", env)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestParse_Cached(t *testing.T) {
	r := newTestRunner(t, Config{CacheTTL: time.Minute, CacheCapacity: 10})

	first, err := r.Parse("1 + 2")
	require.NoError(t, err)
	second, err := r.Parse("1 + 2")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = r.Parse("1 +")
	require.Error(t, err)

	stats := r.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestRun_CachesOnlyVariableFreeValues(t *testing.T) {
	r := newTestRunner(t, Config{CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := r.Run(ctx, ModeInterp, "(_fun (n) 6)(0) * 7")
		require.NoError(t, err)
		assert.Equal(t, "42", out)
	}
	assert.Equal(t, 1, r.CacheStats().Values)

	for _, n := range []int32{1, 5} {
		env := interp.Extend("x", &interp.NumVal{Value: n}, interp.Empty)
		out, err := r.RunIn(ctx, ModeInterp, "x + 1", env)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(n+1), out)
	}

	_, err := r.Run(ctx, ModeInterp, "_true + 1")
	require.Error(t, err)
	_, err = r.Run(ctx, ModePrint, "2 * 3")
	require.NoError(t, err)
	assert.Equal(t, 1, r.CacheStats().Values, "failures, variables and print mode are not cached")
}

func TestParse_DepthLimit(t *testing.T) {
	r := newTestRunner(t, Config{MaxParseDepth: 10})
	_, err := r.Parse("1+1+1+1+1+1+1+1+1+1+1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested too deeply")
}

func TestEval_Timeout(t *testing.T) {
	r := newTestRunner(t, Config{EvalTimeout: time.Nanosecond, MaxEvalDepth: 100000})

	_, err := r.Run(context.Background(), ModeInterp, "(_fun (f) f(f))(_fun (f) f(f))")
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, []interp.ErrorKind{interp.KindCanceled, interp.KindDepth}, re.Kind)
}

func TestBatch(t *testing.T) {
	r := newTestRunner(t, Config{Concurrency: 4})

	sources := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		sources = append(sources, fmt.Sprintf("%d * 2", i))
	}
	sources[7] = "_true + 1"
	sources[13] = "(("

	results := r.Batch(context.Background(), ModeInterp, sources)
	require.Len(t, results, len(sources))
	for i, res := range results {
		assert.Equal(t, sources[i], res.Source)
		switch i {
		case 7:
			var re *interp.RuntimeError
			assert.ErrorAs(t, res.Err, &re)
		case 13:
			var pe *parse.ParseError
			assert.ErrorAs(t, res.Err, &pe)
		default:
			require.NoError(t, res.Err)
			assert.Equal(t, fmt.Sprint(i*2), res.Output)
		}
	}
}
