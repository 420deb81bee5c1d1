package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--log-level", "error"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestModes(t *testing.T) {
	testCases := []struct {
		name   string
		flag   string
		input  string
		code   int
		stdout string
		stderr string
	}{
		{"interp", "--interp", "_let x = 5 _in x * 4", exitOK, "20\n", ""},
		{"interp function", "--interp", "_fun (x) x", exitOK, "[function]\n", ""},
		{"print", "--print", "1 + 2 * 3", exitOK, "(1+(2*3))\n", ""},
		{"pretty print", "--pretty-print", "(1 + 2) * 3", exitOK, "(1 + 2) * 3\n", ""},
		{"parse error", "--interp", "1 + $", exitParseError, "", "unexpected character '$'"},
		{"parse error in print mode", "--print", "(1", exitParseError, "", "expected ')'"},
		{"free variable", "--interp", "x + 1", exitRuntimeError, "", "free variable: x"},
		{"type error", "--interp", "_true + 1", exitRuntimeError, "", "runtime error"},
		{"printing never evaluates", "--print", "x + 1", exitOK, "(x+1)\n", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tc.input, tc.flag)
			assert.Equal(t, tc.code, code, stderr)
			assert.Equal(t, tc.stdout, stdout)
			if tc.stderr != "" {
				assert.Contains(t, stderr, tc.stderr)
			}
		})
	}
}

func TestConflictingModes(t *testing.T) {
	code, _, stderr := runCLI(t, "1", "--interp", "--print")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "only one of")
}

func TestSelfTest(t *testing.T) {
	code, stdout, stderr := runCLI(t, "", "--test")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "round-trip")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "", "frobnicate")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msdscript.yaml")

	code, stdout, stderr := runCLI(t, "", "config", "init", path)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "wrote")

	code, stdout, stderr = runCLI(t, "7 * 6", "--config", path, "--interp")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "42\n", stdout)

	code, _, stderr = runCLI(t, "", "config", "init", path)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "already exists")
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		return path
	}
	good := write("good.msd", "_let f = _fun (x) x + 1 _in f(41)")
	bad := write("bad.msd", "1 +")
	runtimeErr := write("runtime.msd", "y")

	code, stdout, stderr := runCLI(t, "", "batch", good)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, good+": 42\n", stdout)

	code, stdout, stderr = runCLI(t, "", "batch", good, runtimeErr)
	assert.Equal(t, exitRuntimeError, code)
	assert.Contains(t, stdout, good+": 42")
	assert.Contains(t, stderr, "free variable: y")

	code, _, _ = runCLI(t, "", "batch", runtimeErr, bad)
	assert.Equal(t, exitParseError, code, "a parse error outranks a runtime error")

	code, stdout, _ = runCLI(t, "", "batch", "--mode", "print", good)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, good+": (_let f=(_fun (x) (x+1)) _in f(41))\n", stdout)
}
