package placeholder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/internal/huberrors"
)

func stubExec(outputs map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, cmd string) (string, error) {
		return outputs[cmd], nil
	}
}

func str(s string) *string { return &s }

func TestResolve_StdioConnectWithResolution(t *testing.T) {
	r := New(Options{
		Mode: Strict,
		Exec: stubExec(map[string]string{"echo hi": "hi"}),
	})

	res, err := r.Resolve(context.Background(), "s1", Fields{
		Env: map[string]*string{
			"BIN": str("/opt"),
			"TOK": str("${cmd: echo hi}"),
		},
		Args:    []string{"-t", "${TOK}"},
		Command: "${BIN}/s",
	})
	require.NoError(t, err)

	assert.Equal(t, "/opt/s", res.Command)
	assert.Equal(t, []string{"-t", "hi"}, res.Args)
	assert.Equal(t, "/opt", res.Env["BIN"])
	assert.Equal(t, "hi", res.Env["TOK"])
}

func TestResolve_LegacyArgSyntax(t *testing.T) {
	r := New(Options{Mode: Strict})

	res, err := r.Resolve(context.Background(), "s1", Fields{
		Env:  map[string]*string{"API_KEY": str("k")},
		Args: []string{"--k", "$API_KEY"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"--k", "k"}, res.Args)
	require.Len(t, res.Warnings, 1)
}

func TestResolve_LegacyArgMissing(t *testing.T) {
	strictR := New(Options{Mode: Strict})
	_, err := strictR.Resolve(context.Background(), "s1", Fields{
		Args: []string{"$MISSING"},
	})
	require.Error(t, err)
	assert.Equal(t, huberrors.VariableNotFound, huberrors.CodeOf(err))

	lenientR := New(Options{Mode: Lenient})
	res, err := lenientR.Resolve(context.Background(), "s1", Fields{
		Args: []string{"$MISSING"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"$MISSING"}, res.Args)
}

func TestResolve_EnvNullNoFallback(t *testing.T) {
	strictR := New(Options{Mode: Strict})
	_, err := strictR.Resolve(context.Background(), "s1", Fields{
		Env: map[string]*string{"NOPE_XYZ_NOT_SET": nil},
	})
	require.Error(t, err)
	assert.Equal(t, huberrors.VariableNotFound, huberrors.CodeOf(err))

	lenientR := New(Options{Mode: Lenient})
	res, err := lenientR.Resolve(context.Background(), "s1", Fields{
		Env: map[string]*string{"NOPE_XYZ_NOT_SET": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, "", res.Env["NOPE_XYZ_NOT_SET"])
}

func TestResolve_CircularEnvLenient(t *testing.T) {
	r := New(Options{Mode: Lenient})
	res, err := r.Resolve(context.Background(), "s1", Fields{
		Env: map[string]*string{
			"VAR_A": str("${VAR_B}"),
			"VAR_B": str("${VAR_A}"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "${VAR_B}", res.Env["VAR_A"])
	assert.Equal(t, "${VAR_A}", res.Env["VAR_B"])
	assert.NotEmpty(t, res.Warnings)
}

func TestResolve_CircularEnvStrict(t *testing.T) {
	r := New(Options{Mode: Strict})
	_, err := r.Resolve(context.Background(), "s1", Fields{
		Env: map[string]*string{
			"VAR_A": str("${VAR_B}"),
			"VAR_B": str("${VAR_A}"),
		},
	})
	require.Error(t, err)
	assert.Equal(t, huberrors.VariableNotFound, huberrors.CodeOf(err))
}

func TestResolve_Idempotent(t *testing.T) {
	r := New(Options{Mode: Strict})
	fields := Fields{
		Env:     map[string]*string{"BIN": str("/opt")},
		Args:    []string{"--x"},
		Headers: map[string]string{"A": "b"},
		URL:     "https://example.com",
		Command: "/opt/s",
	}
	first, err := r.Resolve(context.Background(), "s1", fields)
	require.NoError(t, err)

	second, err := r.Resolve(context.Background(), "s1", Fields{
		Env:     map[string]*string{"BIN": str(first.Env["BIN"])},
		Args:    first.Args,
		Headers: first.Headers,
		URL:     first.URL,
		Command: first.Command,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Command, second.Command)
	assert.Equal(t, first.Args, second.Args)
}

func TestResolve_CmdFailureStrictAndLenient(t *testing.T) {
	failing := func(context.Context, string) (string, error) {
		return "", assertError{}
	}

	strictR := New(Options{Mode: Strict, Exec: failing})
	_, err := strictR.Resolve(context.Background(), "s1", Fields{
		Command: "${cmd: whatever}",
	})
	require.Error(t, err)
	assert.Equal(t, huberrors.CmdExecutionFailed, huberrors.CodeOf(err))

	lenientR := New(Options{Mode: Lenient, Exec: failing})
	res, err := lenientR.Resolve(context.Background(), "s1", Fields{
		Command: "${cmd: whatever}",
	})
	require.NoError(t, err)
	assert.Equal(t, "${cmd: whatever}", res.Command)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
