// Package placeholder implements the deterministic substitution pass over
// server configuration values described by the hub's configuration store:
// ${VAR} environment lookups, ${cmd: ...} shell invocations, and their
// legacy $VAR / "$: ..." spellings, with cycle detection and a strict/lenient
// failure mode.
//
// The resolver treats command text as opaque and defers to the OS shell —
// it never itself interprets shell-reserved characters.
package placeholder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// Mode selects the resolver's failure behavior for missing variables and
// failing commands.
type Mode int

const (
	// Lenient leaves offending placeholders verbatim in the output and logs
	// a diagnostic instead of failing.
	Lenient Mode = iota
	// Strict fails the whole resolution the first time a variable is
	// missing or a command fails.
	Strict
)

const (
	// DefaultMaxPasses bounds how many times env resolution iterates before
	// concluding a cycle exists.
	DefaultMaxPasses = 10
	// DefaultCommandTimeout is the wall-clock budget for a ${cmd: ...}
	// invocation.
	DefaultCommandTimeout = 30 * time.Second
)

// Options tunes a Resolver's behavior; the zero value is Lenient with the
// package defaults.
type Options struct {
	Mode            Mode
	MaxPasses       int
	CommandTimeout  time.Duration
	// Exec runs a shell command and returns its trimmed stdout. Overridable
	// so tests can stub command execution without touching the OS shell.
	Exec func(ctx context.Context, command string) (string, error)
}

func (o Options) withDefaults() Options {
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.Exec == nil {
		o.Exec = runShell
	}
	return o
}

// Resolver resolves placeholders against a base context built from the
// process environment.
type Resolver struct {
	opts Options
}

// New creates a Resolver. A zero Options value yields lenient defaults.
func New(opts Options) *Resolver {
	return &Resolver{opts: opts.withDefaults()}
}

// Fields is the shape a Resolver expands: env is resolved first, then the
// remaining fields are resolved against a context layered with the
// resolved env.
type Fields struct {
	Env     map[string]*string // nil means "look up the process env fallback"
	Args    []string
	Headers map[string]string
	URL     string
	Command string
}

// Result is the fully expanded Fields plus any deprecation warnings raised
// while resolving legacy syntax.
type Result struct {
	Env      map[string]string
	Args     []string
	Headers  map[string]string
	URL      string
	Command  string
	Warnings []string
}

var (
	// Matches innermost placeholders only, so "${cmd: cat ${DIR}/t}" expands
	// ${DIR} on one pass and the command on the next.
	placeholderRE = regexp.MustCompile(`\$\{([^{}]*)\}`)
	cmdPrefixRE   = regexp.MustCompile(`^cmd:\s*(.*)$`)
	legacyDollar  = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)
)

// Resolve performs the full substitution pass described in §4.1. server is
// used only for error attribution.
func (r *Resolver) Resolve(ctx context.Context, server string, fields Fields) (*Result, error) {
	baseCtx := processEnvContext()

	resolvedEnv, warnings, err := r.resolveEnv(ctx, server, fields.Env, baseCtx)
	if err != nil {
		return nil, err
	}

	// Layer resolved env onto the base context so args/headers/url/command
	// see it.
	layered := make(map[string]string, len(baseCtx)+len(resolvedEnv))
	for k, v := range baseCtx {
		layered[k] = v
	}
	for k, v := range resolvedEnv {
		layered[k] = v
	}

	args, argWarnings, err := r.resolveArgs(ctx, server, fields.Args, layered)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, argWarnings...)

	headers := make(map[string]string, len(fields.Headers))
	for k, v := range fields.Headers {
		resolved, err := r.resolveString(ctx, server, v, layered)
		if err != nil {
			return nil, err
		}
		headers[k] = resolved
	}

	url, err := r.resolveString(ctx, server, fields.URL, layered)
	if err != nil {
		return nil, err
	}
	command, err := r.resolveString(ctx, server, fields.Command, layered)
	if err != nil {
		return nil, err
	}

	return &Result{
		Env:      resolvedEnv,
		Args:     args,
		Headers:  headers,
		URL:      url,
		Command:  command,
		Warnings: warnings,
	}, nil
}

// resolveEnv resolves the env map first, handling null/empty fallback to
// the process environment and iterating passes to detect cycles.
func (r *Resolver) resolveEnv(ctx context.Context, server string, env map[string]*string, base map[string]string) (map[string]string, []string, error) {
	var warnings []string
	pending := make(map[string]string, len(env))

	for k, v := range env {
		if v == nil || *v == "" {
			if fallback, ok := base[k]; ok {
				pending[k] = fallback
				continue
			}
			if r.opts.Mode == Strict {
				return nil, nil, huberrors.New(huberrors.VariableNotFound, "resolveEnv", server).WithData("var", k)
			}
			pending[k] = ""
			continue
		}

		val := *v
		if strings.HasPrefix(val, "$: ") {
			warnings = append(warnings, fmt.Sprintf("env %q uses legacy \"$: ...\" command syntax", k))
			val = "${cmd: " + strings.TrimPrefix(val, "$: ") + "}"
		}
		pending[k] = val
	}

	resolved := make(map[string]string, len(pending))
	remaining := make(map[string]string, len(pending))
	for k, v := range pending {
		remaining[k] = v
	}

	for pass := 0; pass < r.opts.MaxPasses && len(remaining) > 0; pass++ {
		progressed := false
		layered := make(map[string]string, len(base)+len(resolved))
		for k, v := range base {
			layered[k] = v
		}
		for k, v := range resolved {
			layered[k] = v
		}

		for k, raw := range remaining {
			out, changed, err := r.expandOnce(ctx, server, raw, layered)
			if err != nil {
				return nil, nil, err
			}
			if !hasPlaceholder(out) {
				resolved[k] = out
				delete(remaining, k)
				progressed = true
			} else if changed {
				remaining[k] = out
				progressed = true
			}
		}

		if !progressed {
			break
		}
	}

	if len(remaining) > 0 {
		if r.opts.Mode == Strict {
			names := make([]string, 0, len(remaining))
			for k := range remaining {
				names = append(names, k)
			}
			return nil, nil, huberrors.New(huberrors.VariableNotFound, "resolveEnv", server).WithData("cyclicVars", names)
		}
		warnings = append(warnings, "circular or unresolved env placeholder detected; left verbatim")
		for k, v := range remaining {
			resolved[k] = v
		}
	}

	return resolved, warnings, nil
}

func (r *Resolver) resolveArgs(ctx context.Context, server string, args []string, layered map[string]string) ([]string, []string, error) {
	var warnings []string
	out := make([]string, len(args))
	for i, a := range args {
		if m := legacyDollar.FindStringSubmatch(a); m != nil {
			name := m[1]
			val, ok := layered[name]
			if !ok {
				if r.opts.Mode == Strict {
					return nil, nil, huberrors.New(huberrors.VariableNotFound, "resolveArgs", server).WithData("var", name)
				}
				warnings = append(warnings, fmt.Sprintf("legacy arg placeholder $%s left unresolved", name))
				out[i] = a
				continue
			}
			warnings = append(warnings, fmt.Sprintf("arg %q uses legacy $VAR syntax", a))
			out[i] = val
			continue
		}

		resolved, err := r.resolveString(ctx, server, a, layered)
		if err != nil {
			return nil, nil, err
		}
		out[i] = resolved
	}
	return out, warnings, nil
}

// resolveString expands all ${...} placeholders in s, resolving nested
// placeholders inside ${cmd: ...} bodies before executing them.
func (r *Resolver) resolveString(ctx context.Context, server, s string, layered map[string]string) (string, error) {
	for i := 0; i < r.opts.MaxPasses; i++ {
		out, changed, err := r.expandOnce(ctx, server, s, layered)
		if err != nil {
			return "", err
		}
		if !hasPlaceholder(out) {
			return out, nil
		}
		if !changed {
			return out, nil // leave verbatim; caller mode already enforced per-placeholder
		}
		s = out
	}
	return s, nil
}

// expandOnce replaces every innermost ${...} occurrence in s exactly once.
func (r *Resolver) expandOnce(ctx context.Context, server, s string, layered map[string]string) (string, bool, error) {
	changed := false
	var evalErr error

	out := placeholderRE.ReplaceAllStringFunc(s, func(match string) string {
		if evalErr != nil {
			return match
		}
		inner := placeholderRE.FindStringSubmatch(match)[1]

		if cm := cmdPrefixRE.FindStringSubmatch(inner); cm != nil {
			cmdText := cm[1]
			resolvedCmd, err := r.resolveString(ctx, server, cmdText, layered)
			if err != nil {
				evalErr = err
				return match
			}
			out, err := r.runCommand(ctx, server, resolvedCmd)
			if err != nil {
				if r.opts.Mode == Strict {
					evalErr = err
					return match
				}
				logging.Warn(server, "command placeholder %q failed, leaving verbatim: %v", match, err)
				return match // lenient: leave verbatim, warned just above
			}
			changed = true
			return out
		}

		name := strings.TrimSpace(inner)
		val, ok := layered[name]
		if !ok {
			if r.opts.Mode == Strict {
				evalErr = huberrors.New(huberrors.VariableNotFound, "resolve", server).WithData("var", name)
				return match
			}
			logging.Debug(server, "variable placeholder %q not found, leaving verbatim", match)
			return match
		}
		changed = true
		return val
	})

	if evalErr != nil {
		return "", false, evalErr
	}
	return out, changed, nil
}

func (r *Resolver) runCommand(ctx context.Context, server, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", huberrors.New(huberrors.CmdExecutionFailed, "runCommand", server).WithData("command", command)
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.CommandTimeout)
	defer cancel()

	out, err := r.opts.Exec(cctx, command)
	if err != nil {
		return "", huberrors.Wrap(huberrors.CmdExecutionFailed, "runCommand", server, err).WithData("command", command)
	}
	return out, nil
}

func runShell(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

func hasPlaceholder(s string) bool {
	return placeholderRE.MatchString(s)
}

func processEnvContext() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	return env
}
