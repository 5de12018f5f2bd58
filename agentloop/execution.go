package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultScriptTimeout bounds every script run.
const DefaultScriptTimeout = 30 * time.Second

// ExecResult holds the outcome of a script run.
type ExecResult struct {
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	ExitCode   int           `json:"exit_code"`
	TimedOut   bool          `json:"timed_out"`
	Timeout    time.Duration `json:"timeout"`
	DurationMs int64         `json:"duration_ms"`
}

// Success reports whether the script exited with status 0.
func (r ExecResult) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Format renders the result as the single block returned to the model.
// A timed-out run never reports partial output. Very long sections are
// truncated in the middle.
func (r ExecResult) Format() string {
	if r.TimedOut {
		return fmt.Sprintf("Script execution timed out after %g seconds", r.Timeout.Seconds())
	}

	status := "SUCCESS"
	if !r.Success() {
		status = "FAILED"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "EXECUTION %s\n", status)
	if r.Stdout != "" {
		fmt.Fprintf(&sb, "STDOUT:\n%s\n", truncateScriptOutput(strings.TrimRight(r.Stdout, "\n")))
	}
	if r.Stderr != "" {
		fmt.Fprintf(&sb, "STDERR:\n%s\n", truncateScriptOutput(strings.TrimRight(r.Stderr, "\n")))
	}
	fmt.Fprintf(&sb, "EXIT CODE: %d", r.ExitCode)
	return sb.String()
}

// ScriptNotFoundError is returned before spawning when the script is missing.
type ScriptNotFoundError struct {
	Path string
}

func (e *ScriptNotFoundError) Error() string {
	return "Script not found: " + e.Path
}

// interpreters maps a file extension to the program that runs it. Other
// extensions are executed directly.
var interpreters = map[string]string{
	".py": "python3",
	".sh": "sh",
	".js": "node",
	".rb": "ruby",
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are never passed to scripts.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"PYTHONPATH": true, "NODE_PATH": true, "GEM_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns the process environment without credentials.
func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// ScriptRunner executes scripts with a fixed wall-clock limit.
type ScriptRunner struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewScriptRunner returns a runner. A non-positive timeout selects
// DefaultScriptTimeout.
func NewScriptRunner(timeout time.Duration, logger zerolog.Logger) *ScriptRunner {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &ScriptRunner{
		timeout: timeout,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Timeout returns the configured limit.
func (r *ScriptRunner) Timeout() time.Duration { return r.timeout }

// Run executes the script at path from the script's own directory. A missing
// script yields *ScriptNotFoundError without spawning anything. On timeout
// the whole process group is killed and the result has TimedOut set.
func (r *ScriptRunner) Run(ctx context.Context, path string, args []string) (*ExecResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ScriptNotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, argv := commandFor(abs, args)
	cmd := exec.CommandContext(runCtx, name, argv...)
	cmd.Dir = filepath.Dir(abs)
	cmd.Env = filterEnvironment()

	// Own process group so the kill reaches anything the script started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Orphans holding the output pipes must not keep Wait blocked.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().Str("program", name).Strs("args", argv).Str("dir", cmd.Dir).Msg("starting script")

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Timeout:    r.timeout,
		DurationMs: duration.Milliseconds(),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		result.ExitCode = -1
		r.logger.Warn().Str("path", path).Dur("timeout", r.timeout).Msg("script timed out")
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("run %s: %w", path, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", path, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug().Str("path", path).Int("exit_code", result.ExitCode).Int64("duration_ms", result.DurationMs).Msg("script finished")
	return result, nil
}

func commandFor(path string, args []string) (string, []string) {
	if interp, ok := interpreters[strings.ToLower(filepath.Ext(path))]; ok {
		return interp, append([]string{path}, args...)
	}
	return path, args
}
