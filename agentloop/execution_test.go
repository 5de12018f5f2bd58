package agentloop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), mode))
	return path
}

func TestRunSuccessFormat(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ok.sh", "echo hello\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "EXECUTION SUCCESS\nSTDOUT:\nhello\nEXIT CODE: 0", res.Format())
}

func TestRunFailureFormat(t *testing.T) {
	script := writeScript(t, t.TempDir(), "fail.sh", "echo out\necho err >&2\nexit 3\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "EXECUTION FAILED\nSTDOUT:\nout\nSTDERR:\nerr\nEXIT CODE: 3", res.Format())
}

func TestRunNoOutput(t *testing.T) {
	script := writeScript(t, t.TempDir(), "quiet.sh", "true\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "EXECUTION SUCCESS\nEXIT CODE: 0", res.Format())
}

func TestRunUsesScriptDirectory(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "where.sh", "pwd\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRunPassesArgs(t *testing.T) {
	script := writeScript(t, t.TempDir(), "args.sh", "echo \"$1-$2\"\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, []string{"a", "b c"})
	require.NoError(t, err)
	assert.Equal(t, "a-b c\n", res.Stdout)
}

func TestRunExecutesUnknownExtensionDirectly(t *testing.T) {
	script := writeScript(t, t.TempDir(), "tool", "#!/bin/sh\necho direct\n", 0o755)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "direct\n", res.Stdout)
}

func TestRunFiltersCredentials(t *testing.T) {
	t.Setenv("FILEAGENT_TEST_API_KEY", "sk-should-not-leak")
	t.Setenv("FILEAGENT_TEST_PLAIN", "visible")
	script := writeScript(t, t.TempDir(), "env.sh", "echo \"${FILEAGENT_TEST_API_KEY:-unset} ${FILEAGENT_TEST_PLAIN}\"\n", 0o644)

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "unset visible\n", res.Stdout)
}

func TestRunMissingScriptNeverSpawns(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.py")

	res, err := NewScriptRunner(5*time.Second, zerolog.Nop()).Run(context.Background(), missing, nil)
	assert.Nil(t, res)
	var notFound *ScriptNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Script not found: "+missing, err.Error())
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")
	script := writeScript(t, dir, "slow.sh", "echo $$ > pid\nexec sleep 30\n", 0o644)

	start := time.Now()
	res, err := NewScriptRunner(300*time.Millisecond, zerolog.Nop()).Run(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	assert.True(t, res.TimedOut)
	assert.Equal(t, "Script execution timed out after 0.3 seconds", res.Format())
	assert.NotContains(t, res.Format(), "EXECUTION SUCCESS")

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "script process must be gone")
}

func TestRunCancelledContext(t *testing.T) {
	script := writeScript(t, t.TempDir(), "slow.sh", "exec sleep 30\n", 0o644)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// The caller's deadline is not a script timeout.
	_, err := NewScriptRunner(time.Minute, zerolog.Nop()).Run(ctx, script, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultScriptTimeout, NewScriptRunner(0, zerolog.Nop()).Timeout())
}

func TestCommandFor(t *testing.T) {
	name, args := commandFor("/w/x.py", []string{"1"})
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{"/w/x.py", "1"}, args)

	name, _ = commandFor("/w/x.JS", nil)
	assert.Equal(t, "node", name)

	name, args = commandFor("/w/run", []string{"a"})
	assert.Equal(t, "/w/run", name)
	assert.Equal(t, []string{"a"}, args)
}

func TestTruncateScriptOutput(t *testing.T) {
	assert.Equal(t, "short", truncateScriptOutput("short"))

	long := strings.Repeat("a", MaxOutputChars+100)
	out := truncateMiddle(long, MaxOutputChars)
	assert.Contains(t, out, "100 characters removed")
	assert.Less(t, len(out), len(long))

	lines := strings.TrimSuffix(strings.Repeat("line\n", 10), "\n")
	out = truncateLines(lines, 4)
	assert.Equal(t, "line\nline\n[... 6 lines omitted ...]\nline\nline", out)
}

func TestTruncateMiddleKeepsRunesWhole(t *testing.T) {
	long := "a" + strings.Repeat("é", MaxOutputChars)
	out := truncateScriptOutput(long)

	require.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "1 characters removed")
	assert.True(t, strings.HasPrefix(out, "a"+strings.Repeat("é", MaxOutputChars/2-1)+"\n"))
	assert.True(t, strings.HasSuffix(out, "\n"+strings.Repeat("é", MaxOutputChars/2)))
}
