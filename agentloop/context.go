package agentloop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// FileContext reads the target file on demand. It keeps no copy of the
// contents, so every exchange sees what is on disk at that moment.
type FileContext struct {
	path string
}

// NewFileContext returns a FileContext for path.
func NewFileContext(path string) *FileContext {
	return &FileContext{path: path}
}

// Path returns the target file path.
func (c *FileContext) Path() string { return c.path }

// CurrentContents returns the file contents, or a marker describing why they
// are unavailable. It never fails.
func (c *FileContext) CurrentContents() string {
	text, _ := c.read()
	return text
}

func (c *FileContext) read() (string, bool) {
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("The file %s does not exist yet.", c.path), false
	case err != nil:
		return fmt.Sprintf("Error reading %s: %v", c.path, err), false
	}
	return string(data), true
}

// ContextTurn renders the synthetic leading user turn sent with every
// request. It is never stored in the session history.
func (c *FileContext) ContextTurn() Turn {
	text, ok := c.read()
	if !ok {
		return NewUserTurn(text)
	}
	return NewUserTurn(fmt.Sprintf("Current contents of %s:\n```\n%s\n```", c.path, text))
}

// BuildSystemPrompt describes the agent's job and its environment.
func BuildSystemPrompt(c *FileContext, model string) string {
	workingDir, _ := os.Getwd()

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a coding assistant working on a single file: %s.\n", c.path)
	sb.WriteString("The first user message of every request shows the file as it is on disk right now.\n")
	sb.WriteString("Use write_file to replace the whole file and run_script to execute it. ")
	sb.WriteString("Call at most one tool per reply.\n\n")

	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Target directory: %s\n", filepath.Dir(c.path))
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}
