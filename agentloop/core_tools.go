package agentloop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	defaultMinVal = 1
	defaultMaxVal = 100
)

func (r *ToolRegistry) readFile(in ReadFileInput) (string, *ToolError) {
	data, err := os.ReadFile(in.Filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", toolErrorf(ToolReadFile, err, "File not found: %s", in.Filepath)
	}
	if err != nil {
		return "", toolErrorf(ToolReadFile, err, "Error reading %s: %v", in.Filepath, err)
	}
	return string(data), nil
}

// writeFile replaces the target with exactly in.Content.
func (r *ToolRegistry) writeFile(in WriteFileInput) (string, *ToolError) {
	before, _ := os.ReadFile(r.target)

	if dir := filepath.Dir(r.target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", toolErrorf(ToolWriteFile, err, "Error writing to %s: %v", r.target, err)
		}
	}
	if err := os.WriteFile(r.target, []byte(in.Content), 0o644); err != nil {
		return "", toolErrorf(ToolWriteFile, err, "Error writing to %s: %v", r.target, err)
	}

	if e := r.logger.Debug(); e.Enabled() {
		added, removed := lineDiffStats(string(before), in.Content)
		e.Str("path", r.target).Int("lines_added", added).Int("lines_removed", removed).Msg("wrote target file")
	}
	return fmt.Sprintf("Successfully wrote %d characters to %s", utf8.RuneCountInString(in.Content), r.target), nil
}

func (r *ToolRegistry) randomNumber(in RandomNumberInput) (string, *ToolError) {
	lo, hi := defaultMinVal, defaultMaxVal
	if in.MinVal != nil {
		lo = *in.MinVal
	}
	if in.MaxVal != nil {
		hi = *in.MaxVal
	}
	if lo > hi {
		return "", toolErrorf(ToolRandomNumber, nil, "Invalid range: min_val (%d) is greater than max_val (%d)", lo, hi)
	}
	span := uint64(hi) - uint64(lo) + 1
	return strconv.Itoa(int(uint64(lo) + r.randInt(span))), nil
}

func (r *ToolRegistry) runScript(ctx context.Context, in RunScriptInput) (string, *ToolError) {
	path := in.ScriptPath
	if path == "" {
		path = r.target
	}

	result, err := r.runner.Run(ctx, path, in.Args)
	if err != nil {
		var notFound *ScriptNotFoundError
		if errors.As(err, &notFound) {
			return "", &ToolError{Tool: ToolRunScript, Message: notFound.Error(), Cause: err}
		}
		return "", toolErrorf(ToolRunScript, err, "Error running script %s: %v", path, err)
	}
	return result.Format(), nil
}

// defaultRandInt returns a uniform offset in [0, span). A span of zero
// stands for the whole 64-bit range.
func defaultRandInt(span uint64) uint64 {
	if span == 0 {
		return rand.Uint64()
	}
	return rand.Uint64N(span)
}

// lineDiffStats counts added and removed lines between two versions.
func lineDiffStats(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lineArray)
	for _, d := range diffs {
		n := lineCount(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		case diffmatchpatch.DiffEqual:
		}
	}
	return added, removed
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, c := range text {
		if c == '\n' {
			n++
		}
	}
	if text[len(text)-1] != '\n' {
		n++
	}
	return n
}
