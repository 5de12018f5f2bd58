package agentloop

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/martinemde/fileagent/unifiedllm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertHistoryDropsUnansweredToolUse(t *testing.T) {
	history := []Turn{
		NewUserTurn("go"),
		NewAssistantTurn([]unifiedllm.ContentPart{
			unifiedllm.TextPart("ok"),
			toolUse("a", "write_file", `{"content":"1"}`),
			toolUse("b", "write_file", `{"content":"2"}`),
		}),
		NewToolResultTurn("a", "Successfully wrote 1 characters to x", false),
		NewAssistantTurn([]unifiedllm.ContentPart{
			toolUse("c", "run_script", `{}`),
		}),
	}

	msgs := ConvertHistoryToMessages(history)
	require.Len(t, msgs, 4)

	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, unifiedllm.ContentText, msgs[1].Content[0].Kind)
	assert.Equal(t, "a", msgs[1].Content[1].ToolUse.ID)

	assert.Equal(t, unifiedllm.ContentToolResult, msgs[2].Content[0].Kind)
	assert.Empty(t, msgs[3].Content, "continuation tool_use is never answered")

	// Stored history is untouched.
	assert.Len(t, history[1].Content, 3)
	assert.Len(t, history[3].Content, 1)
}

func TestNewAssistantTurnCopiesContent(t *testing.T) {
	content := []unifiedllm.ContentPart{unifiedllm.TextPart("a")}
	turn := NewAssistantTurn(content)
	content[0] = unifiedllm.TextPart("changed")
	assert.Equal(t, "a", turn.TextContent())
}

func TestFileContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.py")
	fc := NewFileContext(path)

	assert.Equal(t, "The file "+path+" does not exist yet.", fc.CurrentContents())
	assert.Equal(t, fc.CurrentContents(), fc.ContextTurn().TextContent())

	require.NoError(t, os.WriteFile(path, []byte("print(1)"), 0o644))
	assert.Equal(t, "print(1)", fc.CurrentContents())

	turn := fc.ContextTurn()
	assert.Equal(t, unifiedllm.RoleUser, turn.Role)
	assert.Equal(t, "Current contents of "+path+":\n```\nprint(1)\n```", turn.TextContent())
}

func TestBuildSystemPromptNamesTarget(t *testing.T) {
	prompt := BuildSystemPrompt(NewFileContext("/work/main.py"), "claude-sonnet-4-5")
	assert.Contains(t, prompt, "/work/main.py")
	assert.Contains(t, prompt, "Model: claude-sonnet-4-5")
	assert.Contains(t, prompt, "<environment>")
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s", 1)
	e.Emit(EventWarning, nil)
	e.Emit(EventWarning, nil)
	assert.Equal(t, 1, e.Dropped())

	e.Close()
	e.Close()
	e.Emit(EventWarning, nil)

	var n int
	for range e.Events() {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestSessionEventLogsAsObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := SessionEvent{
		Kind:      EventModelRequest,
		SessionID: "s1",
		Exchange:  "initial",
		Data:      EventData{"model": "m", "messages": 2},
	}
	logger.Info().Object("event", ev).Msg("")

	var out struct {
		Event map[string]interface{} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "model_request", out.Event["kind"])
	assert.Equal(t, "initial", out.Event["exchange"])
	assert.Equal(t, "m", out.Event["model"])
	assert.EqualValues(t, 2, out.Event["messages"])
}
