package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/fileagent/unifiedllm"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/xeipuuv/gojsonschema"
)

// ToolName identifies one of the agent's tools. The set is closed.
type ToolName string

const (
	ToolReadFile     ToolName = "read_file"
	ToolWriteFile    ToolName = "write_file"
	ToolRandomNumber ToolName = "generate_random_number"
	ToolRunScript    ToolName = "run_script"
)

// ToolNames lists every tool in the order it is offered to the model.
var ToolNames = []ToolName{ToolReadFile, ToolWriteFile, ToolRandomNumber, ToolRunScript}

// ReadFileInput is the input of read_file.
type ReadFileInput struct {
	Filepath string `json:"filepath"`
}

// WriteFileInput is the input of write_file.
type WriteFileInput struct {
	Content string `json:"content"`
}

// RandomNumberInput is the input of generate_random_number. Nil fields take
// their defaults.
type RandomNumberInput struct {
	MinVal *int `json:"min_val,omitempty"`
	MaxVal *int `json:"max_val,omitempty"`
}

// RunScriptInput is the input of run_script. An empty ScriptPath runs the
// target file.
type RunScriptInput struct {
	ScriptPath string   `json:"script_path,omitempty"`
	Args       []string `json:"args,omitempty"`
}

// ToolError is a handler failure. Its message is what the model sees.
type ToolError struct {
	Tool    ToolName
	Message string
	Cause   error
}

func (e *ToolError) Error() string { return e.Message }

func (e *ToolError) Unwrap() error { return e.Cause }

func toolErrorf(tool ToolName, cause error, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// UnknownToolError reports a tool name outside the closed set.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown tool: " + e.Name
}

// ToolRegistry dispatches tool calls for one target file. It shares no
// state with the model transport.
type ToolRegistry struct {
	target  string
	runner  *ScriptRunner
	logger  zerolog.Logger
	schemas map[ToolName]*gojsonschema.Schema
	randInt func(span uint64) uint64
}

// NewToolRegistry builds the registry for target. Script runs go through
// runner.
func NewToolRegistry(target string, runner *ScriptRunner, logger zerolog.Logger) (*ToolRegistry, error) {
	r := &ToolRegistry{
		target:  target,
		runner:  runner,
		logger:  logger.With().Str("component", "tools").Logger(),
		schemas: make(map[ToolName]*gojsonschema.Schema, len(ToolNames)),
		randInt: defaultRandInt,
	}
	for _, name := range ToolNames {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(toolSpecs[name].Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", name, err)
		}
		r.schemas[name] = schema
	}
	return r, nil
}

// Definitions returns the static tool schema sent with initial requests.
func (r *ToolRegistry) Definitions() []unifiedllm.ToolDefinition {
	defs := make([]unifiedllm.ToolDefinition, 0, len(ToolNames))
	for _, name := range ToolNames {
		defs = append(defs, toolSpecs[name])
	}
	return defs
}

// Execute runs one tool call and always returns a string for known tools.
// Invalid input, handler errors and panics all become descriptive strings.
// The only error is *UnknownToolError.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	tool := ToolName(name)
	if _, ok := toolSpecs[tool]; !ok {
		return "", &UnknownToolError{Name: name}
	}
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage(`{}`)
	}

	if err := r.validate(tool, input); err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("invalid tool input")
		return err.Error(), nil
	}

	var (
		out  string
		terr *ToolError
	)
	var pc panics.Catcher
	pc.Try(func() {
		out, terr = r.dispatch(ctx, tool, input)
	})
	if rec := pc.Recovered(); rec != nil {
		r.logger.Error().Str("tool", name).Interface("panic", rec.Value).Msg("tool handler panicked")
		return fmt.Sprintf("Error executing %s: %v", name, rec.Value), nil
	}
	if terr != nil {
		r.logger.Debug().Str("tool", name).Err(terr).Msg("tool failed")
		return terr.Error(), nil
	}
	return out, nil
}

func (r *ToolRegistry) validate(tool ToolName, input json.RawMessage) *ToolError {
	if !json.Valid(input) {
		return toolErrorf(tool, nil, "Invalid input for %s: not valid JSON", tool)
	}
	result, err := r.schemas[tool].Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return toolErrorf(tool, err, "Invalid input for %s: %v", tool, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return toolErrorf(tool, nil, "Invalid input for %s: %s", tool, strings.Join(msgs, "; "))
	}
	return nil
}

func (r *ToolRegistry) dispatch(ctx context.Context, tool ToolName, input json.RawMessage) (string, *ToolError) {
	switch tool {
	case ToolReadFile:
		var in ReadFileInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", toolErrorf(tool, err, "Invalid input for %s: %v", tool, err)
		}
		return r.readFile(in)
	case ToolWriteFile:
		var in WriteFileInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", toolErrorf(tool, err, "Invalid input for %s: %v", tool, err)
		}
		return r.writeFile(in)
	case ToolRandomNumber:
		var in RandomNumberInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", toolErrorf(tool, err, "Invalid input for %s: %v", tool, err)
		}
		return r.randomNumber(in)
	case ToolRunScript:
		var in RunScriptInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", toolErrorf(tool, err, "Invalid input for %s: %v", tool, err)
		}
		return r.runScript(ctx, in)
	default:
		return "", toolErrorf(tool, nil, "Unknown tool: %s", tool)
	}
}

// toolSpecs holds the schema the model sees for each tool.
var toolSpecs = map[ToolName]unifiedllm.ToolDefinition{
	ToolReadFile: {
		Name:        string(ToolReadFile),
		Description: "Read the full text contents of a file.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"filepath": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to read.",
				},
			},
			"required": []string{"filepath"},
		},
	},
	ToolWriteFile: {
		Name:        string(ToolWriteFile),
		Description: "Replace the entire contents of the target file with the given content.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The complete new file content.",
				},
			},
			"required": []string{"content"},
		},
	},
	ToolRandomNumber: {
		Name:        string(ToolRandomNumber),
		Description: "Generate a uniformly random integer between min_val and max_val, inclusive.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"min_val": map[string]interface{}{
					"type":        "integer",
					"description": "Lower bound. Default: 1.",
				},
				"max_val": map[string]interface{}{
					"type":        "integer",
					"description": "Upper bound. Default: 100.",
				},
			},
		},
	},
	ToolRunScript: {
		Name:        string(ToolRunScript),
		Description: "Run a script and return its output and exit code. Defaults to the target file.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"script_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the script to run. Default: the target file.",
				},
				"args": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Command-line arguments for the script.",
				},
			},
		},
	},
}
