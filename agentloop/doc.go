// Package agentloop implements the conversation loop of the file agent.
//
// A Session pairs a model client with a closed set of tools that act on one
// target file. Each user prompt is answered with at most two model calls:
//
//  1. The initial exchange, sent with the tool schema.
//  2. When the reply asks for tools, only the first call runs and its
//     result is sent back in a continuation exchange without the schema.
//
// Every request starts with a synthetic turn holding the target file as it
// is on disk at that moment. That turn is never stored in the history.
//
// # Components
//
//   - Session: conversation state, request building and reply assembly.
//   - ToolRegistry: read_file, write_file, generate_random_number and
//     run_script, each with a typed input and schema validation.
//   - ScriptRunner: bounded script execution in its own process group.
//   - FileContext: on-demand reads of the target file.
//   - EventEmitter: typed event stream for diagnostics.
//
// # Quick Start
//
//	runner := agentloop.NewScriptRunner(30*time.Second, logger)
//	tools, _ := agentloop.NewToolRegistry("main.py", runner, logger)
//	session := agentloop.NewSession(
//	    agentloop.SessionConfig{Model: "claude-sonnet-4-5"},
//	    client, tools, agentloop.NewFileContext("main.py"),
//	    audit.New(audit.DefaultPath("main.py")), logger,
//	)
//	defer session.Close()
//
//	reply, err := session.Submit(ctx, "Write a hello world script and run it")
package agentloop
