// Command fileagent is an interactive agent that edits and runs a single
// target file with the help of a hosted language model.
//
//	fileagent [flags] <target-file>
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/martinemde/fileagent/agentloop"
	"github.com/martinemde/fileagent/audit"
	"github.com/martinemde/fileagent/config"
	"github.com/martinemde/fileagent/logging"
	"github.com/martinemde/fileagent/unifiedllm"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

var sentinels = map[string]bool{"quit": true, "exit": true, "q": true}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("fileagent", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: fileagent [flags] <target-file>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(fs, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	logger := logging.New(stderr, cfg.Verbose)

	client, err := newClient(cfg)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing model client")
		}
	}()

	auditLog := audit.New(cfg.AuditLog)
	session, err := newSession(cfg, client, auditLog, logger)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		traceEvents(session.Events(), logger)
	}()

	fmt.Fprintln(stdout, mutedStyle.Render(fmt.Sprintf("fileagent: editing %s with %s (%s)", cfg.Target, cfg.Model, cfg.Provider)))
	fmt.Fprintln(stdout, mutedStyle.Render("Audit log: "+auditLog.Path()))
	repl(ctx, session, stdin, stdout)

	session.Close()
	<-done
	return 0
}

func newClient(cfg *config.Config) (*unifiedllm.Client, error) {
	adapter, err := newAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(unifiedllm.FixedDelay(cfg.RequestDelay)),
	), nil
}

func newSession(cfg *config.Config, client *unifiedllm.Client, recorder agentloop.Recorder, logger zerolog.Logger) (*agentloop.Session, error) {
	runner := agentloop.NewScriptRunner(cfg.ScriptTimeout, logger)
	tools, err := agentloop.NewToolRegistry(cfg.Target, runner, logger)
	if err != nil {
		return nil, err
	}
	return agentloop.NewSession(
		agentloop.SessionConfig{Model: cfg.Model, Provider: cfg.Provider, MaxTokens: cfg.MaxTokens},
		client,
		tools,
		agentloop.NewFileContext(cfg.Target),
		recorder,
		logger,
	), nil
}

func newAdapter(cfg *config.Config) (unifiedllm.ProviderAdapter, error) {
	if cfg.Provider == "anthropic" {
		opts := []unifiedllm.AnthropicOption{
			unifiedllm.WithAnthropicModel(cfg.Model),
			unifiedllm.WithAnthropicMaxTokens(cfg.MaxTokens),
		}
		if cfg.Temperature != nil {
			opts = append(opts, unifiedllm.WithAnthropicTemperature(*cfg.Temperature))
		}
		return unifiedllm.NewAnthropicAdapter(cfg.APIKey, opts...), nil
	}
	opts := []unifiedllm.GollmAdapterOption{
		unifiedllm.WithModel(cfg.Model),
		unifiedllm.WithMaxTokens(cfg.MaxTokens),
	}
	if cfg.Temperature != nil {
		opts = append(opts, unifiedllm.WithTemperature(*cfg.Temperature))
	}
	return unifiedllm.NewGollmAdapter(cfg.Provider, cfg.APIKey, opts...)
}

// readLines feeds stdin lines to the REPL. It stops at EOF or when ctx is
// done, closing the channel either way.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// repl runs until a sentinel, EOF, or cancellation of ctx (Ctrl-C).
func repl(ctx context.Context, session *agentloop.Session, stdin io.Reader, stdout io.Writer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(stdout, mutedStyle.Render("Enter your prompt ('quit' to exit, '/reset' to clear history):"))
	lines := readLines(ctx, stdin)
	for {
		fmt.Fprint(stdout, promptStyle.Render("> "))
		var raw string
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout)
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(stdout)
				return
			}
			raw = l
		}

		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case sentinels[strings.ToLower(line)]:
			fmt.Fprintln(stdout, "Goodbye!")
			return
		case line == "/reset":
			session.Reset()
			fmt.Fprintln(stdout, mutedStyle.Render("History cleared."))
			continue
		}

		reply, err := session.Submit(ctx, line)
		if err != nil {
			fmt.Fprintln(stdout, errorStyle.Render("Error: "+oneLine(err.Error())))
			if ctx.Err() != nil {
				return
			}
			continue
		}
		fmt.Fprintln(stdout, replyStyle.Render(reply))
	}
}

// traceEvents logs session events at debug level until the channel closes.
func traceEvents(events <-chan agentloop.SessionEvent, logger zerolog.Logger) {
	for ev := range events {
		logger.Debug().Object("event", ev).Msg("session event")
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
