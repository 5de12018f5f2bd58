package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/fileagent/audit"
	"github.com/martinemde/fileagent/unifiedllm"
	"github.com/rs/zerolog"
)

// Fallback replies used when the model produces no text.
const (
	NoResponseText     = "I don't have a response for that."
	NoContinuationText = "The tool ran, but I have nothing further to add."
)

// DefaultMaxTokens is the token budget of each model call.
const DefaultMaxTokens = 4096

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	StateClosed     SessionState = "closed"
)

// SessionConfig holds the per-request settings of a session.
type SessionConfig struct {
	Model     string `json:"model"`
	Provider  string `json:"provider,omitempty"`
	MaxTokens int    `json:"max_tokens"`
}

// Recorder persists model exchanges. *audit.Log implements it.
type Recorder interface {
	Record(kind audit.Kind, req unifiedllm.RequestSnapshot, resp *unifiedllm.Response) error
}

// Session drives the conversation for one target file. Each Submit makes at
// most two model calls: the initial exchange and, when the model asks for a
// tool, one continuation exchange after the tool result.
type Session struct {
	id       string
	config   SessionConfig
	client   *unifiedllm.Client
	tools    *ToolRegistry
	fileCtx  *FileContext
	recorder Recorder
	logger   zerolog.Logger
	emitter  *EventEmitter

	history []Turn
	state   SessionState
	mu      sync.Mutex
}

// NewSession creates a session. recorder may be nil to disable auditing.
func NewSession(cfg SessionConfig, client *unifiedllm.Client, tools *ToolRegistry, fileCtx *FileContext, recorder Recorder, logger zerolog.Logger) *Session {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	id := uuid.New().String()
	s := &Session{
		id:       id,
		config:   cfg,
		client:   client,
		tools:    tools,
		fileCtx:  fileCtx,
		recorder: recorder,
		logger:   logger.With().Str("session", id).Logger(),
		emitter:  NewEventEmitter(id, 256),
		state:    StateIdle,
	}
	s.emitter.Emit(EventSessionStart, EventData{
		"target": fileCtx.Path(),
		"model":  cfg.Model,
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Reset discards the conversation history. The target file and the audit
// log are left alone.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close ends the session and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, EventData{"dropped_events": s.emitter.Dropped()})
	s.emitter.Close()
}

// Submit sends prompt to the model and returns the final reply. Transport
// and configuration errors are returned unchanged in kind (wrapped with the
// failing exchange); turns appended before the failure stay in history.
func (s *Session) Submit(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return "", errors.New("session is closed")
	}
	s.state = StateProcessing
	s.history = append(s.history, NewUserTurn(prompt))
	s.mu.Unlock()
	defer s.setIdle()

	s.emitter.Emit(EventUserInput, EventData{"content": prompt})

	resp, err := s.exchange(ctx, audit.KindInitial, true)
	if err != nil {
		return "", fmt.Errorf("initial exchange: %w", err)
	}
	texts, calls := resp.Partition()
	s.appendTurn(NewAssistantTurn(resp.Message.Content))
	preText := strings.Join(texts, "\n")

	if len(calls) == 0 {
		if preText == "" {
			return NoResponseText, nil
		}
		return preText, nil
	}

	if len(calls) > 1 {
		discarded := make([]string, 0, len(calls)-1)
		for _, c := range calls[1:] {
			discarded = append(discarded, c.Name)
		}
		s.logger.Warn().Str("executed", calls[0].Name).Strs("discarded", discarded).Msg("model requested several tools; only the first runs")
		s.emitter.Emit(EventWarning, EventData{
			"message":   fmt.Sprintf("%d tool calls requested, executing only %s", len(calls), calls[0].Name),
			"discarded": discarded,
		})
	}

	call := calls[0]
	result, isError := s.executeTool(ctx, call)
	s.appendTurn(NewToolResultTurn(call.ID, result, isError))

	cont, err := s.exchange(ctx, audit.KindContinuation, false)
	if err != nil {
		return "", fmt.Errorf("continuation exchange: %w", err)
	}
	contTexts, ignored := cont.Partition()
	if len(ignored) > 0 {
		s.logger.Warn().Int("tool_calls", len(ignored)).Msg("continuation requested tools; they are not executed")
	}
	s.appendTurn(NewAssistantTurn(cont.Message.Content))

	reply := strings.Join(contTexts, "\n")
	if reply == "" {
		reply = NoContinuationText
	}
	if preText != "" {
		return preText + "\n\n" + reply, nil
	}
	return reply, nil
}

// exchange builds a request from the live file context and the history,
// sends it, and records the pair.
func (s *Session) exchange(ctx context.Context, kind audit.Kind, withTools bool) (*unifiedllm.Response, error) {
	messages := []unifiedllm.Message{s.fileCtx.ContextTurn().Message()}
	messages = append(messages, ConvertHistoryToMessages(s.History())...)

	req := unifiedllm.Request{
		Model:     s.config.Model,
		Provider:  s.config.Provider,
		MaxTokens: s.config.MaxTokens,
		System:    BuildSystemPrompt(s.fileCtx, s.config.Model),
		Messages:  messages,
	}
	if withTools {
		req.ToolDefs = s.tools.Definitions()
	}

	snap := s.client.Snapshot(req)
	s.emitter.EmitExchange(EventModelRequest, string(kind), EventData{
		"messages": len(req.Messages),
		"tools":    len(req.ToolDefs),
	})
	s.logger.Debug().Str("exchange", string(kind)).Int("messages", len(req.Messages)).Msg("sending request")

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		s.logger.Debug().Str("exchange", string(kind)).Err(err).Msg("request failed")
		s.emitter.EmitExchange(EventError, string(kind), EventData{"error": err.Error()})
		return nil, err
	}

	s.emitter.EmitExchange(EventModelResponse, string(kind), EventData{
		"stop_reason":   resp.StopReason,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})
	s.record(kind, snap, resp)
	return resp, nil
}

// record writes to the audit log. Failures are reported and swallowed.
func (s *Session) record(kind audit.Kind, snap unifiedllm.RequestSnapshot, resp *unifiedllm.Response) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(kind, snap, resp); err != nil {
		s.logger.Error().Err(err).Str("exchange", string(kind)).Msg("audit log write failed")
		s.emitter.EmitExchange(EventError, string(kind), EventData{"error": err.Error(), "source": "audit"})
	}
}

// executeTool runs a single call. An unknown tool becomes an error result so
// every tool_use in history is answered.
func (s *Session) executeTool(ctx context.Context, call unifiedllm.ToolCall) (string, bool) {
	s.emitter.Emit(EventToolCallStart, EventData{
		"tool_name": call.Name,
		"call_id":   call.ID,
	})

	result, err := s.tools.Execute(ctx, call.Name, call.Input)
	isError := false
	if err != nil {
		var unknown *UnknownToolError
		if !errors.As(err, &unknown) {
			s.logger.Error().Err(err).Str("tool", call.Name).Msg("tool dispatch failed")
		}
		result = err.Error()
		isError = true
	}

	s.logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Bool("is_error", isError).Msg("tool finished")
	s.emitter.Emit(EventToolCallEnd, EventData{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"output":    result,
		"is_error":  isError,
	})
	return result, isError
}

func (s *Session) appendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

func (s *Session) setIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateProcessing {
		s.state = StateIdle
	}
}
