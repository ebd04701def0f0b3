package agent

import (
	"context"
	"fmt"
	"log/slog"

	"nanobot/internal/domain"
	"nanobot/internal/metrics"
	"nanobot/internal/provider"
	"nanobot/internal/session"
	"nanobot/internal/tool"
)

const (
	defaultMaxIterations = 20
	defaultConcurrency   = 4

	// Returned verbatim when a turn exhausts its iteration budget. Nothing
	// from such a turn is persisted.
	maxIterationsMessage = "Maximum iterations reached without a final answer. Please try rephrasing your request."
)

// Resolver selects the chat provider for a model at the start of each turn.
type Resolver func(model string) (domain.ChatProvider, error)

// Loop is the agent engine: receive message, call the LLM, execute requested
// tools, repeat until the model produces a final answer.
type Loop struct {
	resolve       Resolver
	model         string
	sessions      *session.Store
	contextBld    *ContextBuilder
	tools         *tool.Registry
	executor      *tool.Executor
	bus           domain.MessageBus
	logger        *slog.Logger
	maxIterations int
	concurrency   int
}

// LoopConfig carries the loop's dependencies and tuning parameters.
type LoopConfig struct {
	Registry      *provider.Registry
	Resolver      Resolver // overrides Registry-based resolution when set
	Model         string
	Sessions      *session.Store
	Context       *ContextBuilder
	Tools         *tool.Registry
	Executor      *tool.Executor
	Bus           domain.MessageBus
	Logger        *slog.Logger
	MaxIterations int
	Concurrency   int // max messages processed in parallel
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	resolve := cfg.Resolver
	if resolve == nil {
		resolve = func(model string) (domain.ChatProvider, error) {
			return provider.Resolve(cfg.Registry, model, cfg.Logger)
		}
	}
	return &Loop{
		resolve:       resolve,
		model:         cfg.Model,
		sessions:      cfg.Sessions,
		contextBld:    cfg.Context,
		tools:         cfg.Tools,
		executor:      cfg.Executor,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		concurrency:   cfg.Concurrency,
	}
}

// Run consumes inbound messages until the context is cancelled, processing
// them with bounded concurrency.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "model", l.model, "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.SubscribeInbound()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound stream closed, agent loop stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.Message) {
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// processMessage handles one inbound envelope and publishes the reply back
// to the originating channel. Failures become a reply rather than a crash.
func (l *Loop) processMessage(ctx context.Context, msg domain.Message) {
	metrics.MessagesTotal.Inc()
	l.logger.Info("processing message",
		"channel_type", msg.ChannelType,
		"user", msg.UserID,
		"content_len", len(msg.Content),
	)

	response, err := l.Process(ctx, msg)
	if err != nil {
		l.logger.Error("message processing failed", "error", err)
		response = fmt.Sprintf("Error: %s", err.Error())
	}

	out := domain.NewTextMessage(response)
	out.ChannelID = msg.ChannelID
	out.ChannelType = msg.ChannelType
	out.UserID = msg.UserID
	l.bus.PublishOutbound(out)
}

// Process runs the full agent turn for one message and returns the final
// answer. Only a completed turn is persisted, and only as the (user, final
// answer) pair; intermediate tool traffic stays in memory. A turn that hits
// the iteration cap returns a fixed notice and persists nothing, as does a
// turn that fails at the provider.
func (l *Loop) Process(ctx context.Context, msg domain.Message) (string, error) {
	sessionID := msg.SessionKey()

	chat, err := l.resolve(l.model)
	if err != nil {
		return "", err
	}

	// The message tool sends to the originating channel when the model gives
	// no explicit target; bind that target to this turn's context so parallel
	// turns cannot see each other's.
	ctx = tool.WithTarget(ctx, msg)

	messages := l.contextBld.Build(sessionID, msg.Content)
	toolDefs := l.tools.Definitions()

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		l.logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(messages))

		resp, err := chat.Chat(ctx, messages, toolDefs)
		if err != nil {
			return "", fmt.Errorf("LLM error: %w", err)
		}

		if !resp.HasToolCalls() {
			l.persistTurn(sessionID, msg.Content, resp.Content)
			return resp.Content, nil
		}

		messages = append(messages, domain.AssistantToolCalls(resp.Content, resp.ToolCalls))

		results := l.executor.ExecuteBatch(ctx, resp.ToolCalls)
		for _, r := range results {
			messages = append(messages, r.ToMessage())
		}
	}

	l.logger.Warn("iteration budget exhausted", "session", sessionID, "max", l.maxIterations)
	return maxIterationsMessage, nil
}

func (l *Loop) persistTurn(sessionID, userContent, finalAnswer string) {
	if err := l.sessions.Append(sessionID, domain.UserMessage(userContent)); err != nil {
		l.logger.Warn("failed to persist user turn", "session", sessionID, "error", err)
	}
	if err := l.sessions.Append(sessionID, domain.AssistantMessage(finalAnswer)); err != nil {
		l.logger.Warn("failed to persist assistant turn", "session", sessionID, "error", err)
	}
}
