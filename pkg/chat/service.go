package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hikaru/kioku/internal/tracing"
	"github.com/hikaru/kioku/pkg/memory"
	"github.com/hikaru/kioku/pkg/oracle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "kioku.chat"

const basePrompt = `You are a kind and considerate AI assistant. Support the user through conversation and provide helpful information.`

// historyWindow bounds how many prior turns are replayed to the oracle.
const historyWindow = 20

// titleLimit bounds auto-generated conversation titles.
const titleLimit = 50

// Reply is the outcome of one chat turn.
type Reply struct {
	ConversationID string           `json:"conversation_id"`
	Content        string           `json:"reply"`
	Memories       []*memory.Record `json:"memories"`
}

// Service generates assistant replies and feeds each user turn through the
// memory pipeline.
type Service struct {
	oracle oracle.Oracle
	engine *memory.Engine
	store  *Store
	logger zerolog.Logger
}

// NewService creates a new chat service.
func NewService(o oracle.Oracle, engine *memory.Engine, store *Store, logger zerolog.Logger) (*Service, error) {
	if o == nil {
		return nil, errors.New("oracle is required")
	}
	if engine == nil {
		return nil, errors.New("memory engine is required")
	}
	if store == nil {
		return nil, errors.New("chat store is required")
	}
	return &Service{oracle: o, engine: engine, store: store, logger: logger}, nil
}

// Respond handles one user turn: it persists the message, generates a reply
// over the owner's core-context memories and recent history, persists the
// reply, and then runs memory ingestion on the user text. Ingestion is best
// effort; a pipeline failure is logged and the reply still returns.
func (s *Service) Respond(ctx context.Context, owner, conversationID, text string) (*Reply, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "chat.respond",
		attribute.String("owner", owner),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message is empty")
	}

	conv, err := s.resolveConversation(ctx, owner, conversationID, text)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, oracle.RoleUser, text); err != nil {
		return nil, err
	}

	coreMemories, err := s.engine.CoreContext(ctx, owner)
	if err != nil {
		return nil, err
	}

	history, err := s.store.RecentMessages(ctx, conv.ID, historyWindow)
	if err != nil {
		return nil, err
	}

	messages := []oracle.Message{
		{Role: oracle.RoleSystem, Content: buildSystemPrompt(coreMemories)},
	}
	for _, msg := range history {
		messages = append(messages, oracle.Message{Role: msg.Role, Content: msg.Content})
	}

	content, err := s.oracle.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, oracle.RoleAssistant, content); err != nil {
		return nil, err
	}

	records, err := s.engine.Ingest(ctx, owner, conv.ID, text)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Str("conversation", conv.ID).
			Msg("Memory ingestion failed")
	}
	if records == nil {
		// Keep the wire shape stable: clients get [] even when nothing was
		// extracted.
		records = []*memory.Record{}
	}

	return &Reply{
		ConversationID: conv.ID,
		Content:        content,
		Memories:       records,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, owner, conversationID, text string) (*Conversation, error) {
	if conversationID == "" {
		return s.store.CreateConversation(ctx, owner, deriveTitle(text))
	}

	conv, err := s.store.GetConversation(ctx, owner, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	return conv, nil
}

// buildSystemPrompt prefixes the base persona with a bullet list of what is
// known about the user, when anything is known.
func buildSystemPrompt(coreMemories []*memory.Record) string {
	if len(coreMemories) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n## What you know about the user (important!)\n")
	for _, record := range coreMemories {
		b.WriteString("- ")
		b.WriteString(record.StructuredText)
		b.WriteString("\n")
	}
	b.WriteString("\nTake this information into account when responding.")
	return b.String()
}

func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit])
}
