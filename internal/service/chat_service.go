package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/domain/usage"
	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/port/outbound"
)

// ChatService errors.
var (
	// ErrModelNotAllowed is returned when a model is unknown or above the
	// user's tier.
	ErrModelNotAllowed = errors.New("model not available on this tier")
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("message content is empty")
)

// ModelSpec declares one offered model and the minimum tier that may use it.
type ModelSpec struct {
	ID      string    `json:"id"`
	MinTier user.Tier `json:"min_tier"`
}

// ModelInfo is a catalog entry with its pricing, as served to clients.
type ModelInfo struct {
	ID string `json:"id"`
	// PromptMicroPerM and CompletionMicroPerM are microdollars per million
	// tokens; zero when the model has no pricing entry.
	PromptMicroPerM     int64 `json:"prompt_micro_per_m"`
	CompletionMicroPerM int64 `json:"completion_micro_per_m"`
}

// SendInput is one chat turn from a client.
type SendInput struct {
	// ConversationID selects an existing conversation; empty starts a new one.
	ConversationID string `json:"conversation_id"`
	// Model overrides the conversation's model for a new conversation.
	Model string `json:"model"`
	// Content is the user message text.
	Content string `json:"content"`
	// SystemPrompt seeds a new conversation's system message.
	SystemPrompt string `json:"system_prompt"`
	// AttachmentIDs are pre-uploaded attachments to link to this message.
	AttachmentIDs []string `json:"attachment_ids"`
	// MaxTokens and Temperature pass through to the provider.
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// SendResult is a completed chat turn.
type SendResult struct {
	Conversation     *chat.Conversation `json:"conversation"`
	UserMessage      *chat.Message      `json:"user_message"`
	AssistantMessage *chat.Message      `json:"assistant_message"`
}

// ChatService runs the chat pipeline: validate, resolve the conversation,
// call the completion provider, and persist both sides of the exchange with
// its usage accounting in one transaction.
type ChatService struct {
	store   chat.ChatStore
	client  outbound.CompletionClient
	pricing *usage.PricingTable
	stats   *StatsService
	logger  *slog.Logger
	tracer  trace.Tracer
	models  []ModelSpec
}

// NewChatService creates a new ChatService offering the given model catalog.
func NewChatService(store chat.ChatStore, client outbound.CompletionClient, pricing *usage.PricingTable, models []ModelSpec, stats *StatsService, logger *slog.Logger, tracer trace.Tracer) *ChatService {
	return &ChatService{
		store:   store,
		client:  client,
		pricing: pricing,
		stats:   stats,
		logger:  logger,
		tracer:  tracer,
		models:  models,
	}
}

// Models returns the catalog entries available to a tier.
func (s *ChatService) Models(tier user.Tier) []ModelInfo {
	out := make([]ModelInfo, 0, len(s.models))
	for _, m := range s.models {
		if !tier.AtLeast(m.MinTier) {
			continue
		}
		info := ModelInfo{ID: m.ID}
		if price, ok := s.pricing.Lookup(m.ID); ok {
			info.PromptMicroPerM = price.PromptMicroPerM
			info.CompletionMicroPerM = price.CompletionMicroPerM
		}
		out = append(out, info)
	}
	return out
}

// modelAllowed checks the catalog for a model at the given tier.
func (s *ChatService) modelAllowed(tier user.Tier, model string) bool {
	for _, m := range s.models {
		if m.ID == model {
			return tier.AtLeast(m.MinTier)
		}
	}
	return false
}

// defaultModel returns the first catalog model available to a tier.
func (s *ChatService) defaultModel(tier user.Tier) string {
	for _, m := range s.models {
		if tier.AtLeast(m.MinTier) {
			return m.ID
		}
	}
	return ""
}

// Send runs one non-streaming chat turn for a user.
// Provider failures still persist the user message together with an
// error-flagged assistant message, then return the provider error.
func (s *ChatService) Send(ctx context.Context, u *user.User, input SendInput) (*SendResult, error) {
	return s.send(ctx, u, input, nil)
}

// SendStream runs one streaming chat turn, calling onDelta for each content
// fragment before the exchange is persisted.
func (s *ChatService) SendStream(ctx context.Context, u *user.User, input SendInput, onDelta func(delta string) error) (*SendResult, error) {
	return s.send(ctx, u, input, onDelta)
}

func (s *ChatService) send(ctx context.Context, u *user.User, input SendInput, onDelta func(string) error) (*SendResult, error) {
	ctx, span := s.tracer.Start(ctx, "chat.send")
	defer span.End()

	if len(input.Content) == 0 {
		return nil, ErrEmptyMessage
	}

	conv, history, err := s.resolveConversation(ctx, u, input)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("chat.conversation_id", conv.ID),
		attribute.String("chat.model", conv.Model),
		attribute.Bool("chat.stream", onDelta != nil),
	)

	req := outbound.CompletionRequest{
		Model:       conv.Model,
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
		Messages:    buildPrompt(conv, history, input.Content),
	}

	userMsg := &chat.Message{Role: chat.RoleUser, Content: input.Content}
	resp, provErr := s.complete(ctx, req, onDelta)

	assistantMsg := &chat.Message{Role: chat.RoleAssistant, Model: conv.Model}
	if provErr != nil {
		assistantMsg.IsError = true
		assistantMsg.Content = "The assistant could not respond: " + provErr.Error()
		s.stats.RecordError()
		s.logger.Error("completion failed",
			"conversation_id", conv.ID, "model", conv.Model, "error", provErr)
	} else {
		s.account(assistantMsg, resp, req.Messages)
		s.stats.RecordCompletion(assistantMsg.Model)
	}

	ex := &chat.Exchange{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		AttachmentIDs:    input.AttachmentIDs,
	}
	if err := s.store.AppendExchange(ctx, u.ID, conv.ID, ex); err != nil {
		return nil, fmt.Errorf("persisting exchange: %w", err)
	}
	if provErr != nil {
		return nil, provErr
	}

	conv, err = s.store.GetConversation(ctx, u.ID, conv.ID)
	if err != nil {
		return nil, err
	}
	return &SendResult{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// complete invokes the provider, streaming when onDelta is set.
func (s *ChatService) complete(ctx context.Context, req outbound.CompletionRequest, onDelta func(string) error) (*outbound.CompletionResponse, error) {
	if onDelta == nil {
		return s.client.Complete(ctx, req)
	}
	var final *outbound.CompletionResponse
	err := s.client.Stream(ctx, req, func(ch outbound.StreamChunk) error {
		if ch.Done {
			final = ch.Response
			return nil
		}
		return onDelta(ch.Delta)
	})
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, fmt.Errorf("stream ended without a final chunk: %w", outbound.ErrProviderUnavailable)
	}
	return final, nil
}

// account fills an assistant message's token and cost fields from the
// provider response, estimating token counts when the provider omitted them.
func (s *ChatService) account(m *chat.Message, resp *outbound.CompletionResponse, prompt []outbound.CompletionMessage) {
	m.Content = resp.Content
	if resp.Model != "" {
		m.Model = resp.Model
	}
	if resp.UsageReported {
		m.InputTokens = resp.InputTokens
		m.OutputTokens = resp.OutputTokens
	} else {
		for _, pm := range prompt {
			m.InputTokens += chat.EstimateTokens(pm.Content)
		}
		m.OutputTokens = chat.EstimateTokens(resp.Content)
		m.EstimatedTokens = true
	}

	cost, ok := s.pricing.CostMicro(m.Model, m.InputTokens, m.OutputTokens)
	if !ok {
		s.logger.Warn("no pricing entry for model", "model", m.Model)
	}
	m.CostMicro = cost
}

// resolveConversation loads the target conversation and its history, or
// creates a new one when no ID is given.
func (s *ChatService) resolveConversation(ctx context.Context, u *user.User, input SendInput) (*chat.Conversation, []chat.Message, error) {
	if input.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, u.ID, input.ConversationID)
		if err != nil {
			return nil, nil, err
		}
		if input.Model != "" && input.Model != conv.Model {
			return nil, nil, fmt.Errorf("conversation is bound to %s: %w", conv.Model, ErrModelNotAllowed)
		}
		history, err := s.store.ListMessages(ctx, u.ID, conv.ID)
		if err != nil {
			return nil, nil, err
		}
		return conv, history, nil
	}

	model := input.Model
	if model == "" {
		model = s.defaultModel(u.Tier)
	}
	if !s.modelAllowed(u.Tier, model) {
		return nil, nil, ErrModelNotAllowed
	}
	conv := &chat.Conversation{
		UserID:       u.ID,
		Model:        model,
		SystemPrompt: input.SystemPrompt,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, nil, err
	}
	return conv, nil, nil
}

// buildPrompt assembles the provider message list: system prompt, prior
// non-error messages in order, then the new user message.
func buildPrompt(conv *chat.Conversation, history []chat.Message, content string) []outbound.CompletionMessage {
	msgs := make([]outbound.CompletionMessage, 0, len(history)+2)
	if conv.SystemPrompt != "" {
		msgs = append(msgs, outbound.CompletionMessage{Role: string(chat.RoleSystem), Content: conv.SystemPrompt})
	}
	for _, m := range history {
		if m.IsError {
			continue
		}
		msgs = append(msgs, outbound.CompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, outbound.CompletionMessage{Role: string(chat.RoleUser), Content: content})
}

// CreateConversationInput holds the input for creating an empty conversation.
type CreateConversationInput struct {
	Title        string `json:"title"`
	Model        string `json:"model" validate:"required"`
	SystemPrompt string `json:"system_prompt"`
}

// CreateConversation creates an empty conversation for later turns.
func (s *ChatService) CreateConversation(ctx context.Context, u *user.User, input CreateConversationInput) (*chat.Conversation, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !s.modelAllowed(u.Tier, input.Model) {
		return nil, ErrModelNotAllowed
	}
	conv := &chat.Conversation{
		UserID:       u.ID,
		Title:        input.Title,
		Model:        input.Model,
		SystemPrompt: input.SystemPrompt,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// GetConversation returns one conversation scoped to its owner.
func (s *ChatService) GetConversation(ctx context.Context, userID, id string) (*chat.Conversation, error) {
	return s.store.GetConversation(ctx, userID, id)
}

// DeleteConversation removes a conversation and its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, id string) error {
	return s.store.DeleteConversation(ctx, userID, id)
}

// ListMessages returns a conversation's messages in order.
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID string) ([]chat.Message, error) {
	return s.store.ListMessages(ctx, userID, conversationID)
}

// SyncResult is the incremental sync response: changed conversations plus
// the cursor clients should present next time.
type SyncResult struct {
	Changed []chat.SyncEntry `json:"changed"`
	Cursor  time.Time        `json:"cursor"`
}

// Sync returns conversations changed strictly after the cursor. The new
// cursor is the last entry's UpdatedAt, or the server time when nothing
// changed (which also caps future-dated cursors).
func (s *ChatService) Sync(ctx context.Context, userID string, since time.Time) (*SyncResult, error) {
	entries, err := s.store.SyncChangedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	cursor := time.Now().UTC()
	if len(entries) > 0 {
		cursor = entries[len(entries)-1].UpdatedAt
	}
	if entries == nil {
		entries = []chat.SyncEntry{}
	}
	return &SyncResult{Changed: entries, Cursor: cursor}, nil
}
