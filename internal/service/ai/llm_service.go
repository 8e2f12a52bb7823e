package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/oakdemir/pharmachat/internal/config"
	"github.com/oakdemir/pharmachat/internal/model/chat"
	"github.com/oakdemir/pharmachat/internal/model/profile"
)

// Service is the completion gateway: it turns a conversation plus the user's
// profile context into a single reply or a token stream.
type Service struct {
	chatModel model.ChatModel
	profiles  profile.Store
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new gateway backed by the configured chat model.
func NewService(ctx context.Context, profiles profile.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		profiles:  profiles,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled indicates whether token-stream delivery is configured.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Generate produces a single-shot reply for the user's new turn. An empty or
// whitespace-only reply from the provider is a gateway failure.
func (s *Service) Generate(ctx context.Context, ownerID string, history []chat.Message, userText string) (string, error) {
	input := s.buildChainInput(ownerID, history, userText)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", gatewayErr(ctx, err)
	}
	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: provider returned empty reply", chat.ErrGateway)
	}

	log.Printf("[ai] generated reply for owner=%s, length=%d", ownerID, len(reply))
	return reply, nil
}

// Stream opens a token stream for the user's new turn. The caller owns the
// returned stream and must close it.
func (s *Service) Stream(ctx context.Context, ownerID string, history []chat.Message, userText string) (chat.TokenStream, error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("%w: streaming disabled in configuration", chat.ErrGateway)
	}

	input := s.buildChainInput(ownerID, history, userText)

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, gatewayErr(ctx, err)
	}
	return &modelStream{inner: stream}, nil
}

func (s *Service) buildChainInput(ownerID string, history []chat.Message, userText string) map[string]any {
	var record profile.Record
	if s.profiles != nil {
		record, _ = s.profiles.FindByUser(ownerID)
	}
	return map[string]any{
		"system":  BuildSystemInstructions(record),
		"history": s.buildHistoryMessages(history),
		"query":   userText,
	}
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = 10
	}

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch chat.NormalizeRole(msg.Role) {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

// gatewayErr folds context expiry into the timeout taxonomy and everything
// else into a gateway failure.
func gatewayErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chat.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", chat.ErrGateway, err)
}

// modelStream adapts the eino stream reader to chat.TokenStream.
type modelStream struct {
	inner *schema.StreamReader[*schema.Message]
}

func (s *modelStream) Recv() (string, error) {
	for {
		msg, err := s.inner.Recv()
		if err != nil {
			return "", err
		}
		if msg == nil {
			continue
		}
		return msg.Content, nil
	}
}

func (s *modelStream) Close() {
	s.inner.Close()
}
