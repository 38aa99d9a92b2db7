package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

// RAGObserver records retrieval outcomes of chat turns.
type RAGObserver interface {
	RecordRAGObservation(endpoint string, sourceCount int, duration time.Duration)
}

type ChatOptions struct {
	GenerateTimeout time.Duration
}

type ChatUseCase struct {
	docs      ports.DocumentRepository
	chats     ports.ChatRepository
	retriever ports.Retriever
	generator ports.AnswerGenerator
	observer  RAGObserver
	opts      ChatOptions
	now       func() time.Time
}

func NewChatUseCase(
	docs ports.DocumentRepository,
	chats ports.ChatRepository,
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	observer RAGObserver,
	opts ChatOptions,
) *ChatUseCase {
	return &ChatUseCase{
		docs:      docs,
		chats:     chats,
		retriever: retriever,
		generator: generator,
		observer:  observer,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ChatUseCase) Send(ctx context.Context, documentID, ownerID, message string) (*domain.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send chat message", errors.New("message is empty"))
	}

	doc, err := uc.docs.GetForOwner(ctx, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Status != domain.StatusReady {
		return nil, domain.WrapError(
			domain.ErrInvalidTransition,
			"send chat message",
			fmt.Errorf("document is %s, chat requires %s", doc.Status, domain.StatusReady),
		)
	}

	started := time.Now()
	retrieval, err := uc.retriever.Retrieve(ctx, doc.ID, doc.OwnerID, message)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if uc.observer != nil {
		uc.observer.RecordRAGObservation("chat", len(retrieval.Matches), time.Since(started))
	}

	var answer string
	err = withTimeout(ctx, uc.opts.GenerateTimeout, "generate answer", func(callCtx context.Context) error {
		a, err := uc.generator.Generate(callCtx, buildSystemPrompt(doc.FileName, retrieval.Context), message)
		answer = a
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	session, err := uc.chats.GetSession(ctx, doc.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	now := uc.now()
	if session == nil {
		session = &domain.ChatSession{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			OwnerID:       ownerID,
			Title:         domain.ChatTitle(message),
			CreatedAt:     now,
			LastMessageAt: now,
		}
	}

	sources := retrieval.Sources()
	confidence := retrieval.Confidence()
	userMessage := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: now,
	}
	assistantMessage := domain.ChatMessage{
		ID:         uuid.NewString(),
		Role:       domain.RoleAssistant,
		Content:    answer,
		Timestamp:  now,
		Sources:    sources,
		Confidence: &confidence,
	}

	sessionID, err := uc.chats.AppendTurn(ctx, *session, userMessage, assistantMessage)
	if err != nil {
		return nil, fmt.Errorf("append chat turn: %w", err)
	}

	if err := uc.docs.TouchAccessed(ctx, doc.ID, now); err != nil {
		slog.Warn("touch_document_failed", "document_id", doc.ID, "error", err)
	}

	return &domain.ChatReply{
		SessionID:  sessionID,
		Response:   answer,
		Sources:    sources,
		Confidence: confidence,
	}, nil
}

func (uc *ChatUseCase) History(ctx context.Context, documentID, ownerID string) ([]domain.ChatMessage, error) {
	if _, err := uc.docs.GetForOwner(ctx, documentID, ownerID); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	session, err := uc.chats.GetSession(ctx, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	if session == nil {
		return []domain.ChatMessage{}, nil
	}
	return session.Messages, nil
}
