// Package chat answers questions as the candidate, grounded on retrieved document chunks.
package chat

import (
	"context"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/completion"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Retriever selects the chunks that ground an answer.
type Retriever interface {
	Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.Match, error)
}

// Service validates chat requests, retrieves context and generates answers.
type Service struct {
	retriever   Retriever
	completer   completion.Completer
	config      *config.ChatConfig
	contextSize int
	logger      *zap.Logger // optional
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithContextSize sets how many chunks are placed in the prompt. Default 5.
func WithContextSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.contextSize = n
		}
	}
}

// NewService creates a chat service.
func NewService(retriever Retriever, completer completion.Completer, cfg *config.ChatConfig, opts ...ServiceOption) *Service {
	s := &Service{
		retriever:   retriever,
		completer:   completer,
		config:      cfg,
		contextSize: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer responds to req. The message is validated before any external call.
func (s *Service) Answer(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	return s.AnswerWithHistory(ctx, req, nil)
}

// AnswerWithHistory is Answer with prior turns passed to the completer. Only the last
// history_limit turns are kept.
func (s *Service) AnswerWithHistory(ctx context.Context, req models.ChatRequest, history []models.ChatMessage) (*models.ChatResponse, error) {
	if err := req.Validate(s.config.MaxMessageLength); err != nil {
		return nil, err
	}

	matches, err := s.retriever.Retrieve(ctx, models.RetrievalQuery{
		Query:         req.Message,
		DocumentID:    req.DocumentID,
		InterviewOnly: req.InterviewMode,
	})
	if err != nil {
		return nil, err
	}
	comp := Compose(matches, s.contextSize)

	var reply string
	if len(history) == 0 {
		reply, err = s.completer.Complete(ctx, comp.SystemPrompt, req.Message)
	} else {
		if limit := s.config.HistoryLimit; limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
		reply, err = s.completer.CompleteWithHistory(ctx, comp.SystemPrompt, history, req.Message)
	}
	if err != nil {
		return nil, apperr.External("generate response", err)
	}

	if s.logger != nil {
		s.logger.Info("answered chat message",
			zap.String("document_id", req.DocumentID),
			zap.Bool("interview_mode", req.InterviewMode),
			zap.Int("sources", len(comp.Sources)))
	}
	return &models.ChatResponse{
		Response:    reply,
		Status:      models.StatusSuccess,
		SourcesUsed: comp.SourcesUsed,
		Sources:     comp.Sources,
	}, nil
}
