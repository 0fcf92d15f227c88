// Package chat implements the answer generator: it retrieves context for a
// question, renders the mode's prompt, calls the chat model and appends the
// exchange to the conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/junu-go/internal/budget"
	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/rag"
	"github.com/54b3r/junu-go/internal/store"
)

var (
	// ErrEmptyInput is returned when the user input is blank.
	ErrEmptyInput = errors.New("chat: user input must not be empty")

	// ErrTimeout is returned when retrieval and generation do not finish
	// within the configured timeout.
	ErrTimeout = errors.New("chat: answer timed out")
)

// DefaultTimeout bounds retrieval plus generation for one answer.
const DefaultTimeout = 60 * time.Second

// Outcomes reported to an Observer.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Retriever supplies context for a question. *rag.ContextRetriever
// satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (rag.Context, error)
}

// Observer receives per-answer measurements. The server's metrics satisfy it.
type Observer interface {
	ObserveAnswer(mode, outcome string, d time.Duration)
	ObserveRetrieval(found bool)
	AnswerStarted() (done func())
}

// Config tunes the Service. Zero fields take the defaults.
type Config struct {
	// MaxHistory is the number of turns rendered into the prompt.
	MaxHistory int
	// Timeout bounds retrieval plus generation.
	Timeout time.Duration
	// TokenBudget is the estimated prompt size above which history is
	// trimmed oldest-first and a warning is logged.
	TokenBudget int
}

// ConfigFromEnv reads PROMPT_MAX_HISTORY, CHAT_TIMEOUT and PROMPT_TOKEN_BUDGET.
func ConfigFromEnv() Config {
	return Config{
		MaxHistory:  config.Int("PROMPT_MAX_HISTORY", prompt.DefaultMaxHistory),
		Timeout:     config.Duration("CHAT_TIMEOUT", DefaultTimeout),
		TokenBudget: config.Int("PROMPT_TOKEN_BUDGET", budget.DefaultMaxPromptTokens),
	}
}

// Request is one user utterance.
type Request struct {
	// Mode is "text" or "voice".
	Mode string
	// Input is the user's question.
	Input string
	// History is client-owned history. Ignored when SessionID is set.
	History []store.Turn
	// SessionID selects server-owned history in the ConversationStore.
	SessionID string
}

// Result is the outcome of a successful Answer.
type Result struct {
	// Answer is the model's completion, trimmed.
	Answer string
	// History is the input history followed by the new user and assistant
	// turns. For sessions it is the loaded window plus the new turns.
	History []store.Turn
	// Prompt is the exact text sent to the model.
	Prompt string
	// Context is what retrieval returned.
	Context rag.Context
	// SessionID echoes the request's session.
	SessionID string
}

// Service answers questions. It is safe for concurrent use; turns within
// one session run one at a time.
type Service struct {
	model     model.BaseChatModel
	retriever Retriever
	formatter *prompt.Formatter
	history   store.ConversationStore
	observer  Observer
	cfg       Config
	locks     *sessionLocks
}

// Option customises a Service.
type Option func(*Service)

// WithObserver reports measurements to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService constructs a Service. history may be nil, in which case an
// in-memory store backs session-owned history.
func NewService(m model.BaseChatModel, r Retriever, history store.ConversationStore, cfg Config, opts ...Option) (*Service, error) {
	if m == nil {
		return nil, errors.New("chat: model must not be nil")
	}
	if r == nil {
		return nil, errors.New("chat: retriever must not be nil")
	}
	if history == nil {
		history = store.NewMemoryStore()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = prompt.DefaultMaxHistory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = budget.DefaultMaxPromptTokens
	}

	s := &Service{
		model:     m,
		retriever: r,
		formatter: prompt.NewFormatter(cfg.MaxHistory),
		history:   history,
		observer:  nopObserver{},
		cfg:       cfg,
		locks:     newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Answer produces a grounded answer to req.Input. Validation happens before
// any external call. The returned history is a new slice; req.History is
// never modified.
func (s *Service) Answer(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	done := s.observer.AnswerStarted()
	defer done()

	res, mode, err := s.answer(ctx, req)

	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, prompt.ErrInvalidMode), errors.Is(err, ErrEmptyInput):
		outcome = OutcomeInvalid
	case errors.Is(err, ErrTimeout):
		outcome = OutcomeTimeout
	default:
		outcome = OutcomeError
	}
	if mode == "" {
		mode = "invalid"
	}
	s.observer.ObserveAnswer(string(mode), outcome, time.Since(started))
	return res, err
}

func (s *Service) answer(ctx context.Context, req Request) (Result, prompt.Mode, error) {
	mode, err := prompt.ParseMode(req.Mode)
	if err != nil {
		return Result{}, "", err
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return Result{}, mode, ErrEmptyInput
	}

	ctx, log := logging.With(ctx, slog.String("mode", string(mode)))
	if req.SessionID != "" {
		ctx, log = logging.With(ctx, slog.String("session_id", req.SessionID))

		unlock, err := s.locks.lock(ctx, req.SessionID)
		if err != nil {
			return Result{}, mode, fmt.Errorf("chat: waiting for session: %w", err)
		}
		defer unlock()
	}

	history := req.History
	if req.SessionID != "" {
		if len(req.History) > 0 {
			log.Debug("chat: session history takes precedence over request history")
		}
		history, err = s.history.Recent(ctx, req.SessionID, s.cfg.MaxHistory)
		if err != nil {
			return Result{}, mode, fmt.Errorf("chat: load history: %w", err)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	retrieved, err := s.retriever.Retrieve(tctx, input)
	if err != nil {
		return Result{}, mode, s.downstream(tctx, "retrieve context", err)
	}
	s.observer.ObserveRetrieval(retrieved.Found())
	log.Debug("chat: context retrieved",
		slog.Bool("found", retrieved.Found()),
		slog.Int("chunks", len(retrieved.Documents)),
	)

	msgs, err := s.buildPrompt(tctx, log, mode, history, input, retrieved.Text)
	if err != nil {
		return Result{}, mode, err
	}
	text := msgs[0].Content

	msg, err := s.model.Generate(tctx, msgs)
	if err != nil {
		return Result{}, mode, s.downstream(tctx, "generate", err)
	}
	if msg == nil {
		return Result{}, mode, errors.New("chat: generate: model returned no message")
	}
	answer := strings.TrimSpace(msg.Content)

	now := time.Now()
	turns := []store.Turn{
		{Role: store.RoleUser, Content: input, CreatedAt: now},
		{Role: store.RoleAssistant, Content: answer, CreatedAt: now},
	}
	if req.SessionID != "" {
		if err := s.history.Append(ctx, req.SessionID, turns...); err != nil {
			return Result{}, mode, fmt.Errorf("chat: persist history: %w", err)
		}
	}

	updated := make([]store.Turn, 0, len(history)+len(turns))
	updated = append(updated, history...)
	updated = append(updated, turns...)

	log.Info("chat: answered",
		slog.Int("answer_chars", len([]rune(answer))),
		slog.Bool("context_found", retrieved.Found()),
	)
	return Result{
		Answer:    answer,
		History:   updated,
		Prompt:    text,
		Context:   retrieved,
		SessionID: req.SessionID,
	}, mode, nil
}

// buildPrompt renders the prompt for the last MaxHistory turns and returns
// it as the single user message sent to the model. An estimate over the
// token budget is logged, never acted on.
func (s *Service) buildPrompt(ctx context.Context, log *slog.Logger, mode prompt.Mode, history []store.Turn, input, retrieved string) ([]*schema.Message, error) {
	text, err := s.formatter.Format(ctx, mode, history, input, retrieved)
	if err != nil {
		return nil, err
	}
	msgs := []*schema.Message{schema.UserMessage(text)}

	tokens := budget.EstimateMessages(msgs)
	log.Debug("budget: prompt estimate", slog.Int("estimated_tokens", tokens))
	if tokens > s.cfg.TokenBudget {
		log.Warn("budget: prompt exceeds token budget",
			slog.Int("estimated_tokens", tokens),
			slog.Int("max_tokens", s.cfg.TokenBudget),
		)
	}
	return msgs, nil
}

// downstream wraps a failed external call, mapping an expired answer
// deadline to ErrTimeout.
func (s *Service) downstream(ctx context.Context, action string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s during %s: %w", ErrTimeout, s.cfg.Timeout, action, err)
	}
	return fmt.Errorf("chat: %s: %w", action, err)
}

// Clear deletes the session's stored history.
func (s *Service) Clear(ctx context.Context, session string) error {
	if session == "" {
		return errors.New("chat: session id must not be empty")
	}
	return s.history.Clear(ctx, session)
}

// Config returns the resolved configuration.
func (s *Service) Config() Config { return s.cfg }

type nopObserver struct{}

func (nopObserver) ObserveAnswer(string, string, time.Duration) {}
func (nopObserver) ObserveRetrieval(bool)                       {}
func (nopObserver) AnswerStarted() func()                       { return func() {} }
