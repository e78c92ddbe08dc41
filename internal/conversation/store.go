// Package conversation keeps the dashboard's conversation list and active
// transcript in sync with the backend's memory and chat endpoints.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/backend"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// Greeting opens every new chat.
const Greeting = "Hi! I'm your AI-powered legal assistant. I can scan Terms of Service, Privacy Policies, and Cookie Banners, flagging risky clauses and explaining them in plain English. What would you like to analyze today?"

const (
	loadStatusApology = "Sorry, I couldn't load this conversation. Please try starting a new chat."
	loadErrorApology  = "Sorry, I encountered an error loading this conversation. Please try starting a new chat."
	sendErrorFormat   = "Sorry, I encountered an error while processing your request: %s. Please make sure the analysis service is reachable and try again."
)

// ErrEmptyMessage is returned when a send carries only whitespace.
var ErrEmptyMessage = errors.New("message content is empty")

// Backend is the part of the analysis service the store talks to.
type Backend interface {
	RecentConversations(ctx context.Context, userID string) ([]model.RawConversation, error)
	History(ctx context.Context, userID, sessionID string) (*model.HistoryResponse, error)
	Chat(ctx context.Context, req *model.ChatRequest) (string, error)
}

// Options tune a Store.
type Options struct {
	Clock clock.Clock
	// Location is used for display times. Defaults to time.Local.
	Location *time.Location
	// ListRefreshDelay is the wait before reloading the conversation list
	// after a successful reply. Negative disables the refresh.
	ListRefreshDelay time.Duration
	// NewSessionID overrides session id generation.
	NewSessionID func() string
}

// Store owns one user's conversations and current transcript. All methods
// are safe for concurrent use; sends are serialized.
type Store struct {
	backend Backend
	userID  string
	clock   clock.Clock
	loc     *time.Location
	logger  *logger.Logger

	listRefreshDelay time.Duration
	newSessionID     func() string

	mu            sync.RWMutex
	sessionID     string
	messages      []model.Message
	typing        bool
	conversations []model.ConversationSummary
	loadSeq       uint64
	listSeq       uint64

	sendMu sync.Mutex
}

// NewStore creates a store for userID, starting on a fresh chat.
func NewStore(b Backend, userID string, opts Options, log *logger.Logger) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = NewSessionID
	}

	s := &Store{
		backend:          b,
		userID:           userID,
		clock:            opts.Clock,
		loc:              opts.Location,
		logger:           log.Named("conversation").With(zap.String("user_id", userID)),
		listRefreshDelay: opts.ListRefreshDelay,
		newSessionID:     opts.NewSessionID,
		conversations:    []model.ConversationSummary{},
	}
	s.resetLocked()
	return s
}

// NewSessionID returns a fresh client-chosen session identifier.
func NewSessionID() string {
	return "session_" + uuid.Must(uuid.NewV7()).String()
}

// UserID returns the user the store belongs to.
func (s *Store) UserID() string {
	return s.userID
}

// Current returns a snapshot of the active transcript.
func (s *Store) Current() model.Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Conversations returns the last loaded conversation list.
func (s *Store) Conversations() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ConversationSummary, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// StartNewChat switches to a brand-new session whose transcript holds only
// the greeting. In-flight loads and replies for the old session are dropped.
func (s *Store) StartNewChat() model.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Info("started new chat", zap.String("session_id", s.sessionID))
	return s.snapshotLocked()
}

func (s *Store) resetLocked() {
	previous := s.sessionID
	next := s.newSessionID()
	for next == previous || next == "" {
		next = NewSessionID()
	}
	s.sessionID = next
	s.messages = []model.Message{{
		ID:         1,
		Role:       model.RoleAssistant,
		Content:    Greeting,
		Timestamp:  s.clock.Now().In(s.loc).Format(messageTimeLayout),
		Provenance: model.ProvenanceSynthetic,
	}}
	s.typing = false
	s.loadSeq++
}

// ListConversations reloads the conversation list from the backend and
// replaces the in-memory list. On failure the previous list is kept and
// returned; the error is only logged.
func (s *Store) ListConversations(ctx context.Context) []model.ConversationSummary {
	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.mu.Unlock()

	records, err := s.backend.RecentConversations(ctx, s.userID)
	if err != nil {
		s.logger.Error("failed to load conversations", zap.Error(err))
		return s.Conversations()
	}

	formatted := make([]model.ConversationSummary, 0, len(records))
	for i, rec := range records {
		formatted = append(formatted, s.summarize(i, rec))
	}

	s.mu.Lock()
	if seq == s.listSeq {
		s.conversations = formatted
	} else {
		s.logger.Debug("discarding superseded conversation list")
	}
	s.mu.Unlock()

	return s.Conversations()
}

func (s *Store) summarize(index int, rec model.RawConversation) model.ConversationSummary {
	title := rec.Title
	if title == "" {
		if rec.SessionID != "" {
			title = fmt.Sprintf("Chat %d", index+1)
		} else {
			title = "New Chat"
		}
	}
	return model.ConversationSummary{
		ID:        rec.SessionID,
		SessionID: rec.SessionID,
		Title:     title,
		Time:      ListTime(rec.Timestamp, s.loc),
	}
}

// LoadConversation fetches a session's history, makes it current and
// replaces the transcript with it. Failures yield a single apology message
// instead of an error so the dashboard never goes blank.
func (s *Store) LoadConversation(ctx context.Context, sessionID string) []model.Message {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	log := s.logger.With(zap.String("session_id", sessionID))

	var messages []model.Message
	resp, err := s.backend.History(ctx, s.userID, sessionID)
	if err != nil {
		log.Error("failed to load conversation", zap.Error(err))
		apology := loadErrorApology
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			apology = loadStatusApology
		}
		messages = []model.Message{s.synthetic(1, apology)}
	} else {
		messages = s.convertHistory(resp, log)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		log.Info("discarding superseded conversation load")
		return cloneMessages(s.messages)
	}
	s.sessionID = sessionID
	s.messages = messages
	s.typing = false
	return cloneMessages(s.messages)
}

func (s *Store) convertHistory(resp *model.HistoryResponse, log *logger.Logger) []model.Message {
	now := s.clock.Now()
	messages := make([]model.Message, 0, len(resp.Messages))
	for i, raw := range resp.Messages {
		var rec model.RawMessage
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn("skipping undecodable message", zap.Int("index", i), zap.Error(err))
			continue
		}
		role := model.Role(rec.Role)
		if rec.Role == "" {
			continue
		}
		if !role.Valid() {
			log.Warn("skipping message with unknown role", zap.Int("index", i), zap.String("role", rec.Role))
			continue
		}
		messages = append(messages, model.Message{
			ID:         len(messages) + 1,
			Role:       role,
			Content:    rec.Content,
			Timestamp:  MessageTime(rec.Timestamp, now, s.loc),
			Provenance: model.ProvenanceConfirmed,
		})
	}
	return messages
}

// SendMessage appends text as a user message, posts it to the chat endpoint
// and appends the reply, or a synthetic error message when the call fails.
// Sends are serialized: a second call waits for the first to finish.
func (s *Store) SendMessage(ctx context.Context, text string) (model.Transcript, error) {
	if strings.TrimSpace(text) == "" {
		return s.Current(), ErrEmptyMessage
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	sessionID := s.sessionID
	generation := s.loadSeq
	userIndex := len(s.messages)
	s.messages = append(s.messages, model.Message{
		ID:         userIndex + 1,
		Role:       model.RoleUser,
		Content:    text,
		Timestamp:  s.nowDisplay(),
		Provenance: model.ProvenanceOptimistic,
	})
	s.typing = true
	s.mu.Unlock()
	metrics.ChatMessagesTotal.WithLabelValues(string(model.RoleUser), string(model.ProvenanceOptimistic)).Inc()

	log := s.logger.With(zap.String("session_id", sessionID))

	reply, err := s.backend.Chat(ctx, &model.ChatRequest{
		Question:  text,
		SessionID: sessionID,
		UserID:    s.userID,
	})

	s.mu.Lock()
	s.typing = false
	current := generation == s.loadSeq && sessionID == s.sessionID
	switch {
	case !current:
		log.Info("dropping reply for a session that is no longer current")
	case err != nil:
		log.Error("chat request failed", zap.Error(err))
		s.messages = append(s.messages, s.synthetic(len(s.messages)+1, fmt.Sprintf(sendErrorFormat, err.Error())))
		metrics.ChatMessagesTotal.WithLabelValues(string(model.RoleAssistant), string(model.ProvenanceSynthetic)).Inc()
	default:
		s.messages[userIndex].Provenance = model.ProvenanceConfirmed
		s.messages = append(s.messages, model.Message{
			ID:         len(s.messages) + 1,
			Role:       model.RoleAssistant,
			Content:    reply,
			Timestamp:  s.nowDisplay(),
			Provenance: model.ProvenanceConfirmed,
		})
		metrics.ChatMessagesTotal.WithLabelValues(string(model.RoleAssistant), string(model.ProvenanceConfirmed)).Inc()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	// The backend names new sessions after the first reply, so the
	// sidebar is reloaded shortly afterwards.
	if current && err == nil && s.listRefreshDelay >= 0 {
		refreshCtx := context.WithoutCancel(ctx)
		s.clock.AfterFunc(s.listRefreshDelay, func() {
			s.ListConversations(refreshCtx)
		})
	}

	return snapshot, nil
}

func (s *Store) synthetic(id int, content string) model.Message {
	return model.Message{
		ID:         id,
		Role:       model.RoleAssistant,
		Content:    content,
		Timestamp:  s.nowDisplay(),
		Provenance: model.ProvenanceSynthetic,
	}
}

func (s *Store) nowDisplay() string {
	return s.clock.Now().In(s.loc).Format(messageTimeLayout)
}

func (s *Store) snapshotLocked() model.Transcript {
	return model.Transcript{
		UserID:    s.userID,
		SessionID: s.sessionID,
		Messages:  cloneMessages(s.messages),
		Typing:    s.typing,
	}
}

func cloneMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}
