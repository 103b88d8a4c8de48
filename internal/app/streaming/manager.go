// Package streaming tracks the chat streams in flight, one per conversation,
// and turns their growing text into ordered extraction updates.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/observability/metrics"
)

// ErrStaleUpdate is returned by Feed when a later chunk of the same session
// already published its result.
var ErrStaleUpdate = errors.New("stale stream update")

// Extractor runs over the full accumulated text of a reply.
type Extractor interface {
	Extract(ctx context.Context, accumulated string) models.ExtractionResult
}

// Update is the extraction result for one received chunk.
type Update struct {
	SessionID      string
	ConversationID string
	Seq            uint64
	Result         models.ExtractionResult
}

// Session is one streamed reply. It is cancelled when a newer message starts in
// the same conversation or when the manager ends it.
type Session struct {
	ID             string
	ConversationID string
	StartedAt      time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	manager *Manager
	clock   clockwork.Clock

	mu   sync.Mutex
	buf  strings.Builder
	seq  uint64
	once sync.Once
}

// Context is cancelled once the session is superseded or ended.
func (s *Session) Context() context.Context { return s.ctx }

// Accumulated returns the text received so far.
func (s *Session) Accumulated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Feed appends a delta chunk and extracts over the whole reply so far.
// It fails with models.ErrSessionSuperseded once the session is cancelled, and
// with ErrStaleUpdate when a later chunk finished extraction first.
func (s *Session) Feed(delta string) (Update, error) {
	if err := s.ctx.Err(); err != nil {
		return Update{}, fmt.Errorf("%w: %v", models.ErrSessionSuperseded, err)
	}

	s.mu.Lock()
	s.buf.WriteString(delta)
	s.seq++
	seq, text := s.seq, s.buf.String()
	s.mu.Unlock()

	metrics.Get().StreamChunksTotal.Add(s.ctx, 1)

	u := Update{
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Seq:            seq,
		Result:         s.manager.extractor.Extract(s.ctx, text),
	}
	if err := s.manager.publish(s, u); err != nil {
		return Update{}, err
	}
	return u, nil
}

func (s *Session) close() {
	s.once.Do(func() {
		s.cancel()
		metrics.Get().ActiveStreamsGauge.Add(context.Background(), -1)
	})
}

type conversation struct {
	session *Session
	latest  Update
	hasLast bool
}

// Manager owns the sessions, keyed by conversation.
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	extractor     Extractor
	clock         clockwork.Clock
	logger        *zap.Logger
}

// NewManager creates a manager. A nil clock uses the real clock.
func NewManager(extractor Extractor, clock clockwork.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		conversations: make(map[string]*conversation),
		extractor:     extractor,
		clock:         clock,
		logger:        logger,
	}
}

// Begin starts a session for conversationID, cancelling the one in flight and
// discarding its last result. An empty conversationID starts a new conversation.
// The session context is derived from parent.
func (m *Manager) Begin(parent context.Context, conversationID string) *Session {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		StartedAt:      m.clock.Now(),
		ctx:            ctx,
		cancel:         cancel,
		manager:        m,
		clock:          m.clock,
	}

	m.mu.Lock()
	prev, ok := m.conversations[conversationID]
	m.conversations[conversationID] = &conversation{session: s}
	m.mu.Unlock()

	metrics.Get().ActiveStreamsGauge.Add(ctx, 1)
	if ok && prev.session != nil {
		prev.session.close()
		metrics.Get().StreamSessionsSuperseded.Add(ctx, 1)
		m.logger.Info("Superseded in-flight stream",
			zap.String("conversation_id", conversationID),
			zap.String("previous_session_id", prev.session.ID),
			zap.String("session_id", s.ID))
	}
	return s
}

// publish records u as the conversation's latest result if s is still current
// and u is newer than what is stored.
func (m *Manager) publish(s *Session, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[s.ConversationID]
	if !ok || conv.session != s || s.ctx.Err() != nil {
		return models.ErrSessionSuperseded
	}
	if conv.hasLast && conv.latest.Seq >= u.Seq {
		return ErrStaleUpdate
	}
	conv.latest, conv.hasLast = u, true
	return nil
}

// Latest returns the most recent update of the conversation's current session.
func (m *Manager) Latest(conversationID string) (Update, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[conversationID]
	if !ok || !conv.hasLast {
		return Update{}, false
	}
	return conv.latest, true
}

// End cancels s. The conversation keeps its latest result while s is still
// the current session.
func (m *Manager) End(s *Session) {
	s.close()
}

// Cancel aborts the conversation's in-flight session and forgets its results.
func (m *Manager) Cancel(conversationID string) bool {
	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	delete(m.conversations, conversationID)
	m.mu.Unlock()
	if ok && conv.session != nil {
		conv.session.close()
	}
	return ok
}

// Active counts sessions that are still running.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conv := range m.conversations {
		if conv.session != nil && conv.session.ctx.Err() == nil {
			n++
		}
	}
	return n
}

// CleanupExpired drops conversations whose session started more than maxAge ago.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	cutoff := m.clock.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, conv := range m.conversations {
		if conv.session.StartedAt.Before(cutoff) {
			expired = append(expired, conv.session)
			delete(m.conversations, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		m.logger.Info("Cleaned up expired conversations", zap.Int("count", len(expired)))
	}
	return len(expired)
}
