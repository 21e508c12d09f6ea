package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/ai"
	"github.com/gvargas9/smartterapist/internal/behavior"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/sentiment"
	"github.com/gvargas9/smartterapist/internal/store"
	"github.com/gvargas9/smartterapist/internal/summary"
)

const (
	// summarizeThreshold is the message count at which an open
	// conversation gets a background summary refresh.
	summarizeThreshold = 5

	// historyWindow caps how many prior messages are handed to the
	// response generator as context.
	historyWindow = 20

	// noteTimeout bounds writes that must land even though the
	// caller's context is already dead.
	noteTimeout = 5 * time.Second
)

const (
	cancelledNote = "Reply generation was cancelled before the assistant could respond."
	degradedNote  = "The assistant reply came from a fallback because the primary responder was unavailable."
)

// Manager coordinates one user turn end to end: persist the user
// message, resolve the client's behavior preset, generate the
// assistant reply, persist it, and refresh the summary once the
// conversation is long enough. Writes to one conversation serialize
// through a per-conversation lock; different conversations do not
// contend.
type Manager struct {
	store    *store.Store
	resolver *behavior.Resolver
	scorer   sentiment.Scorer
	gen      ai.Generator
	synth    *summary.Synthesizer

	locks *lockTable
	hub   *turnHub
	bg    sync.WaitGroup
}

// NewManager wires the conversation manager. gen is normally the
// resilient generator so appends degrade instead of failing when the
// model is down.
func NewManager(st *store.Store, resolver *behavior.Resolver, scorer sentiment.Scorer, gen ai.Generator, synth *summary.Synthesizer) *Manager {
	return &Manager{
		store:    st,
		resolver: resolver,
		scorer:   scorer,
		gen:      gen,
		synth:    synth,
		locks:    newLockTable(),
		hub:      newTurnHub(),
	}
}

// AppendResult is what one user turn produced: the persisted messages
// in timestamp order and whether the assistant reply came from the
// fallback path.
type AppendResult struct {
	Messages []models.Message
	Degraded bool
}

// Start opens a new conversation. A client may hold several open
// conversations at once; use Resume to reuse the latest one instead.
func (m *Manager) Start(ctx context.Context, clientID uuid.UUID, therapistID *uuid.UUID) (*models.Conversation, error) {
	return m.store.CreateConversation(ctx, clientID, therapistID)
}

// GetOpen returns the most recently started open conversation for the
// client, or nil when every conversation is closed.
func (m *Manager) GetOpen(ctx context.Context, clientID uuid.UUID) (*models.Conversation, error) {
	return m.store.GetOpenConversation(ctx, clientID)
}

// Resume returns the client's open conversation, starting one when
// none exists.
func (m *Manager) Resume(ctx context.Context, clientID uuid.UUID, therapistID *uuid.UUID) (*models.Conversation, error) {
	conv, err := m.store.GetOpenConversation(ctx, clientID)
	if err != nil || conv != nil {
		return conv, err
	}
	return m.store.CreateConversation(ctx, clientID, therapistID)
}

// Get returns the conversation row.
func (m *Manager) Get(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	return m.store.GetConversation(ctx, conversationID)
}

// Replay returns the full ordered message history. Legal on open and
// closed conversations.
func (m *Manager) Replay(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	if _, err := m.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return m.store.ListMessages(ctx, conversationID)
}

// Append runs the user turn protocol on a text message.
func (m *Manager) Append(ctx context.Context, conversationID uuid.UUID, text string) (*AppendResult, error) {
	return m.append(ctx, conversationID, text, "")
}

// AppendVoice runs the user turn protocol on a transcribed voice
// message, keeping a reference to the original audio on the stored row.
func (m *Manager) AppendVoice(ctx context.Context, conversationID uuid.UUID, transcript, audioURL string) (*AppendResult, error) {
	return m.append(ctx, conversationID, transcript, audioURL)
}

func (m *Manager) append(ctx context.Context, conversationID uuid.UUID, text, audioURL string) (*AppendResult, error) {
	const op = "conversation.Append"

	if strings.TrimSpace(text) == "" {
		return nil, store.E(op, store.KindInvalid, store.ErrEmptyMessage)
	}

	release, err := m.locks.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Open() {
		return nil, store.E(op, store.KindConflict, store.ErrConversationClosed)
	}

	history, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	userScore := m.scorer.Score(text)
	userMsg := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Text:           text,
		AudioURL:       audioURL,
		SentimentScore: &userScore,
	}
	if err := m.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	m.hub.publish(TurnEvent{ConversationID: conversationID, Message: *userMsg})

	preset, err := m.resolver.Resolve(ctx, conv.ClientID)
	if err != nil {
		if store.IsCancelled(err) {
			return nil, m.cancelled(ctx, conversationID, err)
		}
		// Personalization is optional; a resolver fault must not lose the turn.
		slog.Error("behavior resolve failed, continuing without preset",
			"conversation_id", conversationID,
			"client_id", conv.ClientID,
			"error", err,
		)
		preset = nil
	}

	reply, err := m.gen.Respond(ctx, ai.Request{
		ConversationID: conversationID,
		UserText:       text,
		Preset:         preset,
		History:        history,
	})
	if err != nil {
		if store.IsCancelled(err) {
			return nil, m.cancelled(ctx, conversationID, err)
		}
		return nil, err
	}

	aiScore := m.scorer.Score(reply.Text)
	if reply.Sentiment != nil {
		aiScore = *reply.Sentiment
	}
	aiMsg := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderAI,
		Text:           reply.Text,
		SentimentScore: &aiScore,
	}
	if err := m.store.AppendMessage(ctx, aiMsg); err != nil {
		if store.IsCancelled(err) {
			return nil, m.cancelled(ctx, conversationID, err)
		}
		return nil, err
	}
	m.hub.publish(TurnEvent{ConversationID: conversationID, Message: *aiMsg})

	if reply.Degraded {
		m.appendNote(ctx, conversationID, degradedNote)
	}

	m.maybeSummarize(ctx, conversationID)

	return &AppendResult{
		Messages: []models.Message{*userMsg, *aiMsg},
		Degraded: reply.Degraded,
	}, nil
}

// AppendFrom persists a single message from a non-user sender without
// invoking the response generator. User turns must go through Append;
// assistant turns only ever come from the generator. The message is
// left unscored so therapist notes do not skew sentiment metrics.
func (m *Manager) AppendFrom(ctx context.Context, conversationID uuid.UUID, sender, text string) (*models.Message, error) {
	const op = "conversation.AppendFrom"

	if sender != models.SenderTherapist && sender != models.SenderSystem {
		return nil, store.E(op, store.KindInvalid, store.ErrUnknownSender)
	}
	release, err := m.locks.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := &models.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	m.hub.publish(TurnEvent{ConversationID: conversationID, Message: *msg})
	return msg, nil
}

// Close ends the conversation and schedules a final summary refresh
// when any messages exist. Regenerating supersedes an earlier summary,
// so closing after a mid-conversation refresh is safe.
func (m *Manager) Close(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	release, err := m.locks.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := m.store.CloseConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if n, cerr := m.store.CountMessages(ctx, conversationID); cerr == nil && n > 0 {
		m.scheduleSummary(ctx, conversationID)
	}
	return conv, nil
}

// Summarize produces or refreshes the conversation summary. The write
// serializes with appends through the conversation lock.
func (m *Manager) Summarize(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	release, err := m.locks.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()
	return m.synth.Summarize(ctx, conversationID)
}

// Events streams messages as they are persisted. Pass uuid.Nil to
// receive events for every conversation.
func (m *Manager) Events(conversationID uuid.UUID) *TurnSubscription {
	return m.hub.subscribe(conversationID)
}

// Wait blocks until scheduled background summaries finish. Called on
// shutdown so in-flight summary writes are not cut off.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// cancelled records a system note that the turn was cut short, then
// surfaces the original cancellation. The already persisted user
// message stays in place.
func (m *Manager) cancelled(ctx context.Context, conversationID uuid.UUID, cause error) error {
	m.appendNote(ctx, conversationID, cancelledNote)
	return cause
}

// appendNote persists a neutral system message on a detached context so
// it lands even when the caller is gone. Failures are logged and
// swallowed; a note must never fail the operation it annotates.
func (m *Manager) appendNote(ctx context.Context, conversationID uuid.UUID, text string) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noteTimeout)
	defer cancel()

	score := sentiment.Neutral
	note := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderSystem,
		Text:           text,
		SentimentScore: &score,
	}
	if err := m.store.AppendMessage(nctx, note); err != nil {
		slog.Error("system note append failed",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}
	m.hub.publish(TurnEvent{ConversationID: conversationID, Message: *note})
}

// maybeSummarize schedules a background summary refresh once the
// conversation holds enough messages and the stored summary no longer
// covers them. Called with the conversation lock held; the goroutine
// reacquires the lock itself, so it starts only after the append
// returns.
func (m *Manager) maybeSummarize(ctx context.Context, conversationID uuid.UUID) {
	n, err := m.store.CountMessages(ctx, conversationID)
	if err != nil || n < summarizeThreshold {
		return
	}
	sum, err := m.store.GetSummary(ctx, conversationID)
	if err == nil && int64(sum.MessageCount) == n {
		return
	}
	if err != nil && !store.IsNotFound(err) {
		return
	}
	m.scheduleSummary(ctx, conversationID)
}

func (m *Manager) scheduleSummary(ctx context.Context, conversationID uuid.UUID) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if _, err := m.Summarize(context.WithoutCancel(ctx), conversationID); err != nil {
			slog.Warn("background summary failed",
				"conversation_id", conversationID,
				"error", err,
			)
		}
	}()
}
