package summary

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/datatypes"
)

// Topic phrases open the summary; the first matching topic wins, in
// this order, and unmatched conversations fall through to the last.
var topics = []struct {
	name     string
	keywords []string
	opening  string
}{
	{"anxiety", []string{"anxious", "anxiety", "panic", "worry", "worried", "nervous"}, "Session focused on anxiety management."},
	{"work", []string{"work", "job", "boss", "career", "deadline", "office"}, "Session focused on work-related stress."},
	{"mood", []string{"mood", "sad", "depress", "down", "unhappy", "happy"}, "Session focused on mood regulation."},
	{"general", nil, "Session focused on general well-being."},
}

var trendPhrases = map[string]string{
	models.TrendImproving: "Sentiment trend was improving.",
	models.TrendStable:    "Sentiment trend was stable.",
	models.TrendDeclining: "Sentiment trend was declining.",
}

var closingPhrases = map[string]string{
	models.TrendImproving: "Client showed progress during the session.",
	models.TrendStable:    "Client maintained a steady state throughout the session.",
	models.TrendDeclining: "Client may need additional support going forward.",
}

// Aggregate folds the scored messages of a conversation into the
// sentiment metrics. Messages without a score do not contribute; an
// unscored conversation aggregates to all-neutral and a stable trend.
// The trend compares the last score against the first.
func Aggregate(msgs []models.Message) models.SentimentMetrics {
	var scores []float64
	for _, m := range msgs {
		if m.SentimentScore != nil {
			scores = append(scores, *m.SentimentScore)
		}
	}
	if len(scores) == 0 {
		return models.SentimentMetrics{Average: 0.5, Min: 0.5, Max: 0.5, Trend: models.TrendStable}
	}

	min, max, sum := scores[0], scores[0], 0.0
	for _, v := range scores {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	trend := models.TrendStable
	if len(scores) > 1 {
		switch first, last := scores[0], scores[len(scores)-1]; {
		case last > first:
			trend = models.TrendImproving
		case last < first:
			trend = models.TrendDeclining
		}
	}

	return models.SentimentMetrics{
		Average: sum / float64(len(scores)),
		Min:     min,
		Max:     max,
		Trend:   trend,
	}
}

// Compose builds the summary text: topic opening, trend middle, and a
// closing selected by trend.
func Compose(msgs []models.Message, trend string) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(strings.ToLower(m.Text))
		sb.WriteByte(' ')
	}
	corpus := sb.String()

	opening := topics[len(topics)-1].opening
	for _, t := range topics {
		if len(t.keywords) == 0 {
			break
		}
		matched := false
		for _, kw := range t.keywords {
			if strings.Contains(corpus, kw) {
				matched = true
				break
			}
		}
		if matched {
			opening = t.opening
			break
		}
	}

	return opening + " " + trendPhrases[trend] + " " + closingPhrases[trend]
}

// Synthesizer turns a conversation into its persisted digest.
type Synthesizer struct {
	store   *store.Store
	timeout time.Duration
}

func NewSynthesizer(st *store.Store, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{store: st, timeout: timeout}
}

// Summarize recomputes and upserts the digest for a conversation.
// Repeated calls on an unchanged message set write the same aggregate,
// so regeneration is safe at any time. Under the soft timeout the
// summary already computed is still persisted on a short grace
// context; caller cancellation, by contrast, propagates as Cancelled.
func (s *Synthesizer) Summarize(parent context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	const op = "summary.summarize"

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	metrics := Aggregate(msgs)
	sum := &models.Summary{
		ConversationID:   conversationID,
		SummaryText:      Compose(msgs, metrics.Trend),
		SentimentMetrics: datatypes.NewJSONType(metrics),
		MessageCount:     len(msgs),
	}

	persist := func(c context.Context) error {
		return store.Retry(c, 3, 100*time.Millisecond, func() error {
			return s.store.UpsertSummary(c, sum)
		})
	}

	if err := persist(ctx); err != nil {
		if parent.Err() != nil {
			return nil, store.E(op, store.KindCancelled, parent.Err())
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			gctx, gcancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
			defer gcancel()
			if gerr := persist(gctx); gerr == nil {
				slog.Warn("summary persisted after soft timeout", "conversation_id", conversationID)
				return sum, nil
			}
		}
		return nil, err
	}
	return sum, nil
}
