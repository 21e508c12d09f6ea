package summary

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ptr(v float64) *float64 { return &v }

func scored(v float64) models.Message {
	return models.Message{Sender: models.SenderUser, Text: "x", SentimentScore: ptr(v)}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregate(t *testing.T) {
	cases := []struct {
		name string
		msgs []models.Message
		want models.SentimentMetrics
	}{
		{
			"rising",
			[]models.Message{scored(0.2), scored(0.5), scored(0.8)},
			models.SentimentMetrics{Average: 0.5, Min: 0.2, Max: 0.8, Trend: models.TrendImproving},
		},
		{
			"falling",
			[]models.Message{scored(0.8), scored(0.5), scored(0.2)},
			models.SentimentMetrics{Average: 0.5, Min: 0.2, Max: 0.8, Trend: models.TrendDeclining},
		},
		{
			"single",
			[]models.Message{scored(0.6)},
			models.SentimentMetrics{Average: 0.6, Min: 0.6, Max: 0.6, Trend: models.TrendStable},
		},
		{
			"round trip",
			[]models.Message{scored(0.3), scored(0.9), scored(0.3)},
			models.SentimentMetrics{Average: 0.5, Min: 0.3, Max: 0.9, Trend: models.TrendStable},
		},
		{
			"unscored ignored",
			[]models.Message{{Sender: models.SenderSystem, Text: "note"}, scored(0.4), scored(0.7)},
			models.SentimentMetrics{Average: 0.55, Min: 0.4, Max: 0.7, Trend: models.TrendImproving},
		},
		{
			"nothing scored",
			[]models.Message{{Sender: models.SenderSystem, Text: "note"}},
			models.SentimentMetrics{Average: 0.5, Min: 0.5, Max: 0.5, Trend: models.TrendStable},
		},
		{
			"empty",
			nil,
			models.SentimentMetrics{Average: 0.5, Min: 0.5, Max: 0.5, Trend: models.TrendStable},
		},
	}
	for _, tc := range cases {
		got := Aggregate(tc.msgs)
		if !almost(got.Average, tc.want.Average) || !almost(got.Min, tc.want.Min) ||
			!almost(got.Max, tc.want.Max) || got.Trend != tc.want.Trend {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func msgsWithText(texts ...string) []models.Message {
	var msgs []models.Message
	for _, text := range texts {
		msgs = append(msgs, models.Message{Sender: models.SenderUser, Text: text})
	}
	return msgs
}

func TestComposeTopicSelection(t *testing.T) {
	cases := []struct {
		name  string
		texts []string
		want  string
	}{
		{"anxiety wins over work", []string{"I am worried about my work"}, "Session focused on anxiety management."},
		{"work", []string{"another deadline at the office"}, "Session focused on work-related stress."},
		{"mood via stem", []string{"I have been feeling depressed"}, "Session focused on mood regulation."},
		{"general fallthrough", []string{"we talked about the garden"}, "Session focused on general well-being."},
		{"no messages", nil, "Session focused on general well-being."},
	}
	for _, tc := range cases {
		got := Compose(msgsWithText(tc.texts...), models.TrendStable)
		wantFull := tc.want + " Sentiment trend was stable. Client maintained a steady state throughout the session."
		if got != wantFull {
			t.Errorf("%s: got %q, want %q", tc.name, got, wantFull)
		}
	}
}

func TestComposeClosingTracksTrend(t *testing.T) {
	msgs := msgsWithText("hello")
	got := Compose(msgs, models.TrendDeclining)
	want := "Session focused on general well-being. Sentiment trend was declining. Client may need additional support going forward."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func seedConversation(t *testing.T, st *store.Store) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Email: "client@example.com", Role: models.RoleClient}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	c := &models.Client{UserID: u.ID}
	if err := st.CreateClient(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	conv, err := st.CreateConversation(ctx, c.ID, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestSummarizePersistsDigest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st)

	turns := []models.Message{
		{ConversationID: conv.ID, Sender: models.SenderUser, Text: "I feel anxious about work", SentimentScore: ptr(0.3)},
		{ConversationID: conv.ID, Sender: models.SenderAI, Text: "Tell me more", SentimentScore: ptr(0.4)},
		{ConversationID: conv.ID, Sender: models.SenderUser, Text: "A bit better now", SentimentScore: ptr(0.6)},
	}
	for i := range turns {
		if err := st.AppendMessage(ctx, &turns[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	synth := NewSynthesizer(st, time.Minute)
	sum, err := synth.Summarize(ctx, conv.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	wantText := "Session focused on anxiety management. Sentiment trend was improving. Client showed progress during the session."
	if sum.SummaryText != wantText {
		t.Fatalf("got %q, want %q", sum.SummaryText, wantText)
	}
	if sum.MessageCount != 3 {
		t.Fatalf("expected message count 3, got %d", sum.MessageCount)
	}
	metrics := sum.SentimentMetrics.Data()
	if !almost(metrics.Min, 0.3) || !almost(metrics.Max, 0.6) || metrics.Trend != models.TrendImproving {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	stored, err := st.GetSummary(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if stored.SummaryText != wantText {
		t.Fatalf("persisted text differs: %q", stored.SummaryText)
	}

	// Regeneration on an unchanged conversation rewrites the same row.
	again, err := synth.Summarize(ctx, conv.ID)
	if err != nil {
		t.Fatalf("second summarize: %v", err)
	}
	if again.ID != stored.ID || again.SummaryText != wantText {
		t.Fatalf("regeneration changed the digest: %+v", again)
	}
}

func TestSummarizeUnknownConversation(t *testing.T) {
	st := newTestStore(t)
	synth := NewSynthesizer(st, time.Minute)
	conv := seedConversation(t, st)
	if err := st.DeleteConversation(context.Background(), conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := synth.Summarize(context.Background(), conv.ID); !store.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSummarizeCancelledCaller(t *testing.T) {
	st := newTestStore(t)
	conv := seedConversation(t, st)
	synth := NewSynthesizer(st, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := synth.Summarize(ctx, conv.ID); !store.IsCancelled(err) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}
