package ai

import (
	"context"
	"testing"

	"github.com/gvargas9/smartterapist/internal/sentiment"
	"github.com/gvargas9/smartterapist/internal/store"
)

func TestRuleGeneratorPicksTopicAndBand(t *testing.T) {
	g := NewRuleGenerator(sentiment.NewKeywordScorer())
	ctx := context.Background()

	cases := []struct {
		name string
		text string
		want string
	}{
		{
			"anxiety mixed",
			"I am anxious",
			"I hear some worry in what you're sharing. What do you think is feeding it most right now?",
		},
		{
			"work heavy",
			"work is terrible and hopeless",
			"Work is taking a real toll on you. What part of it feels heaviest at the moment?",
		},
		{
			"mood light",
			"happy with my progress",
			"I'm glad there's some brightness in there. What would help you hold on to it?",
		},
		{
			"general mixed",
			"nothing in particular",
			"I'm here with you. What feels most important to talk about today?",
		},
	}
	for _, tc := range cases {
		reply, err := g.Respond(ctx, Request{UserText: tc.text})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if reply.Text != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, reply.Text, tc.want)
		}
		if reply.Degraded {
			t.Errorf("%s: rule reply marked degraded", tc.name)
		}
	}
}

func TestRuleGeneratorScoresOwnReply(t *testing.T) {
	scorer := sentiment.NewKeywordScorer()
	g := NewRuleGenerator(scorer)

	reply, err := g.Respond(context.Background(), Request{UserText: "I feel anxious about work"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Sentiment == nil {
		t.Fatalf("expected scored reply")
	}
	if *reply.Sentiment < 0 || *reply.Sentiment > 1 {
		t.Fatalf("score %v out of range", *reply.Sentiment)
	}
	if want := scorer.Score(reply.Text); *reply.Sentiment != want {
		t.Fatalf("score %v does not match reply text score %v", *reply.Sentiment, want)
	}
}

func TestRuleGeneratorDeterministic(t *testing.T) {
	g := NewRuleGenerator(sentiment.NewKeywordScorer())
	ctx := context.Background()
	req := Request{UserText: "my mood has been low"}

	a, err := g.Respond(ctx, req)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	b, err := g.Respond(ctx, req)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if a.Text != b.Text || *a.Sentiment != *b.Sentiment {
		t.Fatalf("replies differ: %+v vs %+v", a, b)
	}
}

func TestRuleGeneratorCancelled(t *testing.T) {
	g := NewRuleGenerator(sentiment.NewKeywordScorer())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Respond(ctx, Request{UserText: "hi"}); !store.IsCancelled(err) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}
