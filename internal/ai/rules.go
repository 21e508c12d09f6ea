package ai

import (
	"context"
	"strings"

	"github.com/gvargas9/smartterapist/internal/sentiment"
	"github.com/gvargas9/smartterapist/internal/store"
)

// Reflective prompts per topic, indexed by the mood band of the user's
// message: 0 heavy, 1 mixed, 2 light.
var replyTemplates = map[string][3]string{
	"anxiety": {
		"That sounds really overwhelming. When the anxiety peaks, what usually helps you feel even a little steadier?",
		"I hear some worry in what you're sharing. What do you think is feeding it most right now?",
		"It sounds like you're finding more ease with the anxious moments. What's been making the difference?",
	},
	"work": {
		"Work is taking a real toll on you. What part of it feels heaviest at the moment?",
		"There's a lot happening at work for you. How is it spilling into the rest of your day?",
		"It sounds like things at work are moving in a better direction. What changed for you?",
	},
	"mood": {
		"Thank you for telling me how low it's been. What does a slightly better day look like for you?",
		"Your mood has been shifting around. When did you last notice it lifting, even briefly?",
		"I'm glad there's some brightness in there. What would help you hold on to it?",
	},
	"general": {
		"That sounds hard to carry. Can you walk me through when it started?",
		"I'm here with you. What feels most important to talk about today?",
		"It sounds like things are going well. What are you most pleased about?",
	},
}

var replyTopicKeywords = map[string][]string{
	"anxiety": {"anxious", "anxiety", "panic", "worried", "worry", "nervous"},
	"work":    {"work", "job", "boss", "deadline", "office", "career"},
	"mood":    {"mood", "sad", "down", "depressed", "low", "happy"},
}

// RuleGenerator answers from a small reflective-prompt table with no
// network at all. It keeps conversations moving when no model is
// configured and doubles as the deterministic generator for tests.
type RuleGenerator struct {
	scorer sentiment.Scorer
}

func NewRuleGenerator(scorer sentiment.Scorer) *RuleGenerator {
	return &RuleGenerator{scorer: scorer}
}

func (g *RuleGenerator) Respond(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, store.E("ai.rules_respond", store.KindCancelled, err)
	}

	text := strings.ToLower(req.UserText)
	topic := "general"
	for _, name := range []string{"anxiety", "work", "mood"} {
		for _, kw := range replyTopicKeywords[name] {
			if strings.Contains(text, kw) {
				topic = name
				break
			}
		}
		if topic != "general" {
			break
		}
	}

	band := 1
	switch score := g.scorer.Score(req.UserText); {
	case score < 0.4:
		band = 0
	case score > 0.6:
		band = 2
	}

	reply := replyTemplates[topic][band]
	score := g.scorer.Score(reply)
	return Reply{Text: reply, Sentiment: &score}, nil
}
