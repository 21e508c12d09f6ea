package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const defaultInstructions = `You are a supportive wellness-coaching assistant. Respond to the client with warmth, reflect what you heard, and ask at most one open question. Keep replies under 120 words. Never give medical diagnoses or medication advice. Alongside the reply, rate its sentiment between 0 (most negative) and 1 (most positive), with 0.5 neutral.`

// assistantTurn is the structured output contract for the model.
type assistantTurn struct {
	Reply     string  `json:"reply" jsonschema_description:"The assistant's next reply to the client."`
	Sentiment float64 `json:"sentiment" jsonschema_description:"Sentiment of the reply between 0 and 1, 0.5 neutral."`
}

var assistantTurnSchema = generateSchema[assistantTurn]()

// OpenAI generates replies through the OpenAI Responses API,
// constrained to a strict JSON schema so the sentiment arrives with
// the text in one round trip.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: &client, model: model}
}

func (g *OpenAI) Respond(ctx context.Context, req Request) (Reply, error) {
	const op = "ai.openai_respond"

	instructions := defaultInstructions
	if req.Preset != nil && req.Preset.PromptTemplate != "" {
		instructions += "\n\n" + req.Preset.PromptTemplate
	}

	items := make([]responses.ResponseInputItemUnionParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Text == "" {
			continue
		}
		switch m.Sender {
		case models.SenderAI:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Text, responses.EasyInputMessageRoleAssistant))
		case models.SenderUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Text, responses.EasyInputMessageRoleUser))
		case models.SenderTherapist:
			items = append(items, responses.ResponseInputItemParamOfMessage("Therapist: "+m.Text, responses.EasyInputMessageRoleUser))
		}
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(req.UserText, responses.EasyInputMessageRoleUser))

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "AssistantTurn",
			Schema:      assistantTurnSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Assistant reply with its sentiment score"),
			Type:        "json_schema",
		},
	}

	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(600),
		Instructions:    openai.String(instructions),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Text:            responses.ResponseTextConfigParam{Format: format},
	})
	if err != nil {
		return Reply{}, store.E(op, classifyAPIError(ctx, err), err)
	}

	var turn assistantTurn
	if err := decodeModelJSON(resp.OutputText(), &turn); err != nil {
		return Reply{}, store.E(op, store.KindTransient, err)
	}
	if strings.TrimSpace(turn.Reply) == "" {
		return Reply{}, store.E(op, store.KindTransient, errors.New("model returned an empty reply"))
	}
	score := clampScore(turn.Sentiment)
	return Reply{Text: turn.Reply, Sentiment: &score}, nil
}

func classifyAPIError(ctx context.Context, err error) store.Kind {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return store.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return store.KindTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return store.KindTransient
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "server_error"):
		return store.KindTransient
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
		return store.KindTransient
	}
	return store.KindInternal
}

// decodeModelJSON tolerates chatter around the JSON object some models
// still emit despite strict mode.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	return nil
}

// generateSchema reflects T into the draft the structured-output API
// accepts: no refs, no additional properties, every field required.
func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	tightenSchema(m)
	return m
}

func tightenSchema(schema map[string]interface{}) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				tightenSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		tightenSchema(items)
	}
}
