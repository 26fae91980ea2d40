package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

var (
	_ Generator   = (*OpenAIGenerator)(nil)
	_ Transcriber = (*OpenAITranscriber)(nil)
	_ Synthesizer = (*OpenAISpeech)(nil)
)

// NewOpenAIClient builds an OpenAI client for the given key and optional
// base URL override.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// OpenAIGenerator implements Generator using OpenAI chat completions.
//
// Protocol-driven prompts (escalation warnings, check-ins, call notices)
// request structured JSON output so the wording and the urgency hint come
// back as separate fields; conversational turns use plain text.
type OpenAIGenerator struct {
	Client *openai.Client

	Model       string
	MaxTokens   int
	Temperature float64
}

// structuredReply is the schema for protocol-driven replies.
type structuredReply struct {
	Message string `json:"message"`
	Urgency int    `json:"urgency"`
}

var structuredReplySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"message": {
			Type:        "string",
			Description: "The spoken reply, plain text, no markdown.",
		},
		"urgency": {
			Type:        "integer",
			Description: "Urgency of delivery from 0 (calm) to 3 (maximum).",
		},
	},
	Required:             []string{"message", "urgency"},
	AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, p *Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System()),
			openai.UserMessage(userContent(p)),
		},
	}
	if g.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.MaxTokens))
	}
	if g.Temperature > 0 {
		params.Temperature = param.NewOpt(g.Temperature)
	}

	structured := p.Kind != KindConversation
	if structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "reply",
					Description: param.NewOpt("A single spoken reply with an urgency hint."),
					Schema:      structuredReplySchema,
					Strict:      param.NewOpt(true),
				},
			},
		}
	}

	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("dialog: openai: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("dialog: openai: blocked: %s", choice.Message.Refusal)
	}
	content := choice.Message.Content
	if content == "" {
		return "", fmt.Errorf("dialog: openai: empty content")
	}
	if !structured {
		return content, nil
	}

	var sr structuredReply
	if err := unmarshalRepaired([]byte(content), &sr); err != nil {
		return "", fmt.Errorf("dialog: openai: decode structured reply: %w", err)
	}
	if sr.Message == "" {
		return "", fmt.Errorf("dialog: openai: structured reply without message")
	}
	return sr.Message, nil
}

// userContent renders the user-side message for a prompt. Protocol prompts
// may fire without fresh user input.
func userContent(p *Prompt) string {
	if p.UserInput != "" {
		return p.UserInput
	}
	if p.Session != nil && p.Session.LastUserInput != "" {
		return fmt.Sprintf("(no new input; last heard: %q)", p.Session.LastUserInput)
	}
	return "(no user input)"
}

// unmarshalRepaired unmarshals model-emitted JSON, attempting a repair
// pass on syntax errors before giving up.
func unmarshalRepaired(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// OpenAITranscriber implements Transcriber using the audio transcription
// endpoint.
type OpenAITranscriber struct {
	Client *openai.Client

	// Model defaults to whisper-1.
	Model string

	// Language is an optional ISO-639-1 hint.
	Language string
}

// Transcribe implements Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	model := t.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(model),
		File:  openai.File(bytes.NewReader(audio), "audio.wav", "audio/wav"),
	}
	if t.Language != "" {
		params.Language = param.NewOpt(t.Language)
	}
	resp, err := t.Client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// OpenAISpeech implements Synthesizer using the speech endpoint. Urgency
// raises speaking speed slightly; the voice stays fixed.
type OpenAISpeech struct {
	Client *openai.Client

	// Model defaults to tts-1.
	Model string

	// Voice defaults to alloy.
	Voice string
}

// Synthesize implements Synthesizer.
func (s *OpenAISpeech) Synthesize(ctx context.Context, text string, urgency int) ([]byte, error) {
	model := s.Model
	if model == "" {
		model = string(openai.SpeechModelTTS1)
	}
	voice := s.Voice
	if voice == "" {
		voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	if urgency < 0 {
		urgency = 0
	}
	if urgency > 3 {
		urgency = 3
	}
	resp, err := s.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(model),
		Voice: openai.AudioSpeechNewParamsVoice(voice),
		Input: text,
		Speed: param.NewOpt(1.0 + 0.06*float64(urgency)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dialog: openai: read speech body: %w", err)
	}
	return audio, nil
}
