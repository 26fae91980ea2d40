// Package dialog implements the turn pipeline: it converts one inbound
// user message (audio or text) into a reply, by way of transcription,
// emergency classification, language-model generation, sanitization, and
// speech synthesis.
//
// The three external collaborators are narrow interfaces so the engine can
// run against OpenAI, Gemini, or in-process fakes in tests. All of them
// degrade rather than fail: a collaborator error inside a turn produces a
// canned fallback, never a dead session.
package dialog

import (
	"context"

	"github.com/vigil-voice/vigil/pkg/crisis"
)

// Transcriber converts audio bytes into text. An empty transcript with a
// nil error means nothing intelligible was heard.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Generator produces a reply for a structured prompt context.
type Generator interface {
	Generate(ctx context.Context, p *Prompt) (string, error)
}

// Synthesizer renders text to speech. Urgency ranges 0 (calm) to 3
// (maximum); implementations map it to voice settings. A nil audio slice
// with nil error means synthesis is unavailable and the reply goes out as
// text only.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, urgency int) ([]byte, error)
}

// SessionContext is the per-session state handed to prompt construction.
// It mirrors what the escalation engine knows, not the literal wording of
// any step.
type SessionContext struct {
	Phase         crisis.Phase
	Emergency     crisis.EmergencyType
	Step          int
	Level         int
	SilenceCount  int
	LastUserInput string
	History       []Exchange
}

// Exchange is one completed user/agent turn.
type Exchange struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// FallbackReply is the canned reply used when generation fails during a
// regular turn.
const FallbackReply = "I'm here to help. Can you tell me what's happening?"
