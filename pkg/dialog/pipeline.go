package dialog

import (
	"context"
	"log/slog"
)

// Pipeline ties the three collaborators together for one session turn.
// It never propagates a collaborator failure: generation degrades to the
// prompt's fallback wording and synthesis degrades to text-only replies.
type Pipeline struct {
	Transcriber Transcriber
	Generator   Generator
	Synthesizer Synthesizer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Reply is the outcome of one generated turn.
type Reply struct {
	// Text is the sanitized spoken reply.
	Text string

	// Audio is the synthesized speech, nil when synthesis was
	// unavailable.
	Audio []byte

	// Degraded reports that the generator failed and Text carries the
	// deterministic fallback.
	Degraded bool
}

func (pl *Pipeline) logger() *slog.Logger {
	if pl.Logger != nil {
		return pl.Logger
	}
	return slog.Default()
}

// Transcribe converts inbound audio to text. Failures and silence both
// come back as an empty transcript; the caller answers with an error
// frame either way.
func (pl *Pipeline) Transcribe(ctx context.Context, audio []byte) string {
	if pl.Transcriber == nil {
		return ""
	}
	text, err := pl.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		pl.logger().Warn("dialog: transcription failed", "error", err)
		return ""
	}
	return text
}

// Respond generates, sanitizes, and synthesizes the reply for a prompt.
// Urgency shapes the voice, not the wording; wording comes from the
// prompt context.
func (pl *Pipeline) Respond(ctx context.Context, p *Prompt, urgency int) *Reply {
	reply := &Reply{}

	text, err := pl.Generator.Generate(ctx, p)
	if err != nil || text == "" {
		if err != nil {
			pl.logger().Warn("dialog: generation failed, using fallback", "kind", p.Kind, "error", err)
		}
		text = p.Fallback()
		reply.Degraded = true
	}
	reply.Text = Sanitize(text)

	if pl.Synthesizer != nil {
		audio, err := pl.Synthesizer.Synthesize(ctx, reply.Text, urgency)
		if err != nil {
			pl.logger().Warn("dialog: synthesis failed, sending text only", "error", err)
		} else {
			reply.Audio = audio
		}
	}
	return reply
}
