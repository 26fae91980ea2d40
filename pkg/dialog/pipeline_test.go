package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vigil-voice/vigil/pkg/crisis"
)

type fakeGenerator struct {
	reply string
	err   error
	got   *Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p *Prompt) (string, error) {
	g.got = p
	return g.reply, g.err
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (s *fakeSynth) Synthesize(_ context.Context, _ string, _ int) ([]byte, error) {
	return s.audio, s.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return t.text, t.err
}

func TestPipeline_Respond(t *testing.T) {
	gen := &fakeGenerator{reply: "**Are you safe?**"}
	pl := &Pipeline{
		Generator:   gen,
		Synthesizer: &fakeSynth{audio: []byte("mp3")},
	}

	reply := pl.Respond(context.Background(), &Prompt{Kind: KindConversation, UserInput: "hi"}, 0)
	if reply.Degraded {
		t.Error("reply should not be degraded")
	}
	if reply.Text != "Are you safe?" {
		t.Errorf("Text = %q; want markdown stripped", reply.Text)
	}
	if string(reply.Audio) != "mp3" {
		t.Errorf("Audio = %q", reply.Audio)
	}
}

func TestPipeline_Respond_GeneratorFailure(t *testing.T) {
	pl := &Pipeline{
		Generator: &fakeGenerator{err: errors.New("unreachable")},
	}

	p := &Prompt{Kind: KindEscalationWarning, Session: &SessionContext{Level: 2}}
	reply := pl.Respond(context.Background(), p, 2)
	if !reply.Degraded {
		t.Error("reply should be degraded")
	}
	if reply.Text == "" {
		t.Error("degraded reply must still carry text")
	}
}

func TestPipeline_Respond_ScriptFallback(t *testing.T) {
	pl := &Pipeline{Generator: &fakeGenerator{err: errors.New("down")}}

	p := &Prompt{
		Kind:   KindEmergencyStep,
		Script: "I understand there's a fire. Are you safely out of the building?",
	}
	reply := pl.Respond(context.Background(), p, 1)
	if reply.Text != p.Script {
		t.Errorf("Text = %q; want scripted fallback", reply.Text)
	}
}

func TestPipeline_Respond_SynthesisFailure(t *testing.T) {
	pl := &Pipeline{
		Generator:   &fakeGenerator{reply: "ok"},
		Synthesizer: &fakeSynth{err: errors.New("tts down")},
	}
	reply := pl.Respond(context.Background(), &Prompt{Kind: KindConversation}, 0)
	if reply.Audio != nil {
		t.Error("Audio should be nil when synthesis fails")
	}
	if reply.Text != "ok" {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestPipeline_Transcribe_Failure(t *testing.T) {
	pl := &Pipeline{Transcriber: &fakeTranscriber{err: errors.New("asr down")}}
	if got := pl.Transcribe(context.Background(), []byte("pcm")); got != "" {
		t.Errorf("Transcribe = %q; want empty on failure", got)
	}
}

func TestPrompt_System_CarriesState(t *testing.T) {
	p := &Prompt{
		Kind: KindEscalationWarning,
		Session: &SessionContext{
			Phase:     crisis.PhaseEscalating,
			Emergency: crisis.EmergencyFire,
			Step:      2,
			Level:     1,
			History:   []Exchange{{User: "there's a fire", Agent: "are you out?"}},
		},
	}
	sys := p.System()
	for _, want := range []string{"phase=escalating", "emergency=fire", "escalation_level=1", "there's a fire"} {
		if !strings.Contains(sys, want) {
			t.Errorf("System() missing %q:\n%s", want, sys)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"**bold** and *italic*", "bold and italic"},
		{"`code` here", "code here"},
		{"plain", "plain"},
		{"  spaced  ", "spaced"},
	}
	for _, tc := range tests {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
