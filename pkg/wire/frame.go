// Package wire defines the JSON frame protocol spoken between the agent
// server and its clients. Every frame is a single JSON object discriminated
// by the "type" field.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates frames on the wire.
type FrameType string

// Inbound frame types (client -> server).
const (
	FrameAudio FrameType = "audio"
	FrameText  FrameType = "text"
	FramePing  FrameType = "ping"
)

// Outbound frame types (server -> client).
const (
	FrameTranscript    FrameType = "transcript"
	FrameResponseText  FrameType = "response_text"
	FrameAudioResponse FrameType = "audio_response"
	FrameStatus        FrameType = "status"
	FrameError         FrameType = "error"
	FramePong          FrameType = "pong"
)

// ErrUnknownType is returned by Decode for frame types the protocol does
// not define. The connection stays open; the caller logs and drops.
var ErrUnknownType = errors.New("wire: unknown frame type")

// Frame is the envelope for every message on the connection. Fields are
// populated according to Type; unused fields are omitted from the JSON.
type Frame struct {
	Type FrameType `json:"type"`

	// Text carries transcript, response, or inbound text payloads.
	Text string `json:"text,omitempty"`

	// Audio is base64-encoded audio bytes for audio and audio_response
	// frames.
	Audio string `json:"audio,omitempty"`

	// Status and Message carry progress updates for status frames;
	// Message alone carries the description for error frames.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decode parses a raw frame off the wire. Malformed JSON is an error;
// a missing or unrecognized type yields ErrUnknownType.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wire: decode frame: %w", err)
	}
	switch f.Type {
	case FrameAudio, FrameText, FramePing,
		FrameTranscript, FrameResponseText, FrameAudioResponse,
		FrameStatus, FrameError, FramePong:
		return &f, nil
	}
	return &f, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
}

// Encode marshals a frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// AudioBytes decodes the base64 audio payload of an audio frame.
func (f *Frame) AudioBytes() ([]byte, error) {
	if f.Audio == "" {
		return nil, errors.New("wire: frame has no audio payload")
	}
	b, err := base64.StdEncoding.DecodeString(f.Audio)
	if err != nil {
		return nil, fmt.Errorf("wire: decode audio payload: %w", err)
	}
	return b, nil
}

// Transcript builds a transcript frame for recognized user speech.
func Transcript(text string) *Frame {
	return &Frame{Type: FrameTranscript, Text: text}
}

// ResponseText builds a text reply frame.
func ResponseText(text string) *Frame {
	return &Frame{Type: FrameResponseText, Text: text}
}

// AudioResponse builds an audio reply frame carrying both the synthesized
// audio and the text it was rendered from.
func AudioResponse(audio []byte, text string) *Frame {
	return &Frame{
		Type:  FrameAudioResponse,
		Audio: base64.StdEncoding.EncodeToString(audio),
		Text:  text,
	}
}

// Status builds a progress status frame.
func Status(status, message string) *Frame {
	return &Frame{Type: FrameStatus, Status: status, Message: message}
}

// Error builds a user-visible error frame.
func Error(message string) *Frame {
	return &Frame{Type: FrameError, Message: message}
}

// Pong builds the reply to a ping frame.
func Pong() *Frame {
	return &Frame{Type: FramePong}
}
