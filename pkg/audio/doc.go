// Package audio normalizes inbound caller audio for the speech pipeline.
//
// Clients send 16-bit signed PCM at whatever rate and channel count their
// microphone produces. The transcription backend wants 16 kHz mono, so
// every chunk passes through Normalize before it reaches the pipeline.
package audio
