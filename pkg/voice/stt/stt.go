// Package stt defines the transcription boundary and its OpenAI Whisper
// implementation.
package stt

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// Transcriber converts raw PCM16 mono audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// OpenAITranscriber transcribes via the OpenAI audio API. The raw PCM buffer
// is wrapped in a WAV header because the API expects a container format.
type OpenAITranscriber struct {
	client     *openai.Client
	model      string
	sampleRate int
}

func NewOpenAITranscriber(client *openai.Client, model string, sampleRate int) *OpenAITranscriber {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &OpenAITranscriber{client: client, model: model, sampleRate: sampleRate}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wav := wrapWAV(pcm, t.sampleRate)
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "turn.wav",
	})
	if err != nil {
		return "", errors.Wrap(err, "transcribe audio")
	}
	return resp.Text, nil
}

// wrapWAV prefixes a standard 44-byte RIFF header for 16-bit mono PCM.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
