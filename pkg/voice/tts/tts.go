// Package tts defines the speech-synthesis boundary and its OpenAI
// implementation.
package tts

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// chunkSize is the PCM chunk granularity relayed to clients.
const chunkSize = 32 * 1024

// Synthesizer turns text into an ordered sequence of audio chunks. The
// channel closes when synthesis finishes or ctx is cancelled; chunk order is
// production order.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (<-chan []byte, error)
}

// OpenAISynthesizer streams PCM audio from the OpenAI speech API.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
}

func NewOpenAISynthesizer(client *openai.Client, model string) *OpenAISynthesizer {
	return &OpenAISynthesizer{client: client, model: model}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voiceID string) (<-chan []byte, error) {
	if text == "" {
		ch := make(chan []byte)
		close(ch)
		return ch, nil
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create speech")
	}

	chunks := make(chan []byte, 8)
	go func() {
		defer close(chunks)
		defer resp.Close()
		for {
			buf := make([]byte, chunkSize)
			n, err := resp.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				// Truncated stream; the chunks already relayed stand.
				return
			}
		}
	}()
	return chunks, nil
}
