// Package ai provides the hosted language model gateway used to generate
// spoken replies during voice calls.
package ai

import (
	"context"

	"github.com/voxbridge/voxbridge/internal/sessions"
)

// systemPrompt shapes every reply for speech synthesis: short, plain text,
// no markup.
const systemPrompt = `You are a friendly and helpful AI voice assistant.
Keep your responses concise and natural for speech - aim for 1-3 sentences.
Avoid using special characters, markdown, or formatting since your response will be read aloud.
Be conversational and helpful.`

// fallbackReply is returned when the provider responds without content.
const fallbackReply = "I'm sorry, I couldn't generate a response. Please try again."

// Client generates a conversational reply for a user utterance given the
// prior conversation turns. Implementations do not retry; the caller decides
// how a failure degrades.
type Client interface {
	Generate(ctx context.Context, prompt string, history []sessions.Turn) (string, error)
}
