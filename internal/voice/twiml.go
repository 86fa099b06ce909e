package voice

import (
	"fmt"
	"strings"
)

// Fixed prompts spoken by the assistant. The responses are rendered by the
// provider's TTS, so they stay free of markup.
const (
	greetingPrompt      = "Hello! I am your AI assistant. How can I help you today?"
	lowConfidencePrompt = "I did not understand your response. Please try again."
	silencePrompt       = "I didn't hear anything. Please try again."
	anythingElsePrompt  = "Is there anything else I can help you with?"
	goodbyePrompt       = "Thank you for calling. Have a great day! Goodbye."
	wrapUpPrompt        = "Thank you for calling. Goodbye!"
	errorPrompt         = "I'm sorry, I'm having trouble processing your request right now. Please try again later."
)

// TwiML renders the provider response documents that drive the call. Every
// method is a pure function of its arguments; no builder state is shared
// between requests.
type TwiML struct {
	voice    string
	language string
}

// NewTwiML creates a renderer using the given TTS voice and language.
func NewTwiML(voice, language string) *TwiML {
	if voice == "" {
		voice = "Polly.Joanna"
	}
	if language == "" {
		language = "en-US"
	}
	return &TwiML{voice: voice, language: language}
}

// Greeting renders the opening (or re-prompt) document: speak the greeting,
// gather speech, and on silence re-prompt and restart the flow.
// When lowConfidence is set the spoken line reports that the previous
// utterance was not understood.
func (t *TwiML) Greeting(baseURL string, lowConfidence bool) string {
	prompt := greetingPrompt
	if lowConfidence {
		prompt = lowConfidencePrompt
	}

	var b strings.Builder
	t.open(&b)
	t.say(&b, prompt)
	t.gather(&b, baseURL)
	t.say(&b, silencePrompt)
	fmt.Fprintf(&b, "  <Redirect>%s/api/twilio/voice</Redirect>\n", escapeXML(baseURL))
	t.close(&b)
	return b.String()
}

// Continuation renders the document spoken after an AI reply: speak the
// reply, gather the next utterance, nudge once more on silence, then thank
// the caller and hang up.
func (t *TwiML) Continuation(reply, baseURL string) string {
	var b strings.Builder
	t.open(&b)
	t.say(&b, reply)
	t.gather(&b, baseURL)
	t.say(&b, anythingElsePrompt)
	t.gather(&b, baseURL)
	t.say(&b, wrapUpPrompt)
	b.WriteString("  <Hangup/>\n")
	t.close(&b)
	return b.String()
}

// Farewell renders the goodbye document.
func (t *TwiML) Farewell() string {
	var b strings.Builder
	t.open(&b)
	t.say(&b, goodbyePrompt)
	b.WriteString("  <Hangup/>\n")
	t.close(&b)
	return b.String()
}

// ErrorFallback renders the apology-and-hangup document returned when a
// collaborator fails. The caller always receives a well-formed response.
func (t *TwiML) ErrorFallback() string {
	var b strings.Builder
	t.open(&b)
	t.say(&b, errorPrompt)
	b.WriteString("  <Hangup/>\n")
	t.close(&b)
	return b.String()
}

func (t *TwiML) open(b *strings.Builder) {
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Response>\n")
}

func (t *TwiML) close(b *strings.Builder) {
	b.WriteString("</Response>")
}

func (t *TwiML) say(b *strings.Builder, text string) {
	fmt.Fprintf(b, "  <Say voice=%q language=%q>%s</Say>\n",
		t.voice, t.language, escapeXML(text))
}

func (t *TwiML) gather(b *strings.Builder, baseURL string) {
	fmt.Fprintf(b, "  <Gather input=\"speech\" timeout=\"5\" speechTimeout=\"auto\" action=\"%s/api/twilio/voice/respond\" method=\"POST\"/>\n",
		escapeXML(baseURL))
}

// escapeXML escapes special characters for XML content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
