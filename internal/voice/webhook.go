package voice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// StartEvent is a call-started webhook: the provider answered a call and
// asks for the opening document.
type StartEvent struct {
	CallSID string
	From    string
	To      string
}

// SpeechEvent is a speech-gathered webhook. Transcript is empty when no
// speech was detected; Confidence is nil when the provider omitted it or
// sent something unparseable.
type SpeechEvent struct {
	CallSID    string
	Transcript string
	Confidence *float64
}

// StatusEvent is a call-status webhook. Duration is nil when absent or
// unparseable.
type StatusEvent struct {
	CallSID  string
	Status   string
	Duration *int
}

// terminalStatuses are the provider statuses after which no further events
// are expected for a call.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// IsTerminalStatus reports whether status ends the call.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// terminationPhrases end the conversation when the transcript contains one.
var terminationPhrases = []string{"goodbye", "bye", "hang up"}

// isTerminationPhrase reports whether the transcript asks to end the call.
// Matching is case-insensitive containment against a small fixed vocabulary.
func isTerminationPhrase(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, phrase := range terminationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ParseStartEvent extracts a call-started event from webhook form params.
func ParseStartEvent(form url.Values) StartEvent {
	return StartEvent{
		CallSID: form.Get("CallSid"),
		From:    form.Get("From"),
		To:      form.Get("To"),
	}
}

// ParseSpeechEvent extracts a speech event from webhook form params.
// Numeric fields arrive as strings and are parsed defensively.
func ParseSpeechEvent(form url.Values) SpeechEvent {
	return SpeechEvent{
		CallSID:    form.Get("CallSid"),
		Transcript: form.Get("SpeechResult"),
		Confidence: parseOptionalFloat(form.Get("Confidence")),
	}
}

// ParseStatusEvent extracts a status event from webhook form params.
func ParseStatusEvent(form url.Values) StatusEvent {
	return StatusEvent{
		CallSID:  form.Get("CallSid"),
		Status:   form.Get("CallStatus"),
		Duration: parseOptionalInt(form.Get("CallDuration")),
	}
}

func parseOptionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// VerifySignature validates a webhook's X-Twilio-Signature header using
// HMAC-SHA1 over the full request URL plus the sorted form parameters.
func VerifySignature(authToken, requestURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sigString := requestURL
	for _, k := range keys {
		for _, v := range form[k] {
			sigString += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sigString))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
