package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxbridge/voxbridge/internal/email"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/sessions"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/voice"
)

type staticAI struct {
	reply string
}

func (s *staticAI) Generate(context.Context, string, []sessions.Turn) (string, error) {
	return s.reply, nil
}

type serverFixture struct {
	server  *Server
	handler http.Handler
	store   *sessions.Store
	db      *store.DB
}

func newFixture(t *testing.T, mutate func(*Config)) *serverFixture {
	t.Helper()

	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessionStore := sessions.NewStore()
	controller, err := voice.NewController(voice.ControllerConfig{
		Store:          sessionStore,
		AI:             &staticAI{reply: "Happy to help."},
		TwiML:          voice.NewTwiML("", ""),
		Recorder:       db,
		Logger:         logger,
		Metrics:        metrics,
		WebhookBaseURL: "https://voice.example.com",
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	ingestor, err := email.NewIngestor(email.IngestorConfig{
		DB:      db,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}

	cfg := Config{
		Controller:     controller,
		Ingestor:       ingestor,
		DB:             db,
		Logger:         logger,
		Metrics:        metrics,
		Registry:       registry,
		WebhookBaseURL: "https://voice.example.com",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &serverFixture{
		server:  srv,
		handler: srv.Handler(),
		store:   sessionStore,
		db:      db,
	}
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVoiceStartReturnsGreeting(t *testing.T) {
	f := newFixture(t, nil)

	rec := postForm(t, f.handler, "/api/twilio/voice", url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15551112222"},
		"To":      {"+15553334444"},
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Gather") {
		t.Errorf("greeting should gather speech: %s", body)
	}
	if _, ok := f.store.Get("CA1"); !ok {
		t.Error("start webhook should create a session")
	}
}

func TestVoiceRespondRunsConversation(t *testing.T) {
	f := newFixture(t, nil)

	postForm(t, f.handler, "/api/twilio/voice", url.Values{
		"CallSid": {"CA2"}, "From": {"+1"}, "To": {"+2"},
	}, nil)
	rec := postForm(t, f.handler, "/api/twilio/voice/respond", url.Values{
		"CallSid":      {"CA2"},
		"SpeechResult": {"what are your hours"},
		"Confidence":   {"0.93"},
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Happy to help.") {
		t.Errorf("response should speak the AI reply: %s", rec.Body.String())
	}
}

func TestVoiceStatusEndsSession(t *testing.T) {
	f := newFixture(t, nil)

	postForm(t, f.handler, "/api/twilio/voice", url.Values{
		"CallSid": {"CA3"}, "From": {"+1"}, "To": {"+2"},
	}, nil)
	rec := postForm(t, f.handler, "/api/twilio/voice/status", url.Values{
		"CallSid":      {"CA3"},
		"CallStatus":   {"completed"},
		"CallDuration": {"61"},
	}, nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok := f.store.Get("CA3"); ok {
		t.Error("completed call should drop its session")
	}
}

func TestVoiceSignatureVerification(t *testing.T) {
	const authToken = "test-auth-token"
	f := newFixture(t, func(cfg *Config) {
		cfg.VerifySignatures = true
		cfg.TwilioAuthToken = authToken
	})

	form := url.Values{
		"CallSid": {"CA4"}, "From": {"+1"}, "To": {"+2"},
	}

	rec := postForm(t, f.handler, "/api/twilio/voice", form, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unsigned request status = %d, want 403", rec.Code)
	}
	if _, ok := f.store.Get("CA4"); ok {
		t.Error("rejected webhook should not create a session")
	}

	rec = postForm(t, f.handler, "/api/twilio/voice", form, map[string]string{
		"X-Twilio-Signature": twilioSign(authToken, "https://voice.example.com/api/twilio/voice", form),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signed request status = %d, want 200", rec.Code)
	}
}

// twilioSign computes the provider signature: HMAC-SHA1 of the URL plus
// the sorted form pairs.
func twilioSign(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		for _, v := range form[k] {
			payload += k + v
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestEmailInbound(t *testing.T) {
	f := newFixture(t, nil)

	payload, _ := json.Marshal(email.InboundEmail{
		From:    "alice@example.com",
		To:      "support@example.com",
		Subject: "Question",
		Text:    "Do you ship internationally?",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/email/inbound", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var record store.Email
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.ID == "" || !record.Processed {
		t.Errorf("record = %+v", record)
	}
}

func TestEmailInboundRejectsBadBody(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/email/inbound", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEmailList(t *testing.T) {
	f := newFixture(t, nil)

	payload, _ := json.Marshal(email.InboundEmail{
		From: "a@example.com", To: "b@example.com", Subject: "hello",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/email/inbound", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed email: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/email?skip=0&take=10", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		Emails []store.Email `json:"emails"`
		Total  int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 1 || len(out.Emails) != 1 {
		t.Errorf("out = %+v", out)
	}
}

func TestCallEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.db.CreateCall(context.Background(), "CA9", "+1", "+2", "inbound"); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calls/CA9", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var call store.Call
	if err := json.Unmarshal(rec.Body.Bytes(), &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	if call.CallSID != "CA9" {
		t.Errorf("call SID = %q", call.CallSID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calls/CA404", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing call status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	postForm(t, f.handler, "/api/twilio/voice", url.Values{
		"CallSid": {"CA10"}, "From": {"+1"}, "To": {"+2"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "voxbridge_webhook_requests_total") {
		t.Error("metrics output should include webhook counter")
	}
}
