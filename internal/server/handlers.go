package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/voxbridge/voxbridge/internal/email"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/voice"
)

func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) string {
	form, ok := s.twilioForm(w, r)
	if !ok {
		return "unauthorized"
	}
	ev := voice.ParseStartEvent(form)
	ctx := observability.AddCallSID(r.Context(), ev.CallSID)

	twiml := s.config.Controller.HandleCallStarted(ctx, ev)
	writeTwiML(w, twiml)
	return "ok"
}

func (s *Server) handleVoiceRespond(w http.ResponseWriter, r *http.Request) string {
	form, ok := s.twilioForm(w, r)
	if !ok {
		return "unauthorized"
	}
	ev := voice.ParseSpeechEvent(form)
	ctx := observability.AddCallSID(r.Context(), ev.CallSID)

	twiml := s.config.Controller.HandleSpeech(ctx, ev)
	writeTwiML(w, twiml)
	return "ok"
}

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) string {
	form, ok := s.twilioForm(w, r)
	if !ok {
		return "unauthorized"
	}
	ev := voice.ParseStatusEvent(form)
	ctx := observability.AddCallSID(r.Context(), ev.CallSID)

	s.config.Controller.HandleStatus(ctx, ev)
	w.WriteHeader(http.StatusNoContent)
	return "ok"
}

func (s *Server) handleEmailInbound(w http.ResponseWriter, r *http.Request) string {
	var inbound email.InboundEmail
	if err := json.NewDecoder(r.Body).Decode(&inbound); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "rejected"
	}

	record, err := s.config.Ingestor.Ingest(r.Context(), inbound)
	if err != nil {
		s.logger.Warn(r.Context(), "email ingestion failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return "rejected"
	}

	writeJSON(w, http.StatusCreated, record)
	return "ok"
}

func (s *Server) handleEmailList(w http.ResponseWriter, r *http.Request) string {
	skip, take := pagination(r)
	emails, total, err := s.config.Ingestor.List(r.Context(), skip, take)
	if err != nil {
		s.logger.Error(r.Context(), "email listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list emails")
		return "error"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emails": emails,
		"total":  total,
	})
	return "ok"
}

func (s *Server) handleCallList(w http.ResponseWriter, r *http.Request) string {
	if s.config.DB == nil {
		writeError(w, http.StatusNotFound, "call history is not enabled")
		return "rejected"
	}
	skip, take := pagination(r)
	calls, total, err := s.config.DB.ListCalls(r.Context(), skip, take)
	if err != nil {
		s.logger.Error(r.Context(), "call listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return "error"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": calls,
		"total": total,
	})
	return "ok"
}

func (s *Server) handleCallGet(w http.ResponseWriter, r *http.Request) string {
	if s.config.DB == nil {
		writeError(w, http.StatusNotFound, "call history is not enabled")
		return "rejected"
	}
	sid := r.PathValue("sid")
	call, err := s.config.DB.GetCall(r.Context(), sid)
	if errors.Is(err, store.ErrCallNotFound) {
		writeError(w, http.StatusNotFound, "call not found")
		return "rejected"
	}
	if err != nil {
		s.logger.Error(r.Context(), "call lookup failed", "call_sid", sid, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load call")
		return "error"
	}
	writeJSON(w, http.StatusOK, call)
	return "ok"
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// twilioForm parses the webhook form body and, when enabled, checks the
// Twilio signature. On failure it writes the response itself.
func (s *Server) twilioForm(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return nil, false
	}

	if s.config.VerifySignatures {
		signature := r.Header.Get("X-Twilio-Signature")
		requestURL := s.config.WebhookBaseURL + r.URL.RequestURI()
		if !voice.VerifySignature(s.config.TwilioAuthToken, requestURL, r.PostForm, signature) {
			s.logger.Warn(r.Context(), "rejected webhook with bad signature",
				"path", r.URL.Path)
			writeError(w, http.StatusForbidden, "invalid signature")
			return nil, false
		}
	}

	return r.PostForm, true
}

func pagination(r *http.Request) (skip, take int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	take, _ = strconv.Atoi(r.URL.Query().Get("take"))
	return skip, take
}

func writeTwiML(w http.ResponseWriter, twiml string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twiml))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
