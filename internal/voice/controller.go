// Package voice drives the webhook-driven conversational loop for telephone
// calls: session lifecycle, speech handling, AI replies, and the TwiML
// documents returned to the telephony provider.
package voice

import (
	"context"
	"errors"
	"time"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/sessions"
)

// Recorder persists call activity to durable storage. All calls are
// best-effort: the controller invokes them on detached goroutines and a
// failure never affects the webhook response.
type Recorder interface {
	CreateCall(ctx context.Context, callSID, from, to, direction string) error
	AddMessage(ctx context.Context, callSID string, role, content string) error
	UpdateStatus(ctx context.Context, callSID, status string, duration *int) error
}

// Controller reacts to telephony webhook events and drives session state:
// no session -> active (call started), active -> ended (termination phrase,
// terminal status, or expiry sweep). Collaborator failures degrade to fixed
// fallback documents; the provider always receives well-formed TwiML.
type Controller struct {
	store    *sessions.Store
	ai       ai.Client
	twiml    *TwiML
	recorder Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics

	baseURL             string
	confidenceThreshold float64
	aiProvider          string
	aiModel             string
}

// ControllerConfig holds dependencies and tuning for the controller.
type ControllerConfig struct {
	Store    *sessions.Store
	AI       ai.Client
	TwiML    *TwiML
	Recorder Recorder // optional
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// WebhookBaseURL is embedded into TwiML action URLs.
	WebhookBaseURL string

	// ConfidenceThreshold is the minimum accepted speech confidence
	// (default 0.5).
	ConfidenceThreshold float64

	// AIProvider and AIModel label the AI request metrics.
	AIProvider string
	AIModel    string
}

// NewController creates a call lifecycle controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("voice: session store is required")
	}
	if cfg.AI == nil {
		return nil, errors.New("voice: ai client is required")
	}
	if cfg.TwiML == nil {
		return nil, errors.New("voice: twiml renderer is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("voice: logger is required")
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.5
	}

	return &Controller{
		store:               cfg.Store,
		ai:                  cfg.AI,
		twiml:               cfg.TwiML,
		recorder:            cfg.Recorder,
		logger:              cfg.Logger,
		metrics:             cfg.Metrics,
		baseURL:             cfg.WebhookBaseURL,
		confidenceThreshold: cfg.ConfidenceThreshold,
		aiProvider:          cfg.AIProvider,
		aiModel:             cfg.AIModel,
	}, nil
}

// HandleCallStarted registers a session for the call and returns the
// greeting document. Duplicate start webhooks return the same session
// unchanged apart from a refreshed activity time.
func (c *Controller) HandleCallStarted(ctx context.Context, ev StartEvent) string {
	if ev.CallSID == "" {
		c.logger.Warn(ctx, "call started without CallSid")
		return c.twiml.ErrorFallback()
	}

	c.store.GetOrCreate(ev.CallSID, ev.From, ev.To)
	c.updateSessionGauge()
	c.logger.Info(ctx, "incoming call", "from", ev.From, "to", ev.To)

	c.background(ctx, "create call", func(ctx context.Context) error {
		return c.recorder.CreateCall(ctx, ev.CallSID, ev.From, ev.To, "inbound")
	})

	return c.twiml.Greeting(c.baseURL, false)
}

// HandleSpeech processes a gathered utterance and returns the next document:
// a re-prompt for silence or low confidence, a farewell for termination
// phrases, the AI reply otherwise. An AI failure yields the error fallback
// and the session stays active.
func (c *Controller) HandleSpeech(ctx context.Context, ev SpeechEvent) string {
	if ev.CallSID == "" {
		c.logger.Warn(ctx, "speech event without CallSid")
		return c.twiml.ErrorFallback()
	}

	if ev.Transcript == "" {
		c.logger.Debug(ctx, "no speech detected, re-prompting")
		return c.twiml.Greeting(c.baseURL, false)
	}

	if ev.Confidence != nil && *ev.Confidence < c.confidenceThreshold {
		c.logger.Debug(ctx, "low confidence transcript, re-prompting",
			"confidence", *ev.Confidence)
		return c.twiml.Greeting(c.baseURL, true)
	}

	if isTerminationPhrase(ev.Transcript) {
		c.logger.Info(ctx, "caller said goodbye")
		c.store.End(ev.CallSID)
		c.updateSessionGauge()
		return c.twiml.Farewell()
	}

	// The session may have been ended by a racing status webhook or the
	// expiry sweep; the conversation continues without history in that case.
	sess, active := c.store.Get(ev.CallSID)

	var history []sessions.Turn
	if active {
		sess.Append(sessions.RoleUser, ev.Transcript)
		history = sess.History(true)
	}
	c.background(ctx, "record user message", func(ctx context.Context) error {
		return c.recorder.AddMessage(ctx, ev.CallSID, string(sessions.RoleUser), ev.Transcript)
	})

	reply, err := c.generate(ctx, ev.Transcript, history)
	if err != nil {
		c.logger.Error(ctx, "ai generation failed", "error", err)
		return c.twiml.ErrorFallback()
	}

	if active {
		sess.Append(sessions.RoleAssistant, reply)
	}
	c.background(ctx, "record assistant message", func(ctx context.Context) error {
		return c.recorder.AddMessage(ctx, ev.CallSID, string(sessions.RoleAssistant), reply)
	})

	return c.twiml.Continuation(reply, c.baseURL)
}

// HandleStatus observes a call-status change. Terminal statuses evict the
// session; duplicate terminations are harmless.
func (c *Controller) HandleStatus(ctx context.Context, ev StatusEvent) {
	if ev.CallSID == "" {
		c.logger.Warn(ctx, "status event without CallSid")
		return
	}

	c.logger.Info(ctx, "call status changed", "status", ev.Status)
	c.background(ctx, "update call status", func(ctx context.Context) error {
		return c.recorder.UpdateStatus(ctx, ev.CallSID, ev.Status, ev.Duration)
	})

	if !IsTerminalStatus(ev.Status) {
		return
	}

	if sess, ok := c.store.End(ev.CallSID); ok {
		c.updateSessionGauge()
		c.logger.Info(ctx, "call ended", "messages", len(sess.Messages()))
	}
}

func (c *Controller) generate(ctx context.Context, prompt string, history []sessions.Turn) (string, error) {
	start := time.Now()
	reply, err := c.ai.Generate(ctx, prompt, history)

	if c.metrics != nil {
		c.metrics.AIRequestDuration.WithLabelValues(c.aiProvider, c.aiModel).
			Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.AIRequests.WithLabelValues(c.aiProvider, c.aiModel, status).Inc()
	}
	return reply, err
}

// background runs a best-effort persistence call on a detached goroutine.
// Failures are logged and never propagate to the webhook response path.
func (c *Controller) background(ctx context.Context, op string, fn func(context.Context) error) {
	if c.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Warn(ctx, "best-effort persistence failed", "op", op, "error", err)
		}
	}()
}

func (c *Controller) updateSessionGauge() {
	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(float64(c.store.Len()))
	}
}
