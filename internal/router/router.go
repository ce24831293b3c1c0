// Package router maps raw user text onto a prompt template, either by an
// explicit id or by asking a classifier, and renders the final prompt.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/common/metrics"
	"prompt-switcher/internal/prompts"
)

// DefaultSystemInstruction is sent with every classification request.
const DefaultSystemInstruction = "You are a routing system for an engineering analysis tool. " +
	"Your task is to map a RAW USER REQUEST to the most appropriate PROMPT ID from the provided list " +
	"based on the prompt's description.\n" +
	`Return ONLY a JSON object with the id field: {"id": <id>}`

// DefaultClassifyTimeout bounds a single classification call.
const DefaultClassifyTimeout = 15 * time.Second

var (
	ErrUnknownTemplateID = errors.New("unknown template id")
	errNoClassifier      = errors.New("no classifier configured")
)

// UnknownTemplateError names the id that did not resolve.
type UnknownTemplateError struct {
	ID prompts.ID
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template id: %s", e.ID)
}

func (e *UnknownTemplateError) Is(target error) bool {
	return target == ErrUnknownTemplateID
}

// Request is what a classifier receives. Metadata never carries bodies.
type Request struct {
	SystemInstruction string
	RawRequest        string
	Metadata          []prompts.Metadata
}

// Classifier picks a template id for a raw request. Any error, including a
// malformed reply, makes the router fall back to the first template.
type Classifier interface {
	Classify(ctx context.Context, req Request) (prompts.ID, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) (prompts.ID, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (prompts.ID, error) {
	return f(ctx, req)
}

type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Result is produced fresh for every call and never cached.
type Result struct {
	ID           prompts.ID `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	TemplateBody string     `json:"templateBody"`
	FinalText    string     `json:"finalText"`
	RawRequest   string     `json:"rawRequest"`
	Mode         Mode       `json:"mode"`
	Fallback     bool       `json:"fallback"`
}

// Empty reports the blank-input short-circuit result.
func (r *Result) Empty() bool {
	return r.Name == "" && r.TemplateBody == ""
}

// Router holds routing policy only. Templates and the classifier are passed
// per call so a configuration change never has to touch a Router.
type Router struct {
	timeout     time.Duration
	instruction string
	cache       DecisionCache
	logger      logger.Logger
}

type Option func(*Router)

func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithSystemInstruction(s string) Option {
	return func(r *Router) {
		if strings.TrimSpace(s) != "" {
			r.instruction = s
		}
	}
}

// WithCache remembers successful auto-mode decisions.
func WithCache(c DecisionCache) Option {
	return func(r *Router) { r.cache = c }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		timeout:     DefaultClassifyTimeout,
		instruction: DefaultSystemInstruction,
		logger:      logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithFields(map[string]interface{}{"component": "router"})
	return r
}

// Resolve picks a template and renders it.
//
// With explicitID set the template is looked up directly and the classifier
// is never called; an unknown id is the only error this mode returns. With
// explicitID nil the classifier chooses, and any classifier failure
// (error, timeout, malformed or unknown id) falls back to the first
// template. Blank rawText in auto mode returns an empty Result. If ctx is
// cancelled while classifying, Resolve returns ctx.Err() and records nothing;
// an expired ctx deadline falls back like a classifier timeout.
func (r *Router) Resolve(ctx context.Context, store *prompts.Store, classifier Classifier, rawText string, explicitID *prompts.ID) (*Result, error) {
	if explicitID != nil {
		res, err := render(store, *explicitID, rawText, ModeManual, false)
		if err != nil {
			metrics.RoutingResolutions.WithLabelValues(string(ModeManual), "unknown_id").Inc()
			return nil, err
		}
		metrics.RoutingResolutions.WithLabelValues(string(ModeManual), "resolved").Inc()
		return res, nil
	}

	if strings.TrimSpace(rawText) == "" {
		metrics.RoutingResolutions.WithLabelValues(string(ModeAuto), "empty").Inc()
		return &Result{RawRequest: rawText, Mode: ModeAuto}, nil
	}

	id, outcome, err := r.choose(ctx, store, classifier, rawText)
	if err != nil {
		metrics.RoutingResolutions.WithLabelValues(string(ModeAuto), "cancelled").Inc()
		return nil, err
	}
	metrics.RoutingResolutions.WithLabelValues(string(ModeAuto), outcome).Inc()

	return render(store, id, rawText, ModeAuto, outcome == "fallback")
}

// choose returns the id to use and how it was obtained: cached, classified
// or fallback. It only errors when ctx is cancelled.
func (r *Router) choose(ctx context.Context, store *prompts.Store, classifier Classifier, rawText string) (prompts.ID, string, error) {
	key := ""
	if r.cache != nil {
		key = cacheKey(store, classifier, rawText)
		if id, ok, err := r.cache.Get(ctx, key); err != nil {
			r.logger.Warn("decision cache read failed", map[string]interface{}{"error": err})
		} else if ok {
			if _, known := store.Get(id); known {
				return id, "cached", nil
			}
		}
	}

	id, err := r.classify(ctx, store, classifier, rawText)
	if errors.Is(ctx.Err(), context.Canceled) {
		return prompts.ID{}, "", ctx.Err()
	}
	// an expired caller deadline is treated like the router's own timeout
	abandoned := ctx.Err() != nil

	if err == nil {
		if _, known := store.Get(id); !known {
			err = &UnknownTemplateError{ID: id}
		}
	}
	if err != nil {
		fallback := store.First()
		r.logger.Warn("classification failed, using first template", map[string]interface{}{
			"error":      err,
			"fallbackId": fallback.ID.String(),
		})
		return fallback.ID, "fallback", nil
	}

	if r.cache != nil && !abandoned {
		if err := r.cache.Set(ctx, key, id); err != nil {
			r.logger.Warn("decision cache write failed", map[string]interface{}{"error": err})
		}
	}
	return id, "classified", nil
}

type classifyReply struct {
	id  prompts.ID
	err error
}

// classify runs the classifier under the router's own deadline. The call
// runs on its own goroutine so a classifier that ignores ctx still cannot
// hold Resolve past the deadline.
func (r *Router) classify(ctx context.Context, store *prompts.Store, classifier Classifier, rawText string) (prompts.ID, error) {
	if classifier == nil {
		return prompts.ID{}, errNoClassifier
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := Request{
		SystemInstruction: r.instruction,
		RawRequest:        rawText,
		Metadata:          store.Metadata(),
	}

	start := time.Now()
	replies := make(chan classifyReply, 1)
	go func() {
		id, err := classifier.Classify(cctx, req)
		replies <- classifyReply{id: id, err: err}
	}()

	var reply classifyReply
	select {
	case reply = <-replies:
	case <-cctx.Done():
		reply = classifyReply{err: cctx.Err()}
	}

	status := "ok"
	if reply.err != nil {
		status = "error"
		if errors.Is(reply.err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	metrics.ClassifierDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return reply.id, reply.err
}

func render(store *prompts.Store, id prompts.ID, rawText string, mode Mode, fallback bool) (*Result, error) {
	tmpl, ok := store.Get(id)
	if !ok {
		return nil, &UnknownTemplateError{ID: id}
	}
	return &Result{
		ID:           tmpl.ID,
		Name:         tmpl.Name,
		Description:  tmpl.Description,
		TemplateBody: tmpl.Body,
		FinalText:    tmpl.Render(rawText),
		RawRequest:   rawText,
		Mode:         mode,
		Fallback:     fallback,
	}, nil
}
