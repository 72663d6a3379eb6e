package audit

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/session"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/httpmiddleware"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/kafka"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextActionKey holds the action a route declared at registration.
	ContextActionKey = "audit_action"
	// ContextActorKey holds an identity resolved by the handler itself, e.g.
	// a login attempt attributed before the caller is authenticated.
	ContextActorKey = "audit_actor"
	// ContextDetailsKey holds handler-supplied detail fields merged into the
	// record's details payload.
	ContextDetailsKey = "audit_details"
	// ContextOutcomeKey overrides the status-derived outcome.
	ContextOutcomeKey = "audit_outcome"
)

const writeTimeout = 5 * time.Second

// DeclareAction declares the audit action for every request on a route.
// Declared actions take precedence over path inference.
func DeclareAction(a Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextActionKey, a)
		c.Next()
	}
}

// SetActor attributes the request to an identity the handler resolved itself.
func SetActor(c *gin.Context, id uuid.UUID) {
	c.Set(ContextActorKey, id)
}

// SetOutcome forces the record outcome regardless of response status.
func SetOutcome(c *gin.Context, o Outcome) {
	c.Set(ContextOutcomeKey, o)
}

// AddDetail attaches a detail field to the request's activity record.
func AddDetail(c *gin.Context, key string, value any) {
	details, _ := c.Get(ContextDetailsKey)
	m, ok := details.(map[string]any)
	if !ok {
		m = map[string]any{}
		c.Set(ContextDetailsKey, m)
	}
	m[key] = value
}

// Recorder turns completed requests into activity records. Writes happen on a
// background worker; a full queue or a failing store drops the record and
// never the request.
type Recorder struct {
	store     Store
	logger    *slog.Logger
	skip      map[string]struct{}
	queue     chan Record
	pending   sync.WaitGroup
	workerEnd chan struct{}
	publisher kafka.Publisher
	topic     string
	security  map[Action]struct{}
}

type RecorderOption func(*Recorder)

// WithPublisher mirrors security-relevant records to a Kafka topic.
func WithPublisher(pub kafka.Publisher, topic string) RecorderOption {
	return func(r *Recorder) {
		r.publisher = pub
		r.topic = topic
	}
}

func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Record, n)
		}
	}
}

func NewRecorder(store Store, logger *slog.Logger, skipPaths []string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:     store,
		logger:    logger,
		skip:      map[string]struct{}{},
		queue:     make(chan Record, 1024),
		workerEnd: make(chan struct{}),
		security:  map[Action]struct{}{},
	}
	for _, p := range skipPaths {
		r.skip[p] = struct{}{}
	}
	for _, a := range SecurityActions() {
		r.security[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Start() {
	go func() {
		defer close(r.workerEnd)
		for rec := range r.queue {
			r.write(rec)
		}
	}()
}

// Close stops accepting records and drains the queue.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.workerEnd
}

// Wait blocks until every enqueued record has been written or dropped.
// Test hook; production code never waits on the audit path.
func (r *Recorder) Wait() {
	r.pending.Wait()
}

// Record emits an activity record outside the HTTP pipeline, e.g. for
// administrative state transitions.
func (r *Recorder) Record(rec Record) {
	r.enqueue(rec)
}

// Middleware observes every response as the terminal pipeline step. Requests
// on the skip list produce no record.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.Request.URL.Path
		if _, skipped := r.skip[path]; skipped {
			return
		}
		r.enqueue(r.fromRequest(c))
	}
}

func (r *Recorder) fromRequest(c *gin.Context) Record {
	path := c.Request.URL.Path
	method := c.Request.Method
	status := c.Writer.Status()

	var action Action
	if declared, ok := c.Get(ContextActionKey); ok {
		if a, ok := declared.(Action); ok {
			action = a
		}
	}
	if action == "" {
		action = InferAction(path, method)
	}

	var actor *uuid.UUID
	if v, ok := c.Get(ContextActorKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			actor = &id
		}
	} else if sub := c.GetString(auth.ContextUserIDKey); sub != "" {
		if id, err := uuid.Parse(sub); err == nil {
			actor = &id
		}
	}

	outcome := OutcomeSuccess
	if status >= 400 {
		outcome = OutcomeFailure
	}
	if v, ok := c.Get(ContextOutcomeKey); ok {
		if o, ok := v.(Outcome); ok {
			outcome = o
		}
	}

	details := map[string]any{
		"path":     path,
		"method":   method,
		"status":   status,
		"has_body": c.Request.ContentLength > 0,
	}
	if ref := c.Request.Referer(); ref != "" {
		details["referrer"] = ref
	}
	if q := c.Request.URL.RawQuery; q != "" {
		details["query"] = q
	}
	if v, ok := c.Get(ContextDetailsKey); ok {
		if extra, ok := v.(map[string]any); ok {
			for k, val := range extra {
				details[k] = val
			}
		}
	}

	return Record{
		Actor:          actor,
		Action:         action,
		Details:        details,
		NetworkAddress: c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		Outcome:        outcome,
		HTTPMethod:     method,
		Path:           path,
		SessionID:      session.FromContext(c),
		RequestID:      c.GetString(httpmiddleware.ContextRequestIDKey),
	}
}

func (r *Recorder) enqueue(rec Record) {
	r.pending.Add(1)
	select {
	case r.queue <- rec:
	default:
		r.pending.Done()
		metrics.AuditWriteFailures.Inc()
		r.logger.Warn("audit queue full, record dropped",
			slog.String("action", string(rec.Action)),
			slog.String("path", rec.Path),
		)
	}
}

func (r *Recorder) write(rec Record) {
	defer r.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, &rec); err != nil {
		metrics.AuditWriteFailures.Inc()
		r.logger.Error("audit write failed",
			slog.String("action", string(rec.Action)),
			slog.String("path", rec.Path),
			slog.Any("error", err),
		)
		return
	}
	metrics.AuditRecordsTotal.WithLabelValues(string(rec.Action), string(rec.Outcome)).Inc()

	r.publish(ctx, rec)
}

func (r *Recorder) publish(ctx context.Context, rec Record) {
	if r.publisher == nil {
		return
	}
	if _, relevant := r.security[rec.Action]; !relevant {
		return
	}

	envelope, err := kafka.NewEnvelope(kafka.EventTypeSecurityEvent, kafka.EventVersion, rec.RequestID)
	if err != nil {
		r.logger.Error("security event envelope failed", slog.Any("error", err))
		return
	}
	event := kafka.SecurityEvent{
		Envelope:       envelope,
		Action:         string(rec.Action),
		Outcome:        string(rec.Outcome),
		NetworkAddress: rec.NetworkAddress,
		Path:           rec.Path,
		Details:        rec.Details,
	}
	if rec.Actor != nil {
		event.Actor = rec.Actor.String()
	}

	if _, _, err := r.publisher.PublishJSON(ctx, r.topic, event.Actor, event); err != nil {
		r.logger.Error("security event publish failed", slog.Any("error", err))
	}
}
