package webpush

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/ece"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
)

// DefaultConcurrency bounds the parallel pipelines of one delivery.
const DefaultConcurrency = 16

// Authenticator returns the Authorization header value for a push service
// origin. *vapid.Signer satisfies it.
type Authenticator interface {
	Authorization(ctx context.Context, audience string) (string, error)
}

// Sender posts an encrypted message. *Transport satisfies it.
type Sender interface {
	Send(ctx context.Context, msg Message) AttemptResult
}

// Dispatcher delivers one event to every subscription of its recipient.
type Dispatcher struct {
	resolver    *Resolver
	auth        Authenticator
	sender      Sender
	concurrency int
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger
	encryptOpts []ece.Option
	urgencyOf   func(Priority) Urgency
	onAttempt   func(ctx context.Context, attempt AttemptResult)
	onSkipped   func(ctx context.Context, event Event)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSender replaces the default Transport.
func WithSender(s Sender) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sender = s
		}
	}
}

// WithConcurrency bounds how many subscriptions are served at once.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithTTL sets the longest time a push service may hold a message.
func WithTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl >= 0 {
			d.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEncryptOptions passes options to every ece.Encrypt call.
func WithEncryptOptions(opts ...ece.Option) DispatcherOption {
	return func(d *Dispatcher) {
		d.encryptOpts = append(d.encryptOpts, opts...)
	}
}

// WithPriorityUrgency derives the Urgency header from the event priority
// instead of sending the transport default.
func WithPriorityUrgency() DispatcherOption {
	return func(d *Dispatcher) {
		d.urgencyOf = UrgencyFor
	}
}

// WithOnAttempt registers an observer called once per attempt.
// It runs on the pipeline goroutine and must be safe for concurrent use.
func WithOnAttempt(fn func(ctx context.Context, attempt AttemptResult)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onAttempt = fn
	}
}

// WithOnSkipped registers an observer called when an expired event is skipped.
func WithOnSkipped(fn func(ctx context.Context, event Event)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onSkipped = fn
	}
}

// NewDispatcher creates a Dispatcher. Without WithSender it posts through a
// default Transport.
func NewDispatcher(resolver *Resolver, auth Authenticator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		auth:        auth,
		concurrency: DefaultConcurrency,
		ttl:         DefaultTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sender == nil {
		d.sender = NewTransport()
	}
	d.logger = d.logger.With(logger.Component("webpush.dispatcher"))
	return d
}

// UrgencyFor maps an event priority to the RFC 8030 urgency.
func UrgencyFor(p Priority) Urgency {
	switch p {
	case PriorityLow:
		return UrgencyLow
	case PriorityHigh, PriorityUrgent:
		return UrgencyHigh
	default:
		return UrgencyNormal
	}
}

// Deliver sends event to every subscription registered for event.UserID.
//
// An expired event is not sent: the result has Skipped set and the error is
// ErrEventExpired. A failure to authorize any audience aborts the whole
// delivery with ErrAuthentication before anything is sent. Every other
// failure is per subscription and recorded in the result.
func (d *Dispatcher) Deliver(ctx context.Context, event Event) (DeliveryResult, error) {
	return d.deliver(ctx, event, func() ([]Subscription, error) {
		return d.resolver.Resolve(ctx, event.UserID)
	})
}

// DeliverToSubscriptions is Deliver restricted to the given endpoints.
// Unknown endpoints are ignored.
func (d *Dispatcher) DeliverToSubscriptions(ctx context.Context, event Event, ids []string) (DeliveryResult, error) {
	return d.deliver(ctx, event, func() ([]Subscription, error) {
		return d.resolver.ResolveIDs(ctx, ids)
	})
}

// Dispatch validates a request and routes it to Deliver or
// DeliverToSubscriptions.
func (d *Dispatcher) Dispatch(ctx context.Context, req DeliveryRequest) (DeliveryResult, error) {
	if err := req.Validate(); err != nil {
		return DeliveryResult{}, err
	}
	event := req.Event(d.now())
	if len(req.SubscriptionIDs) > 0 {
		return d.DeliverToSubscriptions(ctx, event, req.SubscriptionIDs)
	}
	return d.Deliver(ctx, event)
}

// HasActiveSubscriptions reports whether userID can currently be reached.
func (d *Dispatcher) HasActiveSubscriptions(ctx context.Context, userID string) (bool, error) {
	return d.resolver.HasActiveSubscriptions(ctx, userID)
}

func (d *Dispatcher) deliver(ctx context.Context, event Event, resolve func() ([]Subscription, error)) (DeliveryResult, error) {
	if err := event.Validate(); err != nil {
		return DeliveryResult{}, err
	}

	now := d.now()
	if event.Expired(now) {
		d.logger.LogAttrs(ctx, slog.LevelInfo, "event expired, skipping delivery",
			logger.EventID(event.ID),
			logger.UserID(event.UserID),
		)
		if d.onSkipped != nil {
			d.onSkipped(ctx, event)
		}
		return skippedResult(event.ID), ErrEventExpired
	}

	payload, err := event.Payload()
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("%w: encode notification: %w", ErrInvalidEvent, err)
	}
	if len(payload) > ece.MaxContentSize {
		return DeliveryResult{}, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), ece.MaxContentSize)
	}

	subs, err := resolve()
	if err != nil {
		return DeliveryResult{}, err
	}
	if len(subs) == 0 {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "no subscriptions to deliver to",
			logger.EventID(event.ID),
			logger.UserID(event.UserID),
		)
		return Aggregate(event.ID, nil), nil
	}

	plans, err := d.authorize(ctx, event, subs)
	if err != nil {
		return DeliveryResult{}, err
	}

	msgTemplate := Message{
		TTL:     d.messageTTL(event, now),
		Urgency: d.urgency(event.Priority),
	}

	attempts := make([]AttemptResult, len(plans))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, p := range plans {
		g.Go(func() error {
			attempts[i] = d.attempt(ctx, event, p, payload, msgTemplate)
			return nil
		})
	}
	_ = g.Wait()

	result := Aggregate(event.ID, attempts)
	d.logger.LogAttrs(ctx, slog.LevelInfo, "event delivered",
		logger.EventID(event.ID),
		logger.UserID(event.UserID),
		logger.Count("attempts", result.TotalAttempts),
		logger.Count("succeeded", result.SuccessCount),
		logger.Count("failed", result.FailureCount),
		logger.Count("to_remove", len(result.SubscriptionsToRemove)),
	)
	return result, nil
}

// plan is one subscription with its authorization resolved.
type plan struct {
	sub           Subscription
	authorization string
	err           error
}

// authorize computes one header per distinct audience. A subscription whose
// endpoint has no valid origin is kept and fails on its own.
func (d *Dispatcher) authorize(ctx context.Context, event Event, subs []Subscription) ([]plan, error) {
	headers := make(map[string]string)
	plans := make([]plan, len(subs))

	for i, sub := range subs {
		plans[i].sub = sub
		audience, err := sub.Audience()
		if err != nil {
			plans[i].err = err
			continue
		}
		header, ok := headers[audience]
		if !ok {
			header, err = d.auth.Authorization(ctx, audience)
			if err != nil {
				d.logger.LogAttrs(ctx, slog.LevelError, "failed to authorize delivery",
					logger.EventID(event.ID),
					logger.Audience(audience),
					logger.Error(err),
				)
				return nil, fmt.Errorf("%w: audience %s: %w", ErrAuthentication, audience, err)
			}
			headers[audience] = header
		}
		plans[i].authorization = header
	}
	return plans, nil
}

func (d *Dispatcher) attempt(ctx context.Context, event Event, p plan, payload []byte, tmpl Message) AttemptResult {
	start := time.Now()
	var res AttemptResult

	if p.err != nil {
		res = failedAttempt(p.sub.Endpoint, &TransportError{Code: CodeInvalidSubscription, Err: p.err})
	} else if body, err := d.encrypt(payload, p.sub.Keys); err != nil {
		res = failedAttempt(p.sub.Endpoint, &TransportError{Code: CodeEncryptionError, Err: err})
	} else {
		msg := tmpl
		msg.Subscription = p.sub
		msg.Authorization = p.authorization
		msg.Body = body
		res = d.sender.Send(ctx, msg)
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	if !res.Success {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "push delivery failed",
			logger.EventID(event.ID),
			logger.Endpoint(p.sub.Endpoint),
			logger.ErrorCode(string(res.ErrorCode)),
			logger.StatusCode(res.StatusCode),
			slog.String("message", res.ErrorMessage),
		)
	}
	if d.onAttempt != nil {
		d.onAttempt(ctx, res)
	}
	return res
}

func (d *Dispatcher) encrypt(payload []byte, keys Keys) ([]byte, error) {
	p256dh, err := ece.DecodeKey(keys.P256dh)
	if err != nil {
		return nil, fmt.Errorf("%w: decode p256dh: %w", ece.ErrInvalidPublicKey, err)
	}
	auth, err := ece.DecodeKey(keys.Auth)
	if err != nil {
		return nil, fmt.Errorf("%w: decode auth: %w", ece.ErrInvalidAuthSecret, err)
	}
	return ece.Encrypt(payload, p256dh, auth, d.encryptOpts...)
}

// messageTTL is the configured TTL, shortened so the push service drops the
// message once the event expires.
func (d *Dispatcher) messageTTL(event Event, now time.Time) time.Duration {
	ttl := d.ttl
	if event.ExpiresAt != nil {
		ttl = min(ttl, event.ExpiresAt.Sub(now))
	}
	return max(ttl, 0)
}

func (d *Dispatcher) urgency(p Priority) Urgency {
	if d.urgencyOf == nil {
		return ""
	}
	return d.urgencyOf(p)
}

func failedAttempt(endpoint string, terr *TransportError) AttemptResult {
	return AttemptResult{
		SubscriptionID: endpoint,
		ErrorCode:      terr.Code,
		ErrorMessage:   terr.Error(),
	}
}
