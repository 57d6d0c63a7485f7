package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VenkatGGG/idempotency-coordinator/internal/logging"
)

const (
	// DefaultHeaderName is the request header carrying the client key.
	DefaultHeaderName = "Idempotency-Key"

	tracerName            = "github.com/VenkatGGG/idempotency-coordinator/internal/idempotency"
	defaultReleaseTimeout = 5 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
)

// Result is what a protected operation produced. Body is opaque to the coordinator.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
	// Replayed is set when the result came from the store instead of a fresh execution.
	Replayed bool
}

// Operation is the side-effecting call being protected.
type Operation func(ctx context.Context) (Result, error)

// Options configure one call site.
type Options struct {
	// HeaderName only labels KeyMissing errors; the transport reads the header.
	HeaderName string
	KeyPrefix  string
	// TTL bounds how long an outcome is replayed.
	TTL time.Duration
	// LockTTL bounds how long a crashed holder blocks retries. Zero uses TTL.
	LockTTL   time.Duration
	Mandatory bool
	// IncludeBody stores and verifies the request fingerprint.
	IncludeBody bool
	// IsSuccess decides which results are cached. Nil caches 2xx.
	IsSuccess func(statusCode int) bool
	// ConflictWait polls for the in-flight holder's outcome before failing with Conflict.
	ConflictWait time.Duration
}

// Normalized fills in the defaults: DefaultHeaderName, a one hour TTL, LockTTL
// equal to TTL and Is2xx as the success predicate.
func (o Options) Normalized() Options {
	o.HeaderName = strings.TrimSpace(o.HeaderName)
	if o.HeaderName == "" {
		o.HeaderName = DefaultHeaderName
	}
	o.KeyPrefix = strings.TrimSpace(o.KeyPrefix)
	if o.TTL <= 0 {
		o.TTL = defaultOutcomeTTL
	}
	if o.LockTTL <= 0 {
		o.LockTTL = o.TTL
	}
	if o.IsSuccess == nil {
		o.IsSuccess = Is2xx
	}
	return o
}

// Is2xx reports whether status is in the 200-299 range.
func Is2xx(status int) bool {
	return status >= 200 && status < 300
}

// Coordinator sequences lookup, locking, execution and write-back for
// idempotent operations. It holds no in-process locks; all coordination goes
// through the Store, so it is safe to run on many instances at once.
type Coordinator struct {
	store          Store
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	releaseTimeout time.Duration
	pollInterval   time.Duration
	newOwner       func() string
}

type CoordinatorOption func(*Coordinator)

func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

func WithTracerProvider(tp trace.TracerProvider) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithReleaseTimeout bounds the write-back and unlock calls, which run
// detached from the caller's cancellation.
func WithReleaseTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.releaseTimeout = timeout
	}
}

// WithPollInterval sets how often ConflictWait re-reads the store.
func WithPollInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.pollInterval = interval
	}
}

func NewCoordinator(store Store, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("idempotency: nil store")
	}
	c := &Coordinator{
		store:          store,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		releaseTimeout: defaultReleaseTimeout,
		pollInterval:   defaultPollInterval,
		newOwner: func() string {
			return "idem-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.releaseTimeout <= 0 {
		c.releaseTimeout = defaultReleaseTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c
}

// Execute runs op at most once per (KeyPrefix, rawKey) while its outcome is
// cached, replaying the stored result for retries. It fails with
// ErrKeyMissing, ErrBodyMismatch or ErrConflict, or returns whatever op
// returned. Store failures during lookup degrade to running op uncached.
func (c *Coordinator) Execute(ctx context.Context, rawKey string, opts Options, fingerprintOf FingerprintFunc, op Operation) (res Result, err error) {
	opts = opts.Normalized()

	ctx, span := c.tracer.Start(ctx, "idempotency.execute",
		trace.WithAttributes(attribute.String("idempotency.prefix", opts.KeyPrefix)))
	decision := ""
	defer func() {
		if decision != "" {
			c.metrics.decision(opts.KeyPrefix, decision)
			span.SetAttributes(attribute.String("idempotency.decision", decision))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Only the blank check trims; the stored key keeps the client's exact bytes.
	if strings.TrimSpace(rawKey) == "" {
		if opts.Mandatory {
			decision = DecisionKeyMissing
			return Result{}, &Error{Kind: KindKeyMissing, Key: opts.HeaderName}
		}
		decision = DecisionPassthrough
		return op(ctx)
	}

	key := DeriveKey(opts.KeyPrefix, rawKey)
	log := logging.WithTrace(ctx, c.logger).With(slog.String("idempotency_key", key))

	var fp string
	var hasFP bool
	if opts.IncludeBody && fingerprintOf != nil {
		fp, hasFP, err = fingerprintOf()
		if err != nil {
			return Result{}, fmt.Errorf("fingerprint request: %w", err)
		}
	}

	cached, found, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("idempotency store unavailable, executing without cache", slog.Any("error", err))
		decision = DecisionDegraded
		return op(ctx)
	}
	if found {
		res, err = replay(rawKey, opts, cached, fp, hasFP)
		decision = replayDecision(err)
		if err == nil {
			log.Debug("replaying cached outcome", slog.Int("status", cached.StatusCode))
		}
		return res, err
	}

	owner := c.newOwner()
	locked, err := c.store.TryLock(ctx, key, owner, opts.LockTTL)
	if err != nil {
		log.Warn("idempotency lock unavailable, executing without cache", slog.Any("error", err))
		decision = DecisionDegraded
		return op(ctx)
	}
	if !locked {
		if opts.ConflictWait > 0 {
			if cached, ok := c.waitForOutcome(ctx, key, opts.ConflictWait); ok {
				res, err = replay(rawKey, opts, cached, fp, hasFP)
				decision = replayDecision(err)
				return res, err
			}
		}
		log.Info("idempotent request already in progress")
		decision = DecisionConflict
		return Result{}, &Error{Kind: KindConflict, Key: rawKey}
	}

	defer c.release(ctx, log, key, owner)

	// A concurrent holder may have completed between the lookup and our lock.
	if cached, found, err := c.store.Get(ctx, key); err != nil {
		log.Debug("idempotency recheck failed, executing under lock", slog.Any("error", err))
	} else if found {
		res, err = replay(rawKey, opts, cached, fp, hasFP)
		decision = replayDecision(err)
		return res, err
	}

	decision = DecisionExecuted
	started := time.Now()
	res, err = op(ctx)
	c.metrics.observe(opts.KeyPrefix, time.Since(started))
	if err != nil || !opts.IsSuccess(res.StatusCode) {
		c.metrics.write(opts.KeyPrefix, WriteSkipped)
		return res, err
	}

	outcome := Outcome{
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		Body:        append([]byte(nil), res.Body...),
	}
	if opts.IncludeBody && hasFP {
		outcome.BodyHash = fp
	}
	putCtx, cancel := c.detached(ctx)
	defer cancel()
	if err := c.store.Put(putCtx, key, outcome, opts.TTL); err != nil {
		log.Warn("failed to cache idempotent outcome", slog.Any("error", err))
		c.metrics.write(opts.KeyPrefix, WriteFailed)
		return res, nil
	}
	c.metrics.write(opts.KeyPrefix, WriteStored)
	return res, nil
}

func replay(rawKey string, opts Options, cached Outcome, fp string, hasFP bool) (Result, error) {
	if opts.IncludeBody && hasFP && cached.BodyHash != "" && cached.BodyHash != fp {
		return Result{}, &Error{Kind: KindBodyMismatch, Key: rawKey}
	}
	return Result{
		StatusCode:  cached.StatusCode,
		ContentType: cached.ContentType,
		Body:        cached.Body,
		Replayed:    true,
	}, nil
}

func replayDecision(err error) string {
	if err != nil {
		return DecisionBodyMismatch
	}
	return DecisionReplayed
}

func (c *Coordinator) release(ctx context.Context, log *slog.Logger, key, owner string) {
	releaseCtx, cancel := c.detached(ctx)
	defer cancel()
	if err := c.store.Unlock(releaseCtx, key, owner); err != nil {
		log.Warn("failed to release idempotency lock", slog.Any("error", err))
	}
}

func (c *Coordinator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
}

func (c *Coordinator) waitForOutcome(ctx context.Context, key string, timeout time.Duration) (Outcome, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return Outcome{}, false
		case <-ticker.C:
		}

		outcome, ok, err := c.store.Get(waitCtx, key)
		if err != nil {
			return Outcome{}, false
		}
		if ok {
			return outcome, true
		}
	}
}
