package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/history"
)

// DefaultMaxConcurrent is the number of fetches allowed to run at once.
const DefaultMaxConcurrent = 30

// Limiter admits or rejects requests per user.
type Limiter interface {
	Allow(userID domain.UserID) bool
}

// Fetcher downloads the media behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, userID domain.UserID) (*domain.MediaDescriptor, error)
}

// Delivery sends fetched media back through the originating transport.
type Delivery interface {
	Deliver(ctx context.Context, media *domain.MediaDescriptor) error
}

// DeliveryFunc adapts a function to Delivery.
type DeliveryFunc func(ctx context.Context, media *domain.MediaDescriptor) error

// Deliver calls f.
func (f DeliveryFunc) Deliver(ctx context.Context, media *domain.MediaDescriptor) error {
	return f(ctx, media)
}

// AcceptNotifier is implemented by deliveries that tell the user a request
// passed the rate check and is being fetched.
type AcceptNotifier interface {
	Accepted(ctx context.Context)
}

// Observer receives request and fetch measurements.
type Observer interface {
	ObserveOutcome(kind domain.RequestKind, class domain.MessageClass)
	ObserveFetch(d time.Duration, err error)
	FetchStarted()
	FetchFinished()
}

// HistoryRecorder persists request outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// CoordinatorConfig holds coordinator configuration.
type CoordinatorConfig struct {
	MaxConcurrent int
	// DeleteAfterDelivery removes the media file once it has been sent.
	DeleteAfterDelivery bool
	Clock               func() time.Time
}

// Coordinator drives a request through validation, rate checking, fetching
// and delivery, and decides the message class of every outcome.
type Coordinator struct {
	limiter  Limiter
	fetcher  Fetcher
	slots    *semaphore.Weighted
	observer Observer
	history  HistoryRecorder
	cfg      CoordinatorConfig
	logger   *slog.Logger

	inFlight atomic.Int64
}

// NewCoordinator creates a coordinator. observer and history may be nil.
func NewCoordinator(
	cfg CoordinatorConfig,
	limiter Limiter,
	fetcher Fetcher,
	observer Observer,
	history HistoryRecorder,
	logger *slog.Logger,
) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		limiter:  limiter,
		fetcher:  fetcher,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		observer: observer,
		history:  history,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle processes one request and returns its terminal outcome.
func (c *Coordinator) Handle(ctx context.Context, req domain.Request, delivery Delivery) domain.Outcome {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Kind == "" {
		req.Kind = domain.RequestKindDirect
	}

	start := c.cfg.Clock()
	outcome := c.handle(ctx, &req, delivery)
	c.finish(ctx, req, outcome, c.cfg.Clock().Sub(start))
	return outcome
}

func (c *Coordinator) handle(ctx context.Context, req *domain.Request, delivery Delivery) domain.Outcome {
	rawURL, err := ValidateURL(req.RawText)
	if err != nil {
		return domain.Rejected(domain.ClassInvalidInput, err)
	}
	req.RawText = rawURL

	if !c.limiter.Allow(req.UserID) {
		return domain.Rejected(domain.ClassRateLimited, domain.ErrRateLimited)
	}

	if n, ok := delivery.(AcceptNotifier); ok {
		n.Accepted(ctx)
	}

	media, err := c.fetch(ctx, req)
	if err != nil {
		return domain.Failed(domain.ClassFetchError, nil, err)
	}

	if err := delivery.Deliver(ctx, media); err != nil {
		return domain.Failed(domain.ClassDeliveryError, media, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err))
	}

	if c.cfg.DeleteAfterDelivery {
		c.removeMedia(media)
	}

	return domain.Delivered(media)
}

// fetch runs the fetcher while holding one download slot.
func (c *Coordinator) fetch(ctx context.Context, req *domain.Request) (*domain.MediaDescriptor, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, domain.NewFetchError(req.UserID, req.RawText, "acquire slot", err)
	}
	defer c.slots.Release(1)

	c.inFlight.Add(1)
	c.observer.FetchStarted()
	defer func() {
		c.observer.FetchFinished()
		c.inFlight.Add(-1)
	}()

	start := c.cfg.Clock()
	media, err := c.fetcher.Fetch(ctx, req.RawText, req.UserID)
	c.observer.ObserveFetch(c.cfg.Clock().Sub(start), err)
	return media, err
}

// InFlight returns the number of fetches currently holding a slot.
func (c *Coordinator) InFlight() int64 {
	return c.inFlight.Load()
}

// MaxConcurrent returns the download slot count.
func (c *Coordinator) MaxConcurrent() int {
	return c.cfg.MaxConcurrent
}

func (c *Coordinator) removeMedia(media *domain.MediaDescriptor) {
	if err := os.Remove(media.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove delivered media", "path", media.Path, "error", err)
	}
}

func (c *Coordinator) finish(ctx context.Context, req domain.Request, outcome domain.Outcome, elapsed time.Duration) {
	attrs := []any{
		"request_id", req.ID,
		"user_id", req.UserID,
		"kind", req.Kind,
		"state", outcome.State,
		"class", outcome.Class,
		"duration_ms", elapsed.Milliseconds(),
	}
	if outcome.Media != nil {
		attrs = append(attrs, "media_kind", outcome.Media.Kind, "path", outcome.Media.Path)
	}

	switch outcome.Class {
	case domain.ClassSuccess:
		c.logger.Info("request delivered", attrs...)
	case domain.ClassInvalidInput, domain.ClassRateLimited:
		c.logger.Debug("request rejected", attrs...)
	default:
		c.logger.Warn("request failed", append(attrs, "error", outcome.Err)...)
	}

	c.observer.ObserveOutcome(req.Kind, outcome.Class)

	if c.history == nil {
		return
	}
	entry := history.Entry{
		ID:        req.ID,
		UserID:    req.UserID,
		Kind:      req.Kind,
		URL:       req.RawText,
		Class:     outcome.Class,
		MediaKind: outcome.MediaKind(),
		Duration:  elapsed,
		CreatedAt: c.cfg.Clock().UTC(),
	}
	if outcome.Media != nil {
		entry.Title = outcome.Media.Title
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	// Recording must outlive a cancelled request context.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.history.Record(recordCtx, entry); err != nil {
		c.logger.Warn("failed to record request history", "request_id", req.ID, "error", err)
	}
}

// ValidateURL trims text and checks that it is an absolute http or https URL
// with a host. It returns the trimmed URL.
func ValidateURL(text string) (string, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return "", domain.ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", domain.ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", domain.ErrInvalidURL)
	}

	return raw, nil
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(domain.RequestKind, domain.MessageClass) {}
func (nopObserver) ObserveFetch(time.Duration, error)                      {}
func (nopObserver) FetchStarted()                                          {}
func (nopObserver) FetchFinished()                                         {}
