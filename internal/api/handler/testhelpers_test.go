package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/history"
	"github.com/iconidentify/grabbot/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRequestHandler is a test implementation of RequestHandler. When media
// is set it is handed to the delivery and the delivery result decides the
// outcome.
type mockRequestHandler struct {
	outcome    domain.Outcome
	media      *domain.MediaDescriptor
	got        domain.Request
	deliverErr error
}

func (m *mockRequestHandler) Handle(ctx context.Context, req domain.Request, delivery service.Delivery) domain.Outcome {
	m.got = req
	if m.media == nil {
		return m.outcome
	}
	if err := delivery.Deliver(ctx, m.media); err != nil {
		m.deliverErr = err
		return domain.Failed(domain.ClassDeliveryError, m.media, err)
	}
	return domain.Delivered(m.media)
}

// fixedQuota is a test implementation of QuotaReporter.
type fixedQuota struct {
	limit     int
	remaining int
	wait      time.Duration
}

func (f fixedQuota) Limit() int                                        { return f.limit }
func (f fixedQuota) Remaining(domain.UserID, time.Time) int            { return f.remaining }
func (f fixedQuota) RetryAfter(domain.UserID, time.Time) time.Duration { return f.wait }

type mockUsers int

func (m mockUsers) Users() int { return int(m) }

type mockFetchGauge struct {
	inFlight int64
	slots    int
}

func (m mockFetchGauge) InFlight() int64    { return m.inFlight }
func (m mockFetchGauge) MaxConcurrent() int { return m.slots }

// mockHistory is a test implementation of HistoryReader.
type mockHistory struct {
	entries  []history.Entry
	err      error
	gotUser  domain.UserID
	gotLimit int
}

func (m *mockHistory) Recent(ctx context.Context, userID domain.UserID, limit int) ([]history.Entry, error) {
	m.gotUser = userID
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}
