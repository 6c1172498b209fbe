package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/service"
)

// RequestHandler runs a request through the coordinator.
type RequestHandler interface {
	Handle(ctx context.Context, req domain.Request, delivery service.Delivery) domain.Outcome
}

// QuotaReporter reports where a user stands against the rate limit.
type QuotaReporter interface {
	Limit() int
	Remaining(userID domain.UserID, now time.Time) int
	RetryAfter(userID domain.UserID, now time.Time) time.Duration
}

// FetchHandler serves fetch requests over HTTP.
type FetchHandler struct {
	requests RequestHandler
	quota    QuotaReporter
	logger   *slog.Logger
}

// NewFetchHandler creates a new fetch handler. quota may be nil.
func NewFetchHandler(requests RequestHandler, quota QuotaReporter, logger *slog.Logger) *FetchHandler {
	return &FetchHandler{
		requests: requests,
		quota:    quota,
		logger:   logger,
	}
}

// FetchRequest is the JSON request body for a fetch.
type FetchRequest struct {
	UserID string `json:"user_id"`
	URL    string `json:"url"`
}

// FetchErrorResponse is returned when a fetch does not produce media.
type FetchErrorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// Fetch handles POST /api/v1/fetch. On success the media file is streamed
// back in the response body.
func (h *FetchHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := userIDParam(req.UserID)
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	delivery := &httpDelivery{
		w:      w,
		r:      r,
		header: func(hdr http.Header) { h.setQuotaHeaders(hdr, userID) },
	}
	outcome := h.requests.Handle(r.Context(), domain.Request{
		UserID:  userID,
		RawText: req.URL,
		Kind:    domain.RequestKindDirect,
	}, delivery)

	if outcome.OK() || delivery.wrote {
		if outcome.Class == domain.ClassDeliveryError {
			h.logger.Warn("media stream interrupted", "user_id", userID, "error", outcome.Err)
		}
		return
	}

	h.setQuotaHeaders(w.Header(), userID)
	switch outcome.Class {
	case domain.ClassInvalidInput:
		h.writeOutcome(w, http.StatusBadRequest, outcome, "url must be an http:// or https:// URL")
	case domain.ClassRateLimited:
		if h.quota != nil {
			wait := h.quota.RetryAfter(userID, time.Now())
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		h.writeOutcome(w, http.StatusTooManyRequests, outcome, "too many requests, please wait a minute")
	case domain.ClassFetchError:
		h.writeOutcome(w, http.StatusBadGateway, outcome, "failed to download media")
	default:
		h.writeOutcome(w, http.StatusInternalServerError, outcome, "failed to send media")
	}
}

func (h *FetchHandler) setQuotaHeaders(hdr http.Header, userID domain.UserID) {
	if h.quota == nil {
		return
	}
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.quota.Limit()))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(h.quota.Remaining(userID, time.Now())))
}

func (h *FetchHandler) writeOutcome(w http.ResponseWriter, status int, outcome domain.Outcome, message string) {
	writeJSON(w, status, FetchErrorResponse{
		Error: message,
		Class: string(outcome.Class),
	})
}

// httpDelivery streams media into the response.
type httpDelivery struct {
	w      http.ResponseWriter
	r      *http.Request
	header func(http.Header)
	wrote  bool
}

// Deliver serves the file and reports read or write failures, including a
// body shorter than the advertised Content-Length.
func (d *httpDelivery) Deliver(ctx context.Context, media *domain.MediaDescriptor) error {
	f, err := os.Open(media.Path)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}

	name := media.Filename()
	contentType := mediaContentType(name)

	h := d.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("X-Media-Kind", string(media.Kind))
	h.Set("X-Media-Title", media.Title)
	if d.header != nil {
		d.header(h)
	}

	d.wrote = true
	tw := &trackingWriter{ResponseWriter: d.w}
	src := &trackingReader{f: f}
	http.ServeContent(tw, d.r, name, stat.ModTime(), src)

	if src.err != nil {
		return fmt.Errorf("read media: %w", src.err)
	}
	if tw.err != nil {
		return fmt.Errorf("write media: %w", tw.err)
	}
	if d.r.Method == http.MethodHead {
		return nil
	}
	if tw.status == http.StatusOK || tw.status == http.StatusPartialContent {
		want, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
		if err == nil && tw.written < want {
			return fmt.Errorf("write media: sent %d of %d bytes: %w", tw.written, want, io.ErrShortWrite)
		}
	}
	return nil
}

// trackingWriter records the status, body size and first write error.
type trackingWriter struct {
	http.ResponseWriter
	status  int
	written int64
	err     error
}

func (w *trackingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// trackingReader records the first read error other than io.EOF.
type trackingReader struct {
	f   *os.File
	err error
}

func (r *trackingReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

func (r *trackingReader) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

func mediaContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
