// Package fetcher turns a URL into a media file under a per-user directory.
//
// The actual download is delegated to an Extractor. The fetcher owns the
// directory layout, the file naming, the hard deadline around the
// extractor, the existence check on its output and classification of the
// result.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/grabbot/internal/domain"
)

// DefaultDeadline bounds a single extractor invocation.
const DefaultDeadline = 3 * time.Minute

// Config holds fetcher configuration.
type Config struct {
	// Root is the downloads directory; each user gets a subdirectory.
	Root     string
	Deadline time.Duration
	Clock    func() time.Time
	// NewID returns a short unique token used in file names.
	NewID func() string
}

// Fetcher implements the download step of a request.
type Fetcher struct {
	root      string
	deadline  time.Duration
	extractor Extractor
	clock     func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// New creates a fetcher backed by extractor.
func New(cfg Config, extractor Extractor, logger *slog.Logger) *Fetcher {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = shortID
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		root:      cfg.Root,
		deadline:  cfg.Deadline,
		extractor: extractor,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
		logger:    logger,
	}
}

// UserDir returns the storage directory for a user.
func (f *Fetcher) UserDir(userID domain.UserID) string {
	return filepath.Join(f.root, pathSegment(userID.String()))
}

// Fetch downloads rawURL for userID. On any failure it returns a
// *domain.FetchError and no descriptor; partial files are left in place for
// the retention sweeper.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, userID domain.UserID) (*domain.MediaDescriptor, error) {
	logger := f.logger.With("user_id", userID, "url", rawURL)

	dir := f.UserDir(userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewFetchError(userID, rawURL, "create user directory",
			fmt.Errorf("%w: %w", domain.ErrFetchFailed, err))
	}

	prefix := fmt.Sprintf("%d_%s", f.clock().Unix(), f.newID())
	template := filepath.Join(dir, prefix+"_%(title)s.%(ext)s")

	extractCtx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	start := time.Now()
	res, err := f.extractor.Extract(extractCtx, ExtractRequest{
		URL:            rawURL,
		OutputTemplate: template,
	})
	if err != nil {
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("extractor deadline exceeded", "deadline", f.deadline)
			return nil, domain.NewFetchError(userID, rawURL, "extract",
				fmt.Errorf("%w after %s", domain.ErrFetchTimeout, f.deadline))
		}
		if errors.Is(err, domain.ErrPrivateMedia) {
			return nil, domain.NewFetchError(userID, rawURL, "extract", err)
		}
		return nil, domain.NewFetchError(userID, rawURL, "extract",
			fmt.Errorf("%w: %w", domain.ErrFetchFailed, err))
	}
	if res == nil {
		res = &Extraction{}
	}

	path, err := f.resolveOutput(dir, prefix, res.Path)
	if err != nil {
		logger.Warn("extractor reported success without output", "reported_path", res.Path, "error", err)
		return nil, domain.NewFetchError(userID, rawURL, "verify output", err)
	}

	desc := &domain.MediaDescriptor{
		Path:   path,
		Kind:   domain.ClassifyPath(path),
		Title:  domain.TruncateTitle(res.Title),
		UserID: userID,
	}

	logger.Info("media fetched",
		"path", desc.Path,
		"kind", desc.Kind,
		"duration", time.Since(start),
	)

	return desc, nil
}

// resolveOutput checks that the extractor's file exists inside dir. When the
// extractor did not report a path, the newest file carrying prefix is used.
func (f *Fetcher) resolveOutput(dir, prefix, reported string) (string, error) {
	path := reported
	if path == "" {
		found, err := findByPrefix(dir, prefix)
		if err != nil {
			return "", err
		}
		path = found
	}

	if !within(dir, path) {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrMissingOutput, path, dir)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMissingOutput, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", domain.ErrMissingOutput, path)
	}

	return path, nil
}

// findByPrefix returns the most recently modified finished file carrying
// prefix.
func findByPrefix(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMissingOutput, err)
	}

	var (
		newest   string
		newestAt time.Time
	)
	for _, m := range matches {
		if isPartialDownload(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest, newestAt = m, info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w: no file with prefix %s", domain.ErrMissingOutput, prefix)
	}
	return newest, nil
}

func isPartialDownload(path string) bool {
	switch filepath.Ext(path) {
	case ".part", ".ytdl", ".temp", ".tmp":
		return true
	}
	return false
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// pathSegment makes s safe to use as a single directory name.
func pathSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
