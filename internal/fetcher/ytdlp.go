package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iconidentify/grabbot/internal/config"
	"github.com/iconidentify/grabbot/internal/domain"
)

// maxStderrLog bounds how much extractor stderr ends up in an error.
const maxStderrLog = 2048

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	binary        string
	socketTimeout time.Duration
	retries       int
	format        string
	cookiesFile   string
	logger        *slog.Logger
}

// NewYTDLP creates a yt-dlp backed extractor.
func NewYTDLP(cfg config.FetchConfig, logger *slog.Logger) *YTDLP {
	binary := cfg.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	format := cfg.Format
	if format == "" {
		format = "best"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &YTDLP{
		binary:        binary,
		socketTimeout: cfg.SocketTimeout,
		retries:       cfg.Retries,
		format:        format,
		cookiesFile:   cfg.CookiesFile,
		logger:        logger,
	}
}

// Args returns the command line used for one extraction.
func (y *YTDLP) Args(req ExtractRequest) []string {
	args := []string{
		"-o", req.OutputTemplate,
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--format", y.format,
		"--retries", strconv.Itoa(y.retries),
		"--no-check-certificates",
		"--no-write-thumbnail",
		// Keep the download time as mtime so retention ages files correctly.
		"--no-mtime",
		"--restrict-filenames",
		"--trim-filenames", "160",
		"--force-overwrites",
		// One JSON object per file, so titles may contain newlines.
		"--print", "after_move:%(.{filepath,title})j",
	}

	if y.socketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(y.socketTimeout.Seconds())))
	}

	if y.cookiesFile != "" {
		if _, err := os.Stat(y.cookiesFile); err == nil {
			args = append(args, "--cookies", y.cookiesFile)
		} else {
			y.logger.Debug("cookies file not found, continuing without it", "path", y.cookiesFile)
		}
	}

	return append(args, "--", req.URL)
}

// Extract runs yt-dlp and parses the printed file path and title.
func (y *YTDLP) Extract(ctx context.Context, req ExtractRequest) (*Extraction, error) {
	cmd := exec.CommandContext(ctx, y.binary, y.Args(req)...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		errText := tail(stderr.String(), maxStderrLog)
		if isPrivateMediaError(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPrivateMedia, errText)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp exited with code %d: %s", exitErr.ExitCode(), errText)
		}
		return nil, fmt.Errorf("run yt-dlp: %w", err)
	}

	res := parsePrintOutput(stdout.String())
	if res.Path == "" {
		y.logger.Debug("yt-dlp printed no file info", "stdout", tail(stdout.String(), maxStderrLog))
	}
	return res, nil
}

// printedFile is the object printed by --print after_move.
type printedFile struct {
	Filepath string `json:"filepath"`
	Title    string `json:"title"`
}

// parsePrintOutput decodes the last JSON object yt-dlp printed after moving
// the file into place. Other stdout lines are ignored.
func parsePrintOutput(out string) *Extraction {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var pf printedFile
		if err := json.Unmarshal([]byte(line), &pf); err != nil {
			continue
		}
		return &Extraction{Path: pf.Filepath, Title: pf.Title}
	}
	return &Extraction{}
}

// isPrivateMediaError looks for access errors on yt-dlp's ERROR lines only;
// warnings mentioning the same words do not count.
func isPrivateMediaError(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ERROR:") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "private") ||
			strings.Contains(lower, "restricted") ||
			strings.Contains(lower, "login required") {
			return true
		}
	}
	return false
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
