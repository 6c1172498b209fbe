package domain

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength is the display ceiling for media titles, in characters.
const MaxTitleLength = 64

// DefaultTitle is used when the extractor reports no title.
const DefaultTitle = "Media"

// UserID identifies a requester. It keys rate-limit state and the
// per-user storage namespace.
type UserID string

// String returns the string representation of the UserID.
func (id UserID) String() string {
	return string(id)
}

// MediaKind tells the delivery path how to attach a file.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindPhoto MediaKind = "photo"
)

// videoExtensions lists container formats delivered as video.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
}

// ClassifyPath returns MediaKindVideo for known video containers and
// MediaKindPhoto for everything else.
func ClassifyPath(path string) MediaKind {
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		return MediaKindVideo
	}
	return MediaKindPhoto
}

// TruncateTitle trims whitespace and bounds a title to MaxTitleLength runes.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxTitleLength])
}

// MediaDescriptor describes a successfully fetched file. It lives for a
// single request and is handed to delivery exactly once.
type MediaDescriptor struct {
	Path   string
	Kind   MediaKind
	Title  string
	UserID UserID
}

// IsVideo reports whether the descriptor should be sent as a video.
func (m *MediaDescriptor) IsVideo() bool {
	return m.Kind == MediaKindVideo
}

// Filename returns the base name of the stored file.
func (m *MediaDescriptor) Filename() string {
	return filepath.Base(m.Path)
}
