package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// =============================================================================
// Media Tests
// =============================================================================

func TestUserID_String(t *testing.T) {
	if got := UserID("824640741").String(); got != "824640741" {
		t.Errorf("UserID.String() = %q", got)
	}
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path string
		want MediaKind
	}{
		{"/d/1/1_ab_clip.mp4", MediaKindVideo},
		{"/d/1/1_ab_clip.MKV", MediaKindVideo},
		{"/d/1/1_ab_clip.webm", MediaKindVideo},
		{"/d/1/1_ab_clip.mov", MediaKindVideo},
		{"/d/1/1_ab_pic.jpg", MediaKindPhoto},
		{"/d/1/1_ab_pic.webp", MediaKindPhoto},
		{"/d/1/noext", MediaKindPhoto},
		{"/d/1/1_ab_clip.mp4.part", MediaKindPhoto},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ClassifyPath(tt.path); got != tt.want {
				t.Errorf("ClassifyPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("a", 100)
	unicode := strings.Repeat("é", 70)

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"short", "My clip", "My clip"},
		{"trimmed", "  My clip \n", "My clip"},
		{"empty", "", DefaultTitle},
		{"blank", "   ", DefaultTitle},
		{"exact", strings.Repeat("b", MaxTitleLength), strings.Repeat("b", MaxTitleLength)},
		{"long", long, long[:MaxTitleLength]},
		{"multibyte", unicode, strings.Repeat("é", MaxTitleLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateTitle(tt.title); got != tt.want {
				t.Errorf("TruncateTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaDescriptor(t *testing.T) {
	m := &MediaDescriptor{Path: "/downloads/42/1709287200_abcd1234_clip.mp4", Kind: MediaKindVideo}
	if !m.IsVideo() {
		t.Error("IsVideo() = false, want true")
	}
	if got := m.Filename(); got != "1709287200_abcd1234_clip.mp4" {
		t.Errorf("Filename() = %q", got)
	}

	m.Kind = MediaKindPhoto
	if m.IsVideo() {
		t.Error("IsVideo() = true for photo")
	}
}

// =============================================================================
// Outcome Tests
// =============================================================================

func TestOutcomeConstructors(t *testing.T) {
	media := &MediaDescriptor{Path: "/x.jpg", Kind: MediaKindPhoto}

	tests := []struct {
		name      string
		outcome   Outcome
		state     State
		class     MessageClass
		ok        bool
		mediaKind MediaKind
	}{
		{"rejected", Rejected(ClassInvalidInput, ErrInvalidURL), StateRejected, ClassInvalidInput, false, ""},
		{"rate limited", Rejected(ClassRateLimited, ErrRateLimited), StateRejected, ClassRateLimited, false, ""},
		{"fetch failed", Failed(ClassFetchError, nil, ErrFetchFailed), StateFailed, ClassFetchError, false, ""},
		{"delivery failed", Failed(ClassDeliveryError, media, ErrDeliveryFailed), StateFailed, ClassDeliveryError, false, MediaKindPhoto},
		{"delivered", Delivered(media), StateDelivered, ClassSuccess, true, MediaKindPhoto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.outcome.State != tt.state {
				t.Errorf("State = %q, want %q", tt.outcome.State, tt.state)
			}
			if tt.outcome.Class != tt.class {
				t.Errorf("Class = %q, want %q", tt.outcome.Class, tt.class)
			}
			if tt.outcome.OK() != tt.ok {
				t.Errorf("OK() = %v, want %v", tt.outcome.OK(), tt.ok)
			}
			if tt.outcome.MediaKind() != tt.mediaKind {
				t.Errorf("MediaKind() = %q, want %q", tt.outcome.MediaKind(), tt.mediaKind)
			}
			if !tt.outcome.State.IsTerminal() {
				t.Errorf("%s should be terminal", tt.outcome.State)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []State{StateReceived, StateValidated, StateRateChecked, StateFetched} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestFetchError(t *testing.T) {
	cause := fmt.Errorf("%w: exit status 1", ErrFetchFailed)
	err := NewFetchError("42", "https://example.com", "extract", cause)

	if got := err.Error(); got != "extract [42]: media fetch failed: exit status 1" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Error("errors.Is(err, ErrFetchFailed) = false")
	}

	var fe *FetchError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &fe) {
		t.Fatal("errors.As should find FetchError")
	}
	if fe.URL != "https://example.com" || fe.Op != "extract" {
		t.Errorf("unexpected FetchError: %+v", fe)
	}
}

func TestFetchError_NoUser(t *testing.T) {
	err := NewFetchError("", "u", "mkdir", ErrFetchFailed)
	if got := err.Error(); got != "mkdir: media fetch failed" {
		t.Errorf("Error() = %q", got)
	}
}
