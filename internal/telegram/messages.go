package telegram

import "github.com/iconidentify/grabbot/internal/domain"

// Chat texts.
const (
	TextStart         = "Send me an Instagram/Youtube link, and I'll fetch the media for you!"
	TextInvalidInput  = "Please send a valid URL starting with http:// or https://"
	TextRateLimited   = "⚠️ Please wait a minute before making more requests"
	TextAccepted      = "⏳ Downloading media, please wait..."
	TextFetchError    = "❌ Failed to download media. Please check the URL and try again."
	TextDeliveryError = "❌ Failed to send media. Please try again."
	CaptionVideo      = "🎥 Here's your video!"
	CaptionPhoto      = "📸 Here's your photo!"
)

// Reply returns the chat text for a terminal outcome class. Success has no
// text reply; the media message carries the caption.
func Reply(class domain.MessageClass) string {
	switch class {
	case domain.ClassInvalidInput:
		return TextInvalidInput
	case domain.ClassRateLimited:
		return TextRateLimited
	case domain.ClassFetchError:
		return TextFetchError
	case domain.ClassDeliveryError:
		return TextDeliveryError
	default:
		return ""
	}
}

// Caption returns the media caption for kind.
func Caption(kind domain.MediaKind) string {
	if kind == domain.MediaKindVideo {
		return CaptionVideo
	}
	return CaptionPhoto
}

// inlineArticle is the title and text of an inline error result.
type inlineArticle struct {
	id    string
	title string
	text  string
}

// inlineReply returns the article answered to an inline query that did not
// produce media.
func inlineReply(class domain.MessageClass) inlineArticle {
	switch class {
	case domain.ClassInvalidInput:
		return inlineArticle{"invalid_url", "Invalid URL", "Please provide a valid URL starting with http:// or https://"}
	case domain.ClassRateLimited:
		return inlineArticle{"rate_limit", "Too many requests", TextRateLimited}
	case domain.ClassFetchError:
		return inlineArticle{"error", "Download failed", "❌ Failed to download media. Please try a different link."}
	default:
		return inlineArticle{"error", "Processing failed", "❌ Failed to process media. Please try again."}
	}
}
