package fetcher

import "context"

// Extractor resolves a URL into a media file on disk. Implementations write
// the file according to OutputTemplate and report where it landed.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*Extraction, error)
}

// ExtractRequest describes one extraction.
type ExtractRequest struct {
	URL string
	// OutputTemplate is a yt-dlp style template; %(title)s and %(ext)s are
	// filled in by the extractor.
	OutputTemplate string
}

// Extraction is what an extractor reports on success.
type Extraction struct {
	// Path of the produced file. May be empty if the extractor could not
	// tell, in which case the fetcher looks for the file itself.
	Path  string
	Title string
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, req ExtractRequest) (*Extraction, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, req ExtractRequest) (*Extraction, error) {
	return f(ctx, req)
}
