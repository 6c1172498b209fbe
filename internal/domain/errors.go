package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidURL is returned when the request text is not an http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrRateLimited is returned when a user exceeded the request window.
	ErrRateLimited = errors.New("rate limited")

	// ErrFetchFailed is returned when the extractor could not produce media.
	ErrFetchFailed = errors.New("media fetch failed")

	// ErrFetchTimeout is returned when the extractor exceeded its deadline.
	ErrFetchTimeout = errors.New("media fetch timed out")

	// ErrMissingOutput is returned when the extractor reported success but no
	// file exists at the reported path.
	ErrMissingOutput = errors.New("extractor output missing")

	// ErrPrivateMedia is returned when the source is private or restricted.
	ErrPrivateMedia = errors.New("media is private or restricted")

	// ErrDeliveryFailed is returned when the transport could not send media.
	ErrDeliveryFailed = errors.New("media delivery failed")

	// ErrNoCacheChat is returned when inline delivery has no chat to upload to.
	ErrNoCacheChat = errors.New("no cache chat configured")

	// ErrHistoryDisabled is returned when history is queried without a store.
	ErrHistoryDisabled = errors.New("history disabled")
)

// FetchError wraps an error with fetch context.
type FetchError struct {
	UserID UserID
	URL    string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	if e.UserID != "" {
		return e.Op + " [" + e.UserID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(userID UserID, url, op string, err error) *FetchError {
	return &FetchError{
		UserID: userID,
		URL:    url,
		Op:     op,
		Err:    err,
	}
}
