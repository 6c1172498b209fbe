package domain

// RequestKind distinguishes how a request reached the bot.
type RequestKind string

const (
	RequestKindDirect RequestKind = "direct"
	RequestKindInline RequestKind = "inline"
)

// Request is a single inbound fetch request.
type Request struct {
	ID      string
	UserID  UserID
	RawText string
	Kind    RequestKind
}
