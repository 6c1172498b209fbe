package domain

// State is a step of the per-request state machine.
type State string

const (
	StateReceived    State = "received"
	StateValidated   State = "validated"
	StateRateChecked State = "rate_checked"
	StateFetched     State = "fetched"
	StateDelivered   State = "delivered"
	StateRejected    State = "rejected"
	StateFailed      State = "failed"
)

// IsTerminal reports whether no further transition follows s.
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateRejected || s == StateFailed
}

// MessageClass is the user-facing category of a terminal outcome. Wording
// belongs to the transport.
type MessageClass string

const (
	ClassInvalidInput  MessageClass = "invalid_input"
	ClassRateLimited   MessageClass = "rate_limited"
	ClassFetchError    MessageClass = "fetch_error"
	ClassDeliveryError MessageClass = "delivery_error"
	ClassSuccess       MessageClass = "success"
)

// Outcome is the result of handling one request.
type Outcome struct {
	State State
	Class MessageClass
	// Media is set once the request reached StateFetched.
	Media *MediaDescriptor
	Err   error
}

// Rejected builds an outcome for a request refused before fetching.
func Rejected(class MessageClass, err error) Outcome {
	return Outcome{State: StateRejected, Class: class, Err: err}
}

// Failed builds an outcome for a request that failed while fetching or
// delivering.
func Failed(class MessageClass, media *MediaDescriptor, err error) Outcome {
	return Outcome{State: StateFailed, Class: class, Media: media, Err: err}
}

// Delivered builds the success outcome.
func Delivered(media *MediaDescriptor) Outcome {
	return Outcome{State: StateDelivered, Class: ClassSuccess, Media: media}
}

// OK reports whether the request was delivered.
func (o Outcome) OK() bool {
	return o.Class == ClassSuccess
}

// MediaKind returns the kind of the fetched media, if any.
func (o Outcome) MediaKind() MediaKind {
	if o.Media == nil {
		return ""
	}
	return o.Media.Kind
}
