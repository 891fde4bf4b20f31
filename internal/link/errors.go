package link

import "errors"

// ErrProtocolTimeout is returned when no response carrying the solicited
// data type arrives within the read budget. Polling may simply be retried
// on the caller's next cycle.
var ErrProtocolTimeout = errors.New("no matching response within read budget")

// ErrMalformedResponse is returned when a response payload is shorter than
// its declared contents. Resending the same request is unlikely to help.
var ErrMalformedResponse = errors.New("malformed response payload")

// ErrHubClosed is returned when an operation is attempted on a closed hub.
var ErrHubClosed = errors.New("hub is closed")
