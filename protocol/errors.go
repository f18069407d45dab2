package protocol

import "errors"

// ErrMalformedEnvelope indicates the outer envelope could not be parsed: invalid
// JSON, a missing field, a MAC or nonce of the wrong width, or invalid UTF-8.
var ErrMalformedEnvelope = errors.New("protocol: malformed envelope")

// ErrUnsupportedType indicates a payload whose tipo tag names no known operation.
var ErrUnsupportedType = errors.New("protocol: unsupported message type")

// ErrMalformedPayload indicates an authenticated payload that is not a valid
// inner message document.
var ErrMalformedPayload = errors.New("protocol: malformed payload")
