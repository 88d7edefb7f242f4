package dingtalk

import (
	"errors"
	"fmt"
	"strings"
)

var errNoMessage = errors.New("envelope has no message")

// UnsupportedMessageTypeError is returned for a type hint outside MessageTypes.
type UnsupportedMessageTypeError struct {
	Type string
}

func (e *UnsupportedMessageTypeError) Error() string {
	valid := make([]string, len(MessageTypes))
	for i, t := range MessageTypes {
		valid[i] = string(t)
	}
	return fmt.Sprintf("unsupported message type %q, use one of %s", e.Type, strings.Join(valid, "/"))
}

// BuildError reports a failure while serializing the envelope.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return "build message: " + e.Err.Error() }
func (e *BuildError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure, including the request timeout.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network request failed: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("HTTP %d", e.StatusCode) }

// MalformedResponseError carries the first bytes of an unparsable response.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response %q: %v", e.Body, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RemoteError is an application-level failure returned with HTTP 200.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("robot returned errcode %d: %s", e.Code, e.Message)
}

// Error kinds reported by ErrorKind.
const (
	KindOK                = "ok"
	KindUnsupportedType   = "unsupported_type"
	KindBuild             = "build"
	KindNetwork           = "network"
	KindHTTP              = "http"
	KindMalformedResponse = "malformed_response"
	KindRemote            = "remote"
	KindUnknown           = "unknown"
)

// ErrorKind classifies an error returned by this package.
func ErrorKind(err error) string {
	if err == nil {
		return KindOK
	}

	var (
		unsupported *UnsupportedMessageTypeError
		build       *BuildError
		network     *NetworkError
		httpErr     *HTTPError
		malformed   *MalformedResponseError
		remote      *RemoteError
	)

	switch {
	case errors.As(err, &unsupported):
		return KindUnsupportedType
	case errors.As(err, &build):
		return KindBuild
	case errors.As(err, &network):
		return KindNetwork
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &malformed):
		return KindMalformedResponse
	case errors.As(err, &remote):
		return KindRemote
	default:
		return KindUnknown
	}
}
