package host

import stderrors "errors"

// Pattern resolution failures. Every error Resolve returns wraps exactly one
// of these; match with errors.Is.
var (
	ErrUnknownServer  = stderrors.New("unknown server")
	ErrUnknownRole    = stderrors.New("unknown role")
	ErrAmbiguous      = stderrors.New("ambiguous server reference")
	ErrInvalidPattern = stderrors.New("invalid pattern")
)

// Transport failures. DialError matches one of these through errors.Is.
var (
	ErrConnect = stderrors.New("connect failed")
	ErrAuth    = stderrors.New("authentication failed")
	ErrTimeout = stderrors.New("timed out")
)
